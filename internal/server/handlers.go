package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/documents"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
)

// timeLayout is the upload timestamp format used in document listings.
const timeLayout = "2006-01-02 15:04:05"

// handleAsk handles POST /api/ask. It answers a question against the caller's
// documents and continues the caller's conversation.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var req askRequest
	if !s.decode(w, r, &req) {
		s.metrics.observeAsk(string(rag.KindInvalidInput), time.Since(start))
		return
	}

	res, err := s.answerer.Answer(r.Context(), qa.Request{
		Query:       req.Query,
		OwnerID:     owner,
		DocumentIDs: req.DocumentIDs,
		Reset:       req.NewChat,
	})
	if err != nil {
		kind := rag.KindOf(err)
		s.metrics.observeAsk(string(kind), time.Since(start))
		s.writeError(w, r, err)
		return
	}
	s.metrics.observeAsk("ok", time.Since(start))

	resp := askResponse{
		Response:       res.Text,
		Documents:      make([]askDocument, len(res.Documents)),
		ConversationID: res.ConversationID,
	}
	for i, id := range res.Documents {
		resp.Documents[i] = askDocument{ID: id, Name: res.Names[i], Score: res.Scores[i]}
	}

	log.Debug("ask answered",
		slog.Int("documents", len(resp.Documents)),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, r, http.StatusOK, resp)
}

// handleUpload handles POST /api/documents with a JSON body of either
// {name, text} or {name?, url}.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var req uploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" && req.URL == "" {
		s.writeError(w, r, rag.Errorf(rag.KindInvalidInput, "upload", "one of text or url is required"))
		return
	}

	doc, err := s.docs.Upload(r.Context(), documents.UploadRequest{
		OwnerID: owner,
		Name:    req.Name,
		Text:    req.Text,
		URL:     req.URL,
	})
	if err != nil {
		s.metrics.documentUploadsTotal.WithLabelValues(string(rag.KindOf(err))).Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.documentUploadsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, r, http.StatusCreated, toDocumentResponse(doc))
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	docs, err := s.docs.List(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	doc, err := s.docs.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, documentDetailResponse{
		documentResponse: toDocumentResponse(doc),
		Text:             doc.Text,
	})
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.docs.Remove(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner extracts the caller's user id from the configured header. It writes
// 401 and returns false when the header is absent.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(s.cfg.OwnerHeader))
	if id == "" {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse{
			Error:  "unauthenticated",
			Detail: "missing " + s.cfg.OwnerHeader + " header",
		})
		return "", false
	}
	return id, true
}

// decode reads a size-capped JSON body into dst. It writes 400 and returns
// false on malformed input.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "request_too_large"})
			return false
		}
		writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:  string(rag.KindInvalidInput),
			Detail: "invalid request body",
		})
		return false
	}
	return true
}

// writeError maps err to a status code and writes the JSON error body.
// Internal failures are logged in full and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	kind := rag.KindOf(err)
	status := statusForKind(kind)

	body := errorResponse{Error: string(kind)}
	var e *rag.Error
	if errors.As(err, &e) && kind != rag.KindInternal {
		body.Detail = e.Detail()
	}

	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", slog.String("kind", string(kind)), slog.Any("error", err))
	case kind == rag.KindNoRelevantDocuments:
		log.Info("request failed", slog.String("kind", string(kind)))
	default:
		log.Warn("request failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
	writeJSON(w, r, status, body)
}

// statusForKind maps a failure kind to its HTTP status.
func statusForKind(kind rag.Kind) int {
	switch kind {
	case rag.KindInvalidInput:
		return http.StatusBadRequest
	case rag.KindNoRelevantDocuments, rag.KindNotFound:
		return http.StatusNotFound
	case rag.KindDimensionMismatch:
		return http.StatusUnprocessableEntity
	case rag.KindEmbeddingFailed, rag.KindGenerationFailed:
		return http.StatusBadGateway
	case rag.KindEmbeddingTimeout, rag.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

func toDocumentResponse(d rag.DocumentRef) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Name:       d.Name,
		UploadedAt: d.UploadedAt.UTC().Format(timeLayout),
	}
}
