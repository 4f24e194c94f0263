package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps an embedding response body.
const maxResponseBytes = 32 << 20

// apiError is a non-2xx answer from an embedding endpoint.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

// postJSON sends in as a JSON body to url and decodes a 2xx response into
// out. For other statuses errMessage extracts the server's message from the
// raw body.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, in, out any, errMessage func([]byte) string) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, message: errMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// single returns the only vector of vs.
func single(vs [][]float32) ([]float32, error) {
	if len(vs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vs))
	}
	if len(vs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return vs[0], nil
}
