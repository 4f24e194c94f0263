package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/docqa-go/internal/assembler"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/documents"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/tracing"
	"github.com/54b3r/docqa-go/internal/version"
)

// app is the wired engine shared by serve, ask, ingest, and docs.
type app struct {
	settings config.Settings
	store    *store.SQLiteStore
	qdrant   *rag.QdrantArchive
	index    *index.VectorIndex
	docs     *documents.Service
	tracer   *tracing.Tracer

	// Set only when opts.chat is requested.
	sessions *session.Store
	qa       *qa.Orchestrator
}

// appOptions selects what buildApp wires beyond storage and embedding.
type appOptions struct {
	// chat builds the chat model, session store and orchestrator.
	chat bool
	// localFetch lets URL uploads reach loopback and private addresses
	// regardless of DOCQA_FETCH_ALLOW_PRIVATE. Set for the ingest command,
	// whose URLs come from the operator.
	localFetch bool
}

// buildApp opens storage, constructs the embedder and, when opts.chat is
// set, the chat model, session store and orchestrator. The index is warmed
// from the embedding archive before returning. Close releases everything.
func buildApp(ctx context.Context, log *slog.Logger, opts appOptions) (_ *app, err error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	dbPath := settings.DBPath
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	if a.store, err = store.Open(dbPath); err != nil {
		return nil, err
	}
	log.Info("store opened", slog.String("path", dbPath))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	backend := embedder.Backend()
	dims := embedder.DefaultDimensions(backend)
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", backend), slog.Int("dimensions", dims))

	var archive rag.EmbeddingArchive = a.store
	if settings.QdrantHost != "" {
		a.qdrant, err = rag.NewQdrantArchive(ctx, &rag.QdrantConfig{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantPort,
			Collection: settings.QdrantCollection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are positive
			APIKey:     settings.QdrantAPIKey,
			UseTLS:     settings.QdrantTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", settings.QdrantHost, settings.QdrantPort, err)
		}
		archive = a.qdrant
		log.Info("qdrant archive ready",
			slog.String("host", settings.QdrantHost),
			slog.Int("port", settings.QdrantPort),
		)
	}

	a.index = index.New(dims)
	a.docs, err = documents.New(documents.Config{
		Store:        a.store,
		Archive:      archive,
		Index:        a.index,
		Embedder:     emb,
		Fetcher:      documents.NewFetcher(documents.FetchConfig{AllowPrivate: opts.localFetch || settings.FetchAllowPrivate}),
		EmbedTimeout: settings.EmbedTimeout,
	})
	if err != nil {
		return nil, err
	}
	n, err := a.docs.Warm(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to warm index: %w", err)
	}
	log.Info("index warmed", slog.Int("documents", n))

	a.tracer = tracing.Setup(tracing.ConfigFromEnv(version.Version), log)
	if !opts.chat {
		return a, nil
	}

	chat, err := provider.NewFromEnv(ctx, a.tracer.Handlers()...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.sessions, err = session.New(session.Config{
		Chat:    chat,
		IdleTTL: settings.SessionIdleTTL,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	a.qa, err = qa.New(qa.Config{
		Embedder:        emb,
		Index:           a.index,
		Documents:       a.store,
		Sessions:        a.sessions,
		Assembler:       assembler.New(settings.MaxContextChars),
		TopK:            settings.TopK,
		EmbedTimeout:    settings.EmbedTimeout,
		GenerateTimeout: settings.GenerateTimeout,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// pingers returns the readiness probes for the configured dependencies.
func (a *app) pingers() []server.Pinger {
	ps := []server.Pinger{server.NewDependencyPinger("sqlite", a.store)}
	if a.qdrant != nil {
		ps = append(ps, server.NewDependencyPinger("qdrant", a.qdrant))
	}
	return ps
}

// Close releases sessions, flushes traces and closes storage.
func (a *app) Close() error {
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.tracer != nil {
		a.tracer.Flush()
	}
	var errs []error
	if a.qdrant != nil {
		errs = append(errs, a.qdrant.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
