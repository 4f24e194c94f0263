package server

import (
	"context"
	"fmt"
)

// pingable is satisfied by *store.SQLiteStore and *rag.QdrantArchive.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts any value with a Ping method to the Pinger
// interface under a fixed name.
type DependencyPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// target is the dependency to probe.
	target pingable
}

// NewDependencyPinger constructs a Pinger named name that probes target.
func NewDependencyPinger(name string, target pingable) *DependencyPinger {
	return &DependencyPinger{name: name, target: target}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping delegates to the target.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}
