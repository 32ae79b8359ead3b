// Package persistence stores the persisted registry document, exports single
// conversations and imports transcripts.
package persistence

import (
	"context"

	"github.com/go-go-golems/locus/pkg/registry"
)

// Store loads and saves the persisted registry state. Loading from a store
// that holds nothing yet returns an empty state.
type Store interface {
	Load(ctx context.Context) (*registry.State, error)
	Save(ctx context.Context, state *registry.State) error
	Close() error
}

// LoadInto restores r from the store.
func LoadInto(ctx context.Context, s Store, r *registry.Registry) error {
	state, err := s.Load(ctx)
	if err != nil {
		return err
	}
	r.Restore(state)
	return nil
}

// SaveFrom writes the current state of r to the store.
func SaveFrom(ctx context.Context, s Store, r *registry.Registry) error {
	return s.Save(ctx, r.State())
}
