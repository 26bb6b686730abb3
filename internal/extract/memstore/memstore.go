// Package memstore provides an in-memory implementation of extract.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/openie/internal/extract"
)

// Store holds extraction results in memory. Suitable for dev/testing and
// for single-shot runs where nothing outlives the process.
type Store struct {
	mu      sync.RWMutex
	results map[string]*extract.Result // extraction ID -> result
	seen    map[string]string          // text fingerprint -> latest extraction ID
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		results: make(map[string]*extract.Result),
		seen:    make(map[string]string),
	}
}

// Get retrieves an extraction result by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*extract.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, false, nil
	}
	return clone(r), true, nil
}

// GetByFingerprint retrieves the latest extraction of a text fingerprint. Returns a copy.
func (s *Store) GetByFingerprint(_ context.Context, fp string) (*extract.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.seen[fp]
	if !ok {
		return nil, false, nil
	}
	return clone(s.results[id]), true, nil
}

// Put stores a copy of the extraction result.
func (s *Store) Put(_ context.Context, r *extract.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = clone(r)
	s.seen[r.Fingerprint] = r.ID
	return nil
}

// clone deep-copies r so callers cannot mutate stored entities or triplets.
func clone(r *extract.Result) *extract.Result {
	cp := *r
	if r.Graph == nil {
		return &cp
	}

	g := *r.Graph
	g.Entities = make([]extract.Entity, len(r.Graph.Entities))
	for i, e := range r.Graph.Entities {
		e.Types = append([]string(nil), e.Types...)
		g.Entities[i] = e
	}
	g.Triplets = make([]extract.Triplet, len(r.Graph.Triplets))
	for i, t := range r.Graph.Triplets {
		if t.PredDescription != nil {
			desc := *t.PredDescription
			t.PredDescription = &desc
		}
		g.Triplets[i] = t
	}
	cp.Graph = &g
	return &cp
}
