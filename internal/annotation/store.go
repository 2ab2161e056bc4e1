package annotation

import (
	"context"
	"fmt"
	"sync"
)

// Backend persists highlights for one material.
type Backend interface {
	List(ctx context.Context) ([]Highlight, error)
	Create(ctx context.Context, req CreateRequest) (Highlight, error)
	Update(ctx context.Context, id string, u Update) (Highlight, error)
	Delete(ctx context.Context, id string) error
}

// Store is the local view of one material's highlights. Local state changes
// only after the backend acknowledges a call; a failed call leaves it as it
// was and returns the error.
type Store struct {
	backend Backend

	mu       sync.Mutex
	byID     map[string]Highlight
	onChange func()

	// seq counts acknowledged mutations. While a List is in flight, touched
	// maps each mutated id to the seq of its last acknowledgement.
	seq     uint64
	listing int
	touched map[string]uint64
}

// NewStore creates an empty store over backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		byID:    make(map[string]Highlight),
		touched: make(map[string]uint64),
	}
}

// OnChange registers fn to run after every successful mutation. fn runs on
// the goroutine that made the call.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// List replaces the local set with the backend's. Creates, updates and
// deletes acknowledged while the list call was in flight are newer than its
// response and are kept.
func (s *Store) List(ctx context.Context) ([]Highlight, error) {
	s.mu.Lock()
	since := s.seq
	s.listing++
	s.mu.Unlock()

	hs, err := s.backend.List(ctx)

	s.mu.Lock()
	s.listing--
	if err != nil {
		s.endListing()
		s.mu.Unlock()
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	byID := make(map[string]Highlight, len(hs))
	for _, h := range hs {
		byID[h.ID] = h
	}
	for id, seq := range s.touched {
		if seq <= since {
			continue
		}
		if h, ok := s.byID[id]; ok {
			byID[id] = h
		} else {
			delete(byID, id)
		}
	}
	s.byID = byID
	s.endListing()
	s.mu.Unlock()
	s.changed()
	return s.Highlights(), nil
}

// ack records an acknowledged mutation of id; h is nil for a delete. The
// caller holds s.mu.
func (s *Store) ack(id string, h *Highlight) {
	s.seq++
	if h != nil {
		s.byID[id] = *h
	} else {
		delete(s.byID, id)
	}
	if s.listing > 0 {
		s.touched[id] = s.seq
	}
}

func (s *Store) endListing() {
	if s.listing == 0 {
		clear(s.touched)
	}
}

// Create persists a highlight and appends it locally.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Highlight, error) {
	if req.Color == "" {
		req.Color = DefaultColor
	}
	h, err := s.backend.Create(ctx, req)
	if err != nil {
		return Highlight{}, fmt.Errorf("create highlight: %w", err)
	}
	s.mu.Lock()
	s.ack(h.ID, &h)
	s.mu.Unlock()
	s.changed()
	return h, nil
}

// Update applies a partial update and replaces the local record with the
// backend's response.
func (s *Store) Update(ctx context.Context, id string, u Update) (Highlight, error) {
	h, err := s.backend.Update(ctx, id, u)
	if err != nil {
		return Highlight{}, fmt.Errorf("update highlight %s: %w", id, err)
	}
	s.mu.Lock()
	s.ack(h.ID, &h)
	s.mu.Unlock()
	s.changed()
	return h, nil
}

// Delete removes a highlight. A highlight the backend no longer has is
// treated as deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete highlight %s: %w", id, err)
	}
	s.mu.Lock()
	s.ack(id, nil)
	s.mu.Unlock()
	s.changed()
	return nil
}

// Get returns one highlight from the local set.
func (s *Store) Get(id string) (Highlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[id]
	return h, ok
}

// Highlights returns a snapshot ordered by (created_at, id).
func (s *Store) Highlights() []Highlight {
	s.mu.Lock()
	out := make([]Highlight, 0, len(s.byID))
	for _, h := range s.byID {
		out = append(out, h)
	}
	s.mu.Unlock()
	SortByCreation(out)
	return out
}

// Len returns the number of local highlights.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
