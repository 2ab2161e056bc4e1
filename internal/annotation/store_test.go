package annotation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	mu      sync.Mutex
	next    int
	clock   time.Time
	items   map[string]Highlight
	failErr error
}

func newMemBackend() *memBackend {
	return &memBackend{
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		items: make(map[string]Highlight),
	}
}

func (b *memBackend) List(ctx context.Context) ([]Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return nil, b.failErr
	}
	out := make([]Highlight, 0, len(b.items))
	for _, h := range b.items {
		out = append(out, h)
	}
	SortByCreation(out)
	return out, nil
}

func (b *memBackend) Create(ctx context.Context, req CreateRequest) (Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return Highlight{}, b.failErr
	}
	b.next++
	b.clock = b.clock.Add(time.Second)
	h := Highlight{
		ID:           fmt.Sprintf("h%d", b.next),
		Position:     req.Position,
		SelectedText: req.SelectedText,
		Color:        req.Color,
		Note:         req.Note,
		CreatedAt:    b.clock,
		UpdatedAt:    b.clock,
	}
	b.items[h.ID] = h
	return h, nil
}

func (b *memBackend) Update(ctx context.Context, id string, u Update) (Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return Highlight{}, b.failErr
	}
	h, ok := b.items[id]
	if !ok {
		return Highlight{}, &StatusError{Op: "update", Code: http.StatusNotFound}
	}
	u.Apply(&h, b.clock)
	b.items[id] = h
	return h, nil
}

func (b *memBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	if _, ok := b.items[id]; !ok {
		return &StatusError{Op: "delete", Code: http.StatusNotFound}
	}
	delete(b.items, id)
	return nil
}

func TestStore_CreateDefaultsColorAndNotifies(t *testing.T) {
	s := NewStore(newMemBackend())
	calls := 0
	s.OnChange(func() { calls++ })

	h, err := s.Create(context.Background(), CreateRequest{Position: OffsetPosition(4, 9), SelectedText: "quick"})
	require.NoError(t, err)
	assert.Equal(t, Yellow, h.Color)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, calls)

	got, ok := s.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, "quick", got.SelectedText)
}

func TestStore_FailureLeavesStateUntouched(t *testing.T) {
	b := newMemBackend()
	s := NewStore(b)
	ctx := context.Background()

	h, err := s.Create(ctx, CreateRequest{Position: OffsetPosition(0, 3), SelectedText: "The"})
	require.NoError(t, err)

	boom := errors.New("network down")
	b.failErr = boom

	_, err = s.Create(ctx, CreateRequest{Position: OffsetPosition(4, 9), SelectedText: "quick"})
	assert.ErrorIs(t, err, boom)
	_, err = s.Update(ctx, h.ID, Recolor(Pink))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Delete(ctx, h.ID), boom)

	hs := s.Highlights()
	require.Len(t, hs, 1)
	assert.Equal(t, Yellow, hs[0].Color)
}

func TestStore_DeleteOfMissingHighlightSucceeds(t *testing.T) {
	s := NewStore(newMemBackend())
	assert.NoError(t, s.Delete(context.Background(), "gone"))
}

func TestStore_FinalStateIndependentOfCallOrder(t *testing.T) {
	ctx := context.Background()

	run := func(order []int) []Highlight {
		b := newMemBackend()
		seed := NewStore(b)
		var ids []string
		for i, text := range []string{"alpha", "beta", "gamma"} {
			h, err := seed.Create(ctx, CreateRequest{Position: OffsetPosition(i*10, i*10+5), SelectedText: text})
			require.NoError(t, err)
			ids = append(ids, h.ID)
		}

		s := NewStore(b)
		_, err := s.List(ctx)
		require.NoError(t, err)

		ops := []func(){
			func() { _, err := s.Update(ctx, ids[0], Recolor(Green)); require.NoError(t, err) },
			func() { _, err := s.Update(ctx, ids[1], SetNote("n")); require.NoError(t, err) },
			func() { require.NoError(t, s.Delete(ctx, ids[2])) },
		}
		for _, i := range order {
			ops[i]()
		}
		return s.Highlights()
	}

	want := run([]int{0, 1, 2})
	got := run([]int{2, 0, 1})
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Color, got[i].Color)
		assert.Equal(t, want[i].Note, got[i].Note)
	}
}

func TestStore_ListReplacesLocalSet(t *testing.T) {
	b := newMemBackend()
	s := NewStore(b)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateRequest{Position: OffsetPosition(0, 1), SelectedText: "a"})
	require.NoError(t, err)

	other := NewStore(b)
	hs, err := other.List(ctx)
	require.NoError(t, err)
	assert.Len(t, hs, 1)
	assert.Equal(t, s.Highlights(), hs)
}

// gatedList holds List after reading the backend until release is closed.
type gatedList struct {
	*memBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedList) List(ctx context.Context) ([]Highlight, error) {
	hs, err := g.memBackend.List(ctx)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return hs, err
}

func TestStore_ListKeepsMutationsAcknowledgedDuringList(t *testing.T) {
	ctx := context.Background()
	mem := newMemBackend()
	seed := NewStore(mem)
	old, err := seed.Create(ctx, CreateRequest{Position: OffsetPosition(0, 3), SelectedText: "The"})
	require.NoError(t, err)
	kept, err := seed.Create(ctx, CreateRequest{Position: OffsetPosition(4, 9), SelectedText: "quick"})
	require.NoError(t, err)

	g := &gatedList{memBackend: mem, entered: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(g)

	type listResult struct {
		hs  []Highlight
		err error
	}
	done := make(chan listResult, 1)
	go func() {
		hs, err := s.List(ctx)
		done <- listResult{hs, err}
	}()
	<-g.entered

	// The in-flight response already holds old and kept, and not added.
	added, err := s.Create(ctx, CreateRequest{Position: OffsetPosition(10, 15), SelectedText: "brown"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, old.ID))
	close(g.release)

	res := <-done
	require.NoError(t, res.err)
	var ids []string
	for _, h := range res.hs {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{kept.ID, added.ID}, ids)

	_, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Empty(t, s.touched)
}
