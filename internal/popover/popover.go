// Package popover is the state machine behind the color picker shown after a
// text selection. States are values: every transition returns the next state
// and the caller keeps it.
package popover

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/selection"
)

// ErrNotPending is returned when choosing a color with no open popover.
var ErrNotPending = errors.New("popover has no pending selection")

// Phase is the popover's visibility.
type Phase int

const (
	Idle Phase = iota
	Pending
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// DismissReason says why the popover closed without a choice.
type DismissReason int

const (
	ClickOutside DismissReason = iota
	Escape
	Navigation
)

func (r DismissReason) String() string {
	switch r {
	case ClickOutside:
		return "click_outside"
	case Escape:
		return "escape"
	case Navigation:
		return "navigation"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Creator persists a highlight. *annotation.Store satisfies it.
type Creator interface {
	Create(ctx context.Context, req annotation.CreateRequest) (annotation.Highlight, error)
}

// State is the popover state.
type State struct {
	Phase     Phase
	Selection selection.TextSelection
	Anchor    layout.Rect
}

// Open shows the popover for sel, replacing any pending selection.
func Open(sel selection.TextSelection) State {
	return State{Phase: Pending, Selection: sel, Anchor: sel.Anchor}
}

// Request builds the create request for the pending selection.
func (s State) Request(color annotation.Color) (annotation.CreateRequest, error) {
	if s.Phase != Pending {
		return annotation.CreateRequest{}, ErrNotPending
	}
	if color == "" {
		color = annotation.DefaultColor
	}
	if !color.Valid() {
		return annotation.CreateRequest{}, fmt.Errorf("%w: %q", annotation.ErrInvalidColor, color)
	}
	return annotation.CreateRequest{
		Position:     s.Selection.Position(),
		SelectedText: s.Selection.Text,
		Color:        color,
	}, nil
}

// Choose creates a highlight for the pending selection. On success the
// popover closes; on failure it stays pending so the user can retry or
// dismiss.
func (s State) Choose(ctx context.Context, color annotation.Color, c Creator) (State, annotation.Highlight, error) {
	req, err := s.Request(color)
	if err != nil {
		return s, annotation.Highlight{}, err
	}
	h, err := c.Create(ctx, req)
	if err != nil {
		return s, annotation.Highlight{}, err
	}
	return State{}, h, nil
}

// Dismiss closes the popover. The host clears the live selection.
func (s State) Dismiss(DismissReason) State {
	return State{}
}
