// Package annotation holds the highlight data model, the per-material
// annotation store, and the HTTP client for the materials backend.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidPosition is returned for a position descriptor that cannot
// address a span.
var ErrInvalidPosition = errors.New("invalid position")

// ErrInvalidColor is returned for a color outside the palette.
var ErrInvalidColor = errors.New("invalid color")

// Color is one of the fixed highlight colors.
type Color string

const (
	Yellow Color = "yellow"
	Green  Color = "green"
	Blue   Color = "blue"
	Pink   Color = "pink"
)

// DefaultColor is used when a create request names no color.
const DefaultColor = Yellow

// Palette lists the colors in display order.
var Palette = []Color{Yellow, Green, Blue, Pink}

// Valid reports whether c is in the palette.
func (c Color) Valid() bool {
	switch c {
	case Yellow, Green, Blue, Pink:
		return true
	}
	return false
}

// OrDefault maps unknown colors to the default so stored data never breaks
// rendering.
func (c Color) OrDefault() Color {
	if c.Valid() {
		return c
	}
	return DefaultColor
}

// ParseColor validates a color from user input. An empty string yields the
// default color.
func ParseColor(s string) (Color, error) {
	if s == "" {
		return DefaultColor, nil
	}
	c := Color(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// Position addresses a span of canonical text. On paginated materials Page is
// set and the offsets are local to that page.
type Position struct {
	StartOffset *int `json:"start_offset,omitempty"`
	EndOffset   *int `json:"end_offset,omitempty"`
	Page        *int `json:"page,omitempty"`
}

// OffsetPosition builds a position for a non-paginated material.
func OffsetPosition(start, end int) Position {
	return Position{StartOffset: &start, EndOffset: &end}
}

// PagePosition builds a position local to one page.
func PagePosition(page, start, end int) Position {
	return Position{StartOffset: &start, EndOffset: &end, Page: &page}
}

// Offsets returns the span when both ends are defined.
func (p Position) Offsets() (start, end int, ok bool) {
	if p.StartOffset == nil || p.EndOffset == nil {
		return 0, 0, false
	}
	return *p.StartOffset, *p.EndOffset, true
}

// PageNumber returns the page, or 0 for an unpaged position.
func (p Position) PageNumber() int {
	if p.Page == nil {
		return 0
	}
	return *p.Page
}

// Validate checks the descriptor against the material kind.
func (p Position) Validate(paginated bool) error {
	start, end, ok := p.Offsets()
	if !ok {
		return fmt.Errorf("%w: start_offset and end_offset are required", ErrInvalidPosition)
	}
	if start < 0 {
		return fmt.Errorf("%w: negative start_offset %d", ErrInvalidPosition, start)
	}
	if end <= start {
		return fmt.Errorf("%w: end_offset %d must exceed start_offset %d", ErrInvalidPosition, end, start)
	}
	switch {
	case paginated && p.Page == nil:
		return fmt.Errorf("%w: page is required for paginated material", ErrInvalidPosition)
	case paginated && *p.Page < 1:
		return fmt.Errorf("%w: page %d must be >= 1", ErrInvalidPosition, *p.Page)
	case !paginated && p.Page != nil:
		return fmt.Errorf("%w: page is only valid for paginated material", ErrInvalidPosition)
	}
	return nil
}

// Highlight is a persisted annotation anchored to a span of a material.
type Highlight struct {
	ID               string    `json:"id"`
	SourceMaterialID string    `json:"source_material_id"`
	Position         Position  `json:"position"`
	SelectedText     string    `json:"selected_text"`
	Color            Color     `json:"color"`
	Note             *string   `json:"note"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateRequest is the body of a highlight create call.
type CreateRequest struct {
	Position     Position `json:"position"`
	SelectedText string   `json:"selected_text"`
	Color        Color    `json:"color,omitempty"`
	Note         *string  `json:"note,omitempty"`
}

// Validate checks everything except the page rule, which needs the material.
func (r CreateRequest) Validate(paginated bool) error {
	if strings.TrimSpace(r.SelectedText) == "" {
		return errors.New("selected_text is required")
	}
	if r.Color != "" && !r.Color.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidColor, r.Color)
	}
	return r.Position.Validate(paginated)
}

// Update is a partial mutation. Only set fields change; ClearNote sets the
// note to null.
type Update struct {
	Color     *Color
	Note      *string
	ClearNote bool
}

// SetNote returns an update that replaces the note.
func SetNote(note string) Update { return Update{Note: &note} }

// Recolor returns an update that changes the color.
func Recolor(c Color) Update { return Update{Color: &c} }

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Color == nil && u.Note == nil && !u.ClearNote
}

// Apply mutates h in place.
func (u Update) Apply(h *Highlight, now time.Time) {
	if u.Color != nil {
		h.Color = *u.Color
	}
	switch {
	case u.ClearNote:
		h.Note = nil
	case u.Note != nil:
		note := *u.Note
		h.Note = &note
	}
	h.UpdatedAt = now
}

func (u Update) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if u.Color != nil {
		m["color"] = *u.Color
	}
	switch {
	case u.ClearNote:
		m["note"] = nil
	case u.Note != nil:
		m["note"] = *u.Note
	}
	return json.Marshal(m)
}

// UnmarshalJSON distinguishes an absent note from an explicit null.
func (u *Update) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = Update{}
	if v, ok := raw["color"]; ok && string(v) != "null" {
		var c Color
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("decode color: %w", err)
		}
		u.Color = &c
	}
	if v, ok := raw["note"]; ok {
		if string(v) == "null" {
			u.ClearNote = true
		} else {
			var n string
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decode note: %w", err)
			}
			u.Note = &n
		}
	}
	return nil
}

// Material is an uploaded source document.
type Material struct {
	ID          string    `json:"id"`
	NotebookID  string    `json:"notebook_id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// SortByCreation orders highlights by (created_at, id), the order the backend
// lists them in.
func SortByCreation(hs []Highlight) {
	sort.SliceStable(hs, func(i, j int) bool {
		if !hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].CreatedAt.Before(hs[j].CreatedAt)
		}
		return hs[i].ID < hs[j].ID
	})
}

// SortForDisplay orders highlights by (page, start_offset, created_at) for
// side panels and CLI listings.
func SortForDisplay(hs []Highlight) {
	sort.SliceStable(hs, func(i, j int) bool {
		pi, pj := hs[i].Position.PageNumber(), hs[j].Position.PageNumber()
		if pi != pj {
			return pi < pj
		}
		si, _, _ := hs[i].Position.Offsets()
		sj, _, _ := hs[j].Position.Offsets()
		if si != sj {
			return si < sj
		}
		if !hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].CreatedAt.Before(hs[j].CreatedAt)
		}
		return hs[i].ID < hs[j].ID
	})
}
