package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/google/uuid"
)

const highlightColumns = "id, source_material_id, position, selected_text, color, note, created_ns, updated_ns"

// CreateHighlight stores a highlight on materialID. The request is assumed
// validated; a missing color becomes the default.
func (d *DB) CreateHighlight(ctx context.Context, materialID string, req annotation.CreateRequest) (annotation.Highlight, error) {
	pos, err := json.Marshal(req.Position)
	if err != nil {
		return annotation.Highlight{}, fmt.Errorf("marshal position: %w", err)
	}
	color := req.Color
	if color == "" {
		color = annotation.DefaultColor
	}
	ns := d.stamp()
	h := annotation.Highlight{
		ID:               uuid.New().String(),
		SourceMaterialID: materialID,
		Position:         req.Position,
		SelectedText:     req.SelectedText,
		Color:            color,
		Note:             req.Note,
		CreatedAt:        fromStamp(ns),
		UpdatedAt:        fromStamp(ns),
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO highlights (`+highlightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, materialID, string(pos), h.SelectedText, string(h.Color), nullString(h.Note), ns, ns)
	if err != nil {
		return annotation.Highlight{}, fmt.Errorf("inserting highlight: %w", err)
	}
	return h, nil
}

// ListHighlights returns a material's highlights ordered by creation.
func (d *DB) ListHighlights(ctx context.Context, materialID string) ([]annotation.Highlight, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+highlightColumns+` FROM highlights
		WHERE source_material_id = ? ORDER BY created_ns, id
	`, materialID)
	if err != nil {
		return nil, fmt.Errorf("querying highlights: %w", err)
	}
	defer rows.Close()

	out := []annotation.Highlight{}
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHighlight returns one highlight of a material.
func (d *DB) GetHighlight(ctx context.Context, materialID, id string) (annotation.Highlight, error) {
	return getHighlight(ctx, d.db, materialID, id)
}

// UpdateHighlight applies a partial update and returns the stored result.
func (d *DB) UpdateHighlight(ctx context.Context, materialID, id string, u annotation.Update) (annotation.Highlight, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return annotation.Highlight{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	h, err := getHighlight(ctx, tx, materialID, id)
	if err != nil {
		return annotation.Highlight{}, err
	}
	ns := d.stamp()
	u.Apply(&h, fromStamp(ns))

	_, err = tx.ExecContext(ctx, `
		UPDATE highlights SET color = ?, note = ?, updated_ns = ? WHERE id = ?
	`, string(h.Color), nullString(h.Note), ns, id)
	if err != nil {
		return annotation.Highlight{}, fmt.Errorf("updating highlight: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return annotation.Highlight{}, fmt.Errorf("commit: %w", err)
	}
	return h, nil
}

// DeleteHighlight removes one highlight.
func (d *DB) DeleteHighlight(ctx context.Context, materialID, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM highlights WHERE source_material_id = ? AND id = ?`, materialID, id)
	if err != nil {
		return fmt.Errorf("deleting highlight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("highlight %s: %w", id, ErrNotFound)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getHighlight(ctx context.Context, q queryer, materialID, id string) (annotation.Highlight, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+highlightColumns+` FROM highlights
		WHERE source_material_id = ? AND id = ?
	`, materialID, id)
	h, err := scanHighlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return annotation.Highlight{}, fmt.Errorf("highlight %s: %w", id, ErrNotFound)
	}
	return h, err
}

func scanHighlight(s scanner) (annotation.Highlight, error) {
	var h annotation.Highlight
	var pos, color string
	var note sql.NullString
	var created, updated int64
	if err := s.Scan(&h.ID, &h.SourceMaterialID, &pos, &h.SelectedText, &color, &note, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return annotation.Highlight{}, err
		}
		return annotation.Highlight{}, fmt.Errorf("scanning highlight: %w", err)
	}
	if err := json.Unmarshal([]byte(pos), &h.Position); err != nil {
		return annotation.Highlight{}, fmt.Errorf("unmarshaling position: %w", err)
	}
	h.Color = annotation.Color(color)
	if note.Valid {
		n := note.String
		h.Note = &n
	}
	h.CreatedAt = fromStamp(created)
	h.UpdatedAt = fromStamp(updated)
	return h, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
