package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/google/uuid"
)

const materialColumns = "id, notebook_id, title, filename, format, size, content_hash, created_ns"

// CreateMaterial stores a material and its raw content. ID and CreatedAt are
// assigned here.
func (d *DB) CreateMaterial(ctx context.Context, m annotation.Material, content []byte) (annotation.Material, error) {
	m.ID = uuid.New().String()
	ns := d.stamp()
	m.CreatedAt = fromStamp(ns)
	m.Size = int64(len(content))

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO materials (id, notebook_id, title, filename, format, size, content_hash, content, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.NotebookID, m.Title, m.Filename, m.Format, m.Size, m.ContentHash, content, ns)
	if err != nil {
		return annotation.Material{}, fmt.Errorf("inserting material: %w", err)
	}
	return m, nil
}

// GetMaterial returns one material's metadata.
func (d *DB) GetMaterial(ctx context.Context, notebookID, id string) (annotation.Material, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE notebook_id = ? AND id = ?`, notebookID, id)
	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return annotation.Material{}, fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return annotation.Material{}, fmt.Errorf("scanning material: %w", err)
	}
	return m, nil
}

// FindMaterialByHash returns the notebook's material with the given content
// hash, if any.
func (d *DB) FindMaterialByHash(ctx context.Context, notebookID, hash string) (annotation.Material, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+materialColumns+` FROM materials
		WHERE notebook_id = ? AND content_hash = ?
		ORDER BY created_ns LIMIT 1
	`, notebookID, hash)
	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return annotation.Material{}, ErrNotFound
	}
	if err != nil {
		return annotation.Material{}, fmt.Errorf("scanning material: %w", err)
	}
	return m, nil
}

// ListMaterials returns a notebook's materials, oldest first.
func (d *DB) ListMaterials(ctx context.Context, notebookID string) ([]annotation.Material, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+materialColumns+` FROM materials
		WHERE notebook_id = ? ORDER BY created_ns, id
	`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("querying materials: %w", err)
	}
	defer rows.Close()

	out := []annotation.Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning material: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MaterialContent returns the raw bytes of a material with its metadata.
func (d *DB) MaterialContent(ctx context.Context, notebookID, id string) (annotation.Material, []byte, error) {
	m, err := d.GetMaterial(ctx, notebookID, id)
	if err != nil {
		return annotation.Material{}, nil, err
	}
	var content []byte
	err = d.db.QueryRowContext(ctx, `SELECT content FROM materials WHERE id = ?`, id).Scan(&content)
	if err != nil {
		return annotation.Material{}, nil, fmt.Errorf("reading content: %w", err)
	}
	return m, content, nil
}

// DeleteMaterial removes a material. Its highlights go with it.
func (d *DB) DeleteMaterial(ctx context.Context, notebookID, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM materials WHERE notebook_id = ? AND id = ?`, notebookID, id)
	if err != nil {
		return fmt.Errorf("deleting material: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMaterial(s scanner) (annotation.Material, error) {
	var m annotation.Material
	var ns int64
	if err := s.Scan(&m.ID, &m.NotebookID, &m.Title, &m.Filename, &m.Format, &m.Size, &m.ContentHash, &ns); err != nil {
		return annotation.Material{}, err
	}
	m.CreatedAt = fromStamp(ns)
	return m, nil
}
