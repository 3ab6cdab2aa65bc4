package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/docstore"
)

const docColumns = `id, title, job_id, folder_id, position, tiptap_json, html_snapshot, icon, version, created_at, updated_at`

// PostgresStore serves the document API directly from the docs table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (doc.Raw, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+docColumns+` FROM docs WHERE id=$1`, id)
	raw, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doc %s: %w", id, err)
	}
	return raw, nil
}

// Put upserts only the fields present in patch and bumps the version.
func (s *PostgresStore) Put(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error) {
	var tiptap any
	if len(patch.TiptapJSON) > 0 {
		tiptap = string(patch.TiptapJSON)
	}
	var parent any
	if patch.SetParent && patch.ParentID != nil {
		parent = *patch.ParentID
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO docs (id, title, job_id, folder_id, position, tiptap_json, html_snapshot, icon)
		VALUES ($1, COALESCE($2::text, 'Untitled'), $3::text, $4::text, $5::double precision, $6::jsonb, $7::text, $8::text)
		ON CONFLICT (id) DO UPDATE SET
			title = COALESCE($2::text, docs.title),
			job_id = COALESCE($3::text, docs.job_id),
			folder_id = CASE WHEN $9::boolean THEN EXCLUDED.folder_id ELSE docs.folder_id END,
			position = COALESCE($5::double precision, docs.position),
			tiptap_json = COALESCE($6::jsonb, docs.tiptap_json),
			html_snapshot = COALESCE($7::text, docs.html_snapshot),
			icon = COALESCE($8::text, docs.icon),
			version = docs.version + 1,
			updated_at = NOW()
		RETURNING `+docColumns,
		id, patch.Title, patch.JobID, parent, patch.Position, tiptap, patch.HTMLSnapshot, patch.Icon, patch.SetParent,
	)
	raw, err := scanDoc(row)
	if err != nil {
		return nil, fmt.Errorf("put doc %s: %w", id, err)
	}
	return raw, nil
}

// Delete removes the doc and its direct children.
func (s *PostgresStore) Delete(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM docs WHERE id=$1 OR folder_id=$1 RETURNING id`, id)
	if err != nil {
		return nil, fmt.Errorf("delete doc %s: %w", id, err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var removed string
		if err := rows.Scan(&removed); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		deleted = append(deleted, removed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete doc %s: %w", id, err)
	}
	if len(deleted) == 0 {
		return nil, docstore.ErrNotFound
	}
	return deleted, nil
}

func (s *PostgresStore) ListByScope(ctx context.Context, scopeID string) ([]doc.Raw, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+docColumns+`
		FROM docs
		WHERE job_id=$1
		ORDER BY position ASC NULLS LAST, created_at ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list scope %s: %w", scopeID, err)
	}
	defer rows.Close()

	out := make([]doc.Raw, 0)
	for rows.Next() {
		raw, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scope %s: %w", scopeID, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(row rowScanner) (doc.Raw, error) {
	var (
		id, title            string
		jobID, folderID      sql.NullString
		htmlSnapshot, icon   sql.NullString
		position             sql.NullFloat64
		tiptap               []byte
		version              int
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &title, &jobID, &folderID, &position, &tiptap, &htmlSnapshot, &icon, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	raw := doc.Raw{
		"id":           id,
		"title":        title,
		"jobId":        jobID.String,
		"folderId":     nil,
		"position":     nil,
		"htmlSnapshot": htmlSnapshot.String,
		"icon":         icon.String,
		"version":      version,
		"createdAt":    createdAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":    updatedAt.UTC().Format(time.RFC3339Nano),
	}
	if folderID.Valid {
		raw["folderId"] = folderID.String
	}
	if position.Valid {
		raw["position"] = position.Float64
	}
	if len(tiptap) > 0 {
		var content any
		if err := json.Unmarshal(tiptap, &content); err == nil {
			raw["tiptapJson"] = content
		}
	}
	return raw, nil
}
