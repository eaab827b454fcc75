package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// SQLiteStore is a WorkflowStore backed by SQLite. The ordered step list
// with its run history is stored as one JSON document per row, keeping the
// document semantics of the other stores.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ api.WorkflowStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			steps BLOB NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*api.WorkflowDoc, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, steps FROM workflows WHERE id = ?`, id)

	var (
		doc   api.WorkflowDoc
		steps []byte
	)
	err := row.Scan(&doc.ID, &doc.Name, &doc.CreatedAt, &doc.UpdatedAt, &steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	if err := json.Unmarshal(steps, &doc.Steps); err != nil {
		return nil, fmt.Errorf("decode workflow %s steps: %w", id, err)
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, doc *api.WorkflowDoc) error {
	steps, err := json.Marshal(doc.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, created_at, updated_at, steps) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(), steps)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, doc *api.WorkflowDoc) error {
	steps, err := json.Marshal(doc.Steps)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, updated_at = ?, steps = ? WHERE id = ?`,
		doc.Name, doc.UpdatedAt.UTC(), steps, doc.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrWorkflowNotFound
	}
	return nil
}
