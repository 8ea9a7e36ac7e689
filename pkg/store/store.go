// Package store persists trained markov models, either as rows of a SQL
// database or as one JSON document per file. Both forms hold exactly the
// document written by markov.Export, so they can be moved between freely.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/CTAG07/Understudy/pkg/markov"
)

// ModelInfo describes a stored model without decoding it.
type ModelInfo struct {
	Id            int       `json:"id"`
	Name          string    `json:"name"`
	StateSize     int       `json:"state_size"`
	FormatVersion int       `json:"format_version"`
	Tagger        string    `json:"tagger,omitempty"`
	Size          int       `json:"size"` // Size of the document in bytes.
	UpdatedAt     time.Time `json:"updated_at"`
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidName reports whether name can be used for a stored model. Names double
// as file names and URL path segments, so they are limited to letters, digits,
// '.', '_' and '-', and cannot start with punctuation.
func ValidName(name string) bool {
	return len(name) <= 128 && validName.MatchString(name)
}

// SetupSchema initializes the model table in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaModels = `
CREATE TABLE IF NOT EXISTS understudy_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    state_size INTEGER NOT NULL,
    format_version INTEGER NOT NULL,
    tagger TEXT NOT NULL DEFAULT '',
    document BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store keeps model documents in a database prepared with SetupSchema. It
// holds prepared statements, so it should be closed when no longer needed.
type Store struct {
	db         *sql.DB
	stmtSave   *sql.Stmt
	stmtLoad   *sql.Stmt
	stmtInfo   *sql.Stmt
	stmtList   *sql.Stmt
	stmtRemove *sql.Stmt
	logger     *slog.Logger
}

const infoColumns = `model_id, model_name, state_size, format_version, tagger, length(document), updated_at`

// New creates a Store and pre-compiles its SQL statements.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&s.stmtSave, `INSERT INTO understudy_models (model_name, state_size, format_version, tagger, document, updated_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(model_name) DO UPDATE SET state_size = excluded.state_size, format_version = excluded.format_version, tagger = excluded.tagger, document = excluded.document, updated_at = excluded.updated_at;`},
		{&s.stmtLoad, `SELECT document FROM understudy_models WHERE model_name = ?;`},
		{&s.stmtInfo, `SELECT ` + infoColumns + ` FROM understudy_models WHERE model_name = ?;`},
		{&s.stmtList, `SELECT ` + infoColumns + ` FROM understudy_models ORDER BY model_name;`},
		{&s.stmtRemove, `DELETE FROM understudy_models WHERE model_name = ?;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.stmt = stmt
	}
	return s, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtSave, s.stmtLoad, s.stmtInfo, s.stmtList, s.stmtRemove} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save stores m under name, replacing any model already stored there.
func (s *Store) Save(ctx context.Context, name string, m *markov.Model) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid model name %q", name)
	}
	var buf bytes.Buffer
	if err := markov.Export(&buf, m); err != nil {
		return err
	}
	_, err := s.stmtSave.ExecContext(ctx, name, m.StateSize(), markov.FormatVersion, m.Tagger(), buf.Bytes(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("could not save model '%s': %w", name, err)
	}
	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("state_size", m.StateSize()),
		slog.Int("document_bytes", buf.Len()),
	)
	return nil
}

// Load decodes the model stored under name. A missing name fails with
// markov.ErrNotFound, a corrupt document with markov.ErrCodec.
func (s *Store) Load(ctx context.Context, name string) (*markov.Model, error) {
	var doc []byte
	err := s.stmtLoad.QueryRowContext(ctx, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", markov.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load model '%s': %w", name, err)
	}
	m, err := markov.Import(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("model '%s': %w", name, err)
	}
	return m, nil
}

// Info returns the metadata of the model stored under name.
func (s *Store) Info(ctx context.Context, name string) (ModelInfo, error) {
	info, err := scanInfo(s.stmtInfo.QueryRowContext(ctx, name))
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", markov.ErrNotFound, name)
	}
	return info, err
}

// List returns the metadata of every stored model, ordered by name.
func (s *Store) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	infos := make([]ModelInfo, 0)
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (ModelInfo, error) {
	var info ModelInfo
	var updated int64
	if err := row.Scan(&info.Id, &info.Name, &info.StateSize, &info.FormatVersion, &info.Tagger, &info.Size, &updated); err != nil {
		return ModelInfo{}, err
	}
	info.UpdatedAt = time.Unix(updated, 0).UTC()
	return info, nil
}

// Remove deletes the model stored under name, or fails with markov.ErrNotFound.
func (s *Store) Remove(ctx context.Context, name string) error {
	res, err := s.stmtRemove.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("could not remove model '%s': %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", markov.ErrNotFound, name)
	}
	s.logger.InfoContext(ctx, "Model removed", slog.String("model_name", name))
	return nil
}

// LoadAll decodes every stored model. Any corrupt document fails the whole
// call; no partial set is returned.
func (s *Store) LoadAll(ctx context.Context) (map[string]*markov.Model, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	models := make(map[string]*markov.Model, len(infos))
	for _, info := range infos {
		m, err := s.Load(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		models[info.Name] = m
	}
	return models, nil
}

// LoadInto replaces the contents of r with every stored model in one atomic
// swap and returns how many were loaded.
func (s *Store) LoadInto(ctx context.Context, r *markov.Registry) (int, error) {
	models, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.Replace(models); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Models loaded into registry", slog.Int("models", len(models)))
	return len(models), nil
}
