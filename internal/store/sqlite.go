package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/speak2fill/speak2fill/internal/form"
)

// SQLiteStore implements Store on a SQLite database. The session snapshot
// (fields, OCR items, filled values) is stored as JSON columns on a single
// row; conversation turns live in their own table so history stays
// append-only at the storage level.
//
// Callers must open the database with SetMaxOpenConns(1): combined with a
// transaction around every read-modify-write, that serializes Updates per
// database, which subsumes the required per-session serialization.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Init creates the schema. Run at startup, before serving.
func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id         TEXT PRIMARY KEY,
			created_at         TEXT NOT NULL,
			filename           TEXT NOT NULL,
			image_data         BLOB,
			ocr_items_json     TEXT NOT NULL DEFAULT '[]',
			fields_json        TEXT NOT NULL,
			cursor             INTEGER NOT NULL DEFAULT 0,
			phase              TEXT NOT NULL DEFAULT 'ASK_INPUT',
			filled_values_json TEXT NOT NULL DEFAULT '{}',
			language           TEXT NOT NULL DEFAULT 'en',
			image_width        INTEGER NOT NULL,
			image_height       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			at         TEXT NOT NULL,
			role       TEXT NOT NULL,
			text       TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`)
	if err != nil {
		return fmt.Errorf("creating session schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, sess *form.Session, image []byte) error {
	fieldsJSON, err := json.Marshal(sess.Fields)
	if err != nil {
		return fmt.Errorf("marshaling fields: %w", err)
	}
	ocrJSON, err := json.Marshal(sess.OCRItems)
	if err != nil {
		return fmt.Errorf("marshaling ocr items: %w", err)
	}
	filledJSON, err := json.Marshal(sess.FilledValues)
	if err != nil {
		return fmt.Errorf("marshaling filled values: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, filename, image_data,
			ocr_items_json, fields_json, cursor, phase, filled_values_json,
			language, image_width, image_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.CreatedAt.Format(time.RFC3339Nano), sess.Filename,
		image, string(ocrJSON), string(fieldsJSON), sess.Cursor, string(sess.Phase),
		string(filledJSON), sess.Language, sess.ImageWidth, sess.ImageHeight,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*form.Session, error) {
	sess, err := loadSession(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*form.Session) error) (*form.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	sess, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	priorTurns := len(sess.History)

	if err := mutate(sess); err != nil {
		return nil, err
	}

	filledJSON, err := json.Marshal(sess.FilledValues)
	if err != nil {
		return nil, fmt.Errorf("marshaling filled values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET cursor = ?, phase = ?, filled_values_json = ?
		WHERE session_id = ?`,
		sess.Cursor, string(sess.Phase), string(filledJSON), id,
	); err != nil {
		return nil, fmt.Errorf("updating session %s: %w", id, err)
	}

	// History is append-only: persist only the turns the mutator added.
	for _, turn := range sess.History[priorTurns:] {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, at, role, text) VALUES (?, ?, ?, ?)`,
			id, turn.At.Format(time.RFC3339Nano), turn.Role, turn.Text,
		); err != nil {
			return nil, fmt.Errorf("appending turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetImage(ctx context.Context, id string) ([]byte, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT image_data FROM sessions WHERE session_id = ?`, id,
	).Scan(&image)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading image for %s: %w", id, err)
	}
	if image == nil {
		return nil, ErrNotFound
	}
	return image, nil
}

// querier abstracts *sql.DB and *sql.Tx so loadSession can serve both Get
// and the transactional Update path.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSession(ctx context.Context, q querier, id string) (*form.Session, error) {
	var (
		sess       form.Session
		createdAt  string
		phase      string
		ocrJSON    string
		fieldsJSON string
		filledJSON string
	)
	err := q.QueryRowContext(ctx, `
		SELECT session_id, created_at, filename, ocr_items_json, fields_json,
			cursor, phase, filled_values_json, language, image_width, image_height
		FROM sessions WHERE session_id = ?`, id,
	).Scan(&sess.SessionID, &createdAt, &sess.Filename, &ocrJSON, &fieldsJSON,
		&sess.Cursor, &phase, &filledJSON, &sess.Language, &sess.ImageWidth, &sess.ImageHeight)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	sess.Phase = form.Phase(phase)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sess.CreatedAt = t
	}
	if err := json.Unmarshal([]byte(ocrJSON), &sess.OCRItems); err != nil {
		return nil, fmt.Errorf("decoding ocr items for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &sess.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(filledJSON), &sess.FilledValues); err != nil {
		return nil, fmt.Errorf("decoding filled values for %s: %w", id, err)
	}
	if sess.FilledValues == nil {
		sess.FilledValues = make(map[string]string)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT at, role, text FROM turns WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var turn form.Turn
		var at string
		if err := rows.Scan(&at, &turn.Role, &turn.Text); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			turn.At = t
		}
		sess.History = append(sess.History, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns for %s: %w", id, err)
	}
	return &sess, nil
}
