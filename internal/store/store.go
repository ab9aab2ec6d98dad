package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"voicenotes/internal/errs"
	"voicenotes/internal/models"
)

// schemaVersion is the current PRAGMA user_version.
//
// v1: notes without title/status, v2 adds title, v3 adds status.
const schemaVersion = 3

// Store is the durable note store. One connection, safe for concurrent use
// by the underlying engine. Every successful mutation pushes a fresh
// snapshot to all subscribers.
type Store struct {
	conn *sql.DB

	mu   sync.Mutex
	subs map[chan []models.Note]struct{}
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn, subs: make(map[chan []models.Note]struct{})}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := s.migrateFrom(version); err != nil {
		// Older installs with an unreadable schema start over. Audio files
		// on disk are untouched.
		if rerr := s.recreate(); rerr != nil {
			return fmt.Errorf("failed to recreate after migration error %v: %w", err, rerr)
		}
	}

	return s.setVersion(schemaVersion)
}

func (s *Store) migrateFrom(version int) error {
	if version == 0 {
		return s.createTables()
	}

	steps := []struct {
		version int
		query   string
	}{
		{2, `ALTER TABLE notes ADD COLUMN title TEXT NOT NULL DEFAULT ''`},
		// Rows that predate status tracking were fully processed.
		{3, `ALTER TABLE notes ADD COLUMN status TEXT NOT NULL DEFAULT 'SYNCED'`},
	}

	for _, step := range steps {
		if version >= step.version {
			continue
		}
		if _, err := s.conn.Exec(step.query); err != nil {
			return fmt.Errorf("failed to migrate to v%d: %w", step.version, err)
		}
	}
	return nil
}

func (s *Store) recreate() error {
	if _, err := s.conn.Exec(`DROP TABLE IF EXISTS notes`); err != nil {
		return err
	}
	return s.createTables()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			audio_path TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'SYNCED'
		)`,
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL UNIQUE,
			used BOOLEAN DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plays (
			note_id INTEGER PRIMARY KEY,
			count INTEGER DEFAULT 0
		)`,
	}

	for _, q := range queries {
		if _, err := s.conn.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func (s *Store) setVersion(v int) error {
	_, err := s.conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v))
	return err
}

func (s *Store) Close() error {
	s.mu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan []models.Note]struct{})
	s.mu.Unlock()
	return s.conn.Close()
}

// Notes

// Insert stores a new note and returns its assigned identifier.
func (s *Store) Insert(ctx context.Context, n models.Note) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO notes (title, transcript, summary, audio_path, timestamp, status) VALUES (?, ?, ?, ?, ?, ?)`,
		n.Title, n.Transcript, n.Summary, n.AudioPath, n.Timestamp.UnixMilli(), string(n.Status))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notify()
	return id, nil
}

// List returns all notes, newest first.
func (s *Store) List(ctx context.Context) ([]models.Note, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, title, transcript, summary, audio_path, timestamp, status FROM notes ORDER BY timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, transcript, summary, audio_path, timestamp, status FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Update overwrites all mutable fields of a note in one statement.
func (s *Store) Update(ctx context.Context, n models.Note) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE notes SET title = ?, transcript = ?, summary = ?, audio_path = ?, status = ? WHERE id = ?`,
		n.Title, n.Transcript, n.Summary, n.AudioPath, string(n.Status), n.ID)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE notes SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status models.NoteStatus) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE notes SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (models.Note, error) {
	var n models.Note
	var ts int64
	var status string
	if err := row.Scan(&n.ID, &n.Title, &n.Transcript, &n.Summary, &n.AudioPath, &ts, &status); err != nil {
		return models.Note{}, err
	}
	n.Timestamp = time.UnixMilli(ts)
	n.Status = models.NoteStatus(status)
	return n, nil
}

// Live query

// Subscribe registers a listener for the note collection. The current
// snapshot is delivered immediately, then a fresh one after every mutation.
// A slow listener only ever misses intermediate snapshots: delivery
// coalesces to the latest and never blocks a writer.
func (s *Store) Subscribe(ctx context.Context) <-chan []models.Note {
	ch := make(chan []models.Note, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	if notes, err := s.List(ctx); err == nil {
		ch <- notes
	}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (s *Store) Unsubscribe(ch <-chan []models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub == ch {
			delete(s.subs, sub)
			close(sub)
			return
		}
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Not the mutating caller's context: a request that ends right after
	// its commit must still reach subscribers.
	notes, err := s.List(context.Background())
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- notes:
		default:
			// Drop the stale snapshot, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- notes:
			default:
			}
		}
	}
}

// Auth tokens

func (s *Store) CreateAuthToken(token string, expiresAt time.Time) error {
	_, err := s.conn.Exec(`INSERT INTO auth_tokens (token, expires_at) VALUES (?, ?)`, token, expiresAt)
	return err
}

func (s *Store) GetAuthToken(token string) (*models.AuthToken, error) {
	var t models.AuthToken
	err := s.conn.QueryRow(`SELECT id, token, used, created_at, expires_at FROM auth_tokens WHERE token = ?`, token).
		Scan(&t.ID, &t.Token, &t.Used, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) MarkTokenUsed(token string) error {
	_, err := s.conn.Exec(`UPDATE auth_tokens SET used = TRUE WHERE token = ?`, token)
	return err
}

// Play counts

func (s *Store) GetAllPlays() (map[int64]int64, error) {
	rows, err := s.conn.Query(`SELECT note_id, count FROM plays`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plays := make(map[int64]int64)
	for rows.Next() {
		var noteID, count int64
		if err := rows.Scan(&noteID, &count); err != nil {
			return nil, err
		}
		plays[noteID] = count
	}
	return plays, rows.Err()
}

func (s *Store) SavePlays(plays map[int64]int64) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO plays (note_id, count) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for noteID, count := range plays {
		if _, err := stmt.Exec(noteID, count); err != nil {
			return err
		}
	}

	return tx.Commit()
}
