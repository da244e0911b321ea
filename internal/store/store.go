// Package store persists user accounts and their planning documents in
// SQLite. Each user has exactly one document, always read and written
// whole; concurrent writers for the same user are not coordinated and
// the last write wins.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/nugget/axis/internal/planner"
)

var (
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an address that
	// already has an account.
	ErrEmailTaken = errors.New("email already registered")
)

// OpenDB opens a SQLite database with WAL journaling, a busy timeout,
// and foreign keys enabled. Driver "sqlite3" is mattn/go-sqlite3 (cgo);
// "sqlite" is modernc.org/sqlite (pure Go). The two spell their DSN
// pragmas differently.
func OpenDB(driver, path string) (*sql.DB, error) {
	var dsn string
	switch driver {
	case "sqlite3":
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	case "sqlite":
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// User is an account record.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	CalendarToken string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SaveObserver is called after every successful document save with the
// saved document. Observers must not modify it.
type SaveObserver func(ctx context.Context, userID string, doc *planner.Document)

// DeleteObserver is called after an account has been deleted.
type DeleteObserver func(ctx context.Context, userID string)

// Store provides account and document persistence. All methods are
// safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu        sync.RWMutex
	observers []SaveObserver
	deletions []DeleteObserver
}

// New wraps an open database and creates the schema if needed. The
// caller keeps ownership of db.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL,
		password_hash  TEXT,
		calendar_token TEXT UNIQUE,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS documents (
		user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// OnSave registers an observer for document saves.
func (s *Store) OnSave(fn SaveObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// OnDelete registers an observer for account deletions.
func (s *Store) OnDelete(fn DeleteObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletions = append(s.deletions, fn)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new account. passwordHash may be empty for
// externally authenticated users.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}
	now := time.Now().UTC()
	u := &User{
		ID:           id.String(),
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, u.Email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, nullString(u.PasswordHash),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("user created", "user_id", u.ID)
	return u, nil
}

const userColumns = `id, email, name, password_hash, calendar_token, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u                User
		hash, token      sql.NullString
		created, updated string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &hash, &token, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.PasswordHash = hash.String
	u.CalendarToken = token.String
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &u, nil
}

// UserByID returns the account with the given id.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// UserByEmail returns the account registered to email, ignoring case.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
}

// UserByCalendarToken returns the account owning a calendar export
// token.
func (s *Store) UserByCalendarToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE calendar_token = ?`, token))
}

// UpdateName changes the display name.
func (s *Store) UpdateName(ctx context.Context, id, name string) error {
	return s.updateUser(ctx, id, `name = ?`, strings.TrimSpace(name))
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateUser(ctx, id, `password_hash = ?`, hash)
}

func (s *Store) updateUser(ctx context.Context, id, set string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+set+`, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CalendarToken returns the user's calendar export token, generating
// one on first use.
func (s *Store) CalendarToken(ctx context.Context, id string) (string, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.CalendarToken != "" {
		return u.CalendarToken, nil
	}
	return s.RotateCalendarToken(ctx, id)
}

// RotateCalendarToken replaces the calendar export token, invalidating
// any subscription URL built from the old one.
func (s *Store) RotateCalendarToken(ctx context.Context, id string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.updateUser(ctx, id, `calendar_token = ?`, token); err != nil {
		return "", err
	}
	return token, nil
}

// newToken returns 32 random hex characters.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeleteUser removes an account together with its document.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("user deleted", "user_id", id)

	s.mu.RLock()
	deletions := s.deletions
	s.mu.RUnlock()
	for _, fn := range deletions {
		fn(ctx, id)
	}
	return nil
}

// LoadDocument returns the user's planning document. A user who has
// never saved gets an empty document. Every collection in the result
// is non-nil.
func (s *Store) LoadDocument(ctx context.Context, userID string) (*planner.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return planner.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	doc, err := planner.Decode([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode document for %s: %w", userID, err)
	}
	return doc, nil
}

// SaveDocument overwrites the user's document. The document is
// normalized before it is written.
func (s *Store) SaveDocument(ctx context.Context, userID string, doc *planner.Document) error {
	doc.Normalize()
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		userID, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	s.logger.Debug("document saved", "user_id", userID, "bytes", len(body),
		"tasks", len(doc.Tasks), "habits", len(doc.DailyHabits), "blocks", len(doc.Schedule))

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, userID, doc)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
