// Package db keeps a log of generated recommendations.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ideaforge/internal/ideas"
)

const (
	dbFileName = "history.db"

	// Fixed width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history record not found")

// Record is one recommendation run.
type Record struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Categories  []ideas.Category `json:"categories"`
	Problem     string           `json:"problem,omitempty"`
	Fallback    bool             `json:"fallback"`
	RawOutput   string           `json:"raw_output,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Store is a history log backed by sqlite or postgres.
type Store struct {
	db       *sql.DB
	postgres bool
}

// DefaultPath is the sqlite file used when no DSN is configured.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ideaforge", dbFileName), nil
}

// Open connects to dsn. postgres:// and postgresql:// URLs use pgx, anything
// else is a sqlite file path. An empty dsn means DefaultPath.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if isPostgres(dsn) {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("could not open database: %w", err)
		}
		return initStore(conn, true)
	}

	if dsn == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		dsn = p
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// One writer keeps sqlite away from SQLITE_BUSY under the server.
	conn.SetMaxOpenConns(1)
	return initStore(conn, false)
}

func initStore(conn *sql.DB, postgres bool) (*Store, error) {
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not reach database: %w", err)
	}
	s := &Store{db: conn, postgres: postgres}
	if err := s.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not create tables: %w", err)
	}
	return s, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (s *Store) createTables() error {
	const createTableSQL = `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT NOT NULL PRIMARY KEY,
		description TEXT NOT NULL,
		categories TEXT NOT NULL,
		problem TEXT NOT NULL DEFAULT '',
		fallback INTEGER NOT NULL DEFAULT 0,
		raw_output TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`

	_, err := s.db.Exec(createTableSQL)
	return err
}

// Save inserts r, filling in ID and CreatedAt when they are empty.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	categories := r.Categories
	if categories == nil {
		categories = []ideas.Category{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("could not encode categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO history (id, description, categories, problem, fallback, raw_output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID,
		r.Description,
		string(encoded),
		r.Problem,
		boolInt(r.Fallback),
		r.RawOutput,
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("could not save history record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, description, categories, problem, fallback, raw_output, created_at
		FROM history ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("could not query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, description, categories, problem, fallback, raw_output, created_at
		FROM history WHERE id = ?`), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r          Record
		categories string
		fallback   int
		createdAt  string
	)
	if err := sc.Scan(&r.ID, &r.Description, &categories, &r.Problem, &fallback, &r.RawOutput, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("could not scan history record: %w", err)
	}
	if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
		return nil, fmt.Errorf("could not decode categories of %s: %w", r.ID, err)
	}
	r.Fallback = fallback != 0
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("could not parse created_at of %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return &r, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
