package passage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultLocalDBName = "passages_local.db"

// SQLiteService is the persistent catalog backend.
type SQLiteService struct {
	db *sql.DB
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath := strings.TrimSpace(os.Getenv("PASSAGE_DB_PATH"))
	if dbPath == "" {
		dbPath = defaultLocalDBName
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := seedIfEmpty(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS passages (
	idx  INTEGER PRIMARY KEY,
	text TEXT NOT NULL
);`)
	return err
}

func seedIfEmpty(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for i, text := range seedPassages {
		if _, err := db.ExecContext(ctx, `INSERT INTO passages (idx, text) VALUES (?, ?)`, i, text); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteService) Get(ctx context.Context, index int) (Passage, error) {
	var p Passage
	err := s.db.QueryRowContext(ctx, `SELECT idx, text FROM passages WHERE idx = ?`, index).
		Scan(&p.Index, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Passage{}, ErrNotFound
	}
	if err != nil {
		return Passage{}, err
	}
	return p, nil
}

func (s *SQLiteService) Random(ctx context.Context) (Passage, error) {
	var p Passage
	err := s.db.QueryRowContext(ctx, `SELECT idx, text FROM passages ORDER BY RANDOM() LIMIT 1`).
		Scan(&p.Index, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Passage{}, ErrNotFound
	}
	if err != nil {
		return Passage{}, err
	}
	return p, nil
}

func (s *SQLiteService) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
