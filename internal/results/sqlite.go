package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"passage-race/internal/race"

	_ "modernc.org/sqlite"
)

const defaultLocalDBName = "results_local.db"

type SQLiteService struct {
	db *sql.DB
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath := strings.TrimSpace(os.Getenv("RESULTS_DB_PATH"))
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
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS races (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER NOT NULL,
	players    TEXT NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{db: db}, nil
}

func (s *SQLiteService) Append(ctx context.Context, record race.RaceRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO races (code, started_at, ended_at, players) VALUES (?, ?, ?, ?)`,
		record.Code, record.StartedAt.UnixMilli(), record.EndedAt.UnixMilli(), string(players))
	return err
}

func (s *SQLiteService) Recent(ctx context.Context, limit int) ([]race.RaceRecord, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, started_at, ended_at, players FROM races ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []race.RaceRecord
	for rows.Next() {
		var (
			record             race.RaceRecord
			startedMs, endedMs int64
			players            string
		)
		if err := rows.Scan(&record.Code, &startedMs, &endedMs, &players); err != nil {
			return nil, err
		}
		record.StartedAt = time.UnixMilli(startedMs)
		record.EndedAt = time.UnixMilli(endedMs)
		if err := json.Unmarshal([]byte(players), &record.Players); err != nil {
			return nil, fmt.Errorf("unmarshal players: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
