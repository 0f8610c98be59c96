package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStorage is a single-file journal for deployments without PostgreSQL.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStorage(dbPath string, logger *zap.Logger) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("Opened SQLite journal", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS turn_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		guard_label TEXT NOT NULL,
		guard_confidence REAL NOT NULL,
		refused INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turn_records_session ON turn_records(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveTurn(ctx context.Context, rec *models.TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_records (id, session_id, outcome, guard_label, guard_confidence, refused, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		string(rec.Outcome),
		rec.GuardLabel,
		rec.GuardConfidence,
		rec.Refused,
		rec.Latency.Milliseconds(),
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save turn record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]*models.TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, outcome, guard_label, guard_confidence, refused, latency_ms, created_at
		FROM turn_records
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turn records: %w", err)
	}
	defer rows.Close()

	return scanTurnRecords(rows, func(rows *sql.Rows, rec *models.TurnRecord, latencyMS *int64) error {
		var createdAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Outcome,
			&rec.GuardLabel,
			&rec.GuardConfidence,
			&rec.Refused,
			latencyMS,
			&createdAt,
		); err != nil {
			return err
		}
		rec.CreatedAt = time.Unix(0, createdAt)
		return nil
	})
}

func (s *SQLiteStorage) OutcomeCounts(ctx context.Context) (map[models.Outcome]int, error) {
	return queryOutcomeCounts(ctx, s.db)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
