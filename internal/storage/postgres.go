package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) SaveTurn(ctx context.Context, rec *models.TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO turn_records (id, session_id, outcome, guard_label, guard_confidence, refused, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		string(rec.Outcome),
		rec.GuardLabel,
		rec.GuardConfidence,
		rec.Refused,
		rec.Latency.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving turn record: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]*models.TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, outcome, guard_label, guard_confidence, refused, latency_ms, created_at
		FROM turn_records
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying turn records: %w", err)
	}
	defer rows.Close()

	return scanTurnRecords(rows, func(rows *sql.Rows, rec *models.TurnRecord, latencyMS *int64) error {
		return rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Outcome,
			&rec.GuardLabel,
			&rec.GuardConfidence,
			&rec.Refused,
			latencyMS,
			&rec.CreatedAt,
		)
	})
}

func (s *PostgresStorage) OutcomeCounts(ctx context.Context) (map[models.Outcome]int, error) {
	return queryOutcomeCounts(ctx, s.db)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

type scanFunc func(rows *sql.Rows, rec *models.TurnRecord, latencyMS *int64) error

func scanTurnRecords(rows *sql.Rows, scan scanFunc) ([]*models.TurnRecord, error) {
	var records []*models.TurnRecord
	for rows.Next() {
		rec := &models.TurnRecord{}
		var latencyMS int64
		if err := scan(rows, rec, &latencyMS); err != nil {
			return nil, fmt.Errorf("error scanning turn record: %w", err)
		}
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn records: %w", err)
	}
	return records, nil
}

func queryOutcomeCounts(ctx context.Context, db *sql.DB) (map[models.Outcome]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM turn_records GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("error counting outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("error scanning outcome count: %w", err)
		}
		counts[models.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
