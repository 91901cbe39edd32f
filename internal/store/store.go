package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
)

// Store persists users and completed training reports in Postgres.
type Store struct {
	DB *sql.DB
}

func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn := DSN(cfg)
	return NewWithDSN(ctx, dsn)
}

func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// DSN builds the connection string, preferring an explicit URL.
func DSN(cfg config.PostgresConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	ssl := cfg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", cfg.User, cfg.Password, host, port, cfg.DBName, ssl)
}

func (s *Store) Close() error { return s.DB.Close() }

// User is an authenticated account that owns training sessions.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, email, passwordHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// ReportRow is a stored training report plus its listing metadata.
type ReportRow struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	SessionID    string              `json:"session_id"`
	Industry     string              `json:"industry"`
	Jurisdiction string              `json:"jurisdiction"`
	Difficulty   string              `json:"difficulty"`
	Report       core.TrainingReport `json:"report"`
	CreatedAt    time.Time           `json:"created_at"`
}

// SaveReport upserts a completed report keyed by session id, so retried
// saves after transient failures stay idempotent.
func (s *Store) SaveReport(ctx context.Context, userID string, rc core.RunConfiguration, report *core.TrainingReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	id := uuid.NewString()
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO reports (id, user_id, session_id, industry, jurisdiction, difficulty, report, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (session_id) DO UPDATE SET report = EXCLUDED.report
RETURNING id`,
		id, userID, report.SessionID, rc.Industry, rc.Jurisdiction, rc.Difficulty, body).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetReport(ctx context.Context, id, userID string) (ReportRow, error) {
	var row ReportRow
	var body []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, session_id, industry, jurisdiction, difficulty, report, created_at
FROM reports WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&row.ID, &row.UserID, &row.SessionID, &row.Industry, &row.Jurisdiction, &row.Difficulty, &body, &row.CreatedAt)
	if err != nil {
		return ReportRow{}, err
	}
	if err := json.Unmarshal(body, &row.Report); err != nil {
		return ReportRow{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return row, nil
}

func (s *Store) ListReports(ctx context.Context, userID string) ([]ReportRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, session_id, industry, jurisdiction, difficulty, created_at
FROM reports WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.ID, &row.UserID, &row.SessionID, &row.Industry, &row.Jurisdiction, &row.Difficulty, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PruneReports deletes reports older than the cutoff and returns the count.
func (s *Store) PruneReports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
