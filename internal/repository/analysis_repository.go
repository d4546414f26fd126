package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/basel-ax/omni/internal/domain"
)

// AnalysisRepository defines the interface for analysis history access
type AnalysisRepository interface {
	Save(ctx context.Context, record *domain.AnalysisRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id          BIGSERIAL PRIMARY KEY,
		session_id  TEXT NOT NULL,
		description TEXT NOT NULL,
		solution    TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS analyses_session_id_idx ON analyses (session_id, created_at);
`

// PostgresAnalysisRepository implements AnalysisRepository for PostgreSQL
type PostgresAnalysisRepository struct {
	db *sql.DB
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db *sql.DB) *PostgresAnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

// EnsureSchema creates the analyses table if it does not exist
func (r *PostgresAnalysisRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts a record and fills in its ID and CreatedAt
func (r *PostgresAnalysisRepository) Save(ctx context.Context, record *domain.AnalysisRecord) error {
	query := `
		INSERT INTO analyses (session_id, description, solution, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	return r.db.QueryRowContext(ctx, query,
		record.SessionID,
		record.Description,
		record.Solution,
		record.CreatedAt,
	).Scan(&record.ID)
}

// ListBySession returns the analyses of one session, oldest first
func (r *PostgresAnalysisRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error) {
	query := `
		SELECT id, session_id, description, solution, created_at
		FROM analyses
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Description,
			&rec.Solution,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
