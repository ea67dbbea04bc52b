package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mentorhub/internal/model"
)

// PostgresAnomalyRepo はPostgreSQLを使用した不整合記録リポジトリ。
type PostgresAnomalyRepo struct {
	db *sql.DB
}

// NewPostgresAnomalyRepo はPostgresAnomalyRepoを生成する。
func NewPostgresAnomalyRepo(db *sql.DB) *PostgresAnomalyRepo {
	return &PostgresAnomalyRepo{db: db}
}

// Record は不整合を記録する。
// (kind, user_id)が記録済みの場合は何もしない。
func (r *PostgresAnomalyRepo) Record(ctx context.Context, a *model.Anomaly) error {
	var userID sql.NullString
	if a.UserID != "" {
		userID = sql.NullString{String: a.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_anomalies (kind, user_id, email, detail)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, user_id) WHERE user_id IS NOT NULL DO NOTHING`,
		string(a.Kind), userID, a.Email, a.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record anomaly: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AnomalyRepository = (*PostgresAnomalyRepo)(nil)
