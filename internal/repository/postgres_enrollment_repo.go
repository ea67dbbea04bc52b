package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mentorhub/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講状況リポジトリ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// Create は受講登録を作成する。
// (user_id, program_id)が既に存在する場合はErrDuplicateを返す。
func (r *PostgresEnrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_progress (user_id, program_id, total_videos, watched_videos, percent_complete)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		e.UserID, e.ProgramID, e.TotalVideos, e.WatchedVideos, e.PercentComplete,
	).Scan(&e.ID, &e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert enrollment: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

// ListByUser はユーザーの受講状況をプログラム名付きで登録日時の降順に返す。
func (r *PostgresEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT up.id, up.user_id, up.program_id, up.total_videos, up.watched_videos,
		        up.percent_complete, up.created_at, p.title
		 FROM user_progress up
		 JOIN programs p ON p.id = up.program_id
		 WHERE up.user_id = $1
		 ORDER BY up.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []model.EnrollmentWithProgram
	for rows.Next() {
		var e model.EnrollmentWithProgram
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProgramID, &e.TotalVideos, &e.WatchedVideos,
			&e.PercentComplete, &e.CreatedAt, &e.ProgramTitle); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}
	return enrollments, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
