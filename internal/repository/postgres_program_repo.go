package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mentorhub/internal/model"
)

// PostgresProgramRepo はPostgreSQLを使用したプログラムリポジトリ。
type PostgresProgramRepo struct {
	db *sql.DB
}

// NewPostgresProgramRepo はPostgresProgramRepoを生成する。
func NewPostgresProgramRepo(db *sql.DB) *PostgresProgramRepo {
	return &PostgresProgramRepo{db: db}
}

// List は全プログラムを作成日時の降順で返す。
func (r *PostgresProgramRepo) List(ctx context.Context) ([]*model.Program, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, cover_image, created_at
		 FROM programs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var programs []*model.Program
	for rows.Next() {
		p := &model.Program{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.CoverImage, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate programs: %w", err)
	}
	return programs, nil
}

// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
func (r *PostgresProgramRepo) FindByID(ctx context.Context, id string) (*model.Program, error) {
	p := &model.Program{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, cover_image, created_at FROM programs WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.Description, &p.CoverImage, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find program by ID: %w", err)
	}
	return p, nil
}

// Create はプログラムを作成する。
func (r *PostgresProgramRepo) Create(ctx context.Context, p *model.Program) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO programs (title, description, cover_image)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		p.Title, p.Description, p.CoverImage,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert program: %w", err)
	}
	return nil
}

// Delete はプログラムを削除する。
func (r *PostgresProgramRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	return requireAffected(result, "program", id)
}

// PostgresVideoRepo はPostgreSQLを使用した動画リポジトリ。
type PostgresVideoRepo struct {
	db *sql.DB
}

// NewPostgresVideoRepo はPostgresVideoRepoを生成する。
func NewPostgresVideoRepo(db *sql.DB) *PostgresVideoRepo {
	return &PostgresVideoRepo{db: db}
}

// ListByProgram はプログラムに属する動画を登録順で返す。
func (r *PostgresVideoRepo) ListByProgram(ctx context.Context, programID string) ([]*model.Video, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, program_id, title, description, youtube_url, created_at
		 FROM videos WHERE program_id = $1 ORDER BY created_at`,
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []*model.Video
	for rows.Next() {
		v := &model.Video{}
		if err := rows.Scan(&v.ID, &v.ProgramID, &v.Title, &v.Description, &v.YoutubeURL, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

// CountByProgram はプログラムに属する動画数を返す。
func (r *PostgresVideoRepo) CountByProgram(ctx context.Context, programID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM videos WHERE program_id = $1`, programID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// Create は動画を作成する。
func (r *PostgresVideoRepo) Create(ctx context.Context, v *model.Video) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO videos (program_id, title, description, youtube_url)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		v.ProgramID, v.Title, v.Description, v.YoutubeURL,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

// Delete は動画を削除する。
func (r *PostgresVideoRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return requireAffected(result, "video", id)
}

// PostgresResourceRepo はPostgreSQLを使用した配布資料リポジトリ。
type PostgresResourceRepo struct {
	db *sql.DB
}

// NewPostgresResourceRepo はPostgresResourceRepoを生成する。
func NewPostgresResourceRepo(db *sql.DB) *PostgresResourceRepo {
	return &PostgresResourceRepo{db: db}
}

// ListByProgram はプログラムに属する配布資料を登録順で返す。
func (r *PostgresResourceRepo) ListByProgram(ctx context.Context, programID string) ([]*model.Resource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, program_id, title, description, file_url, created_at
		 FROM resources WHERE program_id = $1 ORDER BY created_at`,
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*model.Resource
	for rows.Next() {
		res := &model.Resource{}
		if err := rows.Scan(&res.ID, &res.ProgramID, &res.Title, &res.Description, &res.FileURL, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	return resources, nil
}

// Create は配布資料を作成する。
func (r *PostgresResourceRepo) Create(ctx context.Context, res *model.Resource) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO resources (program_id, title, description, file_url)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		res.ProgramID, res.Title, res.Description, res.FileURL,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// Delete は配布資料を削除する。
func (r *PostgresResourceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return requireAffected(result, "resource", id)
}

// compile-time interface check
var (
	_ ProgramRepository  = (*PostgresProgramRepo)(nil)
	_ VideoRepository    = (*PostgresVideoRepo)(nil)
	_ ResourceRepository = (*PostgresResourceRepo)(nil)
)
