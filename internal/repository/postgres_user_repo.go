package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mentorhub/internal/model"
)

// bcryptPrefixPattern はbcryptハッシュ（$2a$, $2b$, $2y$）に一致するLIKEパターン。
const bcryptPrefixPattern = `$2_$%`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, password_hash, role, level, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Role, &user.Level, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindRoleByID は指定IDのユーザーのロールを取得する。見つからない場合は空文字を返す。
func (r *PostgresUserRepo) FindRoleByID(ctx context.Context, id string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user role: %w", err)
	}
	return role, nil
}

// Create はユーザーを作成する。
// 同一emailの同時登録は一意制約で解決され、後発はErrDuplicateとなる。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, level)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.Level,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateRole はユーザーのロールを更新する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`,
		id, role,
	)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return requireAffected(result, "user", id)
}

// List は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// FindMissingIDs はidsのうちusersテーブルに存在しないIDを返す。
func (r *PostgresUserRepo) FindMissingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT candidate FROM unnest($1::uuid[]) AS candidate
		 WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = candidate)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find missing users: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan missing user id: %w", err)
		}
		missing = append(missing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate missing users: %w", err)
	}
	return missing, nil
}

// ListLegacyPasswords はbcrypt形式でないパスワードを持つユーザーを返す。
func (r *PostgresUserRepo) ListLegacyPasswords(ctx context.Context) ([]LegacyPassword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, password_hash FROM users
		 WHERE password_hash <> '' AND password_hash NOT LIKE $1`,
		bcryptPrefixPattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy passwords: %w", err)
	}
	defer rows.Close()

	var legacy []LegacyPassword
	for rows.Next() {
		var lp LegacyPassword
		if err := rows.Scan(&lp.UserID, &lp.Secret); err != nil {
			return nil, fmt.Errorf("failed to scan legacy password: %w", err)
		}
		legacy = append(legacy, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate legacy passwords: %w", err)
	}
	return legacy, nil
}

// CountLegacyPasswords はbcrypt形式でないパスワードを持つユーザー数を返す。
func (r *PostgresUserRepo) CountLegacyPasswords(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE password_hash <> '' AND password_hash NOT LIKE $1`,
		bcryptPrefixPattern,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count legacy passwords: %w", err)
	}
	return count, nil
}

// UpdatePasswordHash は旧値がexpectedと一致する場合のみパスワードハッシュを置き換える。
// 一致しない場合（並行して更新済み）はErrNotFoundを返す。
func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, id, expected, hash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $3, updated_at = now()
		 WHERE id = $1 AND password_hash = $2`,
		id, expected, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return requireAffected(result, "user", id)
}

// requireAffected は更新件数が0件の場合にErrNotFoundを返す。
func requireAffected(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var (
	_ UserRepository           = (*PostgresUserRepo)(nil)
	_ LegacyPasswordRepository = (*PostgresUserRepo)(nil)
)
