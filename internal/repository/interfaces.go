// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/mentorhub/internal/model"
)

// ErrDuplicate は一意制約違反（同一メールアドレス、二重受講登録など）を表す。
var ErrDuplicate = errors.New("duplicate record")

// ErrNotFound は更新・削除対象のレコードが存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーレコードの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// パスワードハッシュを含む。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindRoleByID は指定IDのユーザーのロールのみを取得する。
	// 見つからない場合は空文字とnilを返す。
	FindRoleByID(ctx context.Context, id string) (model.Role, error)

	// Create はユーザーを作成する。emailが重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateRole はユーザーのロールを更新する。対象がない場合はErrNotFoundを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// FindMissingIDs はidsのうちusersテーブルに存在しないIDを返す。
	FindMissingIDs(ctx context.Context, ids []string) ([]string, error)
}

// LegacyPasswordRepository は平文で保存された旧形式パスワードの移行用インターフェース。
type LegacyPasswordRepository interface {
	// ListLegacyPasswords はbcrypt形式でないパスワードを持つユーザーを返す。
	ListLegacyPasswords(ctx context.Context) ([]LegacyPassword, error)

	// CountLegacyPasswords はbcrypt形式でないパスワードを持つユーザー数を返す。
	CountLegacyPasswords(ctx context.Context) (int, error)

	// UpdatePasswordHash は指定ユーザーのパスワードハッシュを置き換える。
	// 旧値がexpectedと一致する場合のみ更新する。
	UpdatePasswordHash(ctx context.Context, id, expected, hash string) error
}

// LegacyPassword は移行前の平文パスワードを持つユーザー。
type LegacyPassword struct {
	UserID string
	Secret string
}

// ProgramRepository はプログラムの永続化インターフェース。
type ProgramRepository interface {
	// List は全プログラムを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Program, error)
	// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Program, error)
	// Create はプログラムを作成し、採番されたIDと作成日時をprogramに設定する。
	Create(ctx context.Context, program *model.Program) error
	// Delete はプログラムを削除する。動画・資料・受講状況はCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// VideoRepository は動画の永続化インターフェース。
type VideoRepository interface {
	ListByProgram(ctx context.Context, programID string) ([]*model.Video, error)
	CountByProgram(ctx context.Context, programID string) (int, error)
	Create(ctx context.Context, video *model.Video) error
	Delete(ctx context.Context, id string) error
}

// ResourceRepository は配布資料の永続化インターフェース。
type ResourceRepository interface {
	ListByProgram(ctx context.Context, programID string) ([]*model.Resource, error)
	Create(ctx context.Context, resource *model.Resource) error
	Delete(ctx context.Context, id string) error
}

// EnrollmentRepository は受講状況（user_progress）の永続化インターフェース。
type EnrollmentRepository interface {
	// Create は受講登録を作成する。登録済みの場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, enrollment *model.Enrollment) error
	// ListByUser はユーザーの受講状況をプログラム名付きで返す。
	ListByUser(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error)
}

// AnomalyRepository はIdPとローカルDBの不整合記録の永続化インターフェース。
type AnomalyRepository interface {
	// Record は不整合を記録する。同一種別・同一ユーザーの記録が既にある場合は何もしない。
	Record(ctx context.Context, anomaly *model.Anomaly) error
}
