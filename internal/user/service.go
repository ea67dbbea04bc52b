// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/repository"
)

var validate = validator.New()

// roleInput はロール変更の入力。
type roleInput struct {
	Role string `validate:"required,oneof=USER ADMIN"`
}

// Profile は /auth/me で返すユーザー情報。パスワードハッシュを含まない。
type Profile struct {
	ID          string
	Email       string
	Name        string
	Role        model.Role
	Level       model.Level
	SessionKind model.SessionKind
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Me は解決済みセッションに対応するユーザー情報を返す。
// 匿名セッション、またはユーザーレコードが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Me(ctx context.Context, session model.Session) (*Profile, error) {
	if session.IsAnonymous() {
		return nil, model.NewUserNotFoundError()
	}
	u, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Level:       u.Level,
		SessionKind: session.Kind,
	}, nil
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// UpdateRole は管理者によるロール変更を行う。
// USER / ADMIN 以外はINVALID_ROLE、対象ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID, role string) error {
	if err := validate.Struct(roleInput{Role: role}); err != nil {
		return model.NewInvalidRoleError(role)
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return model.NewUserNotFoundError()
	}

	if err := s.userRepo.UpdateRole(ctx, targetID, model.Role(role)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーのロールを変更しました",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
		slog.String("role", role),
	)
	return nil
}
