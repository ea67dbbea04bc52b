// Package auth はサインイン・サインアップ、フォールバックセッション、
// セッション解決、ロールによる認可判定を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/repository"
)

// FallbackTriggers はIdPのサインイン拒否のうち、フォールバックセッションの発行を試みる種別。
var FallbackTriggers = map[identity.Kind]bool{
	identity.KindEmailNotConfirmed:  true,
	identity.KindInvalidCredentials: true,
}

// SignInResult はサインイン成功時の結果。
// Kindに応じてProviderSessionまたはFallbackTokenのどちらかが設定される。
type SignInResult struct {
	Kind              model.SessionKind
	UserID            string
	ProviderSession   *identity.Session
	FallbackToken     string
	FallbackExpiresAt time.Time
}

// SignUpInput はサインアップの入力。
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	idp       identity.Client
	users     repository.UserRepository
	anomalies *AnomalyReporter
	tokens    *TokenManager
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	hash      func(string) (string, error)
}

// NewService はServiceを生成する。
func NewService(
	idp identity.Client,
	users repository.UserRepository,
	anomalies *AnomalyReporter,
	tokens *TokenManager,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		idp:       idp,
		users:     users,
		anomalies: anomalies,
		tokens:    tokens,
		metrics:   m,
		logger:    logger,
		hash:      HashPassword,
	}
}

// SignIn はIdPでサインインする。
// IdPがFallbackTriggersに含まれる理由で拒否した場合のみ、ローカルのユーザーレコードと
// パスワードハッシュを照合してフォールバックセッショントークンを発行する。
// 照合に失敗した場合はIdPのエラーをそのまま返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = normalizeEmail(email)
	if err := VerifySignIn(email, password); err != nil {
		s.metrics.RecordSignIn(metrics.SignInInvalid)
		return nil, model.NewValidationError(err.Error())
	}

	sess, err := s.idp.SignIn(ctx, email, password)
	if err == nil {
		s.metrics.RecordSignIn(metrics.SignInProvider)
		s.logger.InfoContext(ctx, "user signed in",
			slog.String("user_id", sess.User.ID),
			slog.String("session_kind", model.SessionProvider.String()),
		)
		return &SignInResult{
			Kind:            model.SessionProvider,
			UserID:          sess.User.ID,
			ProviderSession: sess,
		}, nil
	}

	if !FallbackTriggers[identity.KindOf(err)] {
		s.metrics.RecordSignIn(metrics.SignInRejected)
		return nil, err
	}

	result, ok := s.fallbackSignIn(ctx, email, password)
	if !ok {
		s.metrics.RecordSignIn(metrics.SignInRejected)
		return nil, err
	}

	s.metrics.RecordSignIn(metrics.SignInFallback)
	s.logger.InfoContext(ctx, "user signed in",
		slog.String("user_id", result.UserID),
		slog.String("session_kind", model.SessionFallback.String()),
		slog.String("provider_reason", identity.KindOf(err).String()),
	)
	return result, nil
}

// fallbackSignIn はユーザーレコードのパスワードハッシュと照合し、一致すればトークンを発行する。
func (s *Service) fallbackSignIn(ctx context.Context, email, password string) (*SignInResult, bool) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "フォールバック認証のユーザー検索に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if user == nil {
		burnComparison(password)
		return nil, false
	}
	if !ComparePassword(user.PasswordHash, password) {
		return nil, false
	}

	token, payload, err := s.tokens.Sign(user.ID, user.Role)
	if err != nil {
		s.logger.ErrorContext(ctx, "フォールバックセッショントークンの署名に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	return &SignInResult{
		Kind:              model.SessionFallback,
		UserID:            user.ID,
		FallbackToken:     token,
		FallbackExpiresAt: payload.ExpiresAt,
	}, true
}

// SignUp はIdPでアカウントを作成し、ユーザーレコードを作成する。
// ロールは最小権限のUSER、レベルはHIGH_SCHOOLで作成する。
// IdP登録後にユーザーレコードの作成に失敗した場合は不整合として記録する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if err := VerifySignUp(email, in.Password, name); err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	// IdPにアカウントを作る前にハッシュ化しておく。
	// 後段で失敗するとIdP側だけにアカウントが残るため。
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	ident, err := s.idp.SignUp(ctx, email, in.Password, identity.Profile{Name: name})
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           ident.ID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Level:        model.LevelHighSchool,
	}

	err = s.users.Create(ctx, user)
	if err != nil {
		s.anomalies.Report(ctx, &model.Anomaly{
			Kind:   model.AnomalyOrphanedIdentity,
			UserID: ident.ID,
			Email:  email,
			Detail: err.Error(),
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, model.NewProfileSyncFailedError()
	}

	s.logger.InfoContext(ctx, "new user created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// SignOut はIdPセッションを失効させる。
// IdP側の失敗はログに残すのみで、Cookieの削除は呼び出し元が必ず行う。
func (s *Service) SignOut(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := s.idp.SignOut(ctx, accessToken); err != nil {
		s.logger.WarnContext(ctx, "IdPのサインアウトに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "user signed out")
}

// TokenTTL はフォールバックセッションの有効期間を返す。
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ErrorMessage はIdPのエラーを利用者向けメッセージに変換する。
// 分類できないエラーはプロバイダーのメッセージをそのまま返す。
func ErrorMessage(err *identity.Error) string {
	switch err.Kind {
	case identity.KindEmailNotConfirmed:
		return "メールアドレスの確認が完了していません。"
	case identity.KindInvalidCredentials:
		return "メールアドレスまたはパスワードが正しくありません。"
	case identity.KindUserAlreadyExists:
		return "このメールアドレスは既に登録されています。"
	case identity.KindWeakPassword:
		return "パスワードが弱すぎます。"
	case identity.KindRateLimited:
		return "試行回数が多すぎます。しばらく待ってから再度お試しください。"
	case identity.KindInvalidSession:
		return "セッションの有効期限が切れました。"
	case identity.KindUnavailable:
		return "認証サービスに接続できません。"
	default:
		return err.Message
	}
}
