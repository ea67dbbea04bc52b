package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/repository"
)

// bcryptCost はパスワードハッシュのコスト。
const bcryptCost = 12

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// IsHashed は保存値がbcryptハッシュかどうかを返す。
func IsHashed(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// ComparePassword は保存済みのbcryptハッシュと入力パスワードを定数時間で比較する。
// 保存値がbcryptハッシュでない場合（未移行の平文など）は常にfalseを返す。
func ComparePassword(stored, password string) bool {
	if !IsHashed(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnComparison はユーザーが存在しない場合にも同等の比較コストを費やす。
// 応答時間からアカウントの有無を推測されないようにする。
func burnComparison(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mentorhub-dummy-password"), bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// MigrationResult は旧形式パスワード移行の結果。
type MigrationResult struct {
	Migrated  int // ハッシュ化したユーザー数
	Skipped   int // 並行更新により対象外となったユーザー数
	Remaining int // 移行後に残っている旧形式パスワード数（0であるべき）
}

// LegacyPasswordMigrator は平文で保存された旧形式パスワードをbcryptハッシュへ一括移行する。
// 認証時の平文比較は行わず、移行はこの一度きりの処理に限定する。
type LegacyPasswordMigrator struct {
	repo    repository.LegacyPasswordRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	hash    func(string) (string, error)
}

// NewLegacyPasswordMigrator はLegacyPasswordMigratorを生成する。
func NewLegacyPasswordMigrator(repo repository.LegacyPasswordRepository, m metrics.MetricsCollector, logger *slog.Logger) *LegacyPasswordMigrator {
	return &LegacyPasswordMigrator{
		repo:    repo,
		metrics: m,
		logger:  logger,
		hash:    HashPassword,
	}
}

// Run は旧形式パスワードをすべてハッシュ化し、残数をゲージに反映する。
func (m *LegacyPasswordMigrator) Run(ctx context.Context) (*MigrationResult, error) {
	legacy, err := m.repo.ListLegacyPasswords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy passwords: %w", err)
	}

	result := &MigrationResult{}
	for _, lp := range legacy {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		hash, err := m.hash(lp.Secret)
		if err != nil {
			return result, fmt.Errorf("failed to hash legacy password for user %s: %w", lp.UserID, err)
		}

		err = m.repo.UpdatePasswordHash(ctx, lp.UserID, lp.Secret, hash)
		if errors.Is(err, repository.ErrNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to store migrated password for user %s: %w", lp.UserID, err)
		}
		result.Migrated++
	}

	remaining, err := m.repo.CountLegacyPasswords(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count legacy passwords: %w", err)
	}
	result.Remaining = remaining
	m.metrics.SetLegacyPasswords(remaining)

	m.logger.Info("旧形式パスワードの移行が完了しました",
		slog.Int("migrated", result.Migrated),
		slog.Int("skipped", result.Skipped),
		slog.Int("remaining", result.Remaining),
	)
	if remaining > 0 {
		m.logger.Warn("旧形式パスワードが残っています", slog.Int("remaining", remaining))
	}

	return result, nil
}
