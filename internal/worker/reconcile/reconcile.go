// Package reconcile はIdPのアカウントとローカルのユーザーレコードを突き合わせるジョブを提供する。
// ユーザーレコードを持たないIdPアカウントをmissing_user_recordとして記録する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/mentorhub/internal/model"
)

const (
	// DefaultPageSize はIdP管理APIの1ページあたりの取得件数。
	DefaultPageSize = 100
	// maxPages は1回の突き合わせで読むページ数の上限。
	maxPages = 1000
)

// IdentityLister はIdPのアカウント一覧を取得するインターフェース。
type IdentityLister interface {
	ListUsers(ctx context.Context, page, perPage int) ([]model.Identity, error)
}

// MissingFinder はユーザーレコードが存在しないIDを抽出するインターフェース。
type MissingFinder interface {
	FindMissingIDs(ctx context.Context, ids []string) ([]string, error)
}

// AnomalyReporter は不整合を記録するインターフェース。
type AnomalyReporter interface {
	Report(ctx context.Context, a *model.Anomaly)
}

// Result は1回の突き合わせ結果。
type Result struct {
	Scanned int
	Missing int
}

// Reconciler はIdPとユーザーレコードの突き合わせジョブ。
type Reconciler struct {
	idp       IdentityLister
	users     MissingFinder
	anomalies AnomalyReporter
	logger    *slog.Logger
	PageSize  int
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(idp IdentityLister, users MissingFinder, anomalies AnomalyReporter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		idp:       idp,
		users:     users,
		anomalies: anomalies,
		logger:    logger,
		PageSize:  DefaultPageSize,
	}
}

// Start はintervalごとに突き合わせを実行する。
// 失敗が続いた場合は指数バックオフで次回実行を遅らせる。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("突き合わせジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	state := &runState{}
	r.runLogged(ctx, state, time.Now())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("突き合わせジョブを停止しました")
			return
		case now := <-ticker.C:
			if now.Before(state.nextRunAt) {
				continue
			}
			r.runLogged(ctx, state, now)
		}
	}
}

func (r *Reconciler) runLogged(ctx context.Context, state *runState, now time.Time) {
	if _, err := r.RunOnce(ctx); err != nil {
		state.recordFailure(now)
		r.logger.Error("突き合わせの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", state.consecutiveErrors),
			slog.Time("next_run_at", state.nextRunAt),
		)
		return
	}
	state.recordSuccess()
}

// RunOnce はIdPのアカウントを全ページ読み、ユーザーレコードのないアカウントを記録する。
// 途中のページで失敗した場合は、それまでに検出した不整合を記録したままエラーを返す。
func (r *Reconciler) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	perPage := r.PageSize
	if perPage <= 0 {
		perPage = DefaultPageSize
	}

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		identities, err := r.idp.ListUsers(ctx, page, perPage)
		if err != nil {
			return result, fmt.Errorf("IdPアカウント一覧の取得に失敗しました (page=%d): %w", page, err)
		}
		if len(identities) == 0 {
			break
		}

		missing, err := r.checkPage(ctx, identities)
		if err != nil {
			return result, err
		}
		result.Scanned += len(identities)
		result.Missing += missing

		if len(identities) < perPage {
			break
		}
	}

	r.logger.Info("突き合わせが完了しました",
		slog.Int("scanned_count", result.Scanned),
		slog.Int("missing_count", result.Missing),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

func (r *Reconciler) checkPage(ctx context.Context, identities []model.Identity) (int, error) {
	byID := make(map[string]model.Identity, len(identities))
	ids := make([]string, 0, len(identities))
	for _, ident := range identities {
		byID[ident.ID] = ident
		ids = append(ids, ident.ID)
	}

	missingIDs, err := r.users.FindMissingIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("ユーザーレコードの照合に失敗しました: %w", err)
	}

	for _, id := range missingIDs {
		ident := byID[id]
		r.anomalies.Report(ctx, &model.Anomaly{
			Kind:   model.AnomalyMissingUserRecord,
			UserID: id,
			Email:  ident.Email,
			Detail: "IdPアカウントに対応するユーザーレコードがありません",
		})
	}
	return len(missingIDs), nil
}
