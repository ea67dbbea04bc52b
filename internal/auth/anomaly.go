package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/repository"
)

// AnomalyReporter はIdPとローカルDBの不整合を運用者が検知できる形で記録する。
// ERRORログ、メトリクス、auth_anomaliesテーブルの3か所に残す。
type AnomalyReporter struct {
	repo    repository.AnomalyRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewAnomalyReporter はAnomalyReporterを生成する。
func NewAnomalyReporter(repo repository.AnomalyRepository, m metrics.MetricsCollector, logger *slog.Logger) *AnomalyReporter {
	return &AnomalyReporter{repo: repo, metrics: m, logger: logger}
}

// Report は不整合を記録する。記録自体の失敗は呼び出し元に返さずログに残す。
func (r *AnomalyReporter) Report(ctx context.Context, a *model.Anomaly) {
	r.logger.ErrorContext(ctx, "IdPとユーザーレコードの不整合を検知しました",
		slog.String("anomaly", string(a.Kind)),
		slog.String("user_id", a.UserID),
		slog.String("email", a.Email),
		slog.String("detail", a.Detail),
	)
	r.metrics.RecordAnomaly(string(a.Kind))

	if err := r.repo.Record(ctx, a); err != nil {
		r.logger.ErrorContext(ctx, "不整合の記録に失敗しました",
			slog.String("anomaly", string(a.Kind)),
			slog.String("user_id", a.UserID),
			slog.String("error", err.Error()),
		)
	}
}
