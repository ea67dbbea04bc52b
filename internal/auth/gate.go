package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
)

// 認可拒否時のリダイレクト先。
const (
	LoginPath              = "/login"
	InvalidSessionRedirect = "/login?error=invalid_session"
	HomePath               = "/"
)

// RoleLookup はユーザーのロールを取得するインターフェース。
// 見つからない場合は空文字とnilを返す。
type RoleLookup interface {
	FindRoleByID(ctx context.Context, id string) (model.Role, error)
}

// Denial は認可拒否の結果。Redirectへ遷移させる。
// 理由は利用者に返さず、メトリクスとログにのみ使う。
type Denial struct {
	Redirect string
	Reason   string
}

// Gate は解決済みセッションとDB上のロールから操作の可否を判定する。
// 判定に失敗した場合は常に拒否する。
type Gate struct {
	roles     RoleLookup
	anomalies *AnomalyReporter
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewGate はGateを生成する。
func NewGate(roles RoleLookup, anomalies *AnomalyReporter, m metrics.MetricsCollector, logger *slog.Logger) *Gate {
	return &Gate{roles: roles, anomalies: anomalies, metrics: m, logger: logger}
}

// RequireRole はセッションの利用者がrequiredロールを満たすか判定する。
// 許可した場合は検証済みのユーザーIDを返し、拒否した場合はDenialを返す。
// トークン内のロールは信用せず、常にユーザーレコードのロールを参照する。
func (g *Gate) RequireRole(ctx context.Context, session model.Session, required model.Role) (string, *Denial) {
	if session.IsAnonymous() {
		return "", g.deny(metrics.DenialAnonymous, LoginPath)
	}

	if !isCanonicalUUID(session.UserID) {
		g.logger.WarnContext(ctx, "不正な形式のユーザーIDを拒否しました",
			slog.String("session_kind", session.Kind.String()),
		)
		return "", g.deny(metrics.DenialInvalidID, InvalidSessionRedirect)
	}

	role, err := g.roles.FindRoleByID(ctx, session.UserID)
	if err != nil {
		g.logger.ErrorContext(ctx, "ロールの取得に失敗しました",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return "", g.deny(metrics.DenialRole, HomePath)
	}
	if role == "" {
		g.anomalies.Report(ctx, &model.Anomaly{
			Kind:   model.AnomalyMissingUserRecord,
			UserID: session.UserID,
			Detail: "session resolved (" + session.Kind.String() + ") but user record is missing",
		})
		return "", g.deny(metrics.DenialRole, HomePath)
	}
	if !role.Satisfies(required) {
		g.logger.InfoContext(ctx, "authorization denied",
			slog.String("user_id", session.UserID),
			slog.String("required_role", string(required)),
		)
		return "", g.deny(metrics.DenialRole, HomePath)
	}

	return session.UserID, nil
}

func (g *Gate) deny(reason, redirect string) *Denial {
	g.metrics.RecordAuthzDenial(reason)
	return &Denial{Redirect: redirect, Reason: reason}
}

// canonicalUUIDLength は8-4-4-4-12形式のUUID文字列の長さ。
const canonicalUUIDLength = 36

// isCanonicalUUID は8-4-4-4-12形式のUUIDかどうかを返す。
// uuid.Parseが受け付けるurn:uuid:や波括弧付き、ハイフンなしの形式は拒否する。
func isCanonicalUUID(id string) bool {
	if len(id) != canonicalUUIDLength {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
