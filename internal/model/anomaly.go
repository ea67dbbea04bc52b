package model

import "time"

// AnomalyKind はデータ不整合の種類を表す。
type AnomalyKind string

const (
	// AnomalyOrphanedIdentity はIdP側にアカウントが作成されたが
	// ローカルのユーザーレコード作成に失敗した状態。
	AnomalyOrphanedIdentity AnomalyKind = "orphaned_identity"
	// AnomalyMissingUserRecord は解決済みのユーザーIDに対応する
	// ユーザーレコードが存在しない状態。
	AnomalyMissingUserRecord AnomalyKind = "missing_user_record"
)

// Anomaly は運用者が検知すべきIdPとローカルDBの不整合を表す。
type Anomaly struct {
	ID        string
	Kind      AnomalyKind
	UserID    string
	Email     string
	Detail    string
	CreatedAt time.Time
}
