// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザー。サインアップ時のデフォルト（最小権限）。
	RoleUser Role = "USER"
	// RoleAdmin は管理画面の操作を許可されたユーザー。
	RoleAdmin Role = "ADMIN"
)

// IsValid はロールが定義済みの値かどうかを返す。
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Satisfies はロールrが要求ロールrequiredを満たすかを返す。
// ADMINはUSER向け操作も実行できる。
func (r Role) Satisfies(required Role) bool {
	switch required {
	case RoleUser:
		return r == RoleUser || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// Level はユーザーの学習段階を表す。
type Level string

const (
	LevelHighSchool   Level = "HIGH_SCHOOL"
	LevelUniversity   Level = "UNIVERSITY"
	LevelProfessional Level = "PROFESSIONAL"
)

// Identity はIdP（外部認証プロバイダー）が保持するユーザー情報を表す。
// IDはプロバイダー側のユーザーID（UUID）。
type Identity struct {
	ID    string
	Email string
	Name  string
}

// User はIdentityのローカルミラーとしてのユーザーレコードを表す。
// IDはIdentity.IDと一致する。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Level        Level
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionKind はセッションの発行元を表す。
type SessionKind int

const (
	// SessionNone は未認証（匿名）を表す。
	SessionNone SessionKind = iota
	// SessionProvider はIdPが管理するセッション。
	SessionProvider
	// SessionFallback はアプリケーションが署名したフォールバックセッション。
	SessionFallback
)

// String はログ出力用の名前を返す。
func (k SessionKind) String() string {
	switch k {
	case SessionProvider:
		return "provider"
	case SessionFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Session はリクエストの呼び出し元を解決した結果を表す。
// Provider(id) | Fallback(id) | None のいずれか。
type Session struct {
	Kind   SessionKind
	UserID string
}

// AnonymousSession は未認証セッションを返す。
func AnonymousSession() Session {
	return Session{Kind: SessionNone}
}

// ProviderSession はIdPセッション由来のSessionを返す。
func ProviderSession(userID string) Session {
	return Session{Kind: SessionProvider, UserID: userID}
}

// FallbackSession はフォールバックトークン由来のSessionを返す。
func FallbackSession(userID string) Session {
	return Session{Kind: SessionFallback, UserID: userID}
}

// IsAnonymous は未認証かどうかを返す。
func (s Session) IsAnonymous() bool {
	return s.Kind == SessionNone || s.UserID == ""
}
