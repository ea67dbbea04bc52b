package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind はIdPが返したエラーの分類。
// 呼び出し元はメッセージ文字列ではなくKindで分岐する。
type Kind int

const (
	// KindUnknown は分類できなかったエラー。Messageにプロバイダーの文言をそのまま保持する。
	KindUnknown Kind = iota
	// KindEmailNotConfirmed はメールアドレス未確認によるサインイン拒否。
	KindEmailNotConfirmed
	// KindInvalidCredentials はメールアドレスまたはパスワードの不一致。
	KindInvalidCredentials
	// KindUserAlreadyExists はサインアップ時の登録済みアカウント。
	KindUserAlreadyExists
	// KindWeakPassword はプロバイダー側のパスワード強度要件違反。
	KindWeakPassword
	// KindRateLimited はプロバイダー側のレート制限。
	KindRateLimited
	// KindInvalidSession はアクセストークン・リフレッシュトークンの失効または不正。
	KindInvalidSession
	// KindUnavailable は通信障害、5xx、サーキットブレーカー遮断。
	KindUnavailable
)

// String はログ出力用の名前を返す。
func (k Kind) String() string {
	switch k {
	case KindEmailNotConfirmed:
		return "email_not_confirmed"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUserAlreadyExists:
		return "user_already_exists"
	case KindWeakPassword:
		return "weak_password"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidSession:
		return "invalid_session"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error はIdP呼び出しの構造化エラー。
type Error struct {
	Kind    Kind
	Status  int    // HTTPステータス（通信障害時は0）
	Message string // プロバイダーが返したメッセージ
	Err     error  // 通信障害などの原因エラー
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity provider %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("identity provider %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrに含まれる*ErrorのKindを返す。*Errorでない場合はKindUnknown。
func KindOf(err error) Kind {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Kind
	}
	return KindUnknown
}

// errorCodeKinds はプロバイダーのerror_codeとKindの対応。
var errorCodeKinds = map[string]Kind{
	"email_not_confirmed":        KindEmailNotConfirmed,
	"invalid_credentials":        KindInvalidCredentials,
	"user_already_exists":        KindUserAlreadyExists,
	"email_exists":               KindUserAlreadyExists,
	"weak_password":              KindWeakPassword,
	"over_request_rate_limit":    KindRateLimited,
	"over_email_send_rate_limit": KindRateLimited,
	"bad_jwt":                    KindInvalidSession,
	"session_not_found":          KindInvalidSession,
	"session_expired":            KindInvalidSession,
	"refresh_token_not_found":    KindInvalidSession,
	"refresh_token_already_used": KindInvalidSession,
}

// messageKinds はerror_codeを返さない旧バージョン向けのメッセージ前方一致ルール。
var messageKinds = []struct {
	prefix string
	kind   Kind
}{
	{"email not confirmed", KindEmailNotConfirmed},
	{"invalid login credentials", KindInvalidCredentials},
	{"user already registered", KindUserAlreadyExists},
	{"password should be", KindWeakPassword},
	{"invalid refresh token", KindInvalidSession},
	{"invalid jwt", KindInvalidSession},
}

// errorBody はGoTrue互換APIのエラーレスポンス。
// バージョンによってフィールド名が異なるため、候補をすべて受け取る。
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classify はHTTPステータスとエラーレスポンスから*Errorを組み立てる。
func classify(status int, body errorBody) *Error {
	msg := body.text()
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &Error{Kind: KindUnknown, Status: status, Message: msg}

	if kind, ok := errorCodeKinds[body.ErrorCode]; ok {
		e.Kind = kind
		return e
	}

	lower := strings.ToLower(msg)
	for _, rule := range messageKinds {
		if strings.HasPrefix(lower, rule.prefix) {
			e.Kind = rule.kind
			return e
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status >= http.StatusInternalServerError:
		e.Kind = KindUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindInvalidSession
	}
	return e
}
