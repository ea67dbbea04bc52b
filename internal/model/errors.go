// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, program, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeProfileSyncFailed   = "PROFILE_SYNC_FAILED"
	ErrCodeProgramNotFound     = "PROGRAM_NOT_FOUND"
	ErrCodeAlreadyEnrolled     = "ALREADY_ENROLLED"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeIdentityUnavailable = "IDENTITY_UNAVAILABLE"
	ErrCodeContentNotFound     = "CONTENT_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
// messageには違反したルールをすべて連結したメッセージを渡す。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewAuthFailedError はIdPによる認証拒否エラーを生成する。
// 分類できなかったプロバイダーのメッセージはそのまま表示される。
func NewAuthFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  message,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewIdentityUnavailableError は認証基盤に到達できない場合のエラーを生成する。
func NewIdentityUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityUnavailable,
		Message:  "認証サービスに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmailTakenError は同一メールアドレスで登録済みの場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewProfileSyncFailedError はIdP登録後のユーザーレコード作成に失敗した場合のエラーを生成する。
func NewProfileSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileSyncFailed,
		Message:  "ユーザープロフィールの作成に失敗しました。",
		Category: "system",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewProgramNotFoundError はプログラムが見つからない場合のエラーを生成する。
func NewProgramNotFoundError(programID string) *APIError {
	return &APIError{
		Code:     ErrCodeProgramNotFound,
		Message:  fmt.Sprintf("指定されたプログラムが見つかりません: %s", programID),
		Category: "program",
		Action:   "プログラム一覧から選択し直してください。",
	}
}

// NewAlreadyEnrolledError は受講登録済みの場合のエラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "このプログラムには既に登録済みです。",
		Category: "program",
		Action:   "ダッシュボードから受講を続けてください。",
	}
}

// NewInvalidRoleError は未定義のロールが指定された場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには USER または ADMIN を指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewContentNotFoundError は動画・資料が見つからない場合のエラーを生成する。
func NewContentNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, id),
		Category: "program",
		Action:   "一覧を再読み込みしてください。",
	}
}
