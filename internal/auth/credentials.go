package auth

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// MaxPasswordBytes はパスワードの最大バイト数。bcryptが扱える上限に合わせる。
const MaxPasswordBytes = 72

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("has_upper", hasRune(unicode.IsUpper))
	v.RegisterValidation("has_lower", hasRune(unicode.IsLower))
	v.RegisterValidation("has_digit", hasRune(unicode.IsDigit))
	v.RegisterValidation("has_special", hasRune(isSpecial))
	v.RegisterValidation("max_bytes", maxBytes)
	return v
}

func hasRune(pred func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), pred) >= 0
	}
}

// maxBytes はUTF-8のバイト数がパラメータ以下かどうかを検証する。
// 組み込みのmaxは文字数で数えるため使えない。
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// isSpecial は英字・数字・空白以外の表示可能文字かどうかを返す。
func isSpecial(r rune) bool {
	return unicode.IsPrint(r) && !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

// passwordRules はパスワードに課すルール。すべて個別に評価し、違反をすべて列挙する。
var passwordRules = []struct {
	tag     string
	message string
}{
	{fmt.Sprintf("min=%d", MinPasswordLength), fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength)},
	{fmt.Sprintf("max_bytes=%d", MaxPasswordBytes), fmt.Sprintf("パスワードは%dバイト以内で入力してください", MaxPasswordBytes)},
	{"has_upper", "パスワードには英大文字を含めてください"},
	{"has_lower", "パスワードには英小文字を含めてください"},
	{"has_digit", "パスワードには数字を含めてください"},
	{"has_special", "パスワードには記号を含めてください"},
}

// CredentialError は入力検証で違反したルールの一覧。
type CredentialError struct {
	Violations []string
}

// Error は違反メッセージをすべて連結して返す。
func (e *CredentialError) Error() string {
	return strings.Join(e.Violations, "。") + "。"
}

type signInInput struct {
	Email string `validate:"required,email"`
}

type signUpInput struct {
	Email string `validate:"required,email"`
	Name  string `validate:"min=2"`
}

// VerifySignIn はサインイン入力を検証する。
// IdPやDBへアクセスする前に呼び出す。違反がない場合はnilを返す。
func VerifySignIn(email, password string) error {
	violations := structViolations(signInInput{Email: strings.TrimSpace(email)})
	violations = append(violations, passwordViolations(password)...)
	return toCredentialError(violations)
}

// VerifySignUp はサインアップ入力を検証する。nameは前後の空白を除いて2文字以上。
func VerifySignUp(email, password, name string) error {
	violations := structViolations(signUpInput{
		Email: strings.TrimSpace(email),
		Name:  strings.TrimSpace(name),
	})
	violations = append(violations, passwordViolations(password)...)
	return toCredentialError(violations)
}

func structViolations(s any) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"入力内容を検証できませんでした"}
	}

	var msgs []string
	for _, fe := range fieldErrs {
		msgs = append(msgs, msgForField(fe))
	}
	return msgs
}

func msgForField(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "有効なメールアドレスを入力してください"
	case "Name":
		return "名前は2文字以上で入力してください"
	default:
		return fe.Field() + "が不正です"
	}
}

func passwordViolations(password string) []string {
	var msgs []string
	for _, rule := range passwordRules {
		if err := validate.Var(password, rule.tag); err != nil {
			msgs = append(msgs, rule.message)
		}
	}
	return msgs
}

func toCredentialError(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &CredentialError{Violations: violations}
}
