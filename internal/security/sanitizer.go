// Package security は管理者が入力したコンテンツの無害化とURL検証を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はプログラム・動画・資料の説明文とタイトルを無害化する。
// bluemondayの許可リストで安全なタグのみを通過させる。並行に使用してよい。
type Sanitizer struct {
	description *bluemonday.Policy
	plain       *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// 説明文で許可するタグ: p, br, ul, ol, li, strong, em, a(href)
// aタグにはtarget="_blank"とrel="noopener noreferrer"を付与する。
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		description: p,
		plain:       bluemonday.StrictPolicy(),
	}
}

// Description は説明文のHTMLを無害化する。
func (s *Sanitizer) Description(raw string) string {
	return strings.TrimSpace(s.description.Sanitize(raw))
}

// Plain はタイトルなどからすべてのタグを除去する。
func (s *Sanitizer) Plain(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}
