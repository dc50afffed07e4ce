package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は利用者が入力したHTMLのサニタイズ機能を定義する。
type ContentSanitizerService interface {
	// Sanitize はイベント説明文を許可リストのタグのみ残した安全なHTMLにする。
	Sanitize(rawHTML string) string

	// SanitizeText はフィードバックのコメントからすべてのタグを除去したテキストを返す。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのPolicyはスレッドセーフなので共有する。
type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 説明文ポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, h3, h4
//   - aタグはhttp/https/mailtoの絶対URLのみ。target="_blank"とrel="noopener noreferrer"を付与
//   - 画像や埋め込み、スタイル、on*属性は除去
func NewContentSanitizer() *contentSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em", "h3", "h4",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("http", "https", "mailto")
	rich.AllowRelativeURLs(false)
	rich.RequireParseableURLs(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		rich:   rich,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLをサニタイズする。空文字列の入力には空文字列を返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.rich.Sanitize(rawHTML))
}

// SanitizeText はタグを除去し、StrictPolicyがエスケープした文字参照を元に戻す。
// 結果はJSONとして返すテキストであり、HTMLとして埋め込む前提ではない。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

var _ ContentSanitizerService = (*contentSanitizer)(nil)
