// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はリモートAPIから中継するリッチテキスト
// （プロジェクト説明、タスクのメモ等）のHTMLをサニタイズし、
// XSS攻撃などのセキュリティリスクからダッシュボード利用者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"encoding/json"
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// richTextFields はJSONペイロード中でHTMLを含みうるフィールド名。
// 上流APIのスキーマに合わせて定義する。
var richTextFields = map[string]bool{
	"description": true,
	"notes":       true,
	"summary":     true,
	"comment":     true,
}

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 上流レスポンスをブラウザへ返す前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// SanitizeJSON はJSONペイロード中のリッチテキストフィールドを
	// 再帰的にサニタイズして返す。JSONとして解釈できない入力は
	// そのまま返す（バイナリ等の非JSONレスポンスを壊さないため）。
	SanitizeJSON(payload []byte) []byte
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// 許可タグの設定（属性なしのシンプルなタグ）
	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// aタグの設定:
	// - href属性を許可
	// - 相対URLは不許可（上流コンテンツには不適切）
	// - target="_blank"を全リンクに強制付与
	// - rel="noreferrer noopener"を強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// noopSanitizer はサニタイズを行わないContentSanitizerServiceの実装。
// SANITIZE_FIELDS=false で上流レスポンスをそのまま中継する場合に使用する。
type noopSanitizer struct{}

// NewNoopSanitizer はサニタイズを行わないインスタンスを生成する。
func NewNoopSanitizer() *noopSanitizer {
	return &noopSanitizer{}
}

func (s *noopSanitizer) Sanitize(rawHTML string) string { return rawHTML }

func (s *noopSanitizer) SanitizeJSON(payload []byte) []byte { return payload }

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// SanitizeJSON はJSONペイロード中のリッチテキストフィールドをサニタイズする。
// オブジェクトと配列を再帰的に走査し、richTextFieldsに該当する
// 文字列値のみを書き換える。数値や真偽値は変更しない。
func (s *contentSanitizer) SanitizeJSON(payload []byte) []byte {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload
	}

	sanitized := s.sanitizeValue(doc, false)

	out, err := json.Marshal(sanitized)
	if err != nil {
		return payload
	}
	return out
}

// sanitizeValue はJSON値を再帰的に走査する。
// richText が真の場合、文字列値をサニタイズ対象とする。
func (s *contentSanitizer) sanitizeValue(v any, richText bool) any {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			val[key] = s.sanitizeValue(child, richTextFields[key])
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = s.sanitizeValue(child, richText)
		}
		return val
	case string:
		if richText {
			return s.Sanitize(val)
		}
		return val
	default:
		return val
	}
}
