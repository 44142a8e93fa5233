package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// ContentSanitizerService はユーザーが送信したテキストの無害化を行う。
type ContentSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去し、HTMLとして安全に表示できる文字列を返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はbluemondayのStrictPolicyを保持する。ポリシーはスレッドセーフ。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はタグを一切許可しないサニタイザーを生成する。
// 問い合わせ本文など、管理画面でHTMLとして表示されうる値の保存前に使う。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去した文字列を返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

var _ ContentSanitizerService = (*contentSanitizer)(nil)

// skipTextTags は本文として扱わない要素。
var skipTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// blockTags は前後で改行を入れる要素。
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "tr": true, "section": true, "article": true,
}

// ExtractText は貼り付けられたHTMLから本文テキストを取り出す。
// ブロック要素は改行に、連続する空白は1つにまとめ、段落間の空行は1行に揃える。
// 文字参照はデコードされる。
func ExtractText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeText(b.String())

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			if skipTextTags[name] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if blockTags[name] {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			if skipTextTags[name] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockTags[name] {
				b.WriteByte('\n')
			}
		}
	}
}

// normalizeText は行内の空白をまとめ、連続する空行を1行にする。
func normalizeText(s string) string {
	var out []string
	pendingBlank := false
	for _, line := range strings.Split(s, "\n") {
		l := strings.Join(strings.Fields(line), " ")
		if l == "" {
			if len(out) > 0 {
				pendingBlank = true
			}
			continue
		}
		if pendingBlank {
			out = append(out, "")
			pendingBlank = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
