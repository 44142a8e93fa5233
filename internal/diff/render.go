package diff

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// markupPolicy は差分表示で許可するタグ。ins/delとtitle属性のみ通す。
var markupPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("ins", "del")
	p.AllowAttrs("title").OnElements("ins", "del")
	return p
}()

// RenderHTML は差分操作列を<ins>/<del>で囲んだHTML断片に変換する。
// テキストはエスケープし、最終結果もサニタイズしてから返す。
func RenderHTML(ops []Op) string {
	var b strings.Builder
	for _, op := range ops {
		text := html.EscapeString(op.Text)
		switch op.Type {
		case OpInsert:
			b.WriteString(`<ins title="` + ReasonAdded + `">` + text + `</ins>`)
		case OpDelete:
			b.WriteString(`<del title="` + ReasonRemoved + `">` + text + `</del>`)
		default:
			b.WriteString(text)
		}
	}
	return markupPolicy.Sanitize(b.String())
}
