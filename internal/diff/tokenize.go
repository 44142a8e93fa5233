// Package diff は入力テキストとリライト結果の差分注釈を提供する。
package diff

import "unicode"

// Tokenize はテキストを単語と空白の連続に分割する。
// 空白の連続も1トークンとして保持するため、全トークンを連結すると元のテキストに戻る。
// 先頭が空白の場合は空文字列の単語トークンから始まり、末尾が空白の場合は空文字列で終わる。
// 単語トークンと空白トークンは常に交互に並ぶ。
func Tokenize(s string) []string {
	tokens := []string{}
	start := 0
	inSpace := false
	for i, r := range s {
		if sp := unicode.IsSpace(r); sp != inSpace {
			tokens = append(tokens, s[start:i])
			start = i
			inSpace = sp
		}
	}
	tokens = append(tokens, s[start:])
	if inSpace {
		tokens = append(tokens, "")
	}
	return tokens
}
