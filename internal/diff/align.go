package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// OpType は差分操作の種別。
type OpType string

const (
	OpEqual  OpType = "equal"
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
)

// Op は連続するトークン列に対する差分操作。
type Op struct {
	Type   OpType `json:"type"`
	Text   string `json:"text"`
	tokens int
}

// 理由文言
const (
	ReasonAdded   = "Added for natural flow"
	ReasonRemoved = "Removed for concision"
)

// Highlight は出力テキスト上の変更箇所。
// TokenStart/TokenEndはWords(output)の添字で、TokenEndは含まない。
// 削除のみの箇所はTokenStart == TokenEndとなる。
type Highlight struct {
	TokenStart int    `json:"tokenStart"`
	TokenEnd   int    `json:"tokenEnd"`
	Text       string `json:"text"`
	Original   string `json:"original"`
	Reason     string `json:"reason"`
}

// Align はトークン単位の最長共通部分列で入力と出力を整列し、差分操作列を返す。
// トークンを1文字に割り当ててからdiff-match-patchで比較する。
func Align(input, output string) []Op {
	table := newTokenTable()
	a := table.encode(Words(input))
	b := table.encode(Words(output))

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // 打ち切りを無効にして常に同じ結果を返す

	diffs := dmp.DiffMainRunes(a, b, false)

	ops := make([]Op, 0, len(diffs))
	for _, d := range diffs {
		toks := table.decode(d.Text)
		if len(toks) == 0 {
			continue
		}
		var t OpType
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			t = OpInsert
		case diffmatchpatch.DiffDelete:
			t = OpDelete
		default:
			t = OpEqual
		}
		ops = append(ops, Op{Type: t, Text: strings.Join(toks, ""), tokens: len(toks)})
	}
	return ops
}

// Highlights は差分操作列から出力側の変更箇所を抽出する。
// 削除の直後の挿入は置換として1つの箇所にまとめる。
func Highlights(ops []Op) []Highlight {
	hs := []Highlight{}
	pos := 0
	for i := 0; i < len(ops); i++ {
		op := ops[i]
		switch op.Type {
		case OpEqual:
			pos += op.tokens
		case OpDelete:
			if i+1 < len(ops) && ops[i+1].Type == OpInsert {
				ins := ops[i+1]
				hs = append(hs, Highlight{
					TokenStart: pos,
					TokenEnd:   pos + ins.tokens,
					Text:       ins.Text,
					Original:   op.Text,
					Reason:     ReasonReworded,
				})
				pos += ins.tokens
				i++
				continue
			}
			hs = append(hs, Highlight{TokenStart: pos, TokenEnd: pos, Original: op.Text, Reason: ReasonRemoved})
		case OpInsert:
			hs = append(hs, Highlight{TokenStart: pos, TokenEnd: pos + op.tokens, Text: op.Text, Reason: ReasonAdded})
			pos += op.tokens
		}
	}
	return hs
}

// Words はTokenizeの結果から空文字列を除いたトークン列を返す。
// Alignが比較に使う列と一致する。
func Words(s string) []string {
	toks := Tokenize(s)
	out := toks[:0]
	for _, t := range toks {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// tokenTable はトークンと1文字（rune）の対応表。
type tokenTable struct {
	index  map[string]rune
	tokens map[rune]string
	next   rune
}

func newTokenTable() *tokenTable {
	return &tokenTable{
		index:  make(map[string]rune),
		tokens: make(map[rune]string),
		next:   1,
	}
}

func (t *tokenTable) encode(tokens []string) []rune {
	out := make([]rune, 0, len(tokens))
	for _, tok := range tokens {
		r, ok := t.index[tok]
		if !ok {
			r = t.next
			t.index[tok] = r
			t.tokens[r] = tok
			t.next++
			// サロゲート領域はstring変換で壊れるため使わない
			if t.next == 0xD800 {
				t.next = 0xE000
			}
		}
		out = append(out, r)
	}
	return out
}

func (t *tokenTable) decode(s string) []string {
	var toks []string
	for _, r := range s {
		toks = append(toks, t.tokens[r])
	}
	return toks
}
