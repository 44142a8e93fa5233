package diff

// ReasonReworded は位置比較で変更と判定したトークンに付ける理由。
const ReasonReworded = "Reworded for natural tone"

// Mark は出力トークン1つ分の注釈。
type Mark struct {
	Index    int    `json:"index"`
	Token    string `json:"token"`
	Original string `json:"original"`
	Changed  bool   `json:"changed"`
	Reason   string `json:"reason,omitempty"`
}

// Positional は入力と出力を同じ位置のトークン同士で比較し、出力トークンごとの注釈を返す。
// 出力のi番目は入力のi番目と異なる場合（入力側に対応トークンが無い場合を含む）に変更とみなす。
// 挿入や削除があるとそれ以降の位置は全てずれるため、表示用の目安にしかならない。
func Positional(input, output string) []Mark {
	in := Tokenize(input)
	out := Tokenize(output)

	marks := make([]Mark, len(out))
	for i, tok := range out {
		m := Mark{Index: i, Token: tok}
		if i < len(in) {
			m.Original = in[i]
			m.Changed = in[i] != tok
		} else {
			m.Changed = true
		}
		if m.Changed {
			m.Reason = ReasonReworded
		}
		marks[i] = m
	}
	return marks
}

// ChangedIndices は変更とみなされたトークン位置を昇順で返す。
func ChangedIndices(marks []Mark) []int {
	idx := []int{}
	for _, m := range marks {
		if m.Changed {
			idx = append(idx, m.Index)
		}
	}
	return idx
}
