package project

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/humanize/internal/model"
)

// topWordsLimit は頻出語ランキングの件数。
const topWordsLimit = 10

// 集計から除外する語。3文字以上の語のみ対象にするため短い語は含めない。
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "are": true,
	"was": true, "this": true, "but": true, "you": true, "your": true,
}

// AI生成文に多い語彙
var aiWords = map[string]bool{
	"utilize": true, "thus": true, "therefore": true, "furthermore": true, "additionally": true,
	"consequently": true, "moreover": true, "hence": true, "whereas": true, "notwithstanding": true,
	"insofar": true, "herein": true, "aforementioned": true, "pursuant": true, "endeavor": true,
	"commence": true, "terminate": true, "facilitate": true, "demonstrate": true, "implement": true,
	"objective": true, "obtain": true, "provide": true, "significant": true, "impact": true,
	"solution": true, "approach": true, "methodology": true, "process": true, "system": true,
	"data": true, "information": true, "analysis": true, "result": true, "output": true,
	"input": true, "model": true, "algorithm": true, "function": true, "variable": true,
	"parameter": true,
}

// WordCount は語とその出現回数。
type WordCount struct {
	Word   string `json:"word"`
	Count  int    `json:"count"`
	AIWord bool   `json:"aiWord"`
}

// DayCount は日付（UTC、YYYY-MM-DD）ごとの保存件数。
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// BucketCount は入力文字数の区間ごとの件数。
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ProjectTips はプロジェクトごとの文章の改善ヒント。
type ProjectTips struct {
	ProjectID string   `json:"projectId"`
	Input     []string `json:"input"`
	Output    []string `json:"output"`
}

// Analytics はダッシュボードに表示する集計結果。
type Analytics struct {
	TotalProjects  int           `json:"totalProjects"`
	TopInputWords  []WordCount   `json:"topInputWords"`
	TopOutputWords []WordCount   `json:"topOutputWords"`
	AIWords        []WordCount   `json:"aiWords"`
	UsageByDay     []DayCount    `json:"usageByDay"`
	LengthBuckets  []BucketCount `json:"lengthBuckets"`
	Tips           []ProjectTips `json:"tips"`
}

// Summarize はプロジェクト一覧から集計結果を作る。
// 並び順は件数の降順、同数の場合は語の昇順で決定的にする。
func Summarize(projects []*model.Project) *Analytics {
	inputCounts := map[string]int{}
	outputCounts := map[string]int{}
	days := map[string]int{}
	buckets := []BucketCount{{Label: "<50"}, {Label: "50-100"}, {Label: "100-200"}, {Label: "200+"}}
	tips := make([]ProjectTips, 0, len(projects))

	for _, p := range projects {
		countWords(inputCounts, p.InputText)
		countWords(outputCounts, p.OutputText)
		days[p.CreatedAt.UTC().Format("2006-01-02")]++
		buckets[lengthBucket(utf8.RuneCountInString(p.InputText))].Count++
		tips = append(tips, ProjectTips{
			ProjectID: p.ID,
			Input:     WritingTips(p.InputText),
			Output:    WritingTips(p.OutputText),
		})
	}

	found := []WordCount{}
	for w, n := range inputCounts {
		if aiWords[w] {
			found = append(found, WordCount{Word: w, Count: n, AIWord: true})
		}
	}
	sortWordCounts(found)

	usage := make([]DayCount, 0, len(days))
	for d, n := range days {
		usage = append(usage, DayCount{Date: d, Count: n})
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Date < usage[j].Date })

	return &Analytics{
		TotalProjects:  len(projects),
		TopInputWords:  topWords(inputCounts, topWordsLimit),
		TopOutputWords: topWords(outputCounts, topWordsLimit),
		AIWords:        found,
		UsageByDay:     usage,
		LengthBuckets:  buckets,
		Tips:           tips,
	}
}

// Words はテキストを集計用の語に分割する。
// 小文字化して記号を除き、3文字以上かつストップワード以外の語を返す。
func Words(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, text)

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) > 2 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

// WritingTips は文章の長さや句読点などから改善ヒントを返す。該当が無い場合は "Looks good!" のみ。
func WritingTips(text string) []string {
	length := utf8.RuneCountInString(text)
	var tips []string
	if length < 30 {
		tips = append(tips, "Very short (may seem robotic)")
	}
	if length > 120 {
		tips = append(tips, "Good length for natural writing")
	}
	if !strings.ContainsAny(text, ".!?") {
		tips = append(tips, "No punctuation (add periods, etc.)")
	}
	if first, _ := utf8.DecodeRuneInString(text); first < 'A' || first > 'Z' {
		tips = append(tips, "No capitalization at start")
	}
	if strings.Contains(text, "\n\n") {
		tips = append(tips, "Has paragraphs (good for readability)")
	}
	if len(tips) == 0 {
		tips = append(tips, "Looks good!")
	}
	return tips
}

func countWords(counts map[string]int, text string) {
	for _, w := range Words(text) {
		counts[w]++
	}
}

func lengthBucket(chars int) int {
	switch {
	case chars < 50:
		return 0
	case chars < 100:
		return 1
	case chars < 200:
		return 2
	default:
		return 3
	}
}

func topWords(counts map[string]int, limit int) []WordCount {
	out := make([]WordCount, 0, len(counts))
	for w, n := range counts {
		out = append(out, WordCount{Word: w, Count: n, AIWord: aiWords[w]})
	}
	sortWordCounts(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortWordCounts(s []WordCount) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Word < s[j].Word
	})
}
