package security

import (
	"strings"
	"testing"
)

func TestSanitize_StripsAllTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "お問い合わせです", "お問い合わせです"},
		{"bold", "<b>urgent</b> please reply", "urgent please reply"},
		{"script removed with body", `hi<script>alert("x")</script>`, "hi"},
		{"event handler", `<img src=x onerror="alert(1)">text`, "text"},
		{"ampersand escaped", "Fish & chips", "Fish &amp; chips"},
		{"surrounding space", "  hello  ", "hello"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	input := `<a href="javascript:alert(1)">click</a> <iframe src="x"></iframe>message`

	first := sanitizer.Sanitize(input)
	if strings.Contains(first, "<") {
		t.Fatalf("tags remain: %q", first)
	}
	if second := sanitizer.Sanitize(input); first != second {
		t.Errorf("not deterministic: %q vs %q", first, second)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "The cat sat.",
			want:  "The cat sat.",
		},
		{
			name:  "paragraphs become blank-line separated",
			input: "<p>Hello <b>world</b></p><p>Second   paragraph</p>",
			want:  "Hello world\n\nSecond paragraph",
		},
		{
			name:  "line break",
			input: "line one<br>line two",
			want:  "line one\nline two",
		},
		{
			name:  "entities decoded",
			input: "<p>Fish &amp; chips &lt;3</p>",
			want:  "Fish & chips <3",
		},
		{
			name:  "script and style dropped",
			input: "<style>p{color:red}</style><p>Visible</p><script>var x = 1;</script>",
			want:  "Visible",
		},
		{
			name:  "list items",
			input: "<ul><li>one</li><li>two</li></ul>",
			want:  "one\n\ntwo",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.input); got != tt.want {
				t.Errorf("ExtractText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
