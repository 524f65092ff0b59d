package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain", input: "Ravi Patel", want: "Ravi Patel"},
		{name: "tags", input: "<b>bold</b> text", want: "bold text"},
		{name: "script", input: "<script>alert(1)</script>hi", want: "hi"},
		{name: "attribute", input: `<a href="javascript:alert(1)">x</a>`, want: "x"},
		{name: "ampersand", input: "Sales & Ops", want: "Sales & Ops"},
		{name: "apostrophe", input: "O'Brien", want: "O'Brien"},
		{name: "less than", input: "a < b", want: "a < b"},
		{name: "encoded tag", input: "&lt;script&gt;alert(1)&lt;/script&gt;ok", want: "ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeText(tc.input))
		})
	}
}

func TestSanitizeHTMLDropsImageAndHandlers(t *testing.T) {
	out := SanitizeHTML(`<img src=x onerror=alert(1)>`)
	assert.NotContains(t, out, "onerror")
	assert.NotContains(t, out, "<img")
}

func TestSanitizeHTMLKeepsInlineFormatting(t *testing.T) {
	out := SanitizeHTML(`<p class="x" onclick="steal()"><strong>Hi</strong> <em>there</em><br></p><div>gone</div>`)
	assert.Contains(t, out, "<p><strong>Hi</strong> <em>there</em>")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "class=")
	assert.NotContains(t, out, "<div")
	assert.Contains(t, out, "gone")
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "", SanitizeURL("javascript:alert(1)"))
	assert.Equal(t, "", SanitizeURL("data:text/html;base64,PHNjcmlwdD4="))
	assert.Equal(t, "", SanitizeURL("ftp://example.com"))
	assert.Equal(t, "", SanitizeURL(""))
	assert.Equal(t, "https://example.com", SanitizeURL("https://example.com"))
	assert.Equal(t, "http://example.com/a", SanitizeURL("http://example.com/a"))
	assert.Equal(t, "https://example.com/search?a=1&b=2", SanitizeURL("https://example.com/search?a=1&b=2"))
	assert.Equal(t, "https://example.com/it's", SanitizeURL("https://example.com/it's"))
	assert.Equal(t, "", SanitizeURL(`<a href="https://example.com">javascript:alert(1)</a>`))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFileName("../../passwd"[6:]))
	assert.Equal(t, "....etcpasswd", SanitizeFileName("../../etc/passwd"))
	assert.Equal(t, "report_2024-v1.pdf", SanitizeFileName("report_2024-v1.pdf"))
	assert.Equal(t, "caf.txt", SanitizeFileName("café.txt"))
	assert.Len(t, SanitizeFileName(strings.Repeat("a", 400)), MaxFileNameLength)
}

func TestSanitizeFileNameIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"normal.txt",
		"<script>.js",
		"名前 with spaces.doc",
		strings.Repeat("x/", 300),
		"\x00\xff.bin",
	}
	for _, in := range inputs {
		once := SanitizeFileName(in)
		assert.Equal(t, once, SanitizeFileName(once), "input %q", in)
	}
}
