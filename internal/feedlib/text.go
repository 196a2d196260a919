package feedlib

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reBlankLine  = regexp.MustCompile(`(\n\s*){2,}`)

	reImg  = regexp.MustCompile(`(?i)(?:<img\s*[^<>]*?\s+src="([^"]+?)")|(?:<source\s*[^<>]*?\s+srcset="([^"]+?)")`)
	reLink = regexp.MustCompile(`(?i)<a\s*.*?\s+href="([^"]+?)"`)
	reURL  = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s"'<>]+`)

	reMathjax = regexp.MustCompile(`(?i)(MathJax)|(AsciiMath)|(MathML)|` +
		`(\$\$[^$]+?\$\$)|` +
		`(\\\([^()]+?\\\))|` +
		`(\\\[[^\[\]]+?\\\])|` +
		`(\$[^$]+?\$)|` +
		"(`[^`]+?`)")
)

// Shorten collapses whitespace runs into single spaces, trims, and cuts the
// result to at most width visible characters, appending "..." when content
// was dropped.
func Shorten(s string, width int) string {
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:width])
	}
	return strings.TrimSpace(string(runes[:width-3])) + "..."
}

// HTMLToText strips markup and returns the readable text of an HTML
// fragment. Script, style, code, pre, img, video and noscript subtrees are
// dropped entirely; runs of blank lines collapse to one newline.
func HTMLToText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	doc.Find("script,style,code,pre,img,video,noscript").Remove()
	text := strings.TrimSpace(doc.Text())
	return reBlankLine.ReplaceAllString(text, "\n")
}

// CountLinks counts anchor tags with an href attribute.
func CountLinks(content string) int {
	if content == "" {
		return 0
	}
	return len(reLink.FindAllString(content, -1))
}

// CountURLs counts bare URLs in the content, quoted or not.
func CountURLs(content string) int {
	if content == "" {
		return 0
	}
	return len(reURL.FindAllString(content, -1))
}

// CountImages counts img src and source srcset occurrences.
func CountImages(content string) int {
	if content == "" {
		return 0
	}
	return len(reImg.FindAllString(content, -1))
}

// HasMathjax reports whether the content looks like it carries TeX/MathML
// markup, either by keyword or by delimiter pairs such as $$...$$.
func HasMathjax(content string) bool {
	if content == "" {
		return false
	}
	return reMathjax.MatchString(content)
}
