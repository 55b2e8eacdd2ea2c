// Package stringprocessing provides text scanning utilities for notechat.
// It finds wiki-style links outside code spans, counts code fences and
// cleans model-produced titles.
package stringprocessing

import (
	"regexp"
	"strings"
)

// WikiLink is a [[target]] or [[target|label]] reference found in text.
type WikiLink struct {
	Raw    string // the full matched text including brackets
	Target string // the link path
	Label  string // optional display label
	Offset int    // byte offset of the match in the scanned text
}

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]|]*?)(?:\|([^\[\]]*?))?\]\]`)

// CodeSpans returns the byte ranges covered by backtick-delimited code.
// A run of N backticks opens a span closed by the next run of exactly N
// backticks, which also covers fenced blocks. An unclosed run is literal text.
func CodeSpans(text string) [][2]int {
	var spans [][2]int
	i := 0
	for i < len(text) {
		if text[i] != '`' {
			i++
			continue
		}
		start := i
		for i < len(text) && text[i] == '`' {
			i++
		}
		runLen := i - start

		closeAt := -1
		j := i
		for j < len(text) {
			if text[j] != '`' {
				j++
				continue
			}
			k := j
			for k < len(text) && text[k] == '`' {
				k++
			}
			if k-j == runLen {
				closeAt = k
				break
			}
			j = k
		}
		if closeAt < 0 {
			continue
		}
		spans = append(spans, [2]int{start, closeAt})
		i = closeAt
	}
	return spans
}

// FindWikiLinks returns the wiki links in text in order of appearance,
// skipping any that fall inside a code span.
func FindWikiLinks(text string) []WikiLink {
	spans := CodeSpans(text)
	inCode := func(start, end int) bool {
		for _, span := range spans {
			if start < span[1] && end > span[0] {
				return true
			}
		}
		return false
	}

	var links []WikiLink
	for _, m := range wikiLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		if inCode(m[0], m[1]) {
			continue
		}
		link := WikiLink{
			Raw:    text[m[0]:m[1]],
			Target: strings.TrimSpace(text[m[2]:m[3]]),
			Offset: m[0],
		}
		if m[4] >= 0 {
			link.Label = text[m[4]:m[5]]
		}
		if link.Target == "" {
			continue
		}
		links = append(links, link)
	}
	return links
}

// CodeFence is the marker whose parity decides whether a code block is open.
const CodeFence = "```"

// HasUnclosedCodeFence reports whether text contains an odd number of code fences.
func HasUnclosedCodeFence(text string) bool {
	return strings.Count(text, CodeFence)%2 != 0
}

var (
	forbiddenTitleChars = regexp.MustCompile(`[:/\\]`)
	titleWord           = regexp.MustCompile(`Title|title`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// SanitizeTitle makes a model-produced title safe to use as a file name.
// Colons and slashes become spaces, the literal word "Title"/"title" is
// removed and whitespace is collapsed.
//
// Example:
//
//	SanitizeTitle(`Title: My/Trip\Notes`) -> "My Trip Notes"
func SanitizeTitle(title string) string {
	title = forbiddenTitleChars.ReplaceAllString(title, " ")
	title = titleWord.ReplaceAllString(title, "")
	title = whitespaceRun.ReplaceAllString(title, " ")
	return strings.Trim(title, " \"'`.")
}
