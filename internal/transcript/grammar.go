// Package transcript maps a chat document's text to an ordered list of
// role-tagged messages and back.
//
// A document is an optional YAML frontmatter block followed by segments
// separated by the divider line. Each segment may start with a role header
// (`role::assistant`, optionally as a Markdown heading); segments without a
// header are user messages. Comment regions are removed before a segment is
// interpreted.
package transcript

import (
	"errors"
	"regexp"
)

// Grammar tokens.
const (
	Divider          = `<hr class="__notechat_divider">`
	RoleHeaderToken  = "role::"
	CommentBegin     = "=begin-comment"
	CommentEnd       = "=end-comment"
	FrontmatterFence = "---"
)

// Sentinel errors.
var (
	ErrUnknownRole     = errors.New("unknown role")
	ErrNoConfiguration = errors.New("no configuration block found")
)

var (
	// roleHeaderPattern matches a header line: optional heading hashes, then role::<value>.
	roleHeaderPattern = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]+)?role::(.*?)[ \t\r]*$`)

	commentPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(CommentBegin) + `.*?` + regexp.QuoteMeta(CommentEnd))

	// frontmatterPattern matches a --- fenced block at the very top of the document.
	frontmatterPattern = regexp.MustCompile(`\A\s*---[ \t]*\r?\n(?:((?s:.*?))\r?\n)?---[ \t]*(?:\r?\n|\z)`)
)
