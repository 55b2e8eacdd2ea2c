package transcript

import (
	"fmt"
	"strings"

	"notechat/internal/buffer"
	"notechat/pkg/chattypes"
)

// RoleHeader returns the header line for role using the heading prefix from settings.
func (c *Codec) RoleHeader(role chattypes.Role) string {
	return c.settings.HeadingPrefix() + RoleHeaderToken + string(role)
}

// AddDivider inserts a divider and a user header at the cursor and returns the new cursor.
func (c *Codec) AddDivider(doc chattypes.Document) chattypes.Position {
	return buffer.InsertAtCursor(doc, "\n\n"+Divider+"\n\n"+c.RoleHeader(chattypes.RoleUser)+"\n\n")
}

// CompleteUserTurn closes the user's turn: it moves the cursor to the end of
// the document and writes a divider and an assistant header. The returned
// cursor is where the assistant's response goes.
func (c *Codec) CompleteUserTurn(doc chattypes.Document) chattypes.Position {
	buffer.MoveCursorToEnd(doc)
	return buffer.InsertAtCursor(doc, "\n"+Divider+"\n\n"+c.RoleHeader(chattypes.RoleAssistant)+"\n\n")
}

// CompleteAssistantTurn closes the assistant's turn at the cursor with a
// divider and a user header, leaving the cursor ready for the next user message.
func (c *Codec) CompleteAssistantTurn(doc chattypes.Document) chattypes.Position {
	return buffer.InsertAtCursor(doc, "\n"+Divider+"\n\n"+c.RoleHeader(chattypes.RoleUser)+"\n\n")
}

// AddCommentBlock inserts an empty comment region at the cursor and places
// the cursor on the blank line inside it.
func AddCommentBlock(doc chattypes.Document) chattypes.Position {
	cursor := doc.Cursor()
	doc.ReplaceRange(CommentBegin+"\n\n"+CommentEnd, cursor, cursor)
	inside := buffer.Advance(doc, cursor, len([]rune(CommentBegin))+1)
	doc.SetCursor(inside)
	return inside
}

// ClearExceptConfiguration removes everything but the configuration block and
// moves the cursor to the end. Without a configuration block the buffer is
// left untouched and ErrNoConfiguration is returned.
func ClearExceptConfiguration(doc chattypes.Document) (chattypes.Position, error) {
	block, ok := FrontmatterBlock(doc.Text())
	if !ok {
		return doc.Cursor(), fmt.Errorf("failed to clear conversation: %w", ErrNoConfiguration)
	}
	doc.SetText(block + "\n\n")
	return buffer.MoveCursorToEnd(doc), nil
}

// Encode serialises a transcript. frontmatter is written verbatim (with its
// fences) when non-empty. Every message gets a role header, so decoding the
// result yields the same roles. Decoding trims the text after a header, so
// the text round-trips only when it has no leading or trailing whitespace.
func (c *Codec) Encode(frontmatter string, messages []chattypes.Message) string {
	var sb strings.Builder
	if frontmatter != "" {
		sb.WriteString(strings.TrimRight(frontmatter, "\n"))
		sb.WriteString("\n\n")
	}
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n" + Divider + "\n\n")
		}
		sb.WriteString(c.RoleHeader(msg.Role))
		sb.WriteString("\n\n")
		sb.WriteString(msg.Text)
	}
	return sb.String()
}
