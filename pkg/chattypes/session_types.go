// Package chattypes defines the conversation data model shared by notechat's packages.
// This file contains the message, role and content block types that make up a transcript.
package chattypes

import "fmt"

// Role identifies the speaker of a message.
type Role string

// The three roles a transcript segment may carry.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole converts a role header value into a Role.
// The match is case-sensitive; anything outside the enumerated set is an error.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(value), nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// BlockType is the kind of a typed content block.
type BlockType string

// Content block kinds produced by embedded-file expansion.
const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockDocument BlockType = "document"
)

// BlockSource carries the binary payload of an image or document block.
type BlockSource struct {
	Type      string `json:"type"`       // always "base64"
	MediaType string `json:"media_type"` // e.g. image/png, application/pdf
	Data      string `json:"data"`       // base64 encoded payload
}

// ContentBlock is one typed unit of message content.
type ContentBlock struct {
	Type   BlockType    `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *BlockSource `json:"source,omitempty"`
	Name   string       `json:"name,omitempty"` // originating file name, if any
}

// Message is a single role-tagged entry of a transcript.
// When Blocks is nil the content is the plain Text; otherwise Blocks holds the
// full ordered content and Blocks[0] is the original text.
type Message struct {
	Role   Role           `json:"role"`
	Text   string         `json:"content"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

// NewTextMessage builds a plain-text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// HasBlocks reports whether the message carries typed content blocks.
func (m Message) HasBlocks() bool {
	return len(m.Blocks) > 0
}

// ContentBlocks returns the message content as blocks, wrapping plain text in a single text block.
func (m Message) ContentBlocks() []ContentBlock {
	if m.HasBlocks() {
		return m.Blocks
	}
	return []ContentBlock{{Type: BlockText, Text: m.Text}}
}

// TextOnly returns a copy of the messages with every non-text block dropped.
// Used when a transcript is summarised for a prompt rather than sent as-is.
func TextOnly(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, Message{Role: msg.Role, Text: msg.Text})
	}
	return out
}
