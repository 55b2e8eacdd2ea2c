package transcript

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"notechat/internal/logger"
	"notechat/internal/settings"
	"notechat/internal/stringprocessing"
	"notechat/pkg/chattypes"
)

// Codec decodes documents and writes the turn markers into them.
// A Codec carries an immutable settings snapshot taken when it was built.
type Codec struct {
	settings settings.Settings
	vault    chattypes.Vault
	docName  string
}

// Option configures a Codec.
type Option func(*Codec)

// WithVault enables embedded-file expansion through vault.
func WithVault(vault chattypes.Vault) Option {
	return func(c *Codec) { c.vault = vault }
}

// WithDocumentName sets the name used as the title when the document has none.
func WithDocumentName(name string) Option {
	return func(c *Codec) { c.docName = name }
}

// NewCodec creates a codec over a settings snapshot.
func NewCodec(s settings.Settings, opts ...Option) *Codec {
	c := &Codec{settings: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode parses a document into its resolved configuration and transcript.
func (c *Codec) Decode(ctx context.Context, text string) (*chattypes.ChatConfig, []chattypes.Message, error) {
	frontmatter, body, found := SplitFrontmatter(text)

	docConfig := &settings.DocumentConfig{}
	if found {
		parsed, err := settings.ParseDocumentConfig(frontmatter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docConfig = parsed
	}

	messages, err := ParseMessages(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode document: %w", err)
	}

	if c.vault != nil {
		for i := range messages {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			messages[i] = c.expandReferences(messages[i])
		}
	}

	cfg := settings.Resolve(docConfig, c.settings, c.docName)
	logger.Debug("Document decoded", "messages", len(messages), "llm", cfg.LLM, "model", cfg.Model, "stream", cfg.Stream)
	return cfg, messages, nil
}

// SplitFrontmatter separates the configuration block at the top of text.
// It returns the block's body (without fences), the remaining text, and
// whether a block was found.
func SplitFrontmatter(text string) (frontmatter string, body string, found bool) {
	loc := frontmatterPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}
	if loc[2] < 0 {
		return "", text[loc[1]:], true
	}
	return text[loc[2]:loc[3]], text[loc[1]:], true
}

// FrontmatterBlock returns the full configuration block including its fences.
func FrontmatterBlock(text string) (string, bool) {
	loc := frontmatterPattern.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimRight(text[:loc[1]], "\r\n"), true
}

// SplitSegments splits a body on the divider. One segment per message.
func SplitSegments(body string) []string {
	return strings.Split(body, Divider)
}

// StripComments removes every comment region, delimiters included.
func StripComments(segment string) string {
	return commentPattern.ReplaceAllString(segment, "")
}

// ParseSegment determines a segment's role and content.
// A segment with a role header takes the header's role and the trimmed text
// after it; a segment without one is a user message, verbatim.
func ParseSegment(segment string) (chattypes.Message, error) {
	loc := roleHeaderPattern.FindStringSubmatchIndex(segment)
	if loc == nil {
		return chattypes.NewTextMessage(chattypes.RoleUser, segment), nil
	}

	value := segment[loc[2]:loc[3]]
	role, err := chattypes.ParseRole(value)
	if err != nil {
		return chattypes.Message{}, fmt.Errorf("%w %q in header %q", ErrUnknownRole, value, strings.TrimSpace(segment[loc[0]:loc[1]]))
	}

	content := strings.TrimSpace(segment[loc[1]:])
	return chattypes.NewTextMessage(role, content), nil
}

// ParseMessages splits a body into segments, strips comments from each
// and parses its role. Splitting happens before comment stripping, so a
// divider inside a comment still separates two messages.
func ParseMessages(body string) ([]chattypes.Message, error) {
	segments := SplitSegments(body)
	messages := make([]chattypes.Message, 0, len(segments))
	for i, segment := range segments {
		msg, err := ParseSegment(StripComments(segment))
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Recognised embedded file extensions.
var (
	imageMediaTypes = map[string]string{
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"gif":  "image/gif",
		"webp": "image/webp",
	}
	documentMediaTypes = map[string]string{
		"pdf": "application/pdf",
	}
	textExtensions = map[string]bool{
		"md": true, "txt": true, "csv": true, "json": true, "yaml": true, "yml": true,
		"xml": true, "html": true, "css": true, "js": true, "ts": true, "go": true,
		"py": true, "sh": true, "sql": true, "toml": true,
	}
)

// IsImageExtension reports whether ext (without dot) is an embeddable image.
func IsImageExtension(ext string) bool {
	_, ok := imageMediaTypes[strings.ToLower(ext)]
	return ok
}

// IsTextExtension reports whether ext (without dot) is embedded as text.
func IsTextExtension(ext string) bool {
	return textExtensions[strings.ToLower(ext)]
}

// expandReferences attaches the files a message links to as typed blocks.
// Failures are per reference: they are logged and the reference is skipped.
// Only user turns carry images and documents; elsewhere a binary reference
// becomes a text block naming the file.
func (c *Codec) expandReferences(msg chattypes.Message) chattypes.Message {
	links := stringprocessing.FindWikiLinks(msg.Text)
	if len(links) == 0 {
		return msg
	}

	blocks := []chattypes.ContentBlock{{Type: chattypes.BlockText, Text: msg.Text}}
	for _, link := range links {
		file, ok := c.vault.ResolveLink(link.Target)
		if !ok {
			logger.Warn("Skipping unresolved file reference", "link", link.Target)
			continue
		}
		if msg.Role != chattypes.RoleUser && isBinaryExtension(file.Extension) {
			name := path.Base(file.Path)
			logger.Debug("Binary reference kept as text outside a user turn", "link", link.Target, "role", msg.Role)
			blocks = append(blocks, chattypes.ContentBlock{Type: chattypes.BlockText, Text: "[" + name + "]", Name: name})
			continue
		}
		block, err := c.loadBlock(file)
		if err != nil {
			logger.Warn("Skipping file reference", "link", link.Target, "error", err)
			continue
		}
		blocks = append(blocks, block)
	}

	if len(blocks) == 1 {
		return msg
	}
	msg.Blocks = blocks
	return msg
}

func isBinaryExtension(ext string) bool {
	ext = strings.ToLower(ext)
	_, image := imageMediaTypes[ext]
	_, document := documentMediaTypes[ext]
	return image || document
}

func (c *Codec) loadBlock(file chattypes.VaultFile) (chattypes.ContentBlock, error) {
	ext := strings.ToLower(file.Extension)
	name := path.Base(file.Path)

	if mediaType, ok := imageMediaTypes[ext]; ok {
		return c.binaryBlock(chattypes.BlockImage, mediaType, file, name)
	}
	if mediaType, ok := documentMediaTypes[ext]; ok {
		return c.binaryBlock(chattypes.BlockDocument, mediaType, file, name)
	}
	if textExtensions[ext] {
		text, err := c.vault.ReadText(file)
		if err != nil {
			return chattypes.ContentBlock{}, fmt.Errorf("failed to read %s: %w", file.Path, err)
		}
		return chattypes.ContentBlock{Type: chattypes.BlockText, Text: text, Name: name}, nil
	}
	return chattypes.ContentBlock{}, fmt.Errorf("unsupported file extension %q", ext)
}

func (c *Codec) binaryBlock(kind chattypes.BlockType, mediaType string, file chattypes.VaultFile, name string) (chattypes.ContentBlock, error) {
	data, err := c.vault.ReadBinary(file)
	if err != nil {
		return chattypes.ContentBlock{}, fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	return chattypes.ContentBlock{
		Type: kind,
		Name: name,
		Source: &chattypes.BlockSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}
