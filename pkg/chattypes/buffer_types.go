// Package chattypes defines the collaborator interfaces the core consumes from its host.
package chattypes

// Position is a cursor location in a document, zero-based.
// Ch values past the end of a line continue onto the following lines.
type Position struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// Document is the mutable text buffer owned by the host editor.
type Document interface {
	// Text returns the full buffer content.
	Text() string
	// SetText replaces the full buffer content and moves the cursor to the start.
	SetText(text string)
	// ReplaceRange replaces the text between from and to (to may equal from for an insert).
	ReplaceRange(text string, from, to Position)
	// Cursor returns the current cursor.
	Cursor() Position
	// SetCursor moves the cursor, clamping it to the document.
	SetCursor(pos Position)
	// LastLine returns the index of the last line.
	LastLine() int
	// EndPosition returns the position just after the last character.
	EndPosition() Position
	// OffsetAt converts a position to a character offset.
	OffsetAt(pos Position) int
	// PositionAt converts a character offset to a normalised position.
	PositionAt(offset int) Position
}

// Notifier displays a transient, user-facing notice.
type Notifier interface {
	Notice(message string)
}

// VaultFile is a file resolved from a wiki-style link.
type VaultFile struct {
	Path      string // path relative to the vault root
	Basename  string // file name without extension
	Extension string // lower-case extension without the dot
}

// Vault gives the core access to the files a document links to.
type Vault interface {
	// ResolveLink resolves a wiki-style link to a file; ok is false when nothing matches.
	ResolveLink(link string) (VaultFile, bool)
	// ReadBinary reads a file's raw bytes.
	ReadBinary(file VaultFile) ([]byte, error)
	// ReadText reads a file as text.
	ReadText(file VaultFile) (string, error)
}
