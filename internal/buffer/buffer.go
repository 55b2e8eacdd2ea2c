// Package buffer provides the in-memory document buffer notechat edits.
// Text is addressed by rune offsets; positions are (line, ch) pairs where a
// ch past the end of a line continues linearly onto the following lines.
package buffer

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"notechat/pkg/chattypes"
)

// Document is a rune-addressed text buffer with a single cursor.
// It implements chattypes.Document.
type Document struct {
	mu     sync.RWMutex
	text   []rune
	cursor int // rune offset
	path   string
}

// New creates a document holding text with the cursor at the start.
func New(text string) *Document {
	return &Document{text: []rune(text)}
}

// Load reads a file into a new document. The cursor is placed at the end,
// which is where a chat turn continues.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	doc := New(string(data))
	doc.path = path
	doc.cursor = len(doc.text)
	return doc, nil
}

// Path returns the file the document was loaded from, if any.
func (d *Document) Path() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// SetPath changes the file the document is saved to.
func (d *Document) SetPath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = path
}

// Save writes the document back to its file.
func (d *Document) Save() error {
	d.mu.RLock()
	path, text := d.path, string(d.text)
	d.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("document has no backing file")
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

// Text returns the full buffer content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return string(d.text)
}

// SetText replaces the full content and resets the cursor to the start.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = []rune(text)
	d.cursor = 0
}

// ReplaceRange replaces the runes between from and to with text.
// from and to may be given in either order. The cursor is not moved unless it
// sat inside the replaced range, in which case it is clamped to the range start.
func (d *Document) ReplaceRange(text string, from, to chattypes.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start, end := d.offsetAt(from), d.offsetAt(to)
	if start > end {
		start, end = end, start
	}

	insert := []rune(text)
	updated := make([]rune, 0, len(d.text)-(end-start)+len(insert))
	updated = append(updated, d.text[:start]...)
	updated = append(updated, insert...)
	updated = append(updated, d.text[end:]...)
	d.text = updated

	if d.cursor > start && d.cursor <= end {
		d.cursor = start
	} else if d.cursor > end {
		d.cursor += len(insert) - (end - start)
	}
	d.cursor = clamp(d.cursor, 0, len(d.text))
}

// Cursor returns the cursor as a normalised position.
func (d *Document) Cursor() chattypes.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionAt(d.cursor)
}

// SetCursor moves the cursor, clamping it to the document.
func (d *Document) SetCursor(pos chattypes.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursor = d.offsetAt(pos)
}

// LastLine returns the zero-based index of the last line.
func (d *Document) LastLine() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.Count(string(d.text), "\n")
}

// EndPosition returns the position just after the final character.
func (d *Document) EndPosition() chattypes.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionAt(len(d.text))
}

// OffsetAt converts a position to a rune offset.
func (d *Document) OffsetAt(pos chattypes.Position) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.offsetAt(pos)
}

// PositionAt converts a rune offset to a normalised position.
func (d *Document) PositionAt(offset int) chattypes.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.positionAt(offset)
}

func (d *Document) offsetAt(pos chattypes.Position) int {
	if pos.Line < 0 {
		return 0
	}
	line, offset := 0, 0
	for line < pos.Line {
		next := indexRune(d.text, offset, '\n')
		if next < 0 {
			// Lines past the end address the end of the document.
			return len(d.text)
		}
		offset = next + 1
		line++
	}
	return clamp(offset+pos.Ch, 0, len(d.text))
}

func (d *Document) positionAt(offset int) chattypes.Position {
	offset = clamp(offset, 0, len(d.text))
	pos := chattypes.Position{}
	lineStart := 0
	for i := 0; i < offset; i++ {
		if d.text[i] == '\n' {
			pos.Line++
			lineStart = i + 1
		}
	}
	pos.Ch = offset - lineStart
	return pos
}

func indexRune(text []rune, from int, r rune) int {
	for i := from; i < len(text); i++ {
		if text[i] == r {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Advance returns the position n runes after pos in doc.
func Advance(doc chattypes.Document, pos chattypes.Position, n int) chattypes.Position {
	return doc.PositionAt(doc.OffsetAt(pos) + n)
}

// MoveCursorToEnd places the cursor after the last character and returns it.
func MoveCursorToEnd(doc chattypes.Document) chattypes.Position {
	end := doc.EndPosition()
	doc.SetCursor(end)
	return end
}

// InsertAtCursor inserts text at the cursor, advances the cursor past it and
// returns the new cursor.
func InsertAtCursor(doc chattypes.Document, text string) chattypes.Position {
	cursor := doc.Cursor()
	doc.ReplaceRange(text, cursor, cursor)
	next := Advance(doc, cursor, len([]rune(text)))
	doc.SetCursor(next)
	return next
}
