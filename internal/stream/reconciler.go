// Package stream applies a model response to a document as it arrives and
// normalises it once complete.
//
// A Reconciler owns at most one Session at a time. The session inserts each
// fragment at the live cursor, and Finalize rewrites the streamed span once
// with any open code fence closed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"notechat/internal/buffer"
	"notechat/internal/logger"
	"notechat/internal/stringprocessing"
	"notechat/pkg/chattypes"
)

// Sentinel errors.
var (
	ErrSessionActive     = errors.New("a stream session is already active")
	ErrCancelUnsupported = errors.New("cancellation is not supported")
)

// State is the reconciler's lifecycle state.
type State int32

// Reconciler states.
const (
	StateIdle State = iota
	StateStreaming
	StateFinalizing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Result describes the text a session or single-shot insert left in the document.
type Result struct {
	Text         string
	FinishReason string
	Cancelled    bool
	Start        chattypes.Position
	End          chattypes.Position
}

// Reconciler serialises stream sessions against documents.
type Reconciler struct {
	mu              sync.Mutex
	state           State
	cancelled       atomic.Bool
	cancelSupported bool
	echo            io.Writer
	logger          *log.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEcho mirrors every applied fragment to w.
func WithEcho(w io.Writer) Option {
	return func(r *Reconciler) { r.echo = w }
}

// WithCancelSupported controls whether Cancel is honoured.
func WithCancelSupported(supported bool) Option {
	return func(r *Reconciler) { r.cancelSupported = supported }
}

// NewReconciler creates an idle reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		cancelSupported: true,
		logger:          logger.NewStyledLogger("Reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cancelled reports whether the cancellation flag is set.
func (r *Reconciler) Cancelled() bool {
	return r.cancelled.Load()
}

// Cancel asks the active session to stop applying fragments. Fragments
// already applied stay in the document. Without an active session it does nothing.
func (r *Reconciler) Cancel() error {
	if !r.cancelSupported {
		return ErrCancelUnsupported
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStreaming {
		r.logger.Debug("Cancel ignored", "state", r.state)
		return nil
	}
	r.cancelled.Store(true)
	r.logger.Debug("Cancellation requested", "state", r.state)
	return nil
}

// Begin opens a session anchored at the document's cursor.
func (r *Reconciler) Begin(doc chattypes.Document) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return nil, fmt.Errorf("failed to begin stream: %w", ErrSessionActive)
	}

	r.state = StateStreaming
	anchor := doc.Cursor()
	r.logger.Debug("Session started", "state", r.state, "anchor", anchor)
	return &Session{reconciler: r, doc: doc, anchor: anchor}, nil
}

func (r *Reconciler) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// Session is one streamed response being written into a document.
type Session struct {
	reconciler   *Reconciler
	doc          chattypes.Document
	anchor       chattypes.Position
	text         strings.Builder
	fragments    int
	finishReason string
	done         bool
}

// Anchor returns the position the response starts at.
func (s *Session) Anchor() chattypes.Position {
	return s.anchor
}

// Text returns the text accumulated so far.
func (s *Session) Text() string {
	return s.text.String()
}

// Append inserts fragment at the cursor and advances it. It returns false,
// without touching the document, once cancellation has been requested.
func (s *Session) Append(fragment string) bool {
	if s.done || s.reconciler.cancelled.Load() {
		return false
	}
	if fragment == "" {
		return true
	}

	buffer.InsertAtCursor(s.doc, fragment)
	s.text.WriteString(fragment)
	s.fragments++
	if s.reconciler.echo != nil {
		_, _ = io.WriteString(s.reconciler.echo, fragment)
	}
	return true
}

// SetFinishReason records the provider's terminal finish reason.
func (s *Session) SetFinishReason(reason string) {
	s.finishReason = reason
}

// Finalize rewrites the streamed span with code fences closed, drops anything
// after it, and returns the reconciler to idle. Calling it twice is a no-op.
func (s *Session) Finalize() Result {
	r := s.reconciler
	if s.done {
		return Result{Text: s.text.String(), FinishReason: s.finishReason, Start: s.anchor, End: s.doc.Cursor()}
	}
	s.done = true
	r.setState(StateFinalizing)

	corrected := CloseCodeFences(s.text.String())
	s.doc.ReplaceRange(corrected, s.anchor, s.doc.Cursor())
	end := buffer.Advance(s.doc, s.anchor, len([]rune(corrected)))
	s.doc.SetCursor(end)
	s.doc.ReplaceRange("", end, s.doc.EndPosition())

	result := Result{
		Text:         corrected,
		FinishReason: s.finishReason,
		Cancelled:    r.cancelled.Load(),
		Start:        s.anchor,
		End:          end,
	}

	r.setState(StateIdle)
	r.cancelled.Store(false)
	r.logger.Debug("Session finalized", "state", StateIdle, "fragments", s.fragments, "cancelled", result.Cancelled, "finish_reason", result.FinishReason)
	return result
}

// Apply streams chunks into doc at its cursor until the channel closes, a
// chunk reports Done or an error, or the session is cancelled. Cancelling ctx
// counts as cancellation. The session is always finalized. A chunk error is
// returned after finalization; cancellation is not an error.
func (r *Reconciler) Apply(ctx context.Context, doc chattypes.Document, chunks <-chan chattypes.StreamChunk) (Result, error) {
	session, err := r.Begin(doc)
	if err != nil {
		return Result{}, err
	}

	var streamErr error
	stopped := false
	for !stopped {
		select {
		case <-ctx.Done():
			r.cancelled.Store(true)
			stopped = true
		case chunk, ok := <-chunks:
			if !ok {
				stopped = true
				break
			}
			if ctx.Err() != nil {
				r.cancelled.Store(true)
				stopped = true
				break
			}
			if chunk.Error != nil {
				streamErr = chunk.Error
				stopped = true
				break
			}
			if !session.Append(chunk.Content) {
				stopped = true
				break
			}
			if chunk.FinishReason != "" {
				session.SetFinishReason(chunk.FinishReason)
			}
			if chunk.Done {
				stopped = true
			}
		}
	}

	result := session.Finalize()
	if streamErr != nil {
		return result, fmt.Errorf("stream interrupted: %w", streamErr)
	}
	return result, nil
}

// CloseCodeFences appends a closing fence when text leaves one open.
func CloseCodeFences(text string) string {
	if stringprocessing.HasUnclosedCodeFence(text) {
		return text + "\n" + stringprocessing.CodeFence
	}
	return text
}

// InsertComplete writes a single-shot response at the cursor with the same
// code fence correction as a stream, and advances the cursor past it.
func InsertComplete(doc chattypes.Document, text string) Result {
	corrected := CloseCodeFences(text)
	start := doc.Cursor()
	end := buffer.InsertAtCursor(doc, corrected)
	return Result{Text: corrected, Start: start, End: end}
}
