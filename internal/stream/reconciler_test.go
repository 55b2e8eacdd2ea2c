package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"notechat/internal/buffer"
	"notechat/pkg/chattypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// produce emits one chunk per fragment and stops when ctx is cancelled.
func produce(ctx context.Context, fragments ...string) <-chan chattypes.StreamChunk {
	ch := make(chan chattypes.StreamChunk)
	go func() {
		defer close(ch)
		for _, fragment := range fragments {
			select {
			case ch <- chattypes.StreamChunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// cancelAfter is an echo writer that cancels the reconciler after n fragments.
type cancelAfter struct {
	n          int
	writes     int
	reconciler *Reconciler
}

func (c *cancelAfter) Write(p []byte) (int, error) {
	c.writes++
	if c.writes == c.n {
		_ = c.reconciler.Cancel()
	}
	return len(p), nil
}

func endDoc(text string) *buffer.Document {
	doc := buffer.New(text)
	doc.SetCursor(doc.EndPosition())
	return doc
}

func TestApply_AllFragments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var echo strings.Builder
	r := NewReconciler(WithEcho(&echo))
	doc := endDoc("Q\n")

	result, err := r.Apply(ctx, doc, produce(ctx, "Hel", "", "lo ", "world"))
	require.NoError(t, err)

	assert.Equal(t, "Q\nHello world", doc.Text())
	assert.Equal(t, "Hello world", result.Text)
	assert.Equal(t, "Hello world", echo.String())
	assert.Equal(t, doc.EndPosition(), doc.Cursor())
	assert.Equal(t, result.End, doc.Cursor())
	assert.Equal(t, chattypes.Position{Line: 1, Ch: 0}, result.Start)
	assert.False(t, result.Cancelled)
	assert.Equal(t, StateIdle, r.State())
}

func TestApply_CancelAfterSecondFragment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hook := &cancelAfter{n: 2}
	r := NewReconciler(WithEcho(hook))
	hook.reconciler = r
	doc := endDoc("")

	result, err := r.Apply(ctx, doc, produce(ctx, "one ", "two ", "three ", "four ", "five"))
	require.NoError(t, err)

	assert.Equal(t, "one two ", doc.Text())
	assert.Equal(t, "one two ", result.Text)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 2, hook.writes)
	assert.False(t, r.Cancelled(), "flag must be reset after finalize")
	assert.Equal(t, StateIdle, r.State())

	// the next turn streams normally
	result, err = r.Apply(ctx, doc, produce(ctx, "again"))
	require.NoError(t, err)
	assert.Equal(t, "again", result.Text)
	assert.Equal(t, "one two again", doc.Text())
}

func TestApply_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReconciler()
	doc := endDoc("x")
	chunks := make(chan chattypes.StreamChunk)

	result, err := r.Apply(ctx, doc, chunks)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, "x", doc.Text())
	assert.False(t, r.Cancelled())
}

func TestApply_ClosesOpenCodeFence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewReconciler()
	doc := endDoc("Q\n")

	result, err := r.Apply(ctx, doc, produce(ctx, "```go\n", "x := 1\n"))
	require.NoError(t, err)

	assert.Equal(t, "```go\nx := 1\n\n```", result.Text)
	assert.Equal(t, "Q\n```go\nx := 1\n\n```", doc.Text())
	assert.Equal(t, doc.EndPosition(), doc.Cursor())
}

func TestApply_DropsTrailingContent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewReconciler()
	doc := buffer.New("head\nstale")
	doc.SetCursor(chattypes.Position{Line: 1, Ch: 0})

	_, err := r.Apply(ctx, doc, produce(ctx, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "head\nfresh", doc.Text())
}

func TestApply_ChunkErrorFinalizesAndReturns(t *testing.T) {
	boom := errors.New("connection reset")
	chunks := make(chan chattypes.StreamChunk, 3)
	chunks <- chattypes.StreamChunk{Content: "```\npartial"}
	chunks <- chattypes.StreamChunk{Error: boom}
	close(chunks)

	r := NewReconciler()
	doc := endDoc("")

	result, err := r.Apply(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, "```\npartial\n```", doc.Text())
	assert.Equal(t, "```\npartial\n```", result.Text)
	assert.Equal(t, StateIdle, r.State())
}

func TestApply_FinishReasonAndDone(t *testing.T) {
	chunks := make(chan chattypes.StreamChunk, 3)
	chunks <- chattypes.StreamChunk{Content: "hi"}
	chunks <- chattypes.StreamChunk{FinishReason: "stop", Done: true}
	chunks <- chattypes.StreamChunk{Content: "ignored"}
	close(chunks)

	r := NewReconciler()
	doc := endDoc("")

	result, err := r.Apply(context.Background(), doc, chunks)
	require.NoError(t, err)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, "hi", doc.Text())
}

func TestBegin_SingleSession(t *testing.T) {
	r := NewReconciler()
	doc := endDoc("")

	session, err := r.Begin(doc)
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, r.State())

	_, err = r.Begin(doc)
	assert.True(t, errors.Is(err, ErrSessionActive))

	session.Finalize()
	assert.Equal(t, StateIdle, r.State())

	again, err := r.Begin(doc)
	require.NoError(t, err)
	again.Finalize()
}

func TestSession_AppendAdvancesCursorAcrossLines(t *testing.T) {
	r := NewReconciler()
	doc := endDoc("ab")

	session, err := r.Begin(doc)
	require.NoError(t, err)
	assert.True(t, session.Append("c\nd"))
	assert.Equal(t, chattypes.Position{Line: 1, Ch: 1}, doc.Cursor())
	assert.True(t, session.Append("é\n"))
	assert.Equal(t, chattypes.Position{Line: 2, Ch: 0}, doc.Cursor())
	assert.Equal(t, "c\ndé\n", session.Text())

	result := session.Finalize()
	assert.Equal(t, "abc\ndé\n", doc.Text())
	assert.Equal(t, chattypes.Position{Line: 0, Ch: 2}, result.Start)
	assert.False(t, session.Append("late"))
}

func TestCancel(t *testing.T) {
	t.Run("idle is a no-op", func(t *testing.T) {
		r := NewReconciler()
		require.NoError(t, r.Cancel())
		assert.False(t, r.Cancelled())
	})

	t.Run("unsupported", func(t *testing.T) {
		r := NewReconciler(WithCancelSupported(false))
		err := r.Cancel()
		assert.True(t, errors.Is(err, ErrCancelUnsupported))
	})

	t.Run("active session stops appends", func(t *testing.T) {
		r := NewReconciler()
		doc := endDoc("")
		session, err := r.Begin(doc)
		require.NoError(t, err)

		require.NoError(t, r.Cancel())
		assert.False(t, session.Append("x"))
		assert.Equal(t, "", doc.Text())

		result := session.Finalize()
		assert.True(t, result.Cancelled)
		assert.False(t, r.Cancelled())
	})
}

func TestCloseCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no fences", input: "plain", want: "plain"},
		{name: "balanced", input: "```\nx\n```", want: "```\nx\n```"},
		{name: "open", input: "```go\nx", want: "```go\nx\n```"},
		{name: "three fences", input: "```a```\n```", want: "```a```\n```\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CloseCodeFences(tt.input))
		})
	}
}

func TestInsertComplete(t *testing.T) {
	doc := buffer.New("Q\nafter")
	doc.SetCursor(chattypes.Position{Line: 1, Ch: 0})

	result := InsertComplete(doc, "```\ncode")
	assert.Equal(t, "Q\n```\ncode\n```after", doc.Text())
	assert.Equal(t, result.End, doc.Cursor())
	assert.Equal(t, chattypes.Position{Line: 3, Ch: 3}, doc.Cursor())
}
