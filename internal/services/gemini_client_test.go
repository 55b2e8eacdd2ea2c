package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"notechat/pkg/chattypes"
)

func TestNewGeminiClient(t *testing.T) {
	client := NewGeminiClient("g-key")
	assert.Equal(t, "gemini", client.GetProviderName())
	assert.True(t, client.IsConfigured())
	assert.Nil(t, client.client, "client is created lazily")

	assert.False(t, NewGeminiClient("").IsConfigured())
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	client := NewGeminiClient("")
	cfg := &chattypes.ChatConfig{Model: "gemini-2.0-flash"}

	_, err := client.SendChatCompletion(context.Background(), conversation("hi"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google API key not configured")

	_, err = client.StreamChatCompletion(context.Background(), conversation("hi"), cfg)
	assert.Error(t, err)
}

func TestGeminiClient_SetDebugTransport(t *testing.T) {
	client := NewGeminiClient("g-key")
	require.NoError(t, client.initializeClientIfNeeded(context.Background()))
	require.NotNil(t, client.client)

	client.SetDebugTransport(http.DefaultTransport)
	assert.Nil(t, client.client)
	client.SetBaseURL("http://localhost:9999")
	assert.Equal(t, "http://localhost:9999", client.baseURL)
	require.NoError(t, client.initializeClientIfNeeded(context.Background()))
	assert.NotNil(t, client.client)
}

func TestGeminiClient_BuildRequest(t *testing.T) {
	client := NewGeminiClient("g-key")
	messages := []chattypes.Message{
		chattypes.NewTextMessage(chattypes.RoleSystem, "be brief"),
		imageMessage(),
		chattypes.NewTextMessage(chattypes.RoleAssistant, "a cat"),
		chattypes.NewTextMessage(chattypes.RoleUser, "what colour?"),
	}

	contents, config, err := client.buildRequest(messages, &chattypes.ChatConfig{Model: "gemini-2.0-flash"})
	require.NoError(t, err)

	require.NotNil(t, config.SystemInstruction)
	require.Len(t, config.SystemInstruction.Parts, 1)
	assert.Equal(t, "be brief", config.SystemInstruction.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, string(genai.RoleUser), contents[2].Role)

	parts := contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "what is in [[cat.png]]", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, parts[1].InlineData.Data)
}

func TestGeminiClient_ConvertMessagesToGemini(t *testing.T) {
	client := NewGeminiClient("g-key")

	tests := []struct {
		name     string
		messages []chattypes.Message
		wantErr  error
		errText  string
		wantLen  int
	}{
		{
			name:     "conversation",
			messages: conversation("a", "b"),
			wantLen:  2,
		},
		{
			name:    "empty transcript gets an empty user turn",
			wantLen: 1,
		},
		{
			name: "pdf document",
			messages: []chattypes.Message{{
				Role: chattypes.RoleUser,
				Blocks: []chattypes.ContentBlock{
					{Type: chattypes.BlockText, Text: "read"},
					{Type: chattypes.BlockDocument, Name: "paper.pdf", Source: &chattypes.BlockSource{Type: "base64", MediaType: "application/pdf", Data: "JVBERi0="}},
				},
			}},
			wantLen: 1,
		},
		{
			name:     "unknown block",
			messages: []chattypes.Message{{Role: chattypes.RoleUser, Blocks: []chattypes.ContentBlock{{Type: "audio"}}}},
			wantErr:  ErrUnknownContentBlock,
		},
		{
			name: "invalid base64",
			messages: []chattypes.Message{{Role: chattypes.RoleUser, Blocks: []chattypes.ContentBlock{
				{Type: chattypes.BlockImage, Name: "x.png", Source: &chattypes.BlockSource{Type: "base64", MediaType: "image/png", Data: "!!!"}},
			}}},
			errText: "failed to decode image block",
		},
		{
			name:     "system role left in transcript",
			messages: []chattypes.Message{chattypes.NewTextMessage(chattypes.RoleSystem, "sys")},
			errText:  "unsupported role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, err := client.convertMessagesToGemini(tt.messages)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Len(t, contents, tt.wantLen)
			}
		})
	}
}

func TestGeminiClient_BuildGenerationConfig(t *testing.T) {
	client := NewGeminiClient("g-key")

	empty := client.buildGenerationConfig(&chattypes.ChatConfig{})
	assert.Nil(t, empty.Temperature)
	assert.Nil(t, empty.TopP)
	assert.Zero(t, empty.MaxOutputTokens)
	assert.Empty(t, empty.StopSequences)

	config := client.buildGenerationConfig(&chattypes.ChatConfig{
		Temperature:      ptrTo(0.5),
		TopP:             ptrTo(0.9),
		PresencePenalty:  ptrTo(0.1),
		FrequencyPenalty: ptrTo(0.2),
		MaxTokens:        ptrTo(256),
		N:                ptrTo(2),
		Stop:             []string{"END"},
	})
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, 0.5, *config.Temperature, 1e-6)
	assert.InDelta(t, 0.9, *config.TopP, 1e-6)
	assert.InDelta(t, 0.1, *config.PresencePenalty, 1e-6)
	assert.InDelta(t, 0.2, *config.FrequencyPenalty, 1e-6)
	assert.Equal(t, int32(256), config.MaxOutputTokens)
	assert.Equal(t, int32(2), config.CandidateCount)
	assert.Equal(t, []string{"END"}, config.StopSequences)
}

func TestGeminiFinishReason(t *testing.T) {
	assert.Equal(t, "", geminiFinishReason(nil))
	assert.Equal(t, "", geminiFinishReason(&genai.GenerateContentResponse{}))
	assert.Equal(t, "STOP", geminiFinishReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}))
}

// geminiCandidate renders one response chunk with a single text part.
func geminiCandidate(text, finishReason string) string {
	encoded, _ := json.Marshal(text)
	finish := ""
	if finishReason != "" {
		finish = fmt.Sprintf(`,"finishReason":%q`, finishReason)
	}
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}],"role":"model"},"index":0%s}]}`, encoded, finish)
}

// geminiServer serves generateContent with reply and streamGenerateContent
// with one SSE event per chunk. A nil stream answers streaming with a 404.
func geminiServer(t *testing.T, reply string, stream func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g-key", r.Header.Get("X-Goog-Api-Key"))
		body, err := io.ReadAll(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		assert.True(t, json.Valid(body), "request body is JSON")

		switch {
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent") && stream != nil:
			w.Header().Set("Content-Type", "text/event-stream")
			stream(w, r)
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, reply)
		default:
			http.NotFound(w, r)
		}
	}))
}

func writeGeminiEvent(w http.ResponseWriter, data string) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func newServedGeminiClient(server *httptest.Server) *GeminiClient {
	client := NewGeminiClient("g-key")
	client.SetBaseURL(server.URL)
	return client
}

func TestGeminiClient_SendChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantText   string
		wantFinish string
		wantErr    error
	}{
		{
			name:       "text reply",
			reply:      geminiCandidate("Bonjour", "STOP"),
			wantText:   "Bonjour",
			wantFinish: "STOP",
		},
		{
			name:    "blocked reply without text",
			reply:   `{"candidates":[{"content":{"parts":[],"role":"model"},"finishReason":"SAFETY","index":0}]}`,
			wantErr: ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := geminiServer(t, tt.reply, nil)
			defer server.Close()

			completion, err := newServedGeminiClient(server).SendChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "gemini-2.0-flash"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, completion.Content)
			assert.Equal(t, tt.wantFinish, completion.FinishReason)
		})
	}
}

func TestGeminiClient_SendChatCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	_, err := newServedGeminiClient(server).SendChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "gemini-2.0-flash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini request failed")
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGeminiClient_StreamChatCompletion(t *testing.T) {
	server := geminiServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		writeGeminiEvent(w, geminiCandidate("Hel", ""))
		writeGeminiEvent(w, geminiCandidate("lo", ""))
		writeGeminiEvent(w, geminiCandidate(" world", "STOP"))
	})
	defer server.Close()

	ch, err := newServedGeminiClient(server).StreamChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "gemini-2.0-flash", Stream: true})
	require.NoError(t, err)

	text, finish, streamErr := collect(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, "STOP", finish)
}

func TestGeminiClient_StreamMalformedChunk(t *testing.T) {
	server := geminiServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		writeGeminiEvent(w, geminiCandidate("Hel", ""))
		writeGeminiEvent(w, `{"candidates": [`)
	})
	defer server.Close()

	ch, err := newServedGeminiClient(server).StreamChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "gemini-2.0-flash", Stream: true})
	require.NoError(t, err)

	text, _, streamErr := collect(t, ch)
	assert.Equal(t, "Hel", text, "fragments before the failure are delivered")
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "gemini stream failed")
}

func TestGeminiClient_StreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`)
	}))
	defer server.Close()

	ch, err := newServedGeminiClient(server).StreamChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "nope", Stream: true})
	require.NoError(t, err)

	text, _, streamErr := collect(t, ch)
	assert.Empty(t, text)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "model not found")
}

func TestGeminiClient_StreamAbandoned(t *testing.T) {
	release := make(chan struct{})
	server := geminiServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeGeminiEvent(w, geminiCandidate("first", ""))
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newServedGeminiClient(server).StreamChatCompletion(ctx, conversation("hi"), &chattypes.ChatConfig{Model: "gemini-2.0-flash", Stream: true})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "first", first.Content)
	cancel()

	// The producer closes the channel once it sees the cancellation.
	for range ch {
	}
}
