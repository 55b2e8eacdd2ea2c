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

	"notechat/pkg/chattypes"
)

func ptrTo[T any](v T) *T { return &v }

// imageMessage is a user message carrying one text block and one image block.
func imageMessage() chattypes.Message {
	return chattypes.Message{
		Role: chattypes.RoleUser,
		Text: "what is in [[cat.png]]",
		Blocks: []chattypes.ContentBlock{
			{Type: chattypes.BlockText, Text: "what is in [[cat.png]]"},
			{Type: chattypes.BlockImage, Name: "cat.png", Source: &chattypes.BlockSource{Type: "base64", MediaType: "image/png", Data: "iVBORw0KGgo="}},
		},
	}
}

// chatCompletionServer serves the Chat Completions endpoint. Non-streaming
// requests get reply; streaming requests get one SSE event per fragment.
func chatCompletionServer(t *testing.T, reply string, fragments []string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		var request map[string]interface{}
		if !assert.NoError(t, json.Unmarshal(body, &request)) {
			return
		}
		if captured != nil {
			*captured = request
		}

		if stream, _ := request["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, fragment := range fragments {
				content, _ := json.Marshal(fragment)
				_, _ = fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s},\"finish_reason\":null}]}\n\n", content)
			}
			_, _ = fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		content, _ := json.Marshal(reply)
		_, _ = fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, content)
	}))
}

// collect drains a stream into its text, finish reason and error.
func collect(t *testing.T, ch <-chan chattypes.StreamChunk) (string, string, error) {
	t.Helper()
	var sb strings.Builder
	var finish string
	var streamErr error
	for chunk := range ch {
		sb.WriteString(chunk.Content)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}
	return sb.String(), finish, streamErr
}

func TestNewOpenAIClient(t *testing.T) {
	client := NewOpenAIClient("sk-test")
	assert.Equal(t, "openai", client.GetProviderName())
	assert.True(t, client.IsConfigured())
	assert.Nil(t, client.client, "client is created lazily")

	assert.False(t, NewOpenAIClient("").IsConfigured())
}

func TestOpenAIClient_NotConfigured(t *testing.T) {
	client := NewOpenAIClient("")
	cfg := &chattypes.ChatConfig{Model: "gpt-4o-mini"}

	_, err := client.SendChatCompletion(context.Background(), conversation("hi"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API key not configured")

	_, err = client.StreamChatCompletion(context.Background(), conversation("hi"), cfg)
	assert.Error(t, err)
}

func TestOpenAIClient_SendChatCompletion(t *testing.T) {
	var request map[string]interface{}
	server := chatCompletionServer(t, "Hello there", nil, &request)
	defer server.Close()

	client := NewOpenAIClient("sk-test")
	client.SetBaseURL(server.URL + "/v1/")

	cfg := &chattypes.ChatConfig{
		Model:       "gpt-4o-mini",
		Temperature: ptrTo(0.3),
		MaxTokens:   ptrTo(64),
		Stop:        []string{"###"},
		User:        "me",
	}
	messages := []chattypes.Message{
		chattypes.NewTextMessage(chattypes.RoleSystem, "be brief"),
		imageMessage(),
	}

	completion, err := client.SendChatCompletion(context.Background(), messages, cfg)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", completion.Content)
	assert.Equal(t, "stop", completion.FinishReason)

	assert.Equal(t, "gpt-4o-mini", request["model"])
	assert.InDelta(t, 0.3, request["temperature"], 1e-9)
	assert.EqualValues(t, 64, request["max_tokens"])
	assert.Equal(t, []interface{}{"###"}, request["stop"])
	assert.Equal(t, "me", request["user"])
	assert.NotContains(t, request, "top_p", "unset parameters are not sent")

	sent := request["messages"].([]interface{})
	require.Len(t, sent, 2)
	assert.Equal(t, "system", sent[0].(map[string]interface{})["role"])
	parts := sent[1].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]interface{})["type"])
	image := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", image["image_url"].(map[string]interface{})["url"])
}

func TestOpenAIClient_SendChatCompletion_Empty(t *testing.T) {
	server := chatCompletionServer(t, "", nil, nil)
	defer server.Close()

	client := NewOpenAIClient("sk-test")
	client.SetBaseURL(server.URL + "/v1/")

	_, err := client.SendChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_StreamChatCompletion(t *testing.T) {
	server := chatCompletionServer(t, "", []string{"Hel", "lo", " world"}, nil)
	defer server.Close()

	client := NewOpenAIClient("sk-test")
	client.SetBaseURL(server.URL + "/v1/")

	ch, err := client.StreamChatCompletion(context.Background(), conversation("hi"), &chattypes.ChatConfig{Model: "m", Stream: true})
	require.NoError(t, err)

	text, finish, streamErr := collect(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, "stop", finish)
}

func TestOpenAIClient_InferTitle(t *testing.T) {
	var request map[string]interface{}
	server := chatCompletionServer(t, "Title: Weekend/Plans", nil, &request)
	defer server.Close()

	client := NewOpenAIClient("sk-test")
	client.SetBaseURL(server.URL + "/v1/")
	client.SetTitleModel("gpt-title")

	title, err := client.InferTitle(context.Background(), conversation("plans?", "hiking"), "English")
	require.NoError(t, err)
	assert.Equal(t, "Weekend Plans", title)
	assert.Equal(t, "gpt-title", request["model"])
	assert.EqualValues(t, 0, request["temperature"])
}

func TestOpenAIClient_ConvertMessagesToOpenAI(t *testing.T) {
	client := NewOpenAIClient("sk-test")

	tests := []struct {
		name     string
		messages []chattypes.Message
		wantErr  error
		errText  string
	}{
		{
			name:     "plain conversation",
			messages: append([]chattypes.Message{chattypes.NewTextMessage(chattypes.RoleSystem, "sys")}, conversation("a", "b")...),
		},
		{
			name: "document block",
			messages: []chattypes.Message{{
				Role: chattypes.RoleUser,
				Blocks: []chattypes.ContentBlock{
					{Type: chattypes.BlockText, Text: "read"},
					{Type: chattypes.BlockDocument, Name: "paper.pdf", Source: &chattypes.BlockSource{Type: "base64", MediaType: "application/pdf", Data: "JVBERi0="}},
				},
			}},
		},
		{
			name: "unknown block type",
			messages: []chattypes.Message{{
				Role:   chattypes.RoleUser,
				Blocks: []chattypes.ContentBlock{{Type: "audio"}},
			}},
			wantErr: ErrUnknownContentBlock,
		},
		{
			name: "image in assistant message",
			messages: []chattypes.Message{{
				Role:   chattypes.RoleAssistant,
				Blocks: imageMessage().Blocks,
			}},
			errText: "image block not allowed in assistant message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted, err := client.convertMessagesToOpenAI(tt.messages)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Len(t, converted, len(tt.messages))
			}
		})
	}
}

func TestOpenAIClient_ApplyModelParameters(t *testing.T) {
	client := NewOpenAIClient("sk-test")
	cfg := &chattypes.ChatConfig{
		Model:            "gpt-4o",
		Temperature:      ptrTo(0.7),
		TopP:             ptrTo(0.9),
		PresencePenalty:  ptrTo(1.0),
		FrequencyPenalty: ptrTo(0.5),
		MaxTokens:        ptrTo(100),
		N:                ptrTo(2),
		Stop:             []string{"a", "b"},
		LogitBias:        map[string]int{"50256": -100},
		User:             "user-1",
	}

	params, err := client.buildParams(conversation("hi"), cfg)
	require.NoError(t, err)

	data, err := json.Marshal(params)
	require.NoError(t, err)
	var request map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &request))

	assert.InDelta(t, 0.7, request["temperature"], 1e-9)
	assert.InDelta(t, 0.9, request["top_p"], 1e-9)
	assert.InDelta(t, 1.0, request["presence_penalty"], 1e-9)
	assert.InDelta(t, 0.5, request["frequency_penalty"], 1e-9)
	assert.EqualValues(t, 100, request["max_tokens"])
	assert.EqualValues(t, 2, request["n"])
	assert.Equal(t, []interface{}{"a", "b"}, request["stop"])
	assert.Equal(t, map[string]interface{}{"50256": float64(-100)}, request["logit_bias"])
	assert.Equal(t, "user-1", request["user"])
}
