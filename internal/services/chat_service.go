package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"notechat/internal/logger"
	"notechat/internal/stream"
	"notechat/internal/transcript"
	"notechat/pkg/chattypes"
)

// ErrChatInProgress is returned when a document already has a chat running.
var ErrChatInProgress = errors.New("a chat is already in progress for this document")

// ChatService runs one chat turn against a document: it decodes the
// transcript, calls the configured provider and writes the response back
// through the stream reconciler.
type ChatService struct {
	initialized bool
	config      *ConfigurationService
	vault       chattypes.Vault
	clients     ClientProvider
	titles      *TitleService
	reconciler  *stream.Reconciler
	notifier    chattypes.Notifier

	mu   sync.Mutex
	busy map[string]string
}

// NewChatService creates a ChatService. vault may be nil to disable embedded files.
func NewChatService(config *ConfigurationService, vault chattypes.Vault, clients ClientProvider, titles *TitleService, reconciler *stream.Reconciler, notifier chattypes.Notifier) *ChatService {
	return &ChatService{
		config:     config,
		vault:      vault,
		clients:    clients,
		titles:     titles,
		reconciler: reconciler,
		notifier:   notifier,
		busy:       make(map[string]string),
	}
}

// Name returns the service name "chat" for registration.
func (s *ChatService) Name() string {
	return "chat"
}

// Initialize sets up the ChatService for operation.
func (s *ChatService) Initialize() error {
	logger.ServiceOperation("chat", "initialize", "starting")
	if s.config == nil || s.clients == nil || s.reconciler == nil {
		return fmt.Errorf("chat service is missing a dependency")
	}
	s.initialized = true
	logger.ServiceOperation("chat", "initialize", "completed")
	return nil
}

// Chat sends the document's transcript to its provider and appends the
// response as the assistant turn, followed by a fresh user turn.
// Provider failures are reported through the notifier and returned; the
// user turn marker already written stays in the document.
func (s *ChatService) Chat(ctx context.Context, doc chattypes.Document, docPath string) (*chattypes.Message, error) {
	if !s.initialized {
		return nil, fmt.Errorf("chat service not initialized")
	}

	token, err := s.acquire(docPath)
	if err != nil {
		return nil, err
	}
	defer s.release(docPath, token)

	codec := s.codec(docPath, true)
	cfg, messages, err := codec.Decode(ctx, doc.Text())
	if err != nil {
		return nil, s.fail(err)
	}

	client, err := s.clients.ClientFor(cfg.LLM)
	if err != nil {
		return nil, s.fail(err)
	}

	request := append(cfg.SystemMessages(), messages...)
	logger.ServiceOperation("chat", "send", "provider", client.GetProviderName(), "model", cfg.Model, "messages", len(request), "stream", cfg.Stream)

	codec.CompleteUserTurn(doc)

	var result stream.Result
	if cfg.Stream {
		result, err = s.stream(ctx, client, doc, request, cfg)
	} else {
		result, err = s.send(ctx, client, doc, request, cfg)
	}
	if err != nil {
		return nil, s.fail(err)
	}

	codec.CompleteAssistantTurn(doc)
	logger.Debug("Chat turn complete", "finish_reason", result.FinishReason, "cancelled", result.Cancelled, "length", len(result.Text))

	response := chattypes.NewTextMessage(chattypes.RoleAssistant, result.Text)
	return &response, nil
}

// stream applies a streamed response. The producer's context is cancelled
// as soon as the reconciler stops reading, so an abandoned stream ends.
func (s *ChatService) stream(ctx context.Context, client chattypes.LLMClient, doc chattypes.Document, request []chattypes.Message, cfg *chattypes.ChatConfig) (stream.Result, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := client.StreamChatCompletion(streamCtx, request, cfg)
	if err != nil {
		return stream.Result{}, err
	}
	return s.reconciler.Apply(streamCtx, doc, chunks)
}

func (s *ChatService) send(ctx context.Context, client chattypes.LLMClient, doc chattypes.Document, request []chattypes.Message, cfg *chattypes.ChatConfig) (stream.Result, error) {
	completion, err := client.SendChatCompletion(ctx, request, cfg)
	if err != nil {
		return stream.Result{}, err
	}
	result := stream.InsertComplete(doc, completion.Content)
	result.FinishReason = completion.FinishReason
	return result, nil
}

// Stop cancels the response currently streaming, if any.
func (s *ChatService) Stop() error {
	return s.reconciler.Cancel()
}

// Title infers a title for the document and renames its file after it.
// It returns the new path.
func (s *ChatService) Title(ctx context.Context, doc chattypes.Document, docPath string) (string, error) {
	if !s.initialized {
		return "", fmt.Errorf("chat service not initialized")
	}
	if s.titles == nil {
		return "", fmt.Errorf("title service not configured")
	}

	cfg, messages, err := s.codec(docPath, false).Decode(ctx, doc.Text())
	if err != nil {
		return "", s.fail(err)
	}
	client, err := s.clients.ClientFor(cfg.LLM)
	if err != nil {
		return "", s.fail(err)
	}

	newPath, err := s.titles.InferAndRename(ctx, client, docPath, messages)
	if err != nil {
		return "", s.fail(fmt.Errorf("title inference failed: %w", err))
	}
	return newPath, nil
}

// MaybeInferTitle titles the saved document when automatic titles are on,
// it still has its date name and holds enough messages. renamed is false
// when nothing was done.
func (s *ChatService) MaybeInferTitle(ctx context.Context, doc chattypes.Document, docPath string) (newPath string, renamed bool, err error) {
	if s.titles == nil {
		return "", false, nil
	}

	_, messages, err := s.codec(docPath, false).Decode(ctx, doc.Text())
	if err != nil {
		return "", false, err
	}
	if !s.titles.ShouldAutoInfer(docPath, countNonEmpty(messages)) {
		return "", false, nil
	}

	newPath, err = s.Title(ctx, doc, docPath)
	if err != nil {
		return "", false, err
	}
	return newPath, true, nil
}

func (s *ChatService) codec(docPath string, withVault bool) *transcript.Codec {
	name := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	opts := []transcript.Option{transcript.WithDocumentName(name)}
	if withVault && s.vault != nil {
		opts = append(opts, transcript.WithVault(s.vault))
	}
	return transcript.NewCodec(s.config.Settings(), opts...)
}

// acquire marks docPath busy and returns the token that releases it.
func (s *ChatService) acquire(docPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.busy[docPath]; busy {
		return "", fmt.Errorf("%s: %w", docPath, ErrChatInProgress)
	}
	token := uuid.NewString()
	s.busy[docPath] = token
	return token, nil
}

func (s *ChatService) release(docPath, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[docPath] == token {
		delete(s.busy, docPath)
	}
}

// fail reports err to the user and returns it.
func (s *ChatService) fail(err error) error {
	logger.Error("Chat failed", "error", err)
	if s.notifier != nil {
		s.notifier.Notice("Chat failed: " + err.Error())
	}
	return err
}

// countNonEmpty counts messages with content. The trailing user turn a
// completed chat ends with is empty and does not count.
func countNonEmpty(messages []chattypes.Message) int {
	n := 0
	for _, msg := range messages {
		if strings.TrimSpace(msg.Text) != "" || msg.HasBlocks() {
			n++
		}
	}
	return n
}
