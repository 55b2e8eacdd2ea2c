package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"notechat/internal/logger"
	"notechat/internal/stringprocessing"
	"notechat/pkg/chattypes"
)

// Title inference errors.
var (
	ErrTooFewMessages = errors.New("at least two messages are needed to infer a title")
	ErrEmptyTitle     = errors.New("model returned an empty title")
)

// Title request parameters. The title is short and should be deterministic.
const (
	titleMaxTokens   = 50
	minTitleMessages = 2
	// AutoTitleMinMessages is the transcript length at which a chat gets an automatic title.
	AutoTitleMinMessages = 4
)

// TitlePrompt builds the single user message that asks for a title.
func TitlePrompt(messages []chattypes.Message, language string) (string, error) {
	data, err := json.Marshal(chattypes.TextOnly(messages))
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}
	return "Infer title from the summary of the content of these messages. " +
		"The title **cannot** contain any of the following characters: colon, back slash or forward slash. " +
		"Just return the title. Write the title in " + language + ". \nMessages:\n\n" + string(data), nil
}

type completionFunc func(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (*chattypes.Completion, error)

// inferTitle runs the title request through send. Every provider client uses it.
func inferTitle(ctx context.Context, model string, messages []chattypes.Message, language string, send completionFunc) (string, error) {
	if len(messages) < minTitleMessages {
		return "", fmt.Errorf("failed to infer title from %d messages: %w", len(messages), ErrTooFewMessages)
	}

	prompt, err := TitlePrompt(messages, language)
	if err != nil {
		return "", err
	}

	temperature := 0.0
	maxTokens := titleMaxTokens
	cfg := &chattypes.ChatConfig{
		Model:       model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	logger.Debug("Inferring title", "model", model, "messages", len(messages), "language", language)
	completion, err := send(ctx, []chattypes.Message{chattypes.NewTextMessage(chattypes.RoleUser, prompt)}, cfg)
	if errors.Is(err, ErrEmptyResponse) {
		return "", ErrEmptyTitle
	}
	if err != nil {
		return "", fmt.Errorf("failed to infer title: %w", err)
	}

	title := stringprocessing.SanitizeTitle(completion.Content)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

// TitleService names chats after their content.
type TitleService struct {
	initialized bool
	vault       *VaultService
	config      *ConfigurationService
}

// NewTitleService creates a TitleService.
func NewTitleService(vault *VaultService, config *ConfigurationService) *TitleService {
	return &TitleService{vault: vault, config: config}
}

// Name returns the service name "title" for registration.
func (t *TitleService) Name() string {
	return "title"
}

// Initialize sets up the TitleService for operation.
func (t *TitleService) Initialize() error {
	logger.ServiceOperation("title", "initialize", "starting")
	t.initialized = true
	logger.ServiceOperation("title", "initialize", "completed")
	return nil
}

// HasTimestampName reports whether docPath still carries the name a new
// chat is created with.
func (t *TitleService) HasTimestampName(docPath string) bool {
	base := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	return DateFormatPattern(t.config.Settings().DateFormat).MatchString(base)
}

// ShouldAutoInfer reports whether a chat with messageCount messages at
// docPath should be titled automatically.
func (t *TitleService) ShouldAutoInfer(docPath string, messageCount int) bool {
	return t.config.Settings().AutoInferTitle &&
		messageCount >= AutoTitleMinMessages &&
		t.HasTimestampName(docPath)
}

// Infer asks client for a title in the configured language.
func (t *TitleService) Infer(ctx context.Context, client chattypes.LLMClient, messages []chattypes.Message) (string, error) {
	if !t.initialized {
		return "", fmt.Errorf("title service not initialized")
	}
	return client.InferTitle(ctx, messages, t.config.Settings().InferTitleLanguage)
}

// Rename moves docPath to <chat folder>/<title>.md, adding " (n)" when that
// name is taken, and returns the new path.
func (t *TitleService) Rename(docPath, title string) (string, error) {
	if !t.initialized {
		return "", fmt.Errorf("title service not initialized")
	}
	title = stringprocessing.SanitizeTitle(title)
	if title == "" {
		return "", ErrEmptyTitle
	}

	folder := t.vault.Abs(t.config.Settings().ChatFolder)
	if err := t.vault.EnsureFolder(folder, true); err != nil {
		return "", err
	}
	dest := t.vault.UniquePath(folder, title, ".md")
	if err := t.vault.Rename(docPath, dest); err != nil {
		return "", err
	}
	logger.Info("Chat renamed", "from", docPath, "to", dest)
	return dest, nil
}

// InferAndRename infers a title for messages and renames docPath after it.
func (t *TitleService) InferAndRename(ctx context.Context, client chattypes.LLMClient, docPath string, messages []chattypes.Message) (string, error) {
	title, err := t.Infer(ctx, client, messages)
	if err != nil {
		return "", err
	}
	return t.Rename(docPath, title)
}
