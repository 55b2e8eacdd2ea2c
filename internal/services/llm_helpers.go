package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"notechat/pkg/chattypes"
)

// Errors shared by the provider clients.
var (
	ErrUnknownContentBlock = errors.New("unknown content block type")
	ErrEmptyResponse       = errors.New("empty response content")
)

// unknownBlockError reports a block no provider translation exists for.
func unknownBlockError(provider string, block chattypes.ContentBlock) error {
	return fmt.Errorf("%s: %w %q", provider, ErrUnknownContentBlock, block.Type)
}

// blockBytes decodes the base64 payload of an image or document block.
func blockBytes(block chattypes.ContentBlock) ([]byte, error) {
	if block.Source == nil {
		return nil, fmt.Errorf("%s block %q has no source", block.Type, block.Name)
	}
	data, err := base64.StdEncoding.DecodeString(block.Source.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s block %q: %w", block.Type, block.Name, err)
	}
	return data, nil
}

// dataURL renders a block's payload as a data: URL.
func dataURL(block chattypes.ContentBlock) string {
	return "data:" + block.Source.MediaType + ";base64," + block.Source.Data
}

// messageText joins the text of a message's text blocks. Non-text blocks are
// rejected, since the roles this is used for cannot carry them.
func messageText(provider string, msg chattypes.Message) (string, error) {
	if !msg.HasBlocks() {
		return msg.Text, nil
	}
	parts := make([]string, 0, len(msg.Blocks))
	for _, block := range msg.Blocks {
		if block.Type != chattypes.BlockText {
			if block.Type == chattypes.BlockImage || block.Type == chattypes.BlockDocument {
				return "", fmt.Errorf("%s: %s block not allowed in %s message", provider, block.Type, msg.Role)
			}
			return "", unknownBlockError(provider, block)
		}
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

// splitSystem separates system-role messages from the conversation and joins
// their text. Providers that take the system prompt out of band use it.
func splitSystem(provider string, messages []chattypes.Message) (string, []chattypes.Message, error) {
	var system []string
	rest := make([]chattypes.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != chattypes.RoleSystem {
			rest = append(rest, msg)
			continue
		}
		text, err := messageText(provider, msg)
		if err != nil {
			return "", nil, err
		}
		system = append(system, text)
	}
	return strings.Join(system, "\n\n"), rest, nil
}

// sendChunk delivers chunk unless ctx is cancelled first.
func sendChunk(ctx context.Context, ch chan<- chattypes.StreamChunk, chunk chattypes.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
