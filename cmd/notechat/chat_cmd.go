package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"notechat/internal/buffer"
	"notechat/internal/logger"
	"notechat/internal/output"
	"notechat/internal/transcript"
)

func newChatCmd(opts *options) *cobra.Command {
	var (
		showDiff bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "chat <file>",
		Short: "Send the note's conversation and append the response",
		Long: `Send the conversation in the note to its configured provider and write the
response back as the assistant turn. Streaming responses are written as they
arrive; Ctrl-C stops the stream and keeps what was received.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := notePath(args[0])
			if err != nil {
				return err
			}
			appOpts := []appOption{withWatch()}
			if !quiet && !opts.json {
				appOpts = append(appOpts, withEcho(cmd.OutOrStdout()))
			}
			a, err := initializeServices(opts, appOpts...)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a, path, showDiff)
		},
	}

	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print the changes made to the note")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo the streamed response")
	return cmd
}

// notePath makes a note argument absolute, so it resolves against the
// working directory rather than the vault root.
func notePath(arg string) (string, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", arg, err)
	}
	return path, nil
}

// runChat runs one chat turn on path and saves the note, even when the
// provider failed, since the user turn marker has already been written.
func runChat(ctx context.Context, a *app, path string, showDiff bool) error {
	doc, err := buffer.Load(path)
	if err != nil {
		return err
	}
	before := doc.Text()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()
	go func() {
		for range interrupts {
			if err := a.chat.Stop(); err != nil {
				logger.Warn("Stop failed", "error", err)
			}
		}
	}()

	reply, chatErr := a.chat.Chat(ctx, doc, path)
	if reply != nil {
		a.printer.Println("")
	}

	if err := doc.Save(); err != nil {
		return errors.Join(chatErr, err)
	}
	if showDiff {
		printDiff(a.printer, before, doc.Text())
	}
	if chatErr != nil {
		return chatErr
	}

	newPath, renamed, err := a.chat.MaybeInferTitle(ctx, doc, path)
	if err != nil {
		logger.Warn("Automatic title failed", "file", path, "error", err)
		return nil
	}
	if renamed {
		a.printer.Success("Renamed to " + newPath)
	}
	return nil
}

func newTitleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "title <file>",
		Short: "Infer a title for the note and rename it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := notePath(args[0])
			if err != nil {
				return err
			}
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := buffer.Load(path)
			if err != nil {
				return err
			}
			newPath, err := a.chat.Title(cmd.Context(), doc, path)
			if err != nil {
				return err
			}
			a.printer.Success("Renamed to " + newPath)
			return nil
		},
	}
}

// editCommand builds a command that loads a note, applies edit at the end of
// the note and saves it.
func editCommand(opts *options, use, short string, edit func(a *app, doc *buffer.Document) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := notePath(args[0])
			if err != nil {
				return err
			}
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := buffer.Load(path)
			if err != nil {
				return err
			}
			if err := edit(a, doc); err != nil {
				return err
			}
			return doc.Save()
		},
	}
}

func newDividerCmd(opts *options) *cobra.Command {
	return editCommand(opts, "divider", "Append a divider and a user header", func(a *app, doc *buffer.Document) error {
		transcript.NewCodec(a.config.Settings()).AddDivider(doc)
		return nil
	})
}

func newCommentCmd(opts *options) *cobra.Command {
	return editCommand(opts, "comment", "Append an empty comment block", func(_ *app, doc *buffer.Document) error {
		transcript.AddCommentBlock(doc)
		return nil
	})
}

func newClearCmd(opts *options) *cobra.Command {
	return editCommand(opts, "clear", "Remove the conversation, keeping the frontmatter", func(_ *app, doc *buffer.Document) error {
		_, err := transcript.ClearExceptConfiguration(doc)
		return err
	})
}

func newShowCmd(opts *options) *cobra.Command {
	var (
		style string
		width int
	)

	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Render the note's conversation in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := notePath(args[0])
			if err != nil {
				return err
			}
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !opts.plain && !opts.json {
				renderer, err := output.NewMarkdownRenderer(style, width)
				if err != nil {
					return err
				}
				a.printer.SetMarkdown(renderer)
			}
			return runShow(cmd.Context(), a, path)
		},
	}

	cmd.Flags().StringVar(&style, "style", "auto", "Markdown style (auto|dark|light|notty|ascii)")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width")
	return cmd
}

func runShow(ctx context.Context, a *app, path string) error {
	doc, err := buffer.Load(path)
	if err != nil {
		return err
	}
	cfg, messages, err := transcript.NewCodec(a.config.Settings()).Decode(ctx, doc.Text())
	if err != nil {
		return err
	}

	a.printer.KeyValue("llm", string(cfg.LLM))
	a.printer.KeyValue("model", cfg.Model)
	for _, msg := range messages {
		a.printer.Heading(string(msg.Role))
		a.printer.Markdown(strings.TrimSpace(msg.Text))
	}
	if len(messages) == 0 {
		a.printer.Info(fmt.Sprintf("%s holds no messages", path))
	}
	return nil
}
