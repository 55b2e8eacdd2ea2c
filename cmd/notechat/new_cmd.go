package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"notechat/internal/output"
)

func newNewCmd(opts *options) *cobra.Command {
	var (
		fromClipboard bool
		fromStdin     bool
		templateName  string
	)

	cmd := &cobra.Command{
		Use:   "new [text]",
		Short: "Create a new chat note",
		Long: `Create a new chat note in the chat folder, named after the current date.
The note gets the default frontmatter followed by the given text, the clipboard
or standard input. With --template the note is a copy of a chat template.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if templateName != "" {
				path, err := a.templates.FromTemplate(templateName)
				if err != nil {
					return err
				}
				a.printer.Println(path)
				return nil
			}

			var selection string
			switch {
			case len(args) == 1:
				selection = args[0]
			case fromClipboard:
				selection, err = readClipboard()
			case fromStdin:
				var data []byte
				data, err = io.ReadAll(cmd.InOrStdin())
				selection = string(data)
			}
			if err != nil {
				return err
			}

			path, err := a.templates.NewChat(selection)
			if err != nil {
				return err
			}
			a.printer.Println(path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "Start the chat with the clipboard text")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Start the chat with standard input")
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Copy the named chat template")
	cmd.MarkFlagsMutuallyExclusive("clipboard", "stdin", "template")
	return cmd
}

func newTemplateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Work with chat templates",
	}

	var width int
	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List chat templates whose name contains query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			templates, err := a.templates.List(query)
			if err != nil {
				return err
			}
			if len(templates) == 0 {
				a.printer.Info("No chat templates found")
				return nil
			}
			for _, tmpl := range templates {
				a.printer.Println(output.Truncate(tmpl.Name, width))
			}
			return nil
		},
	}
	list.Flags().IntVar(&width, "width", 60, "Truncate names to this width")

	use := &cobra.Command{
		Use:   "use <name>",
		Short: "Create a new chat from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := a.templates.FromTemplate(strings.TrimSuffix(args[0], ".md"))
			if err != nil {
				return fmt.Errorf("failed to create chat: %w", err)
			}
			a.printer.Println(path)
			return nil
		},
	}

	cmd.AddCommand(list, use)
	return cmd
}
