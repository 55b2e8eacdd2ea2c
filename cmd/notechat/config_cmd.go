package main

import (
	"strings"

	"github.com/spf13/cobra"

	"notechat/internal/output"
	"notechat/internal/version"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the settings file path and every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.printer.KeyValue("file", a.config.ConfigPath())
			for _, line := range a.config.AllSettings() {
				key, value, _ := strings.Cut(line, " = ")
				a.printer.KeyValue(key, value)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting and save the settings file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.config.Set(args[0], args[1]); err != nil {
				return err
			}
			a.printer.Success(args[0] + " saved")
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func newVersionCmd() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if detailed {
				output.Println(version.GetDetailedVersion())
				return
			}
			output.Println(version.GetFormattedVersion())
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Include build and runtime details")
	return cmd
}
