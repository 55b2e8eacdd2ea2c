// Package main provides the notechat CLI application entry point.
// notechat holds LLM conversations inside Markdown notes: each command works
// on a note the way an editor command would.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"notechat/internal/logger"
	"notechat/internal/output"
	"notechat/internal/version"
)

// options holds the global flags.
type options struct {
	logLevel      string
	logFile       string
	configDir     string
	vault         string
	debugHTTP     string
	createFolders bool
	plain         bool
	json          bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		output.Error(err.Error())
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags are bound to viper so they can
// also come from NOTECHAT_* environment variables.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "notechat",
		Short: "notechat - chat with LLMs inside Markdown notes",
		Long: `notechat keeps a conversation with an LLM inside a Markdown note.
The note's frontmatter configures the model; horizontal rules separate the turns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: warn]")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.StringVar(&opts.configDir, "config-dir", "", "Directory holding config.yaml and .env [default: user config dir]")
	flags.StringVar(&opts.vault, "vault", "", "Vault root that links and chat folders resolve against [default: settings or working directory]")
	flags.StringVar(&opts.debugHTTP, "debug-http", "", "Append every provider HTTP exchange as JSON to this file")
	flags.BoolVar(&opts.createFolders, "create-folders", false, "Create missing chat and template folders")
	flags.BoolVar(&opts.plain, "plain", false, "Disable colours and markdown rendering")
	flags.BoolVar(&opts.json, "json", false, "Print messages as JSON lines")

	v := viper.New()
	v.SetEnvPrefix("notechat")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"log-level", "log-file", "config-dir", "vault", "debug-http", "create-folders", "plain", "json"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd, v, opts)
	}

	rootCmd.AddCommand(
		newChatCmd(opts),
		newTitleCmd(opts),
		newDividerCmd(opts),
		newCommentCmd(opts),
		newClearCmd(opts),
		newShowCmd(opts),
		newNewCmd(opts),
		newTemplateCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// initConfig resolves flags through viper and configures logging and output.
func initConfig(cmd *cobra.Command, v *viper.Viper, opts *options) error {
	opts.logLevel = v.GetString("log-level")
	opts.logFile = v.GetString("log-file")
	opts.configDir = v.GetString("config-dir")
	opts.vault = v.GetString("vault")
	opts.debugHTTP = v.GetString("debug-http")
	opts.createFolders = v.GetBool("create-folders")
	opts.plain = v.GetBool("plain")
	opts.json = v.GetBool("json")

	if err := logger.Configure(opts.logLevel, opts.logFile); err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}
	if err := version.ValidateVersion(); err != nil {
		logger.Warn("Build version is not a semantic version", "error", err)
	}

	printerOpts := []output.Option{output.WithWriter(cmd.OutOrStdout())}
	if opts.plain || !output.SupportsColor() {
		printerOpts = append(printerOpts, output.PlainText())
	} else {
		printerOpts = append(printerOpts, output.WithStyles(output.DefaultTheme()))
	}
	if opts.json {
		printerOpts = append(printerOpts, output.JSON())
	}
	output.ConfigureGlobal(printerOpts...)
	return nil
}
