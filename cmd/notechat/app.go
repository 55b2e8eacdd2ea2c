package main

import (
	"fmt"
	"io"
	"os"

	"notechat/internal/logger"
	"notechat/internal/output"
	"notechat/internal/services"
	"notechat/internal/stream"
	"notechat/pkg/chattypes"
)

// app holds the services a command works with.
type app struct {
	config    *services.ConfigurationService
	vault     *services.VaultService
	clients   *services.ClientFactoryService
	titles    *services.TitleService
	templates *services.TemplateService
	chat      *services.ChatService
	printer   *output.Printer

	closers []func() error
}

// appOption adjusts how the services are built.
type appOption func(*appConfig)

type appConfig struct {
	echo  io.Writer
	watch bool
}

// withEcho mirrors streamed fragments to w while a chat runs.
func withEcho(w io.Writer) appOption {
	return func(c *appConfig) { c.echo = w }
}

// withWatch reloads the settings when the settings file changes while the
// command runs.
func withWatch() appOption {
	return func(c *appConfig) { c.watch = true }
}

// initializeServices registers every service in a fresh registry, in
// dependency order, and initializes them.
func initializeServices(opts *options, appOpts ...appOption) (*app, error) {
	var ac appConfig
	for _, o := range appOpts {
		o(&ac)
	}

	registry := services.NewRegistry()

	// Configuration is read first: the vault root may come from the settings.
	config := services.NewConfigurationService(opts.configDir, "")
	if err := config.Initialize(); err != nil {
		return nil, err
	}

	root := opts.vault
	if root == "" {
		root = config.Settings().VaultRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}

	printer := output.GetGlobalPrinter()
	var reconcilerOpts []stream.Option
	if ac.echo != nil {
		reconcilerOpts = append(reconcilerOpts, stream.WithEcho(ac.echo))
	}

	a := &app{
		config:  config,
		vault:   services.NewVaultService(root),
		printer: printer,
	}
	a.clients = services.NewClientFactoryService(config)
	a.titles = services.NewTitleService(a.vault, config)
	a.templates = services.NewTemplateService(a.vault, config, opts.createFolders)
	a.chat = services.NewChatService(config, a.vault, a.clients, a.titles, stream.NewReconciler(reconcilerOpts...), printer)

	for _, service := range []chattypes.Service{config, a.vault, services.NewDebugTransportService(), a.clients, a.titles, a.templates, a.chat} {
		if err := registry.RegisterService(service); err != nil {
			return nil, err
		}
	}
	if err := registry.InitializeAll(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if ac.watch {
		config.Watch()
	}

	if opts.debugHTTP != "" {
		debug, err := services.GetServiceAs[*services.DebugTransportService](registry, "debug-transport")
		if err != nil {
			return nil, err
		}
		file, err := os.OpenFile(opts.debugHTTP, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open debug log: %w", err)
		}
		debug.SetSink(file)
		a.clients.SetDebugTransport(debug.CreateTransport(nil))
		a.closers = append(a.closers, file.Close)
		logger.Debug("HTTP debug capture enabled", "file", opts.debugHTTP)
	}

	logger.Debug("Services initialized", "vault", a.vault.Root(), "config", config.ConfigPath())
	return a, nil
}

// Close releases files opened for the services.
func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn("Failed to close", "error", err)
		}
	}
}
