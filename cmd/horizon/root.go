package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"horizon/internal/api"
	"horizon/internal/auth"
	"horizon/internal/chat/stream"
	"horizon/internal/config"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/logging"
	"horizon/internal/observability"
	"horizon/internal/payload"
)

var version = "dev"

// Color helpers shared by every command.
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// app bundles everything a command needs: configuration, credentials, the
// REST client and the streaming transport.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	creds     *auth.FileStore
	hooks     auth.Hooks
	client    *api.Client
	transport *stream.Transport
	registry  *payload.Registry
	tracing   *observability.TracerProvider
}

func (a *app) close() {
	if a.tracing != nil {
		_ = a.tracing.Shutdown(context.Background())
	}
	if closer, ok := a.logger.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("api_url"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}

	logger := logging.NewComponentLogger("CLI")
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	creds, err := auth.NewFileStore(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	hooks := auth.Hooks{
		SessionExpired: func() {
			fmt.Fprintln(os.Stderr, yellow("Your session has expired. Run `horizon login` to sign in again."))
		},
		TokenRefreshed: func(string) {
			logger.Debug("bearer token rotated by server")
		},
	}

	client, err := api.New(api.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		CacheSize: cfg.CacheSize,
		Retry:     horizonerrors.DefaultRetryConfig(),
	}, creds, hooks, logger)
	if err != nil {
		return nil, err
	}

	tracing, err := observability.NewTracerProvider(observability.TracingConfig{
		Enabled:        cfg.OTLPEndpoint != "",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ServiceName:    "horizon",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		creds:     creds,
		hooks:     hooks,
		client:    client,
		transport: stream.NewTransport(cfg.APIBaseURL, nil, creds, hooks, logger),
		registry:  payload.NewRegistry(logger),
		tracing:   tracing,
	}
	if err := payload.RegisterBuiltins(a.registry, client, !color.NoColor); err != nil {
		return nil, err
	}
	return a, nil
}

// requireLogin fails fast with a hint instead of letting the first request
// 401.
func (a *app) requireLogin() error {
	if a.creds.Token() == "" {
		return fmt.Errorf("not signed in, run `horizon login` first")
	}
	return nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "horizon",
		Short:         "Terminal client for Knowledge Horizon",
		Long:          "Chat with your research assistant, manage research streams and administer your organization from the terminal.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool("no_color") || !isTTY() {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ~/.horizon/config.yaml)")
	flags.String("api-url", "", "backend base URL")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("no-color", false, "disable colored output")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("no_color", flags.Lookup("no-color"))
	viper.SetEnvPrefix("HORIZON")
	viper.AutomaticEnv()

	root.AddCommand(newLoginCommand())
	root.AddCommand(newLogoutCommand())
	root.AddCommand(newWhoamiCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newStreamsCommand())
	root.AddCommand(newOrgCommand())
	root.AddCommand(newChatsCommand())
	root.AddCommand(newAdminCommand())
	root.AddCommand(newDevServerCommand())

	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCommand().Execute()
}
