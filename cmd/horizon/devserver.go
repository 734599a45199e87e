package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"horizon/internal/devserver"
	"horizon/internal/logging"
)

func newDevServerCommand() *cobra.Command {
	cfg := devserver.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "devserver",
		Aliases: []string{"dev-server"},
		Short:   "Run a local stub backend",
		Long: "Serve a scripted Knowledge Horizon backend on localhost for development.\n" +
			"Point the client at it with HORIZON_API_URL=http://localhost:8787 and any token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewComponentLogger("DevServer")
			defer func() { _ = logger.Close() }()

			server, err := devserver.New(cfg, logger)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			fmt.Printf("%s Stub backend on %s (metrics on /metrics)\n", green("✓"), bold("http://"+cfg.Addr))

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-sigs:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "verbose request logging")
	cmd.Flags().DurationVar(&cfg.ChunkDelay, "chunk-delay", cfg.ChunkDelay, "delay between SSE frames")
	cmd.Flags().IntVar(&cfg.RefreshEvery, "refresh-every", cfg.RefreshEvery, "rotate the bearer token every N requests (0 disables)")
	return cmd
}
