package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chronicle/editor/internal/auth"
	"chronicle/editor/internal/shell"
	"chronicle/editor/internal/workspace"
)

func newServeCmd(c *cli) *cobra.Command {
	var corsOrigin string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the embed HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			b, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			opts := shell.Options{
				Secret:     []byte(cfg.TokenSecret),
				Search:     b.search,
				Ready:      b.ready,
				CORSOrigin: corsOrigin,
				Factory: func(claims auth.Claims) (*workspace.Session, error) {
					return b.newSession(claims.Scope(), claims.Perm(), claims.DocID, workspace.NewBuffer(), nil)
				},
			}
			if b.history != nil {
				opts.History = b.history
			}
			api := shell.NewServer(opts)

			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Pages API listening on %s", cfg.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("shutdown error: %v", err)
			}
			api.Close(shutdownCtx)
			return nil
		},
	}
	cmd.Flags().StringVar(&corsOrigin, "cors-origin", "*", "Access-Control-Allow-Origin for the API")
	return cmd
}
