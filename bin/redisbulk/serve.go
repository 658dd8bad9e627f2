package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/bulk"
	"github.com/joomcode/redisbulk/databases"
	"github.com/joomcode/redisbulk/server"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve bulk actions over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			log, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := databases.NewPool(cfg.Databases, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			opts := cfg.Bulk.RegistryOpts()
			opts.Logger = log
			hub := server.NewHub(cfg.Server.Retention, log)
			registry := bulk.NewRegistry(pool, hub, opts)
			defer registry.Close()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.New(registry, hub, log).WithCORS(cfg.Server.CORSOrigins),
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Strings("databases", pool.IDs()))
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("http shutdown", zap.Error(err))
			}
			return nil
		},
	}
}
