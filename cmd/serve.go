package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/api"
	"github.com/sells-group/food-access-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cached accessibility results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := []api.Option{
			api.WithMetrics(env.Metrics),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		}
		if cfg.Server.EnableRuns {
			opts = append(opts, api.WithRunner(env.Runner))
		}
		server := api.NewServer(env.Cache, env.Pipeline.Options(), opts...)

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Metrics),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("runs_enabled", cfg.Server.EnableRuns),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
