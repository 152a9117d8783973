package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "review-relay: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "review-relay",
		Short:         "Relay review decisions into a GitHub repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(envFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
	root.Flags().String("port", "3000", "listen port (overrides PORT)")

	check := &cobra.Command{
		Use:   "check-config",
		Short: "Validate and print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(envFile, nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Redacted())
		},
	}
	root.AddCommand(check)
	return root
}

// serve runs the relay until ctx is done, then drains in-flight requests
// within the shutdown timeout.
func serve(ctx context.Context, cfg *Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	var limiter Limiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("could not connect to redis (%s): %w", cfg.RedisAddr, err)
		}
		limiter = NewRedisLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)
		logger.Info("approve rate limit enabled",
			zap.Int("limit", cfg.RateLimit),
			zap.Duration("window", cfg.RateWindow),
		)
	}

	setupTracing()
	writer := NewContentsClient(cfg, nil, logger)
	handler := NewHandler(writer, logger)
	router := newRouter(handler, logger, parseAPIKeys(cfg.APIKeys), limiter)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newServerHandler(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is listening",
			zap.String("addr", server.Addr),
			zap.String("repository", cfg.GitHubUser+"/"+cfg.GitHubRepo),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newRouter wires the routes and middleware. Authentication applies to the
// decision endpoints when apiKeys is non-empty; the rate limit applies to
// approvals when limiter is non-nil.
func newRouter(h *Handler, logger *zap.Logger, apiKeys map[string]struct{}, limiter Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware(logger))
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	router.HandleFunc("/", h.handleRoot).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)

	var approve http.Handler = http.HandlerFunc(h.handleApprove)
	var reject http.Handler = http.HandlerFunc(h.handleReject)
	if limiter != nil {
		approve = rateLimitMiddleware(limiter, logger)(approve)
	}
	if len(apiKeys) > 0 {
		auth := authMiddleware(apiKeys)
		approve = auth(approve)
		reject = auth(reject)
	}
	router.Handle("/approve", approve).Methods(http.MethodPost)
	router.Handle("/reject", reject).Methods(http.MethodPost)
	return router
}
