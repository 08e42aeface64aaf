package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/api"
	"github.com/goliatone/go-user-cache/pkg/config"
	"github.com/goliatone/go-user-cache/pkg/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "usersd",
		Short:         "Serve the users API backed by a read-through cache",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("addr", "", "HTTP listen address (HTTP_ADDR)")
	flags.String("database-url", "", "database URL (DATABASE_URL)")
	flags.String("redis-url", "", "redis URL (REDIS_URL)")
	flags.String("cache-backend", "", "cache backend: redis or memory (CACHE_BACKEND)")
	flags.String("cache-ttl", "", "cache entry TTL, e.g. 60s (CACHE_TTL)")
	flags.String("log-level", "", "log level: debug, info, warn, error (LOG_LEVEL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return cmd
}

// loadConfig layers flags that were set explicitly over the file and
// environment configuration.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg := config.Default()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("addr", &cfg.HTTP.Addr)
	set("database-url", &cfg.Database.URL)
	set("redis-url", &cfg.Cache.RedisURL)
	set("cache-backend", &cfg.Cache.Backend)
	set("log-level", &cfg.Log.Level)

	if flags.Changed("cache-ttl") {
		raw, _ := flags.GetString("cache-ttl")
		ttl, err := config.ParseDuration(raw)
		if err != nil {
			return cfg, errors.Wrap(err, "--cache-ttl")
		}
		cfg.Cache.TTL = config.Duration(ttl)
	}

	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := di.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := container.Init(ctx); err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	e := api.NewServer(container.Users(), container, logger)
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout.Std()
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout.Std()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), zap.String("version", Version))
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()

	if serr := e.Shutdown(shutdownCtx); serr != nil {
		err = errors.CombineErrors(err, errors.Wrap(serr, "http shutdown"))
	}
	if serr := container.Shutdown(shutdownCtx); serr != nil {
		err = errors.CombineErrors(err, serr)
	}
	return err
}
