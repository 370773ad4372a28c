// Command filyd is the fily server entrypoint: load configuration, wire
// the storage/crypto/auth layers together, bind the chi router, and
// serve with a graceful shutdown on SIGINT/SIGTERM. Grounded on rclone's
// own cmd-level Options/newServer/Router/Bind/Serve lifecycle
// (cmd/serve/s3/s3_test.go's serveS3 helper) with spf13/cobra as the CLI
// shell, matching rclone's own top-level command tree.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fritsstegmann/fily/internal/cryptoengine"
	"github.com/fritsstegmann/fily/internal/filyconfig"
	"github.com/fritsstegmann/fily/internal/httpmw"
	"github.com/fritsstegmann/fily/internal/metadata"
	"github.com/fritsstegmann/fily/internal/s3api"
	"github.com/fritsstegmann/fily/internal/sigv4"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagOverrides holds CLI-flag values that take precedence over the
// equivalent environment variable, matching rclone's own convention of
// layering pflag-bound flags over env-sourced defaults.
type flagOverrides struct {
	location string
	port     int
	address  string
	logLevel string
}

func newRootCommand() *cobra.Command {
	var flags flagOverrides
	cmd := &cobra.Command{
		Use:   "filyd",
		Short: "fily is an S3-compatible object storage server backed by a local filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.location, "location", "", "storage root (overrides FILY_LOCATION)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "listen port (overrides FILY_PORT)")
	cmd.Flags().StringVar(&flags.address, "address", "", "listen address (overrides FILY_ADDRESS)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides FILY_LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, flagSet *pflag.FlagSet, flags flagOverrides) error {
	cfg, err := filyconfig.Load(filyconfig.Getenv)
	if err != nil {
		return fmt.Errorf("filyd: invalid configuration: %w", err)
	}
	if flagSet.Changed("location") {
		cfg.Location = flags.location
	}
	if flagSet.Changed("port") {
		cfg.Port = flags.port
	}
	if flagSet.Changed("address") {
		cfg.Address = flags.address
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}

	log := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.Location, 0o700); err != nil {
		return fmt.Errorf("filyd: cannot prepare storage root %q: %w", cfg.Location, err)
	}

	var engine *cryptoengine.Engine
	if cfg.EncryptionEnabled {
		engine, err = cryptoengine.New(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("filyd: cannot initialize encryption engine: %w", err)
		}
	}

	region := "us-east-1"
	if len(cfg.Credentials) > 0 {
		region = cfg.Credentials[0].Region
	}

	store := s3api.NewObjectStore(cfg.Location, metadata.New(cfg.Location), engine)
	handlers := s3api.NewHandlers(store, log, region)

	credStore := sigv4.NewCredentialStore(cfg.Credentials)
	validator := sigv4.NewValidator(credStore)

	router := chi.NewRouter()
	router.Use(httpmw.Recoverer(log))
	router.Use(httpmw.RequestLogger(log))
	router.Use(httpmw.Auth(validator, cfg.MaxBodyBytes, log))
	handlers.Mount(router)

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("filyd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("filyd: server error: %w", err)
	case <-sigCh:
		log.Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
