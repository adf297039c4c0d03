package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frudas24/farmdeck/internal/app"
	"github.com/frudas24/farmdeck/internal/config"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/frudas24/farmdeck/internal/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	staticDir string
	sync      bool
}

// newServeCmd builds the serve command.
func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the viewer server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.staticDir, "static", "", "Serve the UI from this directory instead of the embedded copy")
	cmd.Flags().BoolVar(&opts.sync, "sync", false, "Refresh the inventory from the provider at startup")
	return cmd
}

// runServe wires the application and blocks until ctx is cancelled.
func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, root.debug); err != nil {
		return err
	}
	log := logging.For("serve")
	logStartup(log, cfg)

	sess, err := session.New(cfg.UIPassword)
	if err != nil {
		return err
	}
	sess.SetToken(cfg.ProviderToken)

	client, err := provider.NewClient(cfg.ProviderURL, sess.Token, provider.WithTimeout(cfg.RequestTimeout()))
	if err != nil {
		return err
	}

	devices, err := inventory.Load(cfg.InventoryPath)
	if err != nil {
		return err
	}
	registry := inventory.NewRegistry(devices...)
	if opts.sync {
		if _, err := inventory.Sync(ctx, client, registry, cfg.InventoryPath); err != nil {
			log.Warnf("inventory sync failed: %v", err)
		}
	}
	log.WithField("devices", registry.Len()).Info("inventory loaded")

	go func() {
		if err := inventory.Watch(ctx, cfg.InventoryPath, registry); err != nil {
			log.Warnf("inventory watch stopped: %v", err)
		}
	}()

	appInstance, err := app.New(cfg, sess, registry, client)
	if err != nil {
		return err
	}
	defer appInstance.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           appInstance.Router(opts.staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// logStartup prints startup checks and connection info.
func logStartup(log *logrus.Entry, cfg config.Config) {
	log.Info("farmdeck starting")
	envPath := filepath.Join(cfg.DataDir, ".env")
	if fileExists(envPath) {
		log.Infof("env check: ok (%s)", envPath)
	} else {
		log.Infof("env check: missing (%s)", envPath)
	}
	log.Infof("provider: %s", cfg.ProviderURL)
	if cfg.ProviderToken == "" {
		log.Warn("PROVIDER_TOKEN is empty; gestures prompt for a token until one is set")
	}
	log.Infof("inventory: %s", cfg.InventoryPath)
	logListenStatus(log, cfg.ListenAddr)
}

// logListenStatus reports the listen address and a local URL helper.
func logListenStatus(log *logrus.Entry, addr string) {
	log.Infof("listen addr: %s", addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	log.Infof("local url: http://%s", net.JoinHostPort(host, port))
}

// fileExists reports whether a path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
