package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/acorndb/pkg/canopy"
	"github.com/cuemby/acorndb/pkg/config"
	"github.com/cuemby/acorndb/pkg/grove"
	"github.com/cuemby/acorndb/pkg/log"
)

// Exit codes per the bootstrap contract: 0 success, 1 generic failure,
// 2 configuration error, 3 storage-unavailable on startup.
const (
	exitOK             = 0
	exitGenericFailure = 1
	exitConfigError    = 2
	exitStorageError   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	var exitErr exitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.code
	}
	return exitGenericFailure
}

func asExitError(err error, target *exitError) bool {
	e, ok := err.(exitError)
	if !ok {
		return false
	}
	*target = e
	return true
}

// exitError carries a specific bootstrap exit code through cobra's plain
// error-returning RunE signature.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{Addr: addr, Handler: handler}
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

var rootCmd = &cobra.Command{
	Use:   "acorn",
	Short: "AcornDB node bootstrap",
	Long: `acorn starts a single AcornDB node: its HTTP Grove surface,
UDP discovery, and, when auto-connect is enabled, auto-mesh formation.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this node's Grove HTTP surface and Canopy discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return exitError{code: exitConfigError, err: err}
		}

		if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
			return exitError{code: exitStorageError, err: fmt.Errorf("prepare storage path %s: %w", cfg.StoragePath, err)}
		}

		g := grove.New()
		defer g.Close()

		cp, err := canopy.New(g, canopy.Options{
			DiscoveryPort: cfg.DiscoveryPort,
			HTTPPort:      cfg.Port,
			AutoConnect:   cfg.AutoConnect,
		})
		if err != nil {
			return exitError{code: exitGenericFailure, err: err}
		}
		cp.Start()
		defer cp.Stop()

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := newHTTPServer(addr, g.Handler())
		errCh := make(chan error, 1)
		go func() {
			if err := serve(srv); err != nil {
				errCh <- err
			}
		}()

		log.Logger.Info().Int("port", cfg.Port).Int("discovery_port", cfg.DiscoveryPort).Msg("acorn node started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			return exitError{code: exitGenericFailure, err: err}
		}

		return shutdown(srv)
	},
}

