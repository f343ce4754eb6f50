package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/app"
	"github.com/kapu/phantom-panel/internal/config"
	"github.com/kapu/phantom-panel/internal/util"
	"github.com/kapu/phantom-panel/pkg/errors"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "panel",
	Short:         "Phantom Panel synthetic focus groups",
	Long:          `Runs moderated focus-group tests against synthetic consumer personas.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	rootCmd.AddCommand(createCmd, runCmd, cancelCmd, transcriptCmd, archetypesCmd, briefCmd, skepticismCmd, migrateCmd)
}

func main() {
	ctx, stop := signalContext()
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell bad input from a missing test or a panel that
// was too small to analyse.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsValidation(err):
		return 2
	case errors.IsNotFound(err):
		return 3
	case errors.IsInsufficientPanel(err):
		return 4
	case stderrors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so a running test can
// persist its cancelled state before exit.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "Received %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// buildContainer assembles the full service graph with a bounded startup.
func buildContainer(ctx context.Context) (*app.Container, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	defer buildCancel()

	container, err := app.Build(buildCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		_ = logger.Sync()
		return nil, err
	}
	return container, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
