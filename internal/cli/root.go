// Package cli implements the daedalus command
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/wehubfusion/Daedalus/internal/config"
	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/routes"
	"go.uber.org/zap"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by subcommands for one run
type app struct {
	configPath string
	debug      bool

	logger   *zap.Logger
	config   *config.Config
	reporter routes.Reporter
	closers  []func()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "daedalus",
		Short:        "Prerender bundled client applications at build time",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./"+config.DefaultFilename+" when present)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.AddCommand(renderCmd(a), routesCmd(a))
	return cmd
}

// run sets up logging, config, tracing and error reporting around fn and tears them down after
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.setup(ctx); err != nil {
		a.close()
		return err
	}
	defer a.close()
	return fn(ctx)
}

func (a *app) setup(ctx context.Context) error {
	logger, err := newLogger(a.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	a.closers = append(a.closers, concurrency.Initialize(logger))

	c, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.config = c

	shutdown, err := tracing.Setup(ctx, c.Tracing, logger)
	if err != nil {
		logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
	} else {
		a.closers = append(a.closers, func() { _ = tracing.Shutdown(shutdown, logger) })
	}

	if c.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         c.Sentry.DSN,
			Environment: c.Sentry.Environment,
		}); err != nil {
			logger.Warn("Failed to initialize sentry", zap.Error(err))
		} else {
			a.reporter = sentry.CurrentHub()
			a.closers = append(a.closers, func() { sentry.Flush(2 * time.Second) })
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// parent creates the client compilation prerender sub-builds are attached to
func (a *app) parent() (*build.Compilation, error) {
	options, err := a.config.Build.Options()
	if err != nil {
		return nil, err
	}
	compiler, err := build.NewCompiler("client", options, a.logger.Named("build"))
	if err != nil {
		return nil, err
	}
	return compiler.NewCompilation(), nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	c, err := config.Load(filepath.Join(wd, config.DefaultFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(wd), nil
	}
	return c, err
}
