package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/eventscript/internal/app"
	"github.com/dshills/eventscript/internal/config"
	"github.com/dshills/eventscript/internal/logging"
)

// flags are the persistent command line overrides.
type flags struct {
	configPath string
	dataDir    string
	engine     string
	logLevel   string
	catalogs   []string
}

// errCheckFailed is returned by check when a catalog failed to load.
var errCheckFailed = errors.New("one or more catalogs failed to load")

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "eventsd",
		Short:         "Load scripted event catalogs and run them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "eventsd.toml", "Path to configuration file (.toml, .yaml)")
	root.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "Directory containing catalog directories")
	root.PersistentFlags().StringVar(&f.engine, "engine", "", "Scripting engine: gopher-lua|go-lua")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringSliceVar(&f.catalogs, "catalogs", nil, "Catalogs to load (comma separated)")

	root.AddCommand(
		newCheckCmd(f),
		newServeCmd(f),
		newSayCmd(f),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration file and applies flag overrides.
func (f *flags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.engine != "" {
		cfg.Engine = f.engine
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if len(f.catalogs) > 0 {
		cfg.Catalogs = f.catalogs
	}
	return cfg, cfg.Validate()
}

// setup builds the logger and the application. The returned cleanup closes
// both.
func (f *flags) setup(ctx context.Context) (*app.Application, context.Context, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.Logging())
	if err != nil {
		return nil, nil, nil, err
	}

	application, err := app.New(cfg, app.Options{Logger: logger})
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, err
	}

	ctx = logging.With(ctx, logger)
	cleanup := func() {
		if err := application.Close(); err != nil {
			logger.Error("closing application", "error", err)
		}
		_ = closeLog()
	}
	return application, ctx, cleanup, nil
}

func newCheckCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:     "check",
		Short:   "Load every catalog and print the load report",
		Example: "  eventsd check --data-dir ./data",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, ctx, cleanup, err := f.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			application.Start(ctx)
			reports, loadErr := application.LoadAll(ctx)

			out := cmd.OutOrStdout()
			failed := false
			for _, rep := range reports {
				if _, err := rep.WriteTo(out); err != nil {
					return err
				}
				failed = failed || rep.Failed() > 0
			}
			if loadErr != nil {
				fmt.Fprintf(out, "%v\n", loadErr)
				return errCheckFailed
			}
			if failed {
				fmt.Fprintln(out, "some events were discarded")
			}
			return nil
		},
	}
}

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load catalogs, run global events and reload on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, ctx, cleanup, err := f.setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return application.Serve(ctx)
		},
	}
}

func newSayCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:     "say <speaker> <text...>",
		Short:   "Execute the talkaction matching text",
		Example: "  eventsd say alice '!online'",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, cleanup, err := f.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			application.Start(ctx)
			if _, err := application.LoadAll(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			text := strings.Join(args[1:], " ")
			handled, err := application.Say(ctx, args[0], text)
			if err != nil {
				return err
			}
			if handled {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: handled\n", text)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not handled\n", text)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "eventsd %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
