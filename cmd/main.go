package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/pkgbuild/pkg"
	"github.com/ngld/pkgbuild/pkg/buildlog"
	"github.com/ngld/pkgbuild/pkg/install"
	"github.com/ngld/pkgbuild/pkg/settings"
	"github.com/ngld/pkgbuild/pkg/shell"
	"github.com/ngld/pkgbuild/pkg/umd"
)

var rootCmd = &cobra.Command{
	Use:   "pkgbuild",
	Short: "Builds npm packages",
	Long: `pkgbuild builds the cjs, esm and umd targets of an npm package.
The cjs and esm targets are transpiled with esbuild, the umd bundle is built with rollup.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// loggedError marks errors that were already reported through the logger
type loggedError struct {
	error
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("cwd", "", "package directory (defaults to the closest directory with a package.json)")
	flags.String("log-level", "", "log level (debug, info, warn or error)")
	flags.Bool("log-json", false, "output JSONND instead of pretty console messages")
}

// env bundles everything a command needs after the settings were loaded
type env struct {
	ctx      context.Context
	settings *settings.Settings
	cwd      string
	runner   *shell.Runner
}

func setup(cmd *cobra.Command) (*env, error) {
	cwd, err := cmd.Flags().GetString("cwd")
	if err != nil {
		return nil, err
	}

	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "failed to determine the working directory")
		}

		cwd, err = pkg.FindPackageRoot(wd)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := settings.Load(cwd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return nil, err
		}

		err = cfg.SetLogLevel(level)
		if err != nil {
			return nil, err
		}
	}

	if flags.Changed("log-json") {
		cfg.Log.JSON, err = flags.GetBool("log-json")
		if err != nil {
			return nil, err
		}
	}

	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(buildlog.NewConsoleWriter())
	}
	logger = logger.Level(cfg.LogLevel())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &env{
		ctx:      buildlog.WithLogger(ctx, &logger),
		settings: cfg,
		cwd:      cwd,
		runner:   shell.NewRunner(2 * time.Second),
	}, nil
}

func (e *env) installer() *install.Installer {
	return install.New(e.runner, install.Options{
		NPM:    e.settings.NPM.Binary,
		Window: e.settings.Install.Window,
	})
}

func (e *env) umdOptions() umd.Options {
	return umd.Options{
		Cwd:            e.cwd,
		ConfigRoot:     e.settings.UMD.ConfigRoot,
		Node:           e.settings.Node.Binary,
		NodeConstraint: e.settings.Node.Require,
		Runner:         e.runner,
		Installer:      e.installer(),
	}
}

// fail logs err and marks it as reported
func (e *env) fail(err error, msg string) error {
	buildlog.Log(e.ctx).Error().Err(err).Msg(msg)
	return loggedError{err}
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		if _, ok := err.(loggedError); !ok {
			pkg.PrintError(eris.ToString(err, os.Getenv(buildlog.DebugEnv) != ""))
		}
		os.Exit(1)
	}
}
