package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ngld/pkgbuild/pkg"
	"github.com/ngld/pkgbuild/pkg/build"
	"github.com/ngld/pkgbuild/pkg/project"
)

var buildCmd = &cobra.Command{
	Use:   "build [rollup args...]",
	Short: "Builds all configured targets",
	Long: `Builds every target listed in the package's tsds options (cjs and esm by default).
Extra arguments are passed to rollup when the umd target is built.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("concurrency") {
			e.settings.Concurrency, err = flags.GetInt("concurrency")
			if err != nil {
				return err
			}

			err = e.settings.Validate()
			if err != nil {
				return err
			}
		}

		targets, err := flags.GetStringSlice("target")
		if err != nil {
			return err
		}

		noProgress, err := flags.GetBool("no-progress")
		if err != nil {
			return err
		}

		cfg, err := project.Load(e.ctx, e.cwd)
		if err != nil {
			return e.fail(err, "Failed to load the package configuration")
		}

		targets = build.Targets(cfg, targets)
		pkg.PrintTask(fmt.Sprintf("Building %s (%d targets)", cfg.Package.Name, len(targets)))

		bar := getProgressBar(len(targets), noProgress)
		err = build.Build(e.ctx, args, build.Options{
			Cwd:         e.cwd,
			Concurrency: e.settings.Concurrency,
			Targets:     targets,
			Config:      cfg,
			UMD:         e.umdOptions(),
			OnTarget: func(target string, err error) {
				if err == nil {
					bar.Describe(target + " done")
				} else {
					bar.Describe(target + " failed")
				}
				bar.Add(1)
			},
		})
		bar.Finish()

		if err != nil {
			return e.fail(err, "Build failed")
		}

		pkg.PrintSubtask("Done")
		return nil
	},
}

func getProgressBar(length int, hidden bool) *progressbar.ProgressBar {
	if hidden || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription("Building"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().IntP("concurrency", "j", 1, "number of targets built in parallel")
	buildCmd.Flags().StringSliceP("target", "t", nil, "only build the given targets (cjs, esm or umd)")
	buildCmd.Flags().Bool("no-progress", false, "hide the progress bar")
}
