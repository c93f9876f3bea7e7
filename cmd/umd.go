package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/pkgbuild/pkg"
	"github.com/ngld/pkgbuild/pkg/umd"
)

var umdCmd = &cobra.Command{
	Use:   "umd [rollup args...]",
	Short: "Builds the UMD bundle with rollup",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		opts := e.umdOptions()
		if cmd.Flags().Changed("config-root") {
			opts.ConfigRoot, err = cmd.Flags().GetString("config-root")
			if err != nil {
				return err
			}
		}

		pkg.PrintTask("Building the UMD bundle")
		err = umd.Build(e.ctx, args, opts)
		if err != nil {
			return e.fail(err, "UMD build failed")
		}

		pkg.PrintSubtask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(umdCmd)
	umdCmd.Flags().String("config-root", "", "directory containing config.js and config.min.js")
}
