package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngld/pkgbuild/pkg"
	"github.com/ngld/pkgbuild/pkg/install"
	"github.com/ngld/pkgbuild/pkg/platform"
)

var installCmd = &cobra.Command{
	Use:   "install <package>",
	Short: "Installs the native optional dependency of a package for this platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		target, err := cmd.Flags().GetString("target")
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Checking %s for %s", args[0], target))
		err = e.installer().EnsureInstalled(e.ctx, install.Request{
			Name:   args[0],
			Target: target,
			Cwd:    e.cwd,
		})
		if err != nil {
			return e.fail(err, "Install failed")
		}

		pkg.PrintSubtask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().String("target", platform.Target(), "platform qualifier (i.e. linux-x64)")
}
