package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ngld/pkgbuild/pkg/posix"
)

func posixCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:                name,
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}

			return posix.Run(wd, append([]string{name}, args...), os.Stderr)
		},
	}
}

func init() {
	rootCmd.AddCommand(posixCommand("mv", "Cross-platform implementation of the POSIX mv command"))
	rootCmd.AddCommand(posixCommand("rm", "A cross-platform implementation of the POSIX rm command"))
	rootCmd.AddCommand(posixCommand("mkdir", "A cross-platform implementation of the POSIX mkdir command"))
}
