package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/ngld/pkgbuild/pkg/project"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Prints the resolved package configuration as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}

		path, err := cmd.Flags().GetString("get")
		if err != nil {
			return err
		}

		cfg, err := project.Load(e.ctx, e.cwd)
		if err != nil {
			return e.fail(err, "Failed to load the package configuration")
		}

		data, err := json.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "failed to encode the configuration")
		}

		if path != "" {
			value := gjson.GetBytes(data, path)
			if !value.Exists() {
				return eris.Errorf("%s is not set", path)
			}

			if value.Type == gjson.String {
				fmt.Fprintln(cmd.OutOrStdout(), value.String())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), value.Get("@pretty").String())
			}
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), gjson.GetBytes(data, "@pretty").String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().String("get", "", "only print the value at this path (i.e. tsconfig.resolved.compilerOptions.target)")
}
