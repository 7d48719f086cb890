package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the rail configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [rail.yaml]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			_, resolved, err := config.Resolve("")
			if err != nil {
				return err
			}
			if resolved == "" {
				return errors.New("no configuration file found; pass a path")
			}
			path = resolved
		}

		_, errs := config.ValidateFile(path)
		if len(errs) > 0 {
			w := cmd.ErrOrStderr()
			fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(errs))
			for i, e := range errs {
				fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(w, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errs))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", path)
		return nil
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of rail.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.GenerateJSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSchemaCmd)
}
