package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathoo/talecore/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check a game directory for errors",
	Long:  `Loads and compiles a game directory, reporting every definition error and warning without starting a session.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := defaultGameDir
		if len(args) > 0 {
			dir = args[0]
		}
		defs, warnings, err := loader.LoadWithWarnings(dir)
		out := cmd.OutOrStdout()
		for _, w := range warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(out, "%s (%s v%s): %d variables, %d triggers. Game is valid.\n",
			defs.Game.Title, defs.Game.ID, defs.Game.Version, len(defs.Order), len(defs.Triggers))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
