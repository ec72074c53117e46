package commands

import (
	"path/filepath"

	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Initialize a larder configuration",
	Long: `Write a commented larder.yml and the normalizer default tables
(defaults.yaml) to DIR, the current directory by default.

Use --force to overwrite an existing configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --config flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing larder.yml and defaults.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir = filepath.Clean(dir)

	if err := scaffold.Initialize(dir, forceInit); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(dir)
	return nil
}
