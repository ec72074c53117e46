package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/spf13/cobra"
)

var usageOutput string

var usageCmd = &cobra.Command{
	Use:   "usage USER_ID",
	Short: "Show a user's daily generation quota usage",
	Long: `Show how many generations of each kind a user has been charged today.

Counters roll over at midnight in the configured timezone. Peeking never
consumes quota.

Examples:
  larder usage s1
  larder usage s1 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVarP(&usageOutput, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userID := args[0]

	if err := (larder.Subject{UserID: userID}).Validate(); err != nil {
		return printer.Error("invalid user ID", err.Error(), nil)
	}
	if usageOutput != "default" && usageOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", usageOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	usage, err := a.ledger.PeekAll(ctx, userID)
	if err != nil {
		return printer.Error("failed to read quota usage", err.Error(), nil)
	}

	if usageOutput == "json" {
		return writeJSON(printer.Out, usage)
	}
	printer.Usage(userID, usage)
	return nil
}
