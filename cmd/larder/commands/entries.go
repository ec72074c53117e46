package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/larder/internal/hoard"
	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/resolver"
	"github.com/dyluth/larder/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	entriesOutputFormat string
	entriesSince        string
	entriesUntil        string
	entriesKind         string
	entriesUser         string
	entriesState        string
)

var entriesCmd = &cobra.Command{
	Use:   "entries [ENTRY_ID]",
	Short: "Inspect cached entries with filtering",
	Long: `Inspect cached entries in list or get mode.

List Mode (no ENTRY_ID):
  Displays entries matching filters as a table or JSONL stream.

Get Mode (with ENTRY_ID):
  Displays the complete entry as pretty-printed JSON.
  Supports short IDs (e.g., "3f2a8c" instead of the full UUID).

Output Formats (list mode only):
  default - Human-readable table with ID, kind, subject, state and summary
  jsonl   - Line-delimited JSON, one entry per line

Filters (list mode only):
  --since  - Entries generated after this time (duration or RFC3339)
  --until  - Entries generated before this time
  --kind   - Kind glob pattern ("compat*", "*analysis")
  --user   - Entries whose subject involves this user
  --state  - fresh or expired

Examples:
  # Everything generated in the last two hours
  larder entries --since=2h

  # Expired entries of one user, for piping to jq
  larder entries --user=s1 --state=expired -o jsonl | jq .kind

  # One entry by short ID
  larder entries 3f2a8c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEntries,
}

func init() {
	entriesCmd.Flags().StringVarP(&entriesOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	entriesCmd.Flags().StringVar(&entriesSince, "since", "", "Show entries after time (duration or RFC3339)")
	entriesCmd.Flags().StringVar(&entriesUntil, "until", "", "Show entries before time (duration or RFC3339)")
	entriesCmd.Flags().StringVar(&entriesKind, "kind", "", "Filter by kind (glob pattern)")
	entriesCmd.Flags().StringVar(&entriesUser, "user", "", "Filter by involved user")
	entriesCmd.Flags().StringVar(&entriesState, "state", "", "Filter by state: fresh or expired")
	rootCmd.AddCommand(entriesCmd)
}

func runEntries(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	isGetMode := len(args) > 0

	var outputFormat hoard.OutputFormat
	switch entriesOutputFormat {
	case "default":
		outputFormat = hoard.OutputFormatDefault
	case "jsonl":
		outputFormat = hoard.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", entriesOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	var state hoard.State
	switch entriesState {
	case "":
		state = hoard.StateAny
	case "fresh":
		state = hoard.StateFresh
	case "expired":
		state = hoard.StateExpired
	default:
		return printer.Error(
			"invalid state",
			fmt.Sprintf("Unknown state: %s", entriesState),
			[]string{"Valid states: fresh, expired"},
		)
	}

	now := time.Now()
	created, err := timespec.ParseRange(entriesSince, entriesUntil, now)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration such as 2h or 3d, or an RFC3339 timestamp"},
		)
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	if isGetMode {
		entryID, err := resolver.ResolveEntryID(ctx, a.client, args[0])
		if err != nil {
			var amb *resolver.AmbiguousError
			switch {
			case errors.As(err, &amb):
				return printer.Error(
					fmt.Sprintf("ambiguous short ID '%s'", args[0]),
					fmt.Sprintf("Matches %d entries:\n%s", len(amb.Matches), amb.Candidates()),
					[]string{"Use a longer prefix to uniquely identify the entry."},
				)
			case resolver.IsNotFoundError(err):
				return entryNotFound(args[0], a.cfg.Namespace)
			}
			return printer.Error("invalid entry ID", err.Error(), nil)
		}

		if err := hoard.GetEntry(ctx, a.client, entryID, printer.Out); err != nil {
			if hoard.IsNotFound(err) {
				return entryNotFound(entryID, a.cfg.Namespace)
			}
			return printer.Error("failed to get entry", err.Error(), nil)
		}
		return nil
	}

	filters := &hoard.FilterCriteria{
		Created:  created,
		KindGlob: entriesKind,
		UserID:   entriesUser,
		State:    state,
	}
	if err := hoard.ListEntries(ctx, a.client, a.cfg.Namespace, outputFormat, filters, now, printer.Out, printer.ErrOut); err != nil {
		return printer.Error("failed to list entries", err.Error(), nil)
	}
	return nil
}

func entryNotFound(id, namespace string) error {
	return printer.Error(
		fmt.Sprintf("entry with ID '%s' not found", id),
		fmt.Sprintf("No entry exists in namespace '%s' with that ID.", namespace),
		[]string{"List entries:\n  larder entries"},
	)
}
