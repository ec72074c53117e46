package commands

import (
	"context"
	"time"

	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/records"
	"github.com/dyluth/larder/internal/timespec"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/spf13/cobra"
)

var (
	touchUser    string
	touchRecord  string
	touchAt      string
	touchDeleted bool
)

var touchCmd = &cobra.Command{
	Use:   "touch SOURCE",
	Short: "Record an upstream modification",
	Long: `Record that an upstream record changed, so artifacts depending on its
source are regenerated on their next request.

Sources: profile, extended_profile, documents, questionnaire, tasks,
matches, financials.

Examples:
  larder touch profile --user s1 --record p1
  larder touch documents --user s1 --record d7 --deleted
  larder touch matches --user i1 --record m3 --at 2h`,
	Args: cobra.ExactArgs(1),
	RunE: runTouch,
}

func init() {
	touchCmd.Flags().StringVar(&touchUser, "user", "", "Owner of the record (required)")
	touchCmd.Flags().StringVar(&touchRecord, "record", "", "Record ID (required)")
	touchCmd.Flags().StringVar(&touchAt, "at", "", "Modification time (duration ago or RFC3339, default now)")
	touchCmd.Flags().BoolVar(&touchDeleted, "deleted", false, "The record was deleted")
	_ = touchCmd.MarkFlagRequired("user")
	_ = touchCmd.MarkFlagRequired("record")
	rootCmd.AddCommand(touchCmd)
}

func runTouch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	at := time.Now()
	if touchAt != "" {
		t, err := timespec.Parse(touchAt, at)
		if err != nil {
			return printer.Error("invalid --at", err.Error(), nil)
		}
		at = t
	}

	rec := records.Record{
		UserID:    touchUser,
		Source:    larder.Source(args[0]),
		RecordID:  touchRecord,
		UpdatedAt: at,
	}
	if err := rec.Validate(); err != nil {
		return printer.Error("invalid record", err.Error(), nil)
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	if touchDeleted {
		err = a.records.Delete(ctx, rec.UserID, rec.Source, rec.RecordID, rec.UpdatedAt)
	} else {
		err = a.records.Touch(ctx, rec)
	}
	if err != nil {
		return printer.Error("failed to record modification", err.Error(), nil)
	}

	printer.Success("Recorded %s change of '%s' for %s\n", rec.Source, rec.RecordID, rec.UserID)

	live, err := a.records.Count(ctx, rec.UserID, rec.Source)
	if err != nil {
		return printer.Error("failed to count records", err.Error(), nil)
	}
	printer.Info("%d live %s record(s) for %s\n", live, rec.Source, rec.UserID)
	return nil
}
