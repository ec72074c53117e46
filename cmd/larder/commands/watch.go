package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/watch"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchKind         string
	watchPrefix       string
	watchWait         bool
	watchTimeout      time.Duration
	watchSubject      subjectFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor entries being stored and invalidated",
	Long: `Stream entry events of the namespace as they occur.

With --wait, block instead until an entry of --kind exists for the subject
and print it.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch everything
  larder watch

  # Only one user's compatibility entries
  larder watch --kind compatibility --prefix pair:s1

  # Wait up to a minute for an insights entry
  larder watch --wait --kind insights --user i1 --role investor --timeout 1m`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchKind, "kind", "", "Only events of this kind")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "Only events whose subject key starts with this prefix")
	watchCmd.Flags().BoolVar(&watchWait, "wait", false, "Wait for one entry instead of streaming")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 30*time.Second, "How long --wait blocks")
	watchSubject.register(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	var kind larder.Kind
	if watchKind != "" {
		k, err := parseKind(watchKind)
		if err != nil {
			return printer.Error("invalid kind", err.Error(), nil)
		}
		kind = k
	}
	if watchWait && kind == "" {
		return printer.Error("--kind is required with --wait", "", nil)
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	if watchWait {
		entry, err := watch.PollForEntry(ctx, a.client, kind, watchSubject.subject(), watchTimeout)
		if err != nil {
			return printer.Error("no entry", err.Error(), nil)
		}
		return writeJSON(printer.Out, entry)
	}

	if outputFormat == watch.OutputFormatDefault {
		printer.Info("Watching namespace '%s' (Ctrl+C to stop)...\n", a.cfg.Namespace)
	}
	err = watch.StreamEntryEvents(ctx, a.client, watch.Filter{Kind: kind, SubjectPrefix: watchPrefix}, outputFormat, printer.Out)
	if err != nil && ctx.Err() == nil {
		return printer.Error("watch failed", err.Error(), nil)
	}
	return nil
}
