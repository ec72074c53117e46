package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/generator"
	"github.com/dyluth/larder/internal/printer"
	"github.com/spf13/cobra"
)

var (
	requestSubject      subjectFlags
	requestInputs       string
	requestUser         string
	requestTaskCategory string
	requestForce        bool
	requestOutput       string
)

var requestCmd = &cobra.Command{
	Use:   "request KIND",
	Short: "Request an artifact through the recomputation gate",
	Long: `Request an artifact the same way the HTTP API does.

A cached entry is served when it is within its lifetime and none of the
upstream sources it depends on changed since it was generated. Otherwise a
regeneration is charged against the requesting user's daily quota.

Inputs are read as JSON from --inputs (a file, or "-" for stdin).

Examples:
  # Compatibility of a pair, seen by the startup
  larder request compatibility --startup s1 --investor i1 --perspective startup --inputs pair.json

  # Dashboard insights of an investor
  larder request insights --user i1 --role investor --inputs dashboard.json

  # Full result as JSON
  larder request task_verification --user s1 --scope t9 --inputs task.json -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

func init() {
	requestSubject.register(requestCmd)
	requestCmd.Flags().StringVarP(&requestInputs, "inputs", "i", "", "Generation inputs as JSON (file path or - for stdin)")
	requestCmd.Flags().StringVar(&requestUser, "charge", "", "User charged for a regeneration (defaults to the requesting party)")
	requestCmd.Flags().StringVar(&requestTaskCategory, "task-category", "", "Task category for task_verification freshness")
	requestCmd.Flags().BoolVar(&requestForce, "force", false, "Skip the cached entry (still quota-gated)")
	requestCmd.Flags().StringVarP(&requestOutput, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	kind, err := parseKind(args[0])
	if err != nil {
		return printer.Error("invalid kind", err.Error(), nil)
	}
	if requestOutput != "default" && requestOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", requestOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	inputs, err := readInputs(requestInputs, cmd.InOrStdin())
	if err != nil {
		return printer.Error("invalid inputs", err.Error(), []string{"Pass generation inputs with --inputs <file>"})
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.gate.Request(ctx, gate.Request{
		Kind:         kind,
		Subject:      requestSubject.subject(),
		UserID:       requestUser,
		Inputs:       inputs,
		TaskCategory: requestTaskCategory,
		Force:        requestForce,
	})
	if err != nil {
		return requestError(err)
	}

	if requestOutput == "json" {
		return writeJSON(printer.Out, res)
	}
	printer.Outcome(res)
	return writeJSON(printer.Out, res.Artifact)
}

func requestError(err error) error {
	var qe *gate.QuotaExceededError
	if errors.As(err, &qe) {
		return printer.ErrorWithContext(
			"daily limit reached",
			qe.Error(),
			map[string]string{
				"Kind":   string(qe.Kind),
				"Limit":  fmt.Sprintf("%d", qe.Limit),
				"Resets": qe.ResetAt.Format("2006-01-02 15:04 MST"),
			},
			[]string{"Try again tomorrow, or raise kinds.<kind>.daily_limit in larder.yml"},
		)
	}
	return printer.Error("request failed", err.Error(), nil)
}

// readInputs decodes generation inputs from a file, or stdin for "-".
func readInputs(source string, stdin io.Reader) (generator.Inputs, error) {
	var in generator.Inputs
	if source == "" {
		return in, fmt.Errorf("--inputs is required")
	}

	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return in, fmt.Errorf("failed to read inputs: %w", err)
	}

	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("failed to parse inputs: %w", err)
	}
	return in, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
