package commands

import (
	"context"

	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/printer"
	"github.com/spf13/cobra"
)

var invalidateSubject subjectFlags

var invalidateCmd = &cobra.Command{
	Use:   "invalidate KIND",
	Short: "Drop the cached artifact of a subject",
	Long: `Drop the cached artifact of KIND for a subject, so the next request
regenerates it. Nothing happens when no entry exists.

Examples:
  larder invalidate compatibility --startup s1 --investor i1 --perspective startup
  larder invalidate insights --user i1 --role investor`,
	Args: cobra.ExactArgs(1),
	RunE: runInvalidate,
}

var (
	taskEditUser        string
	taskEditOldCategory string
	taskEditNewCategory string
	taskEditUncompleted bool
)

var taskEditedCmd = &cobra.Command{
	Use:   "task-edited TASK_ID",
	Short: "Invalidate artifacts affected by a task edit",
	Long: `Apply the invalidation rules of a task edit: the task's verdict is
dropped when its category changes or it is reverted to incomplete. Other
edits keep it.

Examples:
  larder task-edited t9 --user s1 --old-category legal --new-category finance
  larder task-edited t9 --user s1 --uncompleted`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskEdited,
}

var tasksCompletedCmd = &cobra.Command{
	Use:   "tasks-completed USER_ID",
	Short: "Drop every task verdict of a user who completed all tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCompleted,
}

func init() {
	invalidateSubject.register(invalidateCmd)
	rootCmd.AddCommand(invalidateCmd)

	taskEditedCmd.Flags().StringVar(&taskEditUser, "user", "", "Owner of the task (required)")
	taskEditedCmd.Flags().StringVar(&taskEditOldCategory, "old-category", "", "Category before the edit")
	taskEditedCmd.Flags().StringVar(&taskEditNewCategory, "new-category", "", "Category after the edit")
	taskEditedCmd.Flags().BoolVar(&taskEditUncompleted, "uncompleted", false, "The task was reverted to incomplete")
	_ = taskEditedCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(taskEditedCmd)

	rootCmd.AddCommand(tasksCompletedCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	kind, err := parseKind(args[0])
	if err != nil {
		return printer.Error("invalid kind", err.Error(), nil)
	}

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	subject := invalidateSubject.subject()
	dropped, err := a.gate.Invalidate(ctx, kind, subject)
	if err != nil {
		return printer.Error("invalidation failed", err.Error(), nil)
	}
	if !dropped {
		printer.Info("No %s entry cached for %s\n", kind, subject.Key())
		return nil
	}
	printer.Success("Invalidated %s for %s\n", kind, subject.Key())
	return nil
}

func runTaskEdited(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.gate.TaskEdited(ctx, taskEditUser, args[0], gate.TaskEdit{
		OldCategory: taskEditOldCategory,
		NewCategory: taskEditNewCategory,
		Uncompleted: taskEditUncompleted,
	})
	if err != nil {
		return printer.Error("invalidation failed", err.Error(), nil)
	}
	printer.Success("Invalidated %d entries\n", n)
	return nil
}

func runTasksCompleted(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, configPath, cliLogOutput, "console")
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.gate.AllTasksCompleted(ctx, args[0])
	if err != nil {
		return printer.Error("invalidation failed", err.Error(), nil)
	}
	printer.Success("Invalidated %d entries\n", n)
	return nil
}
