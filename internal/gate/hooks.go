package gate

import (
	"context"
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
	"go.uber.org/zap"
)

// TaskEdit describes a change to a task that may invalidate its verdict.
type TaskEdit struct {
	OldCategory string `json:"old_category"`
	NewCategory string `json:"new_category"`
	Uncompleted bool   `json:"uncompleted"` // task reverted to incomplete
}

// Invalidate drops the cached artifact of kind for subject.
func (g *Gate) Invalidate(ctx context.Context, kind larder.Kind, subject larder.Subject) (bool, error) {
	if err := subject.ValidateFor(kind); err != nil {
		return false, invalid("%v", err)
	}
	removed, err := g.cache.InvalidateEntry(ctx, kind, subject)
	if err != nil {
		return false, fmt.Errorf("failed to invalidate %s for %s: %w", kind, subject.Key(), err)
	}
	if removed {
		InvalidationsTotal.WithLabelValues("explicit").Inc()
	}
	return removed, nil
}

// TaskEdited invalidates a task's verdict when the edit changes its category
// or reverts it to incomplete. Other edits leave the verdict in place.
// Returns the number of verdicts dropped.
func (g *Gate) TaskEdited(ctx context.Context, userID, taskID string, edit TaskEdit) (int, error) {
	if err := (larder.Subject{UserID: userID, Scope: taskID}).ValidateFor(larder.KindTaskVerification); err != nil {
		return 0, invalid("%v", err)
	}
	if edit.OldCategory == edit.NewCategory && !edit.Uncompleted {
		return 0, nil
	}

	n, err := g.cache.InvalidateUserEntries(ctx, larder.KindTaskVerification, userID, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate verdict for task %s: %w", taskID, err)
	}

	reason := "task_category_changed"
	if edit.Uncompleted {
		reason = "task_uncompleted"
	}
	InvalidationsTotal.WithLabelValues(reason).Add(float64(n))
	g.logger.Info("gate event",
		zap.String("event_type", "task_invalidated"),
		zap.String("user_id", userID),
		zap.String("task_id", taskID),
		zap.String("reason", reason),
		zap.Int("removed", n))
	return n, nil
}

// AllTasksCompleted drops every task verdict of the user, so the next round
// of tasks starts from a clean cache.
func (g *Gate) AllTasksCompleted(ctx context.Context, userID string) (int, error) {
	if err := (larder.Subject{UserID: userID}).Validate(); err != nil {
		return 0, invalid("%v", err)
	}

	n, err := g.cache.InvalidateUserEntries(ctx, larder.KindTaskVerification, userID, "")
	if err != nil {
		return 0, fmt.Errorf("failed to clear task verdicts for %s: %w", userID, err)
	}

	InvalidationsTotal.WithLabelValues("all_tasks_completed").Add(float64(n))
	g.logger.Info("gate event",
		zap.String("event_type", "task_verdicts_cleared"),
		zap.String("user_id", userID),
		zap.Int("removed", n))
	return n, nil
}
