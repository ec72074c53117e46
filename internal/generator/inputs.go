package generator

import (
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
)

// Inputs is the canonical input set for a generation. Exactly one variant is
// set, and which one is fixed by the artifact kind:
//
//	compatibility, belief_analysis, recommendations -> Pair
//	insights                                        -> Dashboard
//	task_verification                               -> Task
type Inputs struct {
	Pair      *PairInputs      `json:"pair,omitempty"`
	Dashboard *DashboardInputs `json:"dashboard,omitempty"`
	Task      *TaskInputs      `json:"task,omitempty"`
}

// Party describes one side of a startup/investor pair.
type Party struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	Profile       map[string]any `json:"profile,omitempty"`
	Questionnaire map[string]any `json:"questionnaire,omitempty"`
}

// PairInputs feed the pair-scoped kinds.
type PairInputs struct {
	Startup  Party `json:"startup"`
	Investor Party `json:"investor"`
}

// DashboardInputs feed a user's insight list.
type DashboardInputs struct {
	Role    larder.Perspective `json:"role"`
	Profile map[string]any     `json:"profile,omitempty"`
	Stats   map[string]int     `json:"stats,omitempty"`
}

// TaskInputs feed a task verdict.
type TaskInputs struct {
	TaskID      string         `json:"task_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Documents   []string       `json:"documents,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// ValidateFor checks that the variant matching kind is the only one set and
// that it agrees with the subject.
func (in Inputs) ValidateFor(kind larder.Kind, subject larder.Subject) error {
	set := 0
	for _, present := range []bool{in.Pair != nil, in.Dashboard != nil, in.Task != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one input variant must be set, got %d", set)
	}

	switch kind {
	case larder.KindCompatibility, larder.KindBeliefAnalysis, larder.KindRecommendations:
		if in.Pair == nil {
			return fmt.Errorf("kind %s requires pair inputs", kind)
		}
		return in.Pair.validate(subject)
	case larder.KindInsights:
		if in.Dashboard == nil {
			return fmt.Errorf("kind %s requires dashboard inputs", kind)
		}
		return in.Dashboard.validate(subject)
	case larder.KindTaskVerification:
		if in.Task == nil {
			return fmt.Errorf("kind %s requires task inputs", kind)
		}
		return in.Task.validate(subject)
	default:
		return kind.Validate()
	}
}

func (p *PairInputs) validate(subject larder.Subject) error {
	if p.Startup.ID != subject.StartupID {
		return fmt.Errorf("startup input %q does not match subject startup %q", p.Startup.ID, subject.StartupID)
	}
	if p.Investor.ID != subject.InvestorID {
		return fmt.Errorf("investor input %q does not match subject investor %q", p.Investor.ID, subject.InvestorID)
	}
	return nil
}

func (d *DashboardInputs) validate(subject larder.Subject) error {
	if err := d.Role.Validate(); err != nil {
		return fmt.Errorf("dashboard inputs: %w", err)
	}
	if subject.Role != "" && subject.Role != d.Role {
		return fmt.Errorf("dashboard role %s does not match subject role %s", d.Role, subject.Role)
	}
	return nil
}

func (t *TaskInputs) validate(subject larder.Subject) error {
	if t.TaskID != subject.Scope {
		return fmt.Errorf("task input %q does not match subject scope %q", t.TaskID, subject.Scope)
	}
	if t.Title == "" {
		return fmt.Errorf("task inputs: title is required")
	}
	return nil
}
