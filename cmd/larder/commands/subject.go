package commands

import (
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/spf13/cobra"
)

// subjectFlags binds the flags that identify a subject.
type subjectFlags struct {
	user        string
	role        string
	startup     string
	investor    string
	perspective string
	scope       string
}

func (f *subjectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "Single-user subject")
	cmd.Flags().StringVar(&f.role, "role", "", "Role of a single-user subject (startup or investor)")
	cmd.Flags().StringVar(&f.startup, "startup", "", "Pair subject: startup ID")
	cmd.Flags().StringVar(&f.investor, "investor", "", "Pair subject: investor ID")
	cmd.Flags().StringVar(&f.perspective, "perspective", "", "Pair subject: viewpoint (startup or investor)")
	cmd.Flags().StringVar(&f.scope, "scope", "", "Subject scope, e.g. a task ID")
}

func (f *subjectFlags) subject() larder.Subject {
	return larder.Subject{
		UserID:      f.user,
		Role:        larder.Perspective(f.role),
		StartupID:   f.startup,
		InvestorID:  f.investor,
		Perspective: larder.Perspective(f.perspective),
		Scope:       f.scope,
	}
}

// parseKind validates a kind argument.
func parseKind(arg string) (larder.Kind, error) {
	kind := larder.Kind(arg)
	if err := kind.Validate(); err != nil {
		return "", fmt.Errorf("invalid kind %q: must be one of %v", arg, larder.AllKinds())
	}
	return kind, nil
}
