package printer

import (
	"fmt"
	"time"

	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/quota"
)

// Outcome prints a one-line summary of how a request was served.
func Outcome(res *gate.Result) {
	c := green
	switch res.Outcome {
	case gate.OutcomeDegraded:
		c = yellow
	case gate.OutcomeFallback:
		c = red
	case gate.OutcomeHit:
		c = cyan
	}

	c.Fprintf(Out, "%-10s", res.Outcome)
	fmt.Fprintf(Out, " %s", res.Artifact.Kind)
	if !res.GeneratedAt.IsZero() {
		faint.Fprintf(Out, " generated %s, expires %s",
			res.GeneratedAt.Format(time.RFC3339), res.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintln(Out)
}

// Usage prints quota usage per kind.
func Usage(userID string, usage []quota.Usage) {
	fmt.Fprintf(Out, "Daily usage for '%s':\n\n", userID)
	fmt.Fprintf(Out, "%-18s %-9s %s\n", "KIND", "USED", "RESETS")
	for _, u := range usage {
		c := green
		switch {
		case u.Used >= u.Limit:
			c = red
		case u.Used*5 >= u.Limit*4:
			c = yellow
		}
		fmt.Fprintf(Out, "%-18s ", u.Kind)
		c.Fprintf(Out, "%-9s", fmt.Sprintf("%d/%d", u.Used, u.Limit))
		fmt.Fprintf(Out, " %s\n", u.ResetAt.Format(time.RFC3339))
	}
}
