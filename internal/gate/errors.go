package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/larder/pkg/larder"
)

// ErrInvalidRequest is wrapped by every error caused by a malformed request:
// unknown kind, bad subject or inputs that do not match the kind.
var ErrInvalidRequest = errors.New("invalid request")

// QuotaExceededError is returned when the daily ceiling for a kind is reached
// and no prior artifact exists to degrade to.
type QuotaExceededError struct {
	Kind    larder.Kind
	Limit   int
	Used    int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d %s generations reached (resets at %s)",
		e.Limit, e.Kind, e.ResetAt.Format(time.RFC3339))
}

// IsQuotaExceeded reports whether err carries a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
