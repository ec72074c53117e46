// Package quota enforces per-user, per-kind daily generation ceilings.
//
// Counters reset on the first access of a new calendar day in the configured
// location. When the backing store is unreachable the ledger fails open so
// that generation stays available.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/larder/pkg/larder"
	"go.uber.org/zap"
)

// Store persists quota counters. *larder.Client implements it.
type Store interface {
	ConsumeQuota(ctx context.Context, userID string, kind larder.Kind, limit int, now time.Time, loc *time.Location) (*larder.QuotaCounter, bool, error)
	GetQuota(ctx context.Context, userID string, kind larder.Kind) (*larder.QuotaCounter, error)
}

// Usage is the outcome of a quota check.
type Usage struct {
	Kind     larder.Kind `json:"kind"`
	Allowed  bool        `json:"allowed"`
	Used     int         `json:"used"`
	Limit    int         `json:"limit"`
	ResetAt  time.Time   `json:"reset_at"`            // Next calendar-day boundary
	FailOpen bool        `json:"fail_open,omitempty"` // Store unreachable, decision not enforced
}

// Ledger applies configured limits to a Store.
type Ledger struct {
	store  Store
	limits map[larder.Kind]int
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the location whose calendar days bound the counters.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger enforcing limits. Every kind must have a
// non-negative limit.
func NewLedger(store Store, limits map[larder.Kind]int, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	copied := make(map[larder.Kind]int, len(limits))
	for _, kind := range larder.AllKinds() {
		limit, ok := limits[kind]
		if !ok {
			return nil, fmt.Errorf("no daily limit configured for %s", kind)
		}
		if limit < 0 {
			return nil, fmt.Errorf("daily limit for %s must be >= 0, got %d", kind, limit)
		}
		copied[kind] = limit
	}

	l := &Ledger{
		store:  store,
		limits: copied,
		loc:    time.UTC,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the daily ceiling for kind.
func (l *Ledger) Limit(kind larder.Kind) int {
	return l.limits[kind]
}

// Consume records one generation attempt for (userID, kind).
//
// A counter at or above the limit is not incremented and Allowed is false.
// If the store fails, the attempt is allowed and FailOpen is set.
func (l *Ledger) Consume(ctx context.Context, userID string, kind larder.Kind) Usage {
	now := l.now()
	usage := Usage{
		Kind:    kind,
		Limit:   l.Limit(kind),
		ResetAt: larder.NextMidnight(now, l.loc),
	}

	counter, allowed, err := l.store.ConsumeQuota(ctx, userID, kind, usage.Limit, now, l.loc)
	if err != nil {
		l.logger.Warn("quota store unavailable, failing open",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		ConsumeTotal.WithLabelValues(string(kind), "fail_open").Inc()
		usage.Allowed = true
		usage.FailOpen = true
		return usage
	}

	usage.Allowed = allowed
	usage.Used = counter.Count
	if allowed {
		ConsumeTotal.WithLabelValues(string(kind), "allowed").Inc()
	} else {
		ConsumeTotal.WithLabelValues(string(kind), "denied").Inc()
		l.logger.Info("daily limit reached",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Int("limit", usage.Limit))
	}
	return usage
}

// Peek reports current usage for (userID, kind) without consuming.
// A counter from an earlier calendar day reads as zero.
func (l *Ledger) Peek(ctx context.Context, userID string, kind larder.Kind) (Usage, error) {
	now := l.now()
	usage := Usage{
		Kind:    kind,
		Limit:   l.Limit(kind),
		ResetAt: larder.NextMidnight(now, l.loc),
	}

	counter, err := l.store.GetQuota(ctx, userID, kind)
	switch {
	case larder.IsNotFound(err):
	case err != nil:
		return usage, fmt.Errorf("failed to read quota for %s/%s: %w", userID, kind, err)
	case larder.SameCalendarDay(counter.LastReset, now, l.loc):
		usage.Used = counter.Count
	}

	usage.Allowed = usage.Used < usage.Limit
	return usage, nil
}

// PeekAll reports usage for every kind.
func (l *Ledger) PeekAll(ctx context.Context, userID string) ([]Usage, error) {
	out := make([]Usage, 0, len(larder.AllKinds()))
	for _, kind := range larder.AllKinds() {
		u, err := l.Peek(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
