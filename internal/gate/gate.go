// Package gate decides, per request, whether a cached artifact can be reused
// or must be regenerated, and charges regenerations against the requesting
// user's daily quota.
//
// The decision tree:
//
//	entry fresh (not expired, upstream data unchanged)  -> hit
//	quota denied, prior entry exists                    -> degraded (prior entry)
//	quota denied, no entry                              -> *QuotaExceededError
//	generator fails                                     -> degraded prior/mirrored entry, else fallback default
//	otherwise                                           -> normalize, store, recomputed
//
// Generation failures never surface to callers.
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/larder/internal/freshness"
	"github.com/dyluth/larder/internal/generator"
	"github.com/dyluth/larder/internal/quota"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache is the entry storage the gate reads and writes.
type Cache interface {
	GetEntry(ctx context.Context, kind larder.Kind, subject larder.Subject) (*larder.Entry, error)
	PutEntry(ctx context.Context, e *larder.Entry, retention time.Duration) error
	InvalidateEntry(ctx context.Context, kind larder.Kind, subject larder.Subject) (bool, error)
	InvalidateUserEntries(ctx context.Context, kind larder.Kind, userID, scope string) (int, error)
}

// Ledger charges generations against daily quotas.
type Ledger interface {
	Consume(ctx context.Context, userID string, kind larder.Kind) quota.Usage
}

// Oracle reports the current upstream snapshot of a subject.
type Oracle interface {
	Snapshot(ctx context.Context, subject larder.Subject) (larder.Snapshot, error)
}

// Normalizer turns generator text into valid artifacts.
type Normalizer interface {
	Normalize(kind larder.Kind, perspective larder.Perspective, raw string) *larder.Artifact
	Default(kind larder.Kind, perspective larder.Perspective) *larder.Artifact
	Upgrade(a *larder.Artifact, perspective larder.Perspective) *larder.Artifact
}

// Deps are the collaborators of a Gate. All are required.
type Deps struct {
	Cache      Cache
	Ledger     Ledger
	Oracle     Oracle
	Rules      *freshness.Rules
	Generator  generator.Generator
	Normalizer Normalizer
}

// Config holds the per-kind lifetimes and gate behaviour switches.
type Config struct {
	TTL               map[larder.Kind]time.Duration
	Retention         time.Duration // how long expired entries stay available for degraded responses
	GenerationTimeout time.Duration
	Coalesce          bool // share one recomputation between concurrent misses
}

// Outcome names how a request was served.
type Outcome string

const (
	OutcomeHit           Outcome = "hit"
	OutcomeRecomputed    Outcome = "recomputed"
	OutcomeDegraded      Outcome = "degraded"
	OutcomeFallback      Outcome = "fallback"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
)

// Request asks for the artifact of Kind for Subject.
type Request struct {
	Kind    larder.Kind
	Subject larder.Subject
	// UserID is charged for a regeneration. Defaults to the subject's user,
	// or for pair subjects to the party whose perspective is requested.
	UserID string
	Inputs generator.Inputs
	// TaskCategory scopes freshness for task verdicts. Defaults to the
	// category carried by task inputs.
	TaskCategory string
	// Force skips the hit path. The regeneration is still quota-gated.
	Force bool
}

// Result is a served artifact.
type Result struct {
	Artifact    *larder.Artifact `json:"artifact"`
	Outcome     Outcome          `json:"outcome"`
	Degraded    bool             `json:"degraded"`
	Fallback    bool             `json:"fallback"`
	EntryID     string           `json:"entry_id,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Gate is the recomputation gate. It is safe for concurrent use.
type Gate struct {
	cache  Cache
	ledger Ledger
	oracle Oracle
	rules  *freshness.Rules
	gen    generator.Generator
	norm   Normalizer
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
	flight singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New creates a Gate. Every kind must have a positive TTL.
func New(deps Deps, cfg Config, opts ...Option) (*Gate, error) {
	switch {
	case deps.Cache == nil:
		return nil, fmt.Errorf("gate requires a cache")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("gate requires a quota ledger")
	case deps.Oracle == nil:
		return nil, fmt.Errorf("gate requires a freshness oracle")
	case deps.Rules == nil:
		return nil, fmt.Errorf("gate requires freshness rules")
	case deps.Generator == nil:
		return nil, fmt.Errorf("gate requires a generator")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("gate requires a normalizer")
	}

	ttl := make(map[larder.Kind]time.Duration, len(cfg.TTL))
	for _, kind := range larder.AllKinds() {
		d, ok := cfg.TTL[kind]
		if !ok || d <= 0 {
			return nil, fmt.Errorf("no positive TTL configured for %s", kind)
		}
		ttl[kind] = d
	}
	cfg.TTL = ttl
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("retention must be >= 0")
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}

	g := &Gate{
		cache:  deps.Cache,
		ledger: deps.Ledger,
		oracle: deps.Oracle,
		rules:  deps.Rules,
		gen:    deps.Generator,
		norm:   deps.Normalizer,
		cfg:    cfg,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Request serves the artifact for req. The only errors are invalid requests
// (wrapping ErrInvalidRequest), *QuotaExceededError, and the caller's context
// ending while waiting on a shared recomputation.
func (g *Gate) Request(ctx context.Context, req Request) (*Result, error) {
	if err := g.prepare(&req); err != nil {
		return nil, err
	}

	entry := g.lookup(ctx, req.Kind, req.Subject)

	var current larder.Snapshot
	if g.rules.Tracked(req.Kind) {
		current = g.snapshot(ctx, req)
	}

	if entry != nil && !req.Force && g.fresh(req, entry, current) {
		g.logEvent("hit", req, zap.String("entry_id", entry.ID))
		return g.served(ctx, req, entry, OutcomeHit), nil
	}

	// Everything past this point outlives the caller.
	detached := context.WithoutCancel(ctx)
	if !g.cfg.Coalesce {
		return g.recompute(detached, req, entry, current)
	}

	ch := g.flight.DoChan(flightKey(req), func() (any, error) {
		return g.recompute(detached, req, entry, current)
	})
	select {
	case r := <-ch:
		if r.Shared {
			CoalescedTotal.WithLabelValues(string(req.Kind)).Inc()
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flightKey identifies requests that may share one recomputation. The
// charged user is part of it, so every caller gets its own quota decision.
func flightKey(req Request) string {
	return strings.Join([]string{string(req.Kind), req.Subject.Key(), req.UserID}, "|")
}

// prepare validates req and fills its defaults.
func (g *Gate) prepare(req *Request) error {
	if err := req.Subject.ValidateFor(req.Kind); err != nil {
		return invalid("%v", err)
	}
	if err := req.Inputs.ValidateFor(req.Kind, req.Subject); err != nil {
		return invalid("%v", err)
	}

	if req.UserID == "" {
		req.UserID = requester(req.Subject)
	}
	if err := (larder.Subject{UserID: req.UserID}).Validate(); err != nil {
		return invalid("requesting user: %v", err)
	}

	if req.TaskCategory == "" && req.Inputs.Task != nil {
		req.TaskCategory = req.Inputs.Task.Category
	}
	return nil
}

func requester(s larder.Subject) string {
	if !s.IsPair() {
		return s.UserID
	}
	if s.Perspective == larder.PerspectiveStartup {
		return s.StartupID
	}
	return s.InvestorID
}

// lookup reads the cached entry. Read failures count as a miss.
func (g *Gate) lookup(ctx context.Context, kind larder.Kind, subject larder.Subject) *larder.Entry {
	entry, err := g.cache.GetEntry(ctx, kind, subject)
	switch {
	case err == nil:
		return entry
	case larder.IsNotFound(err):
		return nil
	default:
		CacheFailuresTotal.WithLabelValues("read").Inc()
		g.logger.Warn("cache read failed, treating as miss",
			zap.String("kind", string(kind)),
			zap.String("subject", subject.Key()),
			zap.Error(err))
		return nil
	}
}

// snapshot reads the current upstream snapshot. A failed read yields nil,
// which makes every entry stale and is stored as "untracked".
func (g *Gate) snapshot(ctx context.Context, req Request) larder.Snapshot {
	s, err := g.oracle.Snapshot(ctx, req.Subject)
	if err != nil {
		g.logger.Warn("freshness snapshot unavailable, treating entry as stale",
			zap.String("kind", string(req.Kind)),
			zap.String("subject", req.Subject.Key()),
			zap.Error(err))
		return nil
	}
	return s
}

func (g *Gate) fresh(req Request, entry *larder.Entry, current larder.Snapshot) bool {
	if entry.Expired(g.now()) {
		return false
	}
	if !g.rules.Tracked(req.Kind) {
		return true
	}
	if current == nil {
		return false
	}
	return !freshness.Stale(current, entry.Snapshot, g.rules.Relevant(req.Kind, req.TaskCategory))
}

func (g *Gate) recompute(ctx context.Context, req Request, entry *larder.Entry, current larder.Snapshot) (*Result, error) {
	usage := g.ledger.Consume(ctx, req.UserID, req.Kind)
	if !usage.Allowed {
		if entry != nil {
			g.logEvent("degraded", req, zap.String("reason", "quota_exceeded"), zap.String("entry_id", entry.ID))
			return g.served(ctx, req, entry, OutcomeDegraded), nil
		}
		RequestsTotal.WithLabelValues(string(req.Kind), string(OutcomeQuotaExceeded)).Inc()
		g.logEvent("quota_exceeded", req, zap.String("user_id", req.UserID), zap.Int("limit", usage.Limit))
		return nil, &QuotaExceededError{
			Kind:    req.Kind,
			Limit:   usage.Limit,
			Used:    usage.Used,
			ResetAt: usage.ResetAt,
		}
	}

	raw, err := g.generate(ctx, req)
	if err != nil {
		return g.generationFailed(ctx, req, entry, err), nil
	}

	now := g.now()
	created := &larder.Entry{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		Subject:   req.Subject,
		Artifact:  g.norm.Normalize(req.Kind, req.Subject.ViewPoint(), raw),
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.TTL[req.Kind]),
		Snapshot:  current,
	}
	if err := g.cache.PutEntry(ctx, created, g.cfg.Retention); err != nil {
		CacheFailuresTotal.WithLabelValues("write").Inc()
		g.logger.Error("cache write failed, returning uncached artifact",
			zap.String("kind", string(req.Kind)),
			zap.String("subject", req.Subject.Key()),
			zap.Error(err))
	}

	RequestsTotal.WithLabelValues(string(req.Kind), string(OutcomeRecomputed)).Inc()
	g.logEvent("recomputed", req, zap.String("entry_id", created.ID), zap.Bool("fail_open", usage.FailOpen))
	return &Result{
		Artifact:    created.Artifact,
		Outcome:     OutcomeRecomputed,
		EntryID:     created.ID,
		GeneratedAt: created.CreatedAt,
		ExpiresAt:   created.ExpiresAt,
	}, nil
}

func (g *Gate) generate(ctx context.Context, req Request) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	raw, err := g.gen.Generate(genCtx, generator.Request{
		Kind:    req.Kind,
		Subject: req.Subject,
		Inputs:  req.Inputs,
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	GenerationDuration.WithLabelValues(string(req.Kind), result).Observe(time.Since(start).Seconds())
	return raw, err
}

// generationFailed serves the best available substitute: the subject's prior
// entry, then for pair kinds the entry computed from the other party's
// perspective, then the uncached default artifact.
func (g *Gate) generationFailed(ctx context.Context, req Request, entry *larder.Entry, cause error) *Result {
	if entry != nil {
		g.logEvent("degraded", req, zap.String("reason", "generation_failed"), zap.String("entry_id", entry.ID), zap.Error(cause))
		return g.served(ctx, req, entry, OutcomeDegraded)
	}

	if req.Kind.PairScoped() {
		if mirror := g.lookup(ctx, req.Kind, req.Subject.Mirror()); mirror != nil {
			g.logEvent("degraded", req, zap.String("reason", "generation_failed_mirrored"), zap.String("entry_id", mirror.ID), zap.Error(cause))
			return g.served(ctx, req, mirror, OutcomeDegraded)
		}
	}

	RequestsTotal.WithLabelValues(string(req.Kind), string(OutcomeFallback)).Inc()
	g.logEvent("fallback", req, zap.Error(cause))
	return &Result{
		Artifact:    g.norm.Default(req.Kind, req.Subject.ViewPoint()),
		Outcome:     OutcomeFallback,
		Fallback:    true,
		GeneratedAt: g.now(),
	}
}

// served builds the result for an existing entry, upgrading artifacts stored
// under an older schema version and writing the upgrade back.
func (g *Gate) served(ctx context.Context, req Request, entry *larder.Entry, outcome Outcome) *Result {
	RequestsTotal.WithLabelValues(string(req.Kind), string(outcome)).Inc()

	artifact := entry.Artifact
	if artifact.SchemaVersion < larder.CurrentSchemaVersion {
		artifact = g.norm.Upgrade(artifact, entry.Subject.ViewPoint())
		upgraded := *entry
		upgraded.Artifact = artifact
		if err := g.cache.PutEntry(ctx, &upgraded, g.cfg.Retention); err != nil {
			CacheFailuresTotal.WithLabelValues("upgrade").Inc()
			g.logger.Warn("failed to store upgraded artifact",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
	}

	return &Result{
		Artifact:    artifact,
		Outcome:     outcome,
		Degraded:    outcome == OutcomeDegraded,
		EntryID:     entry.ID,
		GeneratedAt: entry.CreatedAt,
		ExpiresAt:   entry.ExpiresAt,
	}
}

func (g *Gate) logEvent(eventType string, req Request, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("kind", string(req.Kind)),
		zap.String("subject", req.Subject.Key()),
	}
	if eventType == "hit" {
		g.logger.Debug("gate event", append(base, fields...)...)
		return
	}
	g.logger.Info("gate event", append(base, fields...)...)
}
