package larder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the category of a generated artifact.
// Each kind has its own quota ceiling, TTL and freshness rules.
type Kind string

const (
	// KindCompatibility is a startup/investor compatibility score with a breakdown
	KindCompatibility Kind = "compatibility"

	// KindBeliefAnalysis is a belief-system alignment report for a party pair
	KindBeliefAnalysis Kind = "belief_analysis"

	// KindRecommendations is a prioritised recommendation set for a party pair
	KindRecommendations Kind = "recommendations"

	// KindInsights is the dashboard insight list for a single user
	KindInsights Kind = "insights"

	// KindTaskVerification is the completion verdict for one task of a user
	KindTaskVerification Kind = "task_verification"
)

// AllKinds returns every known artifact kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindCompatibility,
		KindBeliefAnalysis,
		KindRecommendations,
		KindInsights,
		KindTaskVerification,
	}
}

// Validate checks if the Kind is one of the defined constants.
func (k Kind) Validate() error {
	switch k {
	case KindCompatibility, KindBeliefAnalysis, KindRecommendations, KindInsights, KindTaskVerification:
		return nil
	default:
		return fmt.Errorf("invalid artifact kind: %q", k)
	}
}

// PairScoped reports whether artifacts of this kind are computed for a
// startup/investor pair rather than for a single user.
func (k Kind) PairScoped() bool {
	switch k {
	case KindCompatibility, KindBeliefAnalysis, KindRecommendations:
		return true
	default:
		return false
	}
}

// Perspective is the party whose viewpoint an artifact is computed from.
// It doubles as the role of a single-user subject.
type Perspective string

const (
	PerspectiveStartup  Perspective = "startup"
	PerspectiveInvestor Perspective = "investor"
)

// Validate checks if the Perspective is one of the defined constants.
func (p Perspective) Validate() error {
	switch p {
	case PerspectiveStartup, PerspectiveInvestor:
		return nil
	default:
		return fmt.Errorf("invalid perspective: %q", p)
	}
}

// Opposite returns the other party's perspective.
func (p Perspective) Opposite() Perspective {
	if p == PerspectiveStartup {
		return PerspectiveInvestor
	}
	return PerspectiveStartup
}

// Source names an upstream data source whose modification can make a cached
// artifact stale.
type Source string

const (
	SourceProfile         Source = "profile"
	SourceExtendedProfile Source = "extended_profile"
	SourceDocuments       Source = "documents"
	SourceQuestionnaire   Source = "questionnaire"
	SourceTasks           Source = "tasks"
	SourceMatches         Source = "matches"
	SourceFinancials      Source = "financials"
)

// AllSources returns every known upstream source in a stable order.
func AllSources() []Source {
	return []Source{
		SourceProfile,
		SourceExtendedProfile,
		SourceDocuments,
		SourceQuestionnaire,
		SourceTasks,
		SourceMatches,
		SourceFinancials,
	}
}

// Validate checks if the Source is one of the defined constants.
func (s Source) Validate() error {
	for _, known := range AllSources() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("invalid source: %q", s)
}

// Epoch is the timestamp recorded for a source with no data.
var Epoch = time.UnixMilli(0).UTC()

// Snapshot maps each upstream source to the latest modification time seen
// for it. Sources without data map to Epoch; a snapshot built with
// NewSnapshot always carries every source.
type Snapshot map[Source]time.Time

// NewSnapshot returns a snapshot with every known source set to Epoch.
func NewSnapshot() Snapshot {
	s := make(Snapshot, len(AllSources()))
	for _, src := range AllSources() {
		s[src] = Epoch
	}
	return s
}

// Get returns the timestamp for a source, or Epoch if it is absent.
func (s Snapshot) Get(src Source) time.Time {
	if t, ok := s[src]; ok {
		return t
	}
	return Epoch
}

// Observe raises the timestamp for src to t if t is later. Timestamps are
// kept at millisecond precision, the precision they are stored with.
func (s Snapshot) Observe(src Source, t time.Time) {
	t = t.UTC().Truncate(time.Millisecond)
	if t.After(s.Get(src)) {
		s[src] = t
		return
	}
	if _, ok := s[src]; !ok {
		s[src] = Epoch
	}
}

// Merge returns a new snapshot holding the per-source maximum of s and other.
func (s Snapshot) Merge(other Snapshot) Snapshot {
	merged := NewSnapshot()
	for src, t := range s {
		merged.Observe(src, t)
	}
	for src, t := range other {
		merged.Observe(src, t)
	}
	return merged
}

// Subject identifies whose artifact this is: either a single user (UserID,
// optionally with a Role) or an ordered startup/investor pair viewed from a
// Perspective. Scope narrows a subject further, e.g. to a single task.
//
// (pair, perspective) and (swapped pair, other perspective) are distinct subjects.
type Subject struct {
	UserID      string      `json:"user_id,omitempty"`     // Single-user subject identifier
	Role        Perspective `json:"role,omitempty"`        // Optional role of a single-user subject
	StartupID   string      `json:"startup_id,omitempty"`  // Pair subject: startup party
	InvestorID  string      `json:"investor_id,omitempty"` // Pair subject: investor party
	Perspective Perspective `json:"perspective,omitempty"` // Pair subject: viewpoint
	Scope       string      `json:"scope,omitempty"`       // Optional sub-key (task ID)
}

// IsPair reports whether the subject is a startup/investor pair.
func (s Subject) IsPair() bool {
	return s.StartupID != "" || s.InvestorID != ""
}

// Parties returns the user IDs whose upstream data can affect the subject.
func (s Subject) Parties() []string {
	if s.IsPair() {
		return []string{s.StartupID, s.InvestorID}
	}
	return []string{s.UserID}
}

// ViewPoint returns the perspective used for default tables: the pair
// perspective, or the role of a single-user subject (investor when unset).
func (s Subject) ViewPoint() Perspective {
	if s.IsPair() {
		return s.Perspective
	}
	if s.Role != "" {
		return s.Role
	}
	return PerspectiveInvestor
}

// Mirror returns the same pair seen from the other party's perspective.
// Single-user subjects are returned unchanged.
func (s Subject) Mirror() Subject {
	if !s.IsPair() {
		return s
	}
	m := s
	m.Perspective = s.Perspective.Opposite()
	return m
}

// Key returns the canonical cache key fragment for the subject.
// Pair subjects: pair:{startup}:{investor}:{perspective}[:{scope}]
// User subjects: user:{user}:{role|any}[:{scope}]
func (s Subject) Key() string {
	var parts []string
	if s.IsPair() {
		parts = []string{"pair", s.StartupID, s.InvestorID, string(s.Perspective)}
	} else {
		role := string(s.Role)
		if role == "" {
			role = "any"
		}
		parts = []string{"user", s.UserID, role}
	}
	if s.Scope != "" {
		parts = append(parts, s.Scope)
	}
	return strings.Join(parts, ":")
}

// Validate checks the subject shape and that every identifier is safe to
// embed in a Redis key.
func (s Subject) Validate() error {
	if s.IsPair() {
		if s.UserID != "" || s.Role != "" {
			return fmt.Errorf("pair subject must not set user_id or role")
		}
		if err := validateID("startup_id", s.StartupID); err != nil {
			return err
		}
		if err := validateID("investor_id", s.InvestorID); err != nil {
			return err
		}
		if err := s.Perspective.Validate(); err != nil {
			return err
		}
	} else {
		if err := validateID("user_id", s.UserID); err != nil {
			return err
		}
		if s.Perspective != "" {
			return fmt.Errorf("user subject must not set perspective")
		}
		if s.Role != "" {
			if err := s.Role.Validate(); err != nil {
				return fmt.Errorf("invalid role: %w", err)
			}
		}
	}
	if s.Scope != "" {
		if err := validateID("scope", s.Scope); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFor checks the subject against the shape the kind requires.
func (s Subject) ValidateFor(kind Kind) error {
	if err := kind.Validate(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if kind.PairScoped() != s.IsPair() {
		if kind.PairScoped() {
			return fmt.Errorf("kind %s requires a startup/investor pair subject", kind)
		}
		return fmt.Errorf("kind %s requires a single-user subject", kind)
	}
	if kind == KindTaskVerification && s.Scope == "" {
		return fmt.Errorf("kind %s requires a task scope", kind)
	}
	return nil
}

func validateID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.ContainsAny(value, ":*?[]\\ \t\n") {
		return fmt.Errorf("%s contains reserved characters: %q", field, value)
	}
	return nil
}

// Entry is a cached artifact together with its lifecycle metadata.
type Entry struct {
	ID        string    `json:"id"`                 // UUID - unique identifier for this computation
	Kind      Kind      `json:"kind"`               // Artifact category
	Subject   Subject   `json:"subject"`            // Whose artifact this is
	Artifact  *Artifact `json:"artifact"`           // Normalized payload
	CreatedAt time.Time `json:"created_at"`         // When the artifact was computed
	ExpiresAt time.Time `json:"expires_at"`         // Absolute logical expiry
	Snapshot  Snapshot  `json:"snapshot,omitempty"` // Upstream timestamps at computation time, nil when untracked
}

// Expired reports whether the entry is past its logical expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Validate checks that all required fields are present and well-formed.
func (e *Entry) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("invalid entry ID: %w", err)
	}
	if err := e.Subject.ValidateFor(e.Kind); err != nil {
		return err
	}
	if e.Artifact == nil {
		return fmt.Errorf("entry artifact is required")
	}
	if e.Artifact.Kind != e.Kind {
		return fmt.Errorf("artifact kind %s does not match entry kind %s", e.Artifact.Kind, e.Kind)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("entry created_at is required")
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		return fmt.Errorf("entry expires_at must be after created_at")
	}
	for src := range e.Snapshot {
		if err := src.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// QuotaCounter is the per-(user, kind) generation counter.
type QuotaCounter struct {
	Count     int       `json:"count"`      // Generations consumed since LastReset
	LastReset time.Time `json:"last_reset"` // Start of the counting day
}

// SameCalendarDay reports whether a and b fall on the same year, month and
// day in loc. Elapsed time plays no part.
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// NextMidnight returns the start of the calendar day after t in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// EventType distinguishes entry events on the events channel.
type EventType string

const (
	EventPut        EventType = "put"
	EventInvalidate EventType = "invalidate"
)

// EntryEvent is published whenever an entry is written or removed.
type EntryEvent struct {
	Type       EventType `json:"type"`
	Kind       Kind      `json:"kind"`
	SubjectKey string    `json:"subject_key"`
	EntryID    string    `json:"entry_id,omitempty"`
	AtMs       int64     `json:"at_ms"`
}

// SortEntries orders entries newest first, the order used by listings.
func SortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
