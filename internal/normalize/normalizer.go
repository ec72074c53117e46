// Package normalize turns raw generator text into artifacts that satisfy the
// larder invariants.
//
// Normalization is total: any input, including empty or truncated text,
// yields a valid artifact. Fields the generator omitted or got wrong are
// backfilled from injected Defaults tables, scores are clamped and
// enumerations are coerced to their vocabularies. Normalizing the JSON
// encoding of a normalized artifact returns an equal artifact.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/tidwall/gjson"
)

// Normalizer repairs and backfills generator output. It is safe for
// concurrent use.
type Normalizer struct {
	d *Defaults
}

// New creates a Normalizer over the given default tables, or the built-in
// tables when d is nil. Every default artifact the tables produce is
// validated up front, so a bad defaults file fails here rather than at
// request time.
func New(d *Defaults) (*Normalizer, error) {
	if d == nil {
		var err error
		if d, err = DefaultTables(); err != nil {
			return nil, err
		}
	}

	n := &Normalizer{d: d}
	for _, kind := range larder.AllKinds() {
		for _, p := range []larder.Perspective{larder.PerspectiveStartup, larder.PerspectiveInvestor} {
			if err := n.Default(kind, p).Validate(); err != nil {
				return nil, fmt.Errorf("invalid defaults for %s (%s): %w", kind, p, err)
			}
		}
	}
	return n, nil
}

// Normalize extracts an artifact of kind from raw generator text.
// Perspective selects the perspective-specific default tables.
func (n *Normalizer) Normalize(kind larder.Kind, perspective larder.Perspective, raw string) *larder.Artifact {
	doc, ok := parse(raw)
	if !ok {
		return n.Default(kind, perspective)
	}
	return n.build(kind, perspective, doc)
}

// Default returns the artifact produced when nothing usable was generated.
func (n *Normalizer) Default(kind larder.Kind, perspective larder.Perspective) *larder.Artifact {
	return n.build(kind, perspective, gjson.Parse("{}"))
}

// Upgrade re-normalizes an artifact stored under an older schema version.
// Artifacts already at the current version come back equal.
func (n *Normalizer) Upgrade(a *larder.Artifact, perspective larder.Perspective) *larder.Artifact {
	data, err := json.Marshal(a)
	if err != nil {
		return n.Default(a.Kind, perspective)
	}
	return n.build(a.Kind, perspective, gjson.ParseBytes(data))
}

func (n *Normalizer) build(kind larder.Kind, perspective larder.Perspective, doc gjson.Result) *larder.Artifact {
	// A serialized artifact carries its version and nests the payload under
	// the kind name.
	legacy := false
	if doc.IsObject() && doc.Get("kind").String() == string(kind) {
		if v := doc.Get("schema_version"); v.Exists() {
			legacy = v.Int() < larder.CurrentSchemaVersion
			if nested := doc.Get(string(kind)); nested.Exists() {
				doc = nested
			}
		}
	}

	a := &larder.Artifact{Kind: kind, SchemaVersion: larder.CurrentSchemaVersion}
	switch kind {
	case larder.KindCompatibility:
		a.Compatibility = n.compatibility(doc)
	case larder.KindBeliefAnalysis:
		a.BeliefAnalysis = n.beliefAnalysis(doc, legacy)
	case larder.KindRecommendations:
		a.Recommendations = n.recommendations(doc, perspective)
	case larder.KindInsights:
		a.Insights = n.insights(doc, perspective)
	case larder.KindTaskVerification:
		a.TaskVerdict = n.taskVerdict(doc)
	}
	return a
}

func (n *Normalizer) compatibility(doc gjson.Result) *larder.Compatibility {
	neutral := n.d.NeutralScore
	b := get(doc, "breakdown")
	return &larder.Compatibility{
		OverallScore: score(get(doc, "overallScore", "overall_score", "score"), neutral, 0, 100),
		Breakdown: larder.CompatibilityBreakdown{
			MissionAlignment:      score(get(b, "missionAlignment", "mission_alignment"), neutral, 0, 100),
			InvestmentPhilosophy:  score(get(b, "investmentPhilosophy", "investment_philosophy"), neutral, 0, 100),
			SectorFocus:           score(get(b, "sectorFocus", "sector_focus"), neutral, 0, 100),
			FundingStageAlignment: score(get(b, "fundingStageAlignment", "funding_stage_alignment"), neutral, 0, 100),
			ValueAddMatch:         score(get(b, "valueAddMatch", "value_add_match"), neutral, 0, 100),
		},
		Insights: texts(get(doc, "insights"), n.d.Compatibility.Insights),
	}
}

func (n *Normalizer) beliefAnalysis(doc gjson.Result, legacy bool) *larder.BeliefAnalysis {
	d := n.d.BeliefAnalysis
	neutral := n.d.NeutralScore
	c := get(doc, "compatibility")
	risks := get(doc, "risks")
	ia := get(doc, "improvementAreas", "improvement_areas")

	risk := func(r gjson.Result, areas []string) larder.Risk {
		return larder.Risk{
			Level:       larder.Level(enum(r.Get("level"), larder.Levels(), d.RiskLevel)),
			Description: text(r.Get("description"), d.RiskDescription),
			ImpactAreas: texts(get(r, "impactAreas", "impact_areas"), areas),
		}
	}

	return &larder.BeliefAnalysis{
		OverallMatch: score(get(doc, "overallMatch", "overall_match"), neutral, 0, 100),
		Compatibility: larder.BeliefCompatibility{
			VisionAlignment: score(get(c, "visionAlignment", "vision_alignment"), neutral, 0, 100),
			CoreValues:      score(get(c, "coreValues", "core_values"), neutral, 0, 100),
			BusinessGoals:   score(get(c, "businessGoals", "business_goals"), neutral, 0, 100),
		},
		Risks: larder.Risks{
			MarketFitRisk:   risk(get(risks, "marketFitRisk", "market_fit_risk"), d.MarketFitImpactAreas),
			OperationalRisk: risk(get(risks, "operationalRisk", "operational_risk"), d.OperationalImpactAreas),
		},
		RiskMitigationRecommendations: n.mitigation(get(doc, "riskMitigationRecommendations", "risk_mitigation_recommendations"), legacy),
		ImprovementAreas: larder.ImprovementAreas{
			StrategicFocus: text(get(ia, "strategicFocus", "strategic_focus"), d.ImprovementAreas.StrategicFocus),
			Communication:  text(ia.Get("communication"), d.ImprovementAreas.Communication),
			GrowthMetrics:  text(get(ia, "growthMetrics", "growth_metrics"), d.ImprovementAreas.GrowthMetrics),
		},
	}
}

// mitigation reads mitigation items. Plain-string items, and every item of a
// legacy artifact, get their priority and timeline from their position.
func (n *Normalizer) mitigation(r gjson.Result, legacy bool) []larder.MitigationItem {
	var out []larder.MitigationItem
	for _, item := range r.Array() {
		var txt string
		if item.IsObject() {
			txt = text(item.Get("text"), "")
		} else {
			txt = text(item, "")
		}
		if txt == "" {
			continue
		}

		priority, timeline := positional(len(out))
		if item.IsObject() && !legacy {
			priority = larder.Level(enum(item.Get("priority"), larder.Levels(), string(priority)))
			timeline = larder.Timeline(enum(item.Get("timeline"), larder.Timelines(), string(timeline)))
		}
		out = append(out, larder.MitigationItem{Text: txt, Priority: priority, Timeline: timeline})
	}

	if len(out) == 0 {
		for i, txt := range n.d.BeliefAnalysis.Mitigation {
			priority, timeline := positional(i)
			out = append(out, larder.MitigationItem{Text: txt, Priority: priority, Timeline: timeline})
		}
	}
	return out
}

// positional maps the index of a mitigation item to its upgraded priority
// and timeline: first High/Immediate, second Medium/Short-term, the rest
// Low/Medium-term.
func positional(i int) (larder.Level, larder.Timeline) {
	switch i {
	case 0:
		return larder.LevelHigh, larder.TimelineImmediate
	case 1:
		return larder.LevelMedium, larder.TimelineShortTerm
	default:
		return larder.LevelLow, larder.TimelineMediumTerm
	}
}

func positionalPriority(i int) larder.Priority {
	switch i {
	case 0:
		return larder.PriorityHigh
	case 1:
		return larder.PriorityMedium
	default:
		return larder.PriorityLow
	}
}

// idSeq hands out item IDs. Supplied IDs are kept and generated ones
// (prefix_1, prefix_2, ...) skip any ID already supplied in the list.
type idSeq struct {
	prefix string
	taken  map[string]bool
	n      int
}

func newIDSeq(prefix string, items []gjson.Result) *idSeq {
	s := &idSeq{prefix: prefix, taken: make(map[string]bool)}
	for _, item := range items {
		if id := text(item.Get("id"), ""); id != "" {
			s.taken[id] = true
		}
	}
	return s
}

func (s *idSeq) next(supplied gjson.Result) string {
	if id := text(supplied, ""); id != "" {
		return id
	}
	for {
		s.n++
		id := fmt.Sprintf("%s_%d", s.prefix, s.n)
		if !s.taken[id] {
			s.taken[id] = true
			return id
		}
	}
}

func (n *Normalizer) recommendations(doc gjson.Result, perspective larder.Perspective) *larder.RecommendationSet {
	d := n.d.Recommendations
	items := doc.Get("recommendations")
	if doc.IsArray() {
		items = doc
	}

	list := items.Array()
	ids := newIDSeq("rec", list)
	var out []larder.Recommendation
	for _, item := range list {
		// A bare string is a title-only recommendation.
		if item.Type == gjson.String {
			title := text(item, "")
			if title == "" {
				continue
			}
			out = append(out, larder.Recommendation{
				ID:         ids.next(gjson.Result{}),
				Title:      title,
				Summary:    title,
				Details:    title,
				Category:   larder.AreaStrategic,
				Priority:   positionalPriority(len(out)),
				Confidence: d.Confidence,
			})
			continue
		}
		if !item.IsObject() {
			continue
		}
		title := text(item.Get("title"), "")
		if title == "" {
			continue
		}
		summary := text(item.Get("summary"), title)
		out = append(out, larder.Recommendation{
			ID:         ids.next(item.Get("id")),
			Title:      title,
			Summary:    summary,
			Details:    text(item.Get("details"), summary),
			Category:   larder.RecommendationArea(enum(item.Get("category"), larder.RecommendationAreas(), string(larder.AreaStrategic))),
			Priority:   larder.Priority(enum(item.Get("priority"), larder.Priorities(), string(larder.PriorityMedium))),
			Confidence: score(item.Get("confidence"), d.Confidence, 0, 100),
		})
	}

	precision := d.Precision
	if len(out) == 0 {
		pack := d.pack(perspective)
		out = append([]larder.Recommendation(nil), pack.Items...)
		if pack.Precision > 0 {
			precision = pack.Precision
		}
	}

	return &larder.RecommendationSet{
		Recommendations: out,
		Precision:       score(doc.Get("precision"), precision, 0, 100),
	}
}

func (n *Normalizer) insights(doc gjson.Result, perspective larder.Perspective) *larder.InsightList {
	d := n.d.Insights
	items := doc.Get("insights")
	if doc.IsArray() {
		items = doc
	}

	list := items.Array()
	ids := newIDSeq("insight", list)
	var out []larder.Insight
	for _, item := range list {
		if !item.IsObject() {
			continue
		}
		title := text(item.Get("title"), "")
		if title == "" {
			continue
		}
		out = append(out, larder.Insight{
			ID:       ids.next(item.Get("id")),
			Title:    title,
			Content:  text(item.Get("content"), title),
			Type:     larder.InsightType(enum(item.Get("type"), larder.InsightTypes(), string(larder.InsightNeutral))),
			Icon:     text(item.Get("icon"), d.Icon),
			Priority: score(item.Get("priority"), d.Priority, 1, 10),
		})
	}

	if len(out) == 0 {
		out = append([]larder.Insight(nil), d.list(perspective)...)
	}
	return &larder.InsightList{Insights: out}
}

func (n *Normalizer) taskVerdict(doc gjson.Result) *larder.TaskVerdict {
	d := n.d.TaskVerification
	completed := flag(get(doc, "completed", "isCompleted", "is_completed"))

	if completed {
		steps := texts(get(doc, "nextSteps", "next_steps"), nil)
		if steps == nil {
			steps = []string{}
		}
		return &larder.TaskVerdict{
			Completed: true,
			Message:   text(doc.Get("message"), d.CompletedMessage),
			NextSteps: steps,
		}
	}

	return &larder.TaskVerdict{
		Completed: false,
		Message:   text(doc.Get("message"), d.Message),
		NextSteps: texts(get(doc, "nextSteps", "next_steps"), d.NextSteps),
	}
}

// get returns the first of the named fields present in r.
func get(r gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if v := r.Get(name); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
