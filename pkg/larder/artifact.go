package larder

import (
	"encoding/json"
	"fmt"
)

// Artifact schema versions. Version 1 stored belief-analysis mitigation
// recommendations as plain strings; version 2 stores structured items.
const (
	SchemaVersionLegacy  = 1
	CurrentSchemaVersion = 2
)

// Artifact is the generated payload for one Kind. Exactly one of the payload
// pointers is set, matching Kind.
type Artifact struct {
	Kind            Kind               `json:"kind"`
	SchemaVersion   int                `json:"schema_version"`
	Compatibility   *Compatibility     `json:"compatibility,omitempty"`
	BeliefAnalysis  *BeliefAnalysis    `json:"belief_analysis,omitempty"`
	Recommendations *RecommendationSet `json:"recommendations,omitempty"`
	Insights        *InsightList       `json:"insights,omitempty"`
	TaskVerdict     *TaskVerdict       `json:"task_verification,omitempty"`
}

// Compatibility is the scored fit between a startup and an investor.
type Compatibility struct {
	OverallScore int                    `json:"overallScore"`
	Breakdown    CompatibilityBreakdown `json:"breakdown"`
	Insights     []string               `json:"insights"`
}

// CompatibilityBreakdown holds the per-dimension scores, each in [0,100].
type CompatibilityBreakdown struct {
	MissionAlignment      int `json:"missionAlignment"`
	InvestmentPhilosophy  int `json:"investmentPhilosophy"`
	SectorFocus           int `json:"sectorFocus"`
	FundingStageAlignment int `json:"fundingStageAlignment"`
	ValueAddMatch         int `json:"valueAddMatch"`
}

// BeliefAnalysis is the belief-system alignment report for a pair.
type BeliefAnalysis struct {
	OverallMatch                  int                 `json:"overallMatch"`
	Compatibility                 BeliefCompatibility `json:"compatibility"`
	Risks                         Risks               `json:"risks"`
	RiskMitigationRecommendations []MitigationItem    `json:"riskMitigationRecommendations"`
	ImprovementAreas              ImprovementAreas    `json:"improvementAreas"`
}

// BeliefCompatibility holds the alignment scores, each in [0,100].
type BeliefCompatibility struct {
	VisionAlignment int `json:"visionAlignment"`
	CoreValues      int `json:"coreValues"`
	BusinessGoals   int `json:"businessGoals"`
}

// Risks groups the assessed risk areas.
type Risks struct {
	MarketFitRisk   Risk `json:"marketFitRisk"`
	OperationalRisk Risk `json:"operationalRisk"`
}

// Risk is a single assessed risk.
type Risk struct {
	Level       Level    `json:"level"`
	Description string   `json:"description"`
	ImpactAreas []string `json:"impactAreas"`
}

// MitigationItem is one structured risk mitigation recommendation.
type MitigationItem struct {
	Text     string   `json:"text"`
	Priority Level    `json:"priority"`
	Timeline Timeline `json:"timeline"`
}

// UnmarshalJSON accepts both the structured form and the legacy plain-string
// form. A legacy item decodes with only Text set; Priority and Timeline are
// assigned when the artifact is upgraded.
func (m *MitigationItem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = MitigationItem{Text: text}
		return nil
	}
	type plain MitigationItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = MitigationItem(p)
	return nil
}

// ImprovementAreas are the suggested focus areas of a belief analysis.
type ImprovementAreas struct {
	StrategicFocus string `json:"strategicFocus"`
	Communication  string `json:"communication"`
	GrowthMetrics  string `json:"growthMetrics"`
}

// RecommendationSet is a prioritised list of recommendations for a pair.
type RecommendationSet struct {
	Recommendations []Recommendation `json:"recommendations"`
	Precision       int              `json:"precision"`
}

// Recommendation is a single actionable recommendation.
type Recommendation struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Summary    string             `json:"summary"`
	Details    string             `json:"details"`
	Category   RecommendationArea `json:"category"`
	Priority   Priority           `json:"priority"`
	Confidence int                `json:"confidence"`
}

// InsightList is the dashboard insight list of a user.
type InsightList struct {
	Insights []Insight `json:"insights"`
}

// Insight is one dashboard insight. Priority is in [1,10].
type Insight struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Content  string      `json:"content"`
	Type     InsightType `json:"type"`
	Icon     string      `json:"icon"`
	Priority int         `json:"priority"`
}

// TaskVerdict is the completion verdict for a task.
type TaskVerdict struct {
	Completed bool     `json:"completed"`
	Message   string   `json:"message"`
	NextSteps []string `json:"nextSteps"`
}

// Level is a severity or priority on the High/Medium/Low scale.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Levels lists the Level vocabulary.
func Levels() []string { return []string{string(LevelHigh), string(LevelMedium), string(LevelLow)} }

// Timeline is the horizon of a mitigation recommendation.
type Timeline string

const (
	TimelineImmediate  Timeline = "Immediate"
	TimelineShortTerm  Timeline = "Short-term"
	TimelineMediumTerm Timeline = "Medium-term"
	TimelineLongTerm   Timeline = "Long-term"
)

// Timelines lists the Timeline vocabulary.
func Timelines() []string {
	return []string{string(TimelineImmediate), string(TimelineShortTerm), string(TimelineMediumTerm), string(TimelineLongTerm)}
}

// Priority is the lowercase priority of a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the Priority vocabulary.
func Priorities() []string {
	return []string{string(PriorityHigh), string(PriorityMedium), string(PriorityLow)}
}

// RecommendationArea is the category of a recommendation.
type RecommendationArea string

const (
	AreaStrategic     RecommendationArea = "strategic"
	AreaOperational   RecommendationArea = "operational"
	AreaFinancial     RecommendationArea = "financial"
	AreaCommunication RecommendationArea = "communication"
	AreaGrowth        RecommendationArea = "growth"
)

// RecommendationAreas lists the RecommendationArea vocabulary.
func RecommendationAreas() []string {
	return []string{string(AreaStrategic), string(AreaOperational), string(AreaFinancial), string(AreaCommunication), string(AreaGrowth)}
}

// InsightType is the tone of a dashboard insight.
type InsightType string

const (
	InsightPositive InsightType = "positive"
	InsightNegative InsightType = "negative"
	InsightNeutral  InsightType = "neutral"
	InsightAction   InsightType = "action"
)

// InsightTypes lists the InsightType vocabulary.
func InsightTypes() []string {
	return []string{string(InsightPositive), string(InsightNegative), string(InsightNeutral), string(InsightAction)}
}

// Validate checks the artifact invariants: the payload matches the kind,
// required fields are populated, scores are bounded and enumerations come
// from their vocabularies.
func (a *Artifact) Validate() error {
	if err := a.Kind.Validate(); err != nil {
		return err
	}
	if a.SchemaVersion < SchemaVersionLegacy || a.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version %d", a.SchemaVersion)
	}
	switch a.Kind {
	case KindCompatibility:
		if a.Compatibility == nil {
			return fmt.Errorf("compatibility payload is missing")
		}
		return a.Compatibility.validate()
	case KindBeliefAnalysis:
		if a.BeliefAnalysis == nil {
			return fmt.Errorf("belief analysis payload is missing")
		}
		return a.BeliefAnalysis.validate()
	case KindRecommendations:
		if a.Recommendations == nil {
			return fmt.Errorf("recommendations payload is missing")
		}
		return a.Recommendations.validate()
	case KindInsights:
		if a.Insights == nil {
			return fmt.Errorf("insights payload is missing")
		}
		return a.Insights.validate()
	case KindTaskVerification:
		if a.TaskVerdict == nil {
			return fmt.Errorf("task verdict payload is missing")
		}
		return a.TaskVerdict.validate()
	}
	return nil
}

func (c *Compatibility) validate() error {
	scores := map[string]int{
		"overallScore":          c.OverallScore,
		"missionAlignment":      c.Breakdown.MissionAlignment,
		"investmentPhilosophy":  c.Breakdown.InvestmentPhilosophy,
		"sectorFocus":           c.Breakdown.SectorFocus,
		"fundingStageAlignment": c.Breakdown.FundingStageAlignment,
		"valueAddMatch":         c.Breakdown.ValueAddMatch,
	}
	for name, v := range scores {
		if err := checkScore(name, v, 0, 100); err != nil {
			return err
		}
	}
	return checkTexts("insights", c.Insights)
}

func (b *BeliefAnalysis) validate() error {
	scores := map[string]int{
		"overallMatch":    b.OverallMatch,
		"visionAlignment": b.Compatibility.VisionAlignment,
		"coreValues":      b.Compatibility.CoreValues,
		"businessGoals":   b.Compatibility.BusinessGoals,
	}
	for name, v := range scores {
		if err := checkScore(name, v, 0, 100); err != nil {
			return err
		}
	}
	for name, r := range map[string]Risk{"marketFitRisk": b.Risks.MarketFitRisk, "operationalRisk": b.Risks.OperationalRisk} {
		if !inVocabulary(string(r.Level), Levels()) {
			return fmt.Errorf("%s: invalid level %q", name, r.Level)
		}
		if r.Description == "" {
			return fmt.Errorf("%s: description is empty", name)
		}
		if err := checkTexts(name+".impactAreas", r.ImpactAreas); err != nil {
			return err
		}
	}
	if len(b.RiskMitigationRecommendations) == 0 {
		return fmt.Errorf("riskMitigationRecommendations is empty")
	}
	for i, m := range b.RiskMitigationRecommendations {
		if m.Text == "" {
			return fmt.Errorf("riskMitigationRecommendations[%d]: text is empty", i)
		}
		if !inVocabulary(string(m.Priority), Levels()) {
			return fmt.Errorf("riskMitigationRecommendations[%d]: invalid priority %q", i, m.Priority)
		}
		if !inVocabulary(string(m.Timeline), Timelines()) {
			return fmt.Errorf("riskMitigationRecommendations[%d]: invalid timeline %q", i, m.Timeline)
		}
	}
	ia := b.ImprovementAreas
	if ia.StrategicFocus == "" || ia.Communication == "" || ia.GrowthMetrics == "" {
		return fmt.Errorf("improvementAreas has empty fields")
	}
	return nil
}

func (r *RecommendationSet) validate() error {
	if len(r.Recommendations) == 0 {
		return fmt.Errorf("recommendations is empty")
	}
	if err := checkScore("precision", r.Precision, 0, 100); err != nil {
		return err
	}
	for i, rec := range r.Recommendations {
		if rec.ID == "" || rec.Title == "" || rec.Summary == "" || rec.Details == "" {
			return fmt.Errorf("recommendations[%d]: text fields must be populated", i)
		}
		if !inVocabulary(string(rec.Category), RecommendationAreas()) {
			return fmt.Errorf("recommendations[%d]: invalid category %q", i, rec.Category)
		}
		if !inVocabulary(string(rec.Priority), Priorities()) {
			return fmt.Errorf("recommendations[%d]: invalid priority %q", i, rec.Priority)
		}
		if err := checkScore(fmt.Sprintf("recommendations[%d].confidence", i), rec.Confidence, 0, 100); err != nil {
			return err
		}
	}
	return nil
}

func (l *InsightList) validate() error {
	if len(l.Insights) == 0 {
		return fmt.Errorf("insights is empty")
	}
	for i, in := range l.Insights {
		if in.ID == "" || in.Title == "" || in.Content == "" || in.Icon == "" {
			return fmt.Errorf("insights[%d]: text fields must be populated", i)
		}
		if !inVocabulary(string(in.Type), InsightTypes()) {
			return fmt.Errorf("insights[%d]: invalid type %q", i, in.Type)
		}
		if err := checkScore(fmt.Sprintf("insights[%d].priority", i), in.Priority, 1, 10); err != nil {
			return err
		}
	}
	return nil
}

func (v *TaskVerdict) validate() error {
	if v.Message == "" {
		return fmt.Errorf("verdict message is empty")
	}
	if v.NextSteps == nil {
		return fmt.Errorf("verdict nextSteps is missing")
	}
	if !v.Completed && len(v.NextSteps) == 0 {
		return fmt.Errorf("incomplete verdict must carry next steps")
	}
	if len(v.NextSteps) == 0 {
		return nil
	}
	return checkTexts("nextSteps", v.NextSteps)
}

func checkScore(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s out of range [%d,%d]: %d", name, lo, hi, v)
	}
	return nil
}

func checkTexts(name string, items []string) error {
	if len(items) == 0 {
		return fmt.Errorf("%s is empty", name)
	}
	for i, s := range items {
		if s == "" {
			return fmt.Errorf("%s[%d] is empty", name, i)
		}
	}
	return nil
}

func inVocabulary(v string, vocab []string) bool {
	for _, w := range vocab {
		if v == w {
			return true
		}
	}
	return false
}
