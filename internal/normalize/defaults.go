package normalize

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/dyluth/larder/pkg/larder"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// Defaults holds the neutral values used to backfill artifacts. A Defaults
// value is read-only once passed to New.
type Defaults struct {
	NeutralScore     int                    `yaml:"neutral_score"`
	Compatibility    CompatibilityDefaults  `yaml:"compatibility"`
	BeliefAnalysis   BeliefAnalysisDefaults `yaml:"belief_analysis"`
	Recommendations  RecommendationDefaults `yaml:"recommendations"`
	Insights         InsightDefaults        `yaml:"insights"`
	TaskVerification TaskVerdictDefaults    `yaml:"task_verification"`
}

// CompatibilityDefaults backfills compatibility artifacts.
type CompatibilityDefaults struct {
	Insights []string `yaml:"insights"`
}

// BeliefAnalysisDefaults backfills belief analyses.
type BeliefAnalysisDefaults struct {
	RiskLevel              string   `yaml:"risk_level"`
	RiskDescription        string   `yaml:"risk_description"`
	MarketFitImpactAreas   []string `yaml:"market_fit_impact_areas"`
	OperationalImpactAreas []string `yaml:"operational_impact_areas"`
	Mitigation             []string `yaml:"mitigation"`
	ImprovementAreas       struct {
		StrategicFocus string `yaml:"strategic_focus"`
		Communication  string `yaml:"communication"`
		GrowthMetrics  string `yaml:"growth_metrics"`
	} `yaml:"improvement_areas"`
}

// RecommendationDefaults backfills recommendation sets.
type RecommendationDefaults struct {
	Precision  int                `yaml:"precision"`
	Confidence int                `yaml:"confidence"`
	Startup    RecommendationPack `yaml:"startup"`
	Investor   RecommendationPack `yaml:"investor"`
}

// RecommendationPack is the fallback set for one perspective.
type RecommendationPack struct {
	Precision int                     `yaml:"precision"`
	Items     []larder.Recommendation `yaml:"items"`
}

// InsightDefaults backfills insight lists.
type InsightDefaults struct {
	Icon     string           `yaml:"icon"`
	Priority int              `yaml:"priority"`
	Startup  []larder.Insight `yaml:"startup"`
	Investor []larder.Insight `yaml:"investor"`
}

// TaskVerdictDefaults backfills task verdicts.
type TaskVerdictDefaults struct {
	Message          string   `yaml:"message"`
	CompletedMessage string   `yaml:"completed_message"`
	NextSteps        []string `yaml:"next_steps"`
}

// DefaultTables returns the built-in defaults.
func DefaultTables() (*Defaults, error) {
	return ParseDefaults(embeddedDefaults)
}

// DefaultTablesYAML returns the built-in defaults document.
func DefaultTablesYAML() []byte {
	return append([]byte(nil), embeddedDefaults...)
}

// LoadDefaults reads a defaults file from path.
func LoadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}
	return ParseDefaults(data)
}

// ParseDefaults decodes a defaults document.
func ParseDefaults(data []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse defaults YAML: %w", err)
	}
	return &d, nil
}

func (r *RecommendationDefaults) pack(p larder.Perspective) RecommendationPack {
	if p == larder.PerspectiveStartup {
		return r.Startup
	}
	return r.Investor
}

func (i *InsightDefaults) list(p larder.Perspective) []larder.Insight {
	if p == larder.PerspectiveStartup {
		return i.Startup
	}
	return i.Investor
}
