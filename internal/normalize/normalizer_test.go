package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(nil)
	require.NoError(t, err)
	return n
}

func TestNew_RejectsInvalidDefaults(t *testing.T) {
	d, err := DefaultTables()
	require.NoError(t, err)
	d.BeliefAnalysis.RiskLevel = "Severe"

	_, err = New(d)
	assert.ErrorContains(t, err, "belief_analysis")
}

func TestNormalize_FencedJSON(t *testing.T) {
	n := newTestNormalizer(t)
	raw := "Here is the analysis:\n```json\n{\"overallScore\": 82, \"breakdown\": {\"missionAlignment\": 90, \"investmentPhilosophy\": 75, \"sectorFocus\": 88, \"fundingStageAlignment\": 70, \"valueAddMatch\": 65}, \"insights\": [\"Strong sector overlap\"]}\n```\nLet me know if you need more."

	a := n.Normalize(larder.KindCompatibility, larder.PerspectiveInvestor, raw)
	require.NoError(t, a.Validate())
	assert.Equal(t, 82, a.Compatibility.OverallScore)
	assert.Equal(t, 90, a.Compatibility.Breakdown.MissionAlignment)
	assert.Equal(t, []string{"Strong sector overlap"}, a.Compatibility.Insights)
}

func TestNormalize_RepairsCommonDefects(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"trailing commas", `{"recommendations": [{"title": "A", "priority": "high",}, {"title": "B",},], "precision": 91,}`},
		{"missing comma between objects", `{"recommendations": [{"title": "A", "priority": "high"} {"title": "B"}], "precision": 91}`},
		{"unquoted keys", `{recommendations: [{title: "A", priority: "high"}, {title: "B"}], precision: 91}`},
		{"prose around object", `Sure! {"recommendations": [{"title": "A", "priority": "high"}, {"title": "B"}], "precision": 91} Hope this helps.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := n.Normalize(larder.KindRecommendations, larder.PerspectiveStartup, tt.raw)
			require.NoError(t, a.Validate())
			require.Len(t, a.Recommendations.Recommendations, 2)
			assert.Equal(t, "A", a.Recommendations.Recommendations[0].Title)
			assert.Equal(t, larder.PriorityHigh, a.Recommendations.Recommendations[0].Priority)
			assert.Equal(t, "B", a.Recommendations.Recommendations[1].Title)
			assert.Equal(t, 91, a.Recommendations.Precision)
		})
	}
}

func TestNormalize_Totality(t *testing.T) {
	n := newTestNormalizer(t)

	inputs := []string{
		"",
		"   ",
		"I'm sorry, I can't help with that.",
		`{"overallScore": 8`,
		"```json\n```",
		"null",
		"42",
		`"just a string"`,
		`[1, 2, 3]`,
		`{"insights": null, "recommendations": {"nested": true}}`,
	}

	for _, kind := range larder.AllKinds() {
		for _, p := range []larder.Perspective{larder.PerspectiveStartup, larder.PerspectiveInvestor} {
			for _, raw := range inputs {
				a := n.Normalize(kind, p, raw)
				require.NotNil(t, a)
				assert.Equal(t, kind, a.Kind)
				assert.Equal(t, larder.CurrentSchemaVersion, a.SchemaVersion)
				assert.NoError(t, a.Validate(), "kind=%s perspective=%s raw=%q", kind, p, raw)
			}
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t)

	raws := map[larder.Kind]string{
		larder.KindCompatibility:    `{"overallScore": "87%", "breakdown": {"sectorFocus": 140}}`,
		larder.KindBeliefAnalysis:   `{"overallMatch": 71, "riskMitigationRecommendations": ["Meet monthly", {"text": "Share KPIs", "priority": "low", "timeline": "long term"}]}`,
		larder.KindRecommendations:  `[{"title": "Hire a CFO", "category": "FINANCIAL", "confidence": -4}]`,
		larder.KindInsights:         `{"insights": [{"title": "Profile views up", "type": "Positive", "priority": 42}]}`,
		larder.KindTaskVerification: `{"completed": true, "message": "Documents uploaded"}`,
	}

	for kind, raw := range raws {
		t.Run(string(kind), func(t *testing.T) {
			first := n.Normalize(kind, larder.PerspectiveStartup, raw)
			encoded, err := json.Marshal(first)
			require.NoError(t, err)

			second := n.Normalize(kind, larder.PerspectiveStartup, string(encoded))
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("normalize is not idempotent (-first +second):\n%s", diff)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		for _, kind := range larder.AllKinds() {
			first := n.Default(kind, larder.PerspectiveInvestor)
			encoded, err := json.Marshal(first)
			require.NoError(t, err)
			second := n.Normalize(kind, larder.PerspectiveInvestor, string(encoded))
			assert.Empty(t, cmp.Diff(first, second), "kind %s", kind)
		}
	})
}

func TestNormalize_ClampsAndCoerces(t *testing.T) {
	n := newTestNormalizer(t)

	t.Run("scores", func(t *testing.T) {
		raw := `{"overallScore": 140, "breakdown": {"missionAlignment": -10, "investmentPhilosophy": "73.6", "sectorFocus": "n/a", "fundingStageAlignment": 64.4}}`
		c := n.Normalize(larder.KindCompatibility, larder.PerspectiveInvestor, raw).Compatibility

		assert.Equal(t, 100, c.OverallScore)
		assert.Equal(t, 0, c.Breakdown.MissionAlignment)
		assert.Equal(t, 74, c.Breakdown.InvestmentPhilosophy)
		assert.Equal(t, 50, c.Breakdown.SectorFocus, "unreadable score is neutral")
		assert.Equal(t, 64, c.Breakdown.FundingStageAlignment)
		assert.Equal(t, 50, c.Breakdown.ValueAddMatch, "missing score is neutral")
	})

	t.Run("insight priority range", func(t *testing.T) {
		raw := `[{"title": "a", "priority": 0}, {"title": "b", "priority": 99}, {"title": "c"}]`
		in := n.Normalize(larder.KindInsights, larder.PerspectiveStartup, raw).Insights.Insights

		require.Len(t, in, 3)
		assert.Equal(t, 1, in[0].Priority)
		assert.Equal(t, 10, in[1].Priority)
		assert.Equal(t, 5, in[2].Priority)
		assert.Equal(t, "insight_3", in[2].ID)
		assert.Equal(t, "c", in[2].Content)
		assert.Equal(t, "info", in[2].Icon)
	})

	t.Run("enumerations", func(t *testing.T) {
		raw := `{"risks": {"marketFitRisk": {"level": "HIGH", "description": "Crowded market"}, "operationalRisk": {"level": "catastrophic"}}}`
		b := n.Normalize(larder.KindBeliefAnalysis, larder.PerspectiveStartup, raw).BeliefAnalysis

		assert.Equal(t, larder.LevelHigh, b.Risks.MarketFitRisk.Level)
		assert.Equal(t, "Crowded market", b.Risks.MarketFitRisk.Description)
		assert.Equal(t, larder.LevelMedium, b.Risks.OperationalRisk.Level)
		assert.Equal(t, "Unable to determine specific risks", b.Risks.OperationalRisk.Description)
		assert.Equal(t, []string{"Team execution", "Resource allocation", "Process scalability"}, b.Risks.OperationalRisk.ImpactAreas)
	})

	t.Run("recommendation defaults", func(t *testing.T) {
		raw := `{"recommendations": [{"title": "Tighten burn", "category": "growth hacking", "priority": "urgent"}]}`
		set := n.Normalize(larder.KindRecommendations, larder.PerspectiveInvestor, raw).Recommendations

		require.Len(t, set.Recommendations, 1)
		rec := set.Recommendations[0]
		assert.Equal(t, "rec_1", rec.ID)
		assert.Equal(t, "Tighten burn", rec.Summary)
		assert.Equal(t, larder.AreaStrategic, rec.Category)
		assert.Equal(t, larder.PriorityMedium, rec.Priority)
		assert.Equal(t, 80, rec.Confidence)
		assert.Equal(t, 94, set.Precision)
	})
}

func TestNormalize_PerspectiveDefaults(t *testing.T) {
	n := newTestNormalizer(t)

	startup := n.Default(larder.KindRecommendations, larder.PerspectiveStartup).Recommendations
	investor := n.Default(larder.KindRecommendations, larder.PerspectiveInvestor).Recommendations

	assert.Equal(t, 88, startup.Precision)
	assert.Equal(t, 90, investor.Precision)
	assert.Equal(t, "alignment", startup.Recommendations[0].ID)
	assert.Equal(t, "diligence", investor.Recommendations[0].ID)

	// Defaults are copies; mutating one does not leak into the next.
	startup.Recommendations[0].Title = "changed"
	again := n.Default(larder.KindRecommendations, larder.PerspectiveStartup).Recommendations
	assert.NotEqual(t, "changed", again.Recommendations[0].Title)
}

func TestNormalize_TaskVerdict(t *testing.T) {
	n := newTestNormalizer(t)

	t.Run("incomplete without steps gets default steps", func(t *testing.T) {
		v := n.Normalize(larder.KindTaskVerification, "", `{"completed": false, "message": "No pitch deck found"}`).TaskVerdict
		assert.False(t, v.Completed)
		assert.Equal(t, "No pitch deck found", v.Message)
		assert.Equal(t, []string{"Try again later"}, v.NextSteps)
	})

	t.Run("completed without steps has an empty list", func(t *testing.T) {
		v := n.Normalize(larder.KindTaskVerification, "", `{"completed": "yes"}`).TaskVerdict
		assert.True(t, v.Completed)
		assert.Equal(t, "Task completed successfully", v.Message)
		assert.NotNil(t, v.NextSteps)
		assert.Empty(t, v.NextSteps)
	})
}

func TestUpgrade_LegacyMitigation(t *testing.T) {
	n := newTestNormalizer(t)

	stored := `{"kind":"belief_analysis","schema_version":1,"belief_analysis":{"overallMatch":66,` +
		`"compatibility":{"visionAlignment":70,"coreValues":60,"businessGoals":68},` +
		`"riskMitigationRecommendations":["Weekly syncs","Shared dashboard","Quarterly review","Board seat"]}}`

	var legacy larder.Artifact
	require.NoError(t, json.Unmarshal([]byte(stored), &legacy))
	assert.Equal(t, larder.SchemaVersionLegacy, legacy.SchemaVersion)
	assert.Equal(t, "Weekly syncs", legacy.BeliefAnalysis.RiskMitigationRecommendations[0].Text)

	upgraded := n.Upgrade(&legacy, larder.PerspectiveStartup)
	require.NoError(t, upgraded.Validate())
	assert.Equal(t, larder.CurrentSchemaVersion, upgraded.SchemaVersion)
	assert.Equal(t, 66, upgraded.BeliefAnalysis.OverallMatch)

	want := []larder.MitigationItem{
		{Text: "Weekly syncs", Priority: larder.LevelHigh, Timeline: larder.TimelineImmediate},
		{Text: "Shared dashboard", Priority: larder.LevelMedium, Timeline: larder.TimelineShortTerm},
		{Text: "Quarterly review", Priority: larder.LevelLow, Timeline: larder.TimelineMediumTerm},
		{Text: "Board seat", Priority: larder.LevelLow, Timeline: larder.TimelineMediumTerm},
	}
	if diff := cmp.Diff(want, upgraded.BeliefAnalysis.RiskMitigationRecommendations); diff != "" {
		t.Errorf("upgraded mitigation mismatch (-want +got):\n%s", diff)
	}

	t.Run("current artifacts are unchanged", func(t *testing.T) {
		again := n.Upgrade(upgraded, larder.PerspectiveStartup)
		assert.Empty(t, cmp.Diff(upgraded, again))
	})
}

func TestNormalize_GeneratedPlainStringMitigation(t *testing.T) {
	n := newTestNormalizer(t)

	raw := `{"riskMitigationRecommendations": ["First", "Second", {"text": "Third", "priority": "high", "timeline": "immediate"}]}`
	items := n.Normalize(larder.KindBeliefAnalysis, larder.PerspectiveInvestor, raw).BeliefAnalysis.RiskMitigationRecommendations

	require.Len(t, items, 3)
	assert.Equal(t, larder.LevelHigh, items[0].Priority)
	assert.Equal(t, larder.TimelineShortTerm, items[1].Timeline)
	assert.Equal(t, larder.LevelHigh, items[2].Priority, "structured items keep their own priority")
	assert.Equal(t, larder.TimelineImmediate, items[2].Timeline)
}

func TestNormalize_PlainStringRecommendations(t *testing.T) {
	n := newTestNormalizer(t)
	raw := `{"recommendations": ["Tighten the pitch", "Hire a CFO", "Expand to EU", ""]}`

	a := n.Normalize(larder.KindRecommendations, larder.PerspectiveStartup, raw)
	require.NoError(t, a.Validate())
	recs := a.Recommendations.Recommendations
	require.Len(t, recs, 3)

	want := []larder.Priority{larder.PriorityHigh, larder.PriorityMedium, larder.PriorityLow}
	for i, rec := range recs {
		assert.Equal(t, rec.Title, rec.Summary)
		assert.Equal(t, rec.Title, rec.Details)
		assert.Equal(t, larder.AreaStrategic, rec.Category)
		assert.Equal(t, want[i], rec.Priority)
		assert.Equal(t, n.d.Recommendations.Confidence, rec.Confidence)
	}
	assert.Equal(t, "Tighten the pitch", recs[0].Title)
	assert.Equal(t, "rec_1", recs[0].ID)
}

func TestNormalize_GeneratedIDsSkipSuppliedIDs(t *testing.T) {
	n := newTestNormalizer(t)

	recs := n.Normalize(larder.KindRecommendations, larder.PerspectiveStartup,
		`{"recommendations": [{"id": "rec_2", "title": "A"}, {"title": "B"}, {"title": "C"}]}`).Recommendations.Recommendations
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"rec_2", "rec_1", "rec_3"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})

	insights := n.Normalize(larder.KindInsights, larder.PerspectiveStartup,
		`{"insights": [{"title": "A"}, {"id": "insight_1", "title": "B"}]}`).Insights.Insights
	require.Len(t, insights, 2)
	assert.Equal(t, "insight_2", insights[0].ID)
	assert.Equal(t, "insight_1", insights[1].ID)
}

func TestNormalize_FlatVersionedDocument(t *testing.T) {
	n := newTestNormalizer(t)
	raw := `{"kind": "compatibility", "schema_version": 2, "overallScore": 80}`

	a := n.Normalize(larder.KindCompatibility, larder.PerspectiveInvestor, raw)
	require.NoError(t, a.Validate())
	assert.Equal(t, 80, a.Compatibility.OverallScore)
}

func TestLoadDefaults(t *testing.T) {
	_, err := LoadDefaults("/nonexistent/defaults.yaml")
	assert.Error(t, err)

	_, err = ParseDefaults([]byte("neutral_score: [oops"))
	assert.Error(t, err)

	d, err := ParseDefaults([]byte(strings.Replace(string(embeddedDefaults), "neutral_score: 50", "neutral_score: 40", 1)))
	require.NoError(t, err)
	n, err := New(d)
	require.NoError(t, err)
	assert.Equal(t, 40, n.Default(larder.KindCompatibility, larder.PerspectiveInvestor).Compatibility.OverallScore)
}
