package hoard

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name     string
		artifact *larder.Artifact
		expected string
	}{
		{
			name:     "nil artifact",
			artifact: nil,
			expected: "-",
		},
		{
			name: "compatibility",
			artifact: &larder.Artifact{SchemaVersion: larder.CurrentSchemaVersion,
				Compatibility: &larder.Compatibility{OverallScore: 82}},
			expected: "score 82",
		},
		{
			name: "single recommendation",
			artifact: &larder.Artifact{SchemaVersion: larder.CurrentSchemaVersion,
				Recommendations: &larder.RecommendationSet{Recommendations: make([]larder.Recommendation, 1)}},
			expected: "1 recommendation",
		},
		{
			name: "legacy insights",
			artifact: &larder.Artifact{SchemaVersion: larder.SchemaVersionLegacy,
				Insights: &larder.InsightList{Insights: make([]larder.Insight, 3)}},
			expected: "3 insights (v1)",
		},
		{
			name: "completed verdict",
			artifact: &larder.Artifact{SchemaVersion: larder.CurrentSchemaVersion,
				TaskVerdict: &larder.TaskVerdict{Completed: true}},
			expected: "completed",
		},
		{
			name: "long incomplete verdict",
			artifact: &larder.Artifact{SchemaVersion: larder.CurrentSchemaVersion,
				TaskVerdict: &larder.TaskVerdict{Message: strings.Repeat("x", 50)}},
			expected: "incomplete: " + strings.Repeat("x", 25) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatSummary(tt.artifact))
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, "-", formatAge(time.Time{}, now))
	assert.Equal(t, "30s ago", formatAge(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", formatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h ago", formatAge(now.Add(-2*time.Hour), now))
	assert.Equal(t, "10d ago", formatAge(now.Add(-10*day), now))
}

func TestFormatTable(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		n := FormatTable(&buf, nil, "prod", testNow)
		assert.Zero(t, n)
		assert.Contains(t, buf.String(), "No entries found in namespace 'prod'")
	})

	t.Run("rows", func(t *testing.T) {
		fresh := testEntry(t, larder.KindCompatibility, pairSubject, time.Hour, 5*day)
		expired := testEntry(t, larder.KindTaskVerification, taskSubject, 10*day, 7*day)

		var buf bytes.Buffer
		n := FormatTable(&buf, []*larder.Entry{fresh, expired}, "prod", testNow)
		assert.Equal(t, 2, n)

		output := buf.String()
		assert.Contains(t, output, "Entries in namespace 'prod'")
		assert.Contains(t, output, fresh.ID[:8])
		assert.Contains(t, output, "pair:s1:i1:startup")
		assert.Contains(t, output, "compat")
		assert.Contains(t, output, "fresh")
		assert.Contains(t, output, "expired")
		assert.Contains(t, output, "10d ago")
		assert.Contains(t, output, "2 entries found")
	})
}

func TestFormatJSONL(t *testing.T) {
	entries := []*larder.Entry{
		testEntry(t, larder.KindCompatibility, pairSubject, time.Hour, 5*day),
		testEntry(t, larder.KindInsights, dashSubject, time.Hour, 7*day),
	}

	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var decoded larder.Entry
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		assert.Equal(t, entries[i].ID, decoded.ID)
		assert.Equal(t, entries[i].Kind, decoded.Kind)
	}
}

func TestFormatSingleJSON(t *testing.T) {
	e := testEntry(t, larder.KindTaskVerification, taskSubject, time.Hour, 7*day)

	var buf bytes.Buffer
	require.NoError(t, FormatSingleJSON(&buf, e))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
	assert.Contains(t, buf.String(), "\n  \"id\": ")

	var decoded larder.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, e.Subject, decoded.Subject)
}
