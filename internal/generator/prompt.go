package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/larder/pkg/larder"
)

// instructions holds the per-kind task statement placed ahead of the inputs.
var instructions = map[larder.Kind]string{
	larder.KindCompatibility: "Assess how compatible this startup and investor are. Respond with a JSON object " +
		"with overallScore (0-100), breakdown {missionAlignment, investmentPhilosophy, sectorFocus, " +
		"fundingStageAlignment, valueAddMatch} (each 0-100) and insights (array of strings).",
	larder.KindBeliefAnalysis: "Analyse how well the belief systems of this startup and investor align. Respond " +
		"with a JSON object with overallMatch, compatibility {visionAlignment, coreValues, businessGoals}, " +
		"risks {marketFitRisk, operationalRisk} each {level: High|Medium|Low, description, impactAreas}, " +
		"riskMitigationRecommendations (array of {text, priority: High|Medium|Low, timeline: " +
		"Immediate|Short-term|Medium-term|Long-term}) and improvementAreas {strategicFocus, communication, growthMetrics}.",
	larder.KindRecommendations: "Recommend concrete next steps for this pair. Respond with a JSON object with " +
		"recommendations (array of {id, title, summary, details, category: " +
		"strategic|operational|financial|communication|growth, priority: high|medium|low, confidence 0-100}) " +
		"and precision (0-100).",
	larder.KindInsights: "Produce dashboard insights for this user. Respond with a JSON object with insights " +
		"(array of {id, title, content, type: positive|negative|neutral|action, icon, priority 1-10}).",
	larder.KindTaskVerification: "Decide whether this task has been completed based on the user's data. Respond " +
		"with a JSON object with completed (boolean), message and nextSteps (array of strings).",
}

// Prompt renders the text sent to a backend for req.
func Prompt(req Request) (string, error) {
	instruction, ok := instructions[req.Kind]
	if !ok {
		return "", fmt.Errorf("no prompt for kind %q", req.Kind)
	}

	inputs, err := json.MarshalIndent(req.Inputs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode inputs: %w", err)
	}

	var b strings.Builder
	b.WriteString(instruction)
	if req.Subject.IsPair() {
		fmt.Fprintf(&b, "\nWrite from the %s's perspective.", req.Subject.Perspective)
	}
	b.WriteString("\nReturn only JSON.\n\nInputs:\n")
	b.Write(inputs)
	return b.String(), nil
}
