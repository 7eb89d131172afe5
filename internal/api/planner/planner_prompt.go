package planner

import (
	"fmt"
	"strings"

	"github.com/itinero-app/itinero/internal/types"
)

// maxExcludedInPrompt caps how many already-recommended names are listed in
// the brainstorm prompt, keeping it within a sane token budget.
const maxExcludedInPrompt = 40

// renderPrompt substitutes {{key}} placeholders in a stored template.
func renderPrompt(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

func promptVars(loc types.CanonicalLocation, req types.RecommendationRequest, exclusions []string) map[string]string {
	excluded := "none so far, recommend freely"
	if len(exclusions) > 0 {
		capped := exclusions
		if len(capped) > maxExcludedInPrompt {
			capped = capped[:maxExcludedInPrompt]
		}
		excluded = strings.Join(capped, ", ")
	}

	style := req.Style
	if style == "" {
		style = "general sightseeing"
	}
	preferences := req.Preferences
	if preferences == "" {
		preferences = "a varied mix of well-known and local places"
	}

	return map[string]string{
		"city":            loc.City,
		"country":         loc.Country,
		"duration":        fmt.Sprintf("%d", req.DurationDays),
		"travelers":       fmt.Sprintf("%d", req.TravelersCount),
		"budget":          req.BudgetTier,
		"style":           style,
		"preferences":     preferences,
		"excluded_places": excluded,
	}
}

// extractJSON pulls the JSON object out of an LLM response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		return strings.TrimSpace(response[start : end+1])
	}
	return response
}
