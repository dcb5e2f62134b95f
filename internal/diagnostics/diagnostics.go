// Package diagnostics implements the site analysis features: security and
// performance reviews, SEO optimization, plugin conflict detection, spam
// classification, and workflow automation. Each feature runs cheap local
// heuristics first and spends at most one AI call per invocation.
package diagnostics

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/sitewarden/sitewarden/internal/gateway"
)

// Generator is the slice of the dispatcher the diagnostics features use.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxCalls int) (gateway.Result, error)
	Premium(ctx context.Context) bool
}

// Per-feature daily-call ceilings. All features draw from the same shared
// daily counter; the ceiling only caps how deep into the quota a single
// feature may reach.
const (
	SecurityMaxCalls    = 3
	PerformanceMaxCalls = 3
	SEOMaxCalls         = 3
	ConflictMaxCalls    = 10
	SpamMaxCalls        = 5
	AutomationMaxCalls  = 3
)

// Grade maps a 0-100 score onto a letter grade.
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls the first JSON object out of a model response and
// unmarshals it into v. Models often wrap JSON in prose or code fences, so
// the match is deliberately loose.
func extractJSON(text string, v any) bool {
	match := jsonObjectRe.FindString(text)
	if match == "" {
		return false
	}
	return json.Unmarshal([]byte(match), v) == nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
