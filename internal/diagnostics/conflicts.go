package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// maxScannedPlugins bounds a single conflict scan.
const maxScannedPlugins = 50

// knownIssues maps plugin slug substrings to their documented problem.
var knownIssues = []struct {
	pattern string
	issue   string
}{
	{"yoast", "May cause slow admin queries"},
	{"elementor", "Heavy frontend resource usage"},
	{"wordfence", "Can block legitimate requests"},
	{"wp-rocket", "Cache conflicts with other plugins"},
	{"jetpack", "Multiple feature conflicts possible"},
}

// PluginInfo describes one installed plugin.
type PluginInfo struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Version string `json:"version"`
}

// Conflict is one detected or known plugin problem.
type Conflict struct {
	Plugin   string `json:"plugin"`
	Issue    string `json:"issue"`
	Severity string `json:"severity"`
	Type     string `json:"type"`
}

// ConflictReport is the result of a conflict scan.
type ConflictReport struct {
	Conflicts   []Conflict `json:"conflicts"`
	TestedCount int        `json:"tested_count"`
	Truncated   bool       `json:"truncated"`
	AIAnalysis  string     `json:"ai_analysis,omitempty"`
	IsPremium   bool       `json:"is_premium"`
}

// ConflictDetector scans an active plugin list against the known issues
// table and, for premium callers, asks the AI for fix steps.
type ConflictDetector struct {
	gen Generator
}

func NewConflictDetector(gen Generator) *ConflictDetector {
	return &ConflictDetector{gen: gen}
}

// Scan checks each plugin against the known issues table. AI fix steps are
// premium-only, matching the original product tiering.
func (d *ConflictDetector) Scan(ctx context.Context, plugins []PluginInfo) (ConflictReport, error) {
	report := ConflictReport{IsPremium: d.gen.Premium(ctx)}

	if len(plugins) > maxScannedPlugins {
		plugins = plugins[:maxScannedPlugins]
		report.Truncated = true
	}
	report.TestedCount = len(plugins)

	for _, p := range plugins {
		if issue := matchKnownIssue(p); issue != "" {
			report.Conflicts = append(report.Conflicts, Conflict{
				Plugin:   p.Name,
				Issue:    issue,
				Severity: "medium",
				Type:     "known_issue",
			})
		}
	}

	if !report.IsPremium || len(report.Conflicts) == 0 {
		return report, nil
	}

	res, err := d.gen.Generate(ctx, conflictPrompt(report.Conflicts), ConflictMaxCalls)
	if err != nil {
		return ConflictReport{}, err
	}
	if res.Success() {
		report.AIAnalysis = res.Text
	}
	return report, nil
}

func matchKnownIssue(p PluginInfo) string {
	name := strings.ToLower(p.Name)
	slug := strings.ToLower(p.Slug)
	for _, k := range knownIssues {
		if strings.Contains(name, k.pattern) || strings.Contains(slug, k.pattern) {
			return k.issue
		}
	}
	return ""
}

func conflictPrompt(conflicts []Conflict) string {
	var b strings.Builder
	b.WriteString("WordPress plugin conflicts detected:\n")
	for _, c := range conflicts {
		fmt.Fprintf(&b, "%s: %s\n", c.Plugin, c.Issue)
	}
	b.WriteString("\nProvide specific fix steps for each conflict. Be concise.")
	return b.String()
}
