package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// SecuritySnapshot is the site state a WordPress installation reports for a
// security review.
type SecuritySnapshot struct {
	CoreVersion        string   `json:"core_version"`
	LatestCoreVersion  string   `json:"latest_core_version"`
	OutdatedPlugins    []string `json:"outdated_plugins"`
	InactivePlugins    int      `json:"inactive_plugins"`
	SSLEnabled         bool     `json:"ssl_enabled"`
	DebugMode          bool     `json:"debug_mode"`
	HasAdminUsername   bool     `json:"has_admin_username"`
	WeakUsernames      []string `json:"weak_usernames"`
	DefaultTablePrefix bool     `json:"default_table_prefix"`
	WeakSecurityKeys   []string `json:"weak_security_keys"`
	FileEditDisabled   bool     `json:"file_edit_disabled"`
	PermissionIssues   []string `json:"permission_issues"`
}

// SecurityReport is the result of a security review.
type SecurityReport struct {
	Score           int      `json:"score"`
	Grade           string   `json:"grade"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	UsedAI          bool     `json:"used_ai"`
}

// SecurityReviewer scores a site snapshot deterministically and asks the AI
// for hardening recommendations on top.
type SecurityReviewer struct {
	gen Generator
}

func NewSecurityReviewer(gen Generator) *SecurityReviewer {
	return &SecurityReviewer{gen: gen}
}

// Review scores the snapshot locally, then requests AI recommendations for
// whatever findings the deterministic pass produced. The local score stands
// even when the AI call falls back.
func (r *SecurityReviewer) Review(ctx context.Context, snap SecuritySnapshot) (SecurityReport, error) {
	score, findings := scoreSecurity(snap)

	report := SecurityReport{
		Score:    score,
		Grade:    Grade(score),
		Findings: findings,
	}

	if len(findings) == 0 {
		report.Recommendations = []string{"No issues detected. Keep core, plugins, and themes updated."}
		return report, nil
	}

	res, err := r.gen.Generate(ctx, securityPrompt(snap, findings), SecurityMaxCalls)
	if err != nil {
		return SecurityReport{}, err
	}

	if res.Success() {
		report.UsedAI = true
		var parsed struct {
			Recommendations []string `json:"recommendations"`
		}
		if extractJSON(res.Text, &parsed) && len(parsed.Recommendations) > 0 {
			report.Recommendations = parsed.Recommendations
		} else {
			report.Recommendations = []string{res.Text}
		}
		return report, nil
	}

	// Quota or upstream failure: serve the deterministic findings with the
	// generic fallback suggestions.
	if res.Fallback != nil {
		report.Recommendations = res.Fallback.Suggestions
	}
	return report, nil
}

// scoreSecurity applies fixed per-check deductions to a perfect score.
func scoreSecurity(snap SecuritySnapshot) (int, []string) {
	score := 100
	var findings []string

	if snap.LatestCoreVersion != "" && snap.CoreVersion != snap.LatestCoreVersion {
		score -= 15
		findings = append(findings, fmt.Sprintf("WordPress core outdated (%s, latest %s)", snap.CoreVersion, snap.LatestCoreVersion))
	}
	if n := len(snap.OutdatedPlugins); n > 0 {
		deduction := 5 * n
		if deduction > 20 {
			deduction = 20
		}
		score -= deduction
		findings = append(findings, fmt.Sprintf("%d outdated plugins: %s", n, strings.Join(snap.OutdatedPlugins, ", ")))
	}
	if !snap.SSLEnabled {
		score -= 15
		findings = append(findings, "SSL not fully enabled")
	}
	if snap.DebugMode {
		score -= 10
		findings = append(findings, "Debug mode enabled on a live site")
	}
	if snap.HasAdminUsername {
		score -= 10
		findings = append(findings, "Default 'admin' username in use")
	}
	if snap.DefaultTablePrefix {
		score -= 5
		findings = append(findings, "Default wp_ database table prefix")
	}
	if n := len(snap.WeakSecurityKeys); n > 0 {
		score -= 15
		findings = append(findings, fmt.Sprintf("Weak or undefined security keys: %s", strings.Join(snap.WeakSecurityKeys, ", ")))
	}
	if !snap.FileEditDisabled {
		score -= 5
		findings = append(findings, "Dashboard file editing not disabled")
	}
	if n := len(snap.PermissionIssues); n > 0 {
		deduction := 5 * n
		if deduction > 15 {
			deduction = 15
		}
		score -= deduction
		findings = append(findings, fmt.Sprintf("File permission issues: %s", strings.Join(snap.PermissionIssues, "; ")))
	}

	return clampScore(score), findings
}

func securityPrompt(snap SecuritySnapshot, findings []string) string {
	var b strings.Builder
	b.WriteString("Analyze this WordPress site's security:\n\n")
	fmt.Fprintf(&b, "WordPress Version: %s\n", snap.CoreVersion)
	fmt.Fprintf(&b, "Outdated Plugins: %d\n", len(snap.OutdatedPlugins))
	fmt.Fprintf(&b, "SSL Enabled: %s\n", yesNo(snap.SSLEnabled))
	fmt.Fprintf(&b, "Uses 'admin' username: %s\n", yesNo(snap.HasAdminUsername))
	b.WriteString("\nDetected issues:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nProvide: recommendations[] with one actionable hardening step per issue, in JSON format.")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
