package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// PerformanceSnapshot is the timing and sizing data a site reports for a
// performance review.
type PerformanceSnapshot struct {
	PageLoadSeconds float64 `json:"page_load_seconds"`
	DatabaseQueries int     `json:"database_queries"`
	MemoryUsageMB   float64 `json:"memory_usage_mb"`
	TotalPlugins    int     `json:"total_plugins"`
	CachingEnabled  bool    `json:"caching_enabled"`
	ImagesOptimized bool    `json:"images_optimized"`
}

// PerformanceReport is the result of a performance review.
type PerformanceReport struct {
	Score           int      `json:"score"`
	Grade           string   `json:"grade"`
	Bottlenecks     []string `json:"bottlenecks"`
	Recommendations []string `json:"recommendations"`
	QuickWins       []string `json:"quick_wins"`
	UsedAI          bool     `json:"used_ai"`
}

// PerformanceReviewer scores a snapshot deterministically and asks the AI
// for tuning advice.
type PerformanceReviewer struct {
	gen Generator
}

func NewPerformanceReviewer(gen Generator) *PerformanceReviewer {
	return &PerformanceReviewer{gen: gen}
}

func (r *PerformanceReviewer) Review(ctx context.Context, snap PerformanceSnapshot) (PerformanceReport, error) {
	score, bottlenecks := scorePerformance(snap)

	report := PerformanceReport{
		Score:       score,
		Grade:       Grade(score),
		Bottlenecks: bottlenecks,
	}

	if len(bottlenecks) == 0 {
		report.Recommendations = []string{"No bottlenecks detected. Monitor load time as content grows."}
		return report, nil
	}

	res, err := r.gen.Generate(ctx, performancePrompt(snap), PerformanceMaxCalls)
	if err != nil {
		return PerformanceReport{}, err
	}

	if res.Success() {
		report.UsedAI = true
		var parsed struct {
			Recommendations []string `json:"recommendations"`
			QuickWins       []string `json:"quick_wins"`
		}
		if extractJSON(res.Text, &parsed) && len(parsed.Recommendations) > 0 {
			report.Recommendations = parsed.Recommendations
			report.QuickWins = parsed.QuickWins
		} else {
			report.Recommendations = []string{res.Text}
		}
		return report, nil
	}

	if res.Fallback != nil {
		report.Recommendations = res.Fallback.Suggestions
	}
	return report, nil
}

func scorePerformance(snap PerformanceSnapshot) (int, []string) {
	score := 100
	var bottlenecks []string

	switch {
	case snap.PageLoadSeconds > 3:
		score -= 25
		bottlenecks = append(bottlenecks, fmt.Sprintf("Slow page load (%.1fs)", snap.PageLoadSeconds))
	case snap.PageLoadSeconds > 1.5:
		score -= 10
		bottlenecks = append(bottlenecks, fmt.Sprintf("Moderate page load (%.1fs)", snap.PageLoadSeconds))
	}

	switch {
	case snap.DatabaseQueries > 100:
		score -= 20
		bottlenecks = append(bottlenecks, fmt.Sprintf("Excessive database queries (%d per page)", snap.DatabaseQueries))
	case snap.DatabaseQueries > 50:
		score -= 10
		bottlenecks = append(bottlenecks, fmt.Sprintf("High database query count (%d per page)", snap.DatabaseQueries))
	}

	if snap.MemoryUsageMB > 256 {
		score -= 15
		bottlenecks = append(bottlenecks, fmt.Sprintf("High memory usage (%.0fMB)", snap.MemoryUsageMB))
	}

	switch {
	case snap.TotalPlugins > 30:
		score -= 15
		bottlenecks = append(bottlenecks, fmt.Sprintf("Very high plugin count (%d)", snap.TotalPlugins))
	case snap.TotalPlugins > 20:
		score -= 10
		bottlenecks = append(bottlenecks, fmt.Sprintf("High plugin count (%d)", snap.TotalPlugins))
	}

	if !snap.CachingEnabled {
		score -= 15
		bottlenecks = append(bottlenecks, "Page caching disabled")
	}
	if !snap.ImagesOptimized {
		score -= 10
		bottlenecks = append(bottlenecks, "Images not optimized")
	}

	return clampScore(score), bottlenecks
}

func performancePrompt(snap PerformanceSnapshot) string {
	var b strings.Builder
	b.WriteString("Analyze this WordPress site's performance:\n\n")
	fmt.Fprintf(&b, "Page Load Time: %.1fs\n", snap.PageLoadSeconds)
	fmt.Fprintf(&b, "Database Queries: %d\n", snap.DatabaseQueries)
	fmt.Fprintf(&b, "Memory Usage: %.0fMB\n", snap.MemoryUsageMB)
	fmt.Fprintf(&b, "Total Plugins: %d\n", snap.TotalPlugins)
	fmt.Fprintf(&b, "Caching: %s\n", enabledDisabled(snap.CachingEnabled))
	fmt.Fprintf(&b, "Image Optimization: %s\n", yesNo(snap.ImagesOptimized))
	b.WriteString("\nProvide: recommendations[], quick_wins[] in JSON format.")
	return b.String()
}

func enabledDisabled(v bool) string {
	if v {
		return "Enabled"
	}
	return "Disabled"
}
