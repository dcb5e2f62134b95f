package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Heuristic thresholds: scores at or beyond these skip the AI call entirely.
const (
	spamSkipHigh = 90
	spamSkipLow  = 10
)

var spamKeywords = []string{
	"viagra", "cialis", "casino", "poker", "lottery",
	"pills", "pharmacy", "replica", "rolex",
}

var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
}

// CommentMeta is the submitter context for a spam check.
type CommentMeta struct {
	Author string `json:"author"`
	Email  string `json:"email"`
	URL    string `json:"url"`
	IP     string `json:"ip"`
}

// SpamVerdict is the classification result for one comment.
type SpamVerdict struct {
	IsSpam     bool     `json:"is_spam"`
	Confidence int      `json:"confidence"`
	Score      int      `json:"spam_score"`
	Indicators []string `json:"indicators"`
	Action     string   `json:"recommended_action"`
	Reasoning  string   `json:"reasoning"`
	UsedAI     bool     `json:"used_ai"`
}

// SpamClassifier combines cheap heuristics with AI classification. Clear-cut
// comments never reach the AI, saving quota for the uncertain middle band.
type SpamClassifier struct {
	gen Generator
}

func NewSpamClassifier(gen Generator) *SpamClassifier {
	return &SpamClassifier{gen: gen}
}

// Classify scores the comment heuristically first. Only uncertain comments
// (score strictly between the skip thresholds) are sent to the AI.
func (c *SpamClassifier) Classify(ctx context.Context, content string, meta CommentMeta) (SpamVerdict, error) {
	score := HeuristicScore(content, meta)

	if score >= spamSkipHigh {
		return SpamVerdict{
			IsSpam:     true,
			Confidence: 95,
			Score:      score,
			Indicators: []string{"Basic heuristics detected spam"},
			Action:     "spam",
			Reasoning:  "Failed basic spam checks",
		}, nil
	}
	if score <= spamSkipLow {
		return SpamVerdict{
			Confidence: 90,
			Score:      score,
			Action:     "approve",
			Reasoning:  "Passed basic checks",
		}, nil
	}

	res, err := c.gen.Generate(ctx, spamPrompt(content, meta), SpamMaxCalls)
	if err != nil {
		return SpamVerdict{}, err
	}

	if !res.Success() {
		// Quota or upstream failure: hold for human moderation rather than
		// guessing.
		return SpamVerdict{
			Confidence: 0,
			Score:      score,
			Action:     "hold",
			Reasoning:  "AI classification unavailable",
		}, nil
	}

	verdict := parseSpamResponse(res.Text)
	verdict.UsedAI = true
	return verdict, nil
}

// HeuristicScore computes a 0-100 spam likelihood from content and metadata
// without any AI involvement.
func HeuristicScore(content string, meta CommentMeta) int {
	score := 0
	lower := strings.ToLower(content)

	if len(content) < 10 {
		score += 20
	}

	linkCount := strings.Count(lower, "http")
	switch {
	case linkCount > 3:
		score += 30
	case linkCount > 1:
		score += 15
	}

	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			score += 40
			break
		}
	}

	if strings.Contains(lower, "[url=") {
		score += 25
	}

	if n := len(content); n > 0 {
		upper := 0
		for _, r := range content {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if upper > n/2 {
			score += 15
		}
	}

	if at := strings.LastIndexByte(meta.Email, '@'); at >= 0 {
		if disposableDomains[strings.ToLower(meta.Email[at+1:])] {
			score += 20
		}
	}

	if strings.Contains(strings.ToLower(meta.Author), "http") {
		score += 25
	}

	if score > 100 {
		score = 100
	}
	return score
}

func spamPrompt(content string, meta CommentMeta) string {
	var b strings.Builder
	b.WriteString("Classify this comment as spam or legitimate:\n\n")
	fmt.Fprintf(&b, "Content: %s\n\n", content)
	if meta.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", meta.Author)
	}
	if meta.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", meta.Email)
	}
	if meta.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", meta.URL)
	}
	if meta.IP != "" {
		fmt.Fprintf(&b, "IP: %s\n", meta.IP)
	}
	b.WriteString("\nProvide: is_spam (true/false), confidence (0-100), spam_score (0-100), indicators[], recommended_action, reasoning in JSON format.")
	return b.String()
}

func parseSpamResponse(text string) SpamVerdict {
	var parsed struct {
		IsSpam     bool     `json:"is_spam"`
		Confidence int      `json:"confidence"`
		SpamScore  int      `json:"spam_score"`
		Indicators []string `json:"indicators"`
		Action     string   `json:"recommended_action"`
		Reasoning  string   `json:"reasoning"`
	}
	if extractJSON(text, &parsed) {
		action := parsed.Action
		if action == "" {
			action = "approve"
		}
		return SpamVerdict{
			IsSpam:     parsed.IsSpam,
			Confidence: parsed.Confidence,
			Score:      parsed.SpamScore,
			Indicators: parsed.Indicators,
			Action:     action,
			Reasoning:  parsed.Reasoning,
		}
	}

	// Plain-text response: crude keyword fallback.
	lower := strings.ToLower(text)
	isSpam := strings.Contains(lower, "spam") && !strings.Contains(lower, "not spam")
	v := SpamVerdict{
		IsSpam:     isSpam,
		Confidence: 50,
		Reasoning:  text,
		Action:     "approve",
		Score:      20,
	}
	if isSpam {
		v.Action = "spam"
		v.Score = 80
	}
	return v
}
