package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// SEOSuggestion is the structured optimization output for a post or page.
// Summary and FAQs are populated only for premium calls.
type SEOSuggestion struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	Summary         string   `json:"summary,omitempty"`
	FAQs            []FAQ    `json:"faqs,omitempty"`
}

// FAQ is one generated question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SEOResult wraps a suggestion with the dispatch outcome.
type SEOResult struct {
	Suggestion *SEOSuggestion `json:"suggestion,omitempty"`
	Kind       string         `json:"kind"`
	Message    string         `json:"message,omitempty"`
}

// SEOOptimizer generates SEO metadata for post content. Premium callers get
// the extended prompt with summaries and FAQs.
type SEOOptimizer struct {
	gen Generator
}

func NewSEOOptimizer(gen Generator) *SEOOptimizer {
	return &SEOOptimizer{gen: gen}
}

// Optimize asks the AI for SEO metadata. Content is truncated to roughly the
// first 150 words so prompts stay small.
func (o *SEOOptimizer) Optimize(ctx context.Context, title, content string) (SEOResult, error) {
	premium := o.gen.Premium(ctx)
	excerpt := trimWords(content, 150)

	res, err := o.gen.Generate(ctx, seoPrompt(title, excerpt, premium), SEOMaxCalls)
	if err != nil {
		return SEOResult{}, err
	}

	out := SEOResult{Kind: string(res.Kind)}
	switch {
	case res.Success():
		var s SEOSuggestion
		if extractJSON(res.Text, &s) {
			out.Suggestion = &s
		} else {
			// Non-JSON response: salvage what looks like a title line.
			out.Suggestion = &SEOSuggestion{Title: firstLine(res.Text)}
		}
	case res.Message != "":
		out.Message = res.Message
	case res.Fallback != nil:
		out.Message = res.Fallback.Note
	}
	return out, nil
}

func seoPrompt(title, excerpt string, premium bool) string {
	var b strings.Builder
	if premium {
		b.WriteString("Analyze this content and provide comprehensive SEO optimization:\n\n")
	} else {
		b.WriteString("Analyze this content and provide basic SEO optimization:\n\n")
	}
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Content: %s\n\n", excerpt)
	b.WriteString("Please provide:\n")
	b.WriteString("1. SEO-optimized title (60 chars max)\n")
	b.WriteString("2. Meta description (155 chars max)\n")
	if premium {
		b.WriteString("3. 10 relevant keywords\n")
		b.WriteString("4. 300-word SEO summary\n")
		b.WriteString("5. 3 FAQ questions with answers\n\n")
		b.WriteString("Format as JSON with keys: title, meta_description, keywords (array), summary, faqs (array of {question, answer})")
	} else {
		b.WriteString("3. 5 relevant keywords\n\n")
		b.WriteString("Format as JSON with keys: title, meta_description, keywords (array)")
	}
	return b.String()
}

// trimWords keeps at most n whitespace-separated words.
func trimWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:n], " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
