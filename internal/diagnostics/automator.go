package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// Automation events. Each maps a site event onto an AI task.
const (
	EventPostPublished   = "post_published"
	EventPostUpdated     = "post_updated"
	EventPagePublished   = "page_published"
	EventCommentPosted   = "comment_posted"
	EventDailySchedule   = "daily"
	EventContentAnalysis = "content_analysis"
)

// ErrUnknownEvent reports an automation trigger for an event this service
// does not handle.
type ErrUnknownEvent struct {
	Event string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("diagnostics: unknown automation event %q", e.Event)
}

// AutomationRequest is one triggered workflow invocation.
type AutomationRequest struct {
	Event   string `json:"event"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// AutomationResult is the outcome of a triggered workflow.
type AutomationResult struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message,omitempty"`
}

// Automator renders event-specific prompts and runs them through the
// gateway. It is the API-triggered replacement for the original cron-hooked
// workflow engine.
type Automator struct {
	gen Generator
}

func NewAutomator(gen Generator) *Automator {
	return &Automator{gen: gen}
}

// Trigger runs the workflow for the named event.
func (a *Automator) Trigger(ctx context.Context, req AutomationRequest) (AutomationResult, error) {
	prompt, err := automationPrompt(req)
	if err != nil {
		return AutomationResult{}, err
	}

	res, err := a.gen.Generate(ctx, prompt, AutomationMaxCalls)
	if err != nil {
		return AutomationResult{}, err
	}

	out := AutomationResult{Event: req.Event, Kind: string(res.Kind)}
	switch {
	case res.Success():
		out.Output = res.Text
	case res.Message != "":
		out.Message = res.Message
	case res.Fallback != nil:
		out.Message = res.Fallback.Note
	}
	return out, nil
}

func automationPrompt(req AutomationRequest) (string, error) {
	excerpt := trimWords(req.Content, 200)

	switch req.Event {
	case EventPostPublished, EventPostUpdated, EventPagePublished:
		var b strings.Builder
		b.WriteString("Analyze this content and provide basic SEO optimization:\n\n")
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
		fmt.Fprintf(&b, "Content: %s\n\n", excerpt)
		b.WriteString("Provide: 1. SEO title, 2. Meta description, 3. 5 keywords\n")
		b.WriteString("Format as JSON with keys: title, meta_description, keywords (array)")
		return b.String(), nil

	case EventCommentPosted:
		return fmt.Sprintf(
			"Classify this comment as spam or legitimate:\n\nContent: %s\n\nProvide: is_spam (true/false), confidence (0-100), reasoning in JSON format.",
			excerpt), nil

	case EventContentAnalysis:
		return fmt.Sprintf(
			"Analyze this content for quality, readability, and SEO:\n\n%s\n\nProvide a brief analysis with 3 improvement suggestions.",
			excerpt), nil

	case EventDailySchedule:
		return "Summarize recommended daily WordPress maintenance tasks: updates, backups, comment moderation, and security review. Be concise.", nil

	default:
		return "", &ErrUnknownEvent{Event: req.Event}
	}
}
