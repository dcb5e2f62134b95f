package gateway

import "github.com/sitewarden/sitewarden/internal/provider"

// Kind discriminates the three dispatch outcomes.
type Kind string

const (
	// KindSuccess carries the generated text.
	KindSuccess Kind = "success"

	// KindFallback carries the fixed troubleshooting payload, returned on
	// any configuration, transport, or protocol failure.
	KindFallback Kind = "fallback"

	// KindQuotaExceeded signals the free-tier daily limit. A soft business
	// limit, not a technical failure — callers must treat it differently
	// from KindFallback.
	KindQuotaExceeded Kind = "quota_exceeded"
)

// QuotaMessage is the fixed upgrade prompt returned with KindQuotaExceeded.
const QuotaMessage = "Upgrade for more AI: free tier limit reached for today. Premium removes the daily limit."

// FallbackPayload is the fixed "AI unavailable" response. End users see
// these generic suggestions instead of raw error strings.
type FallbackPayload struct {
	Fix         string   `json:"fix"`
	Suggestions []string `json:"suggestions"`
	Note        string   `json:"note"`
}

// NewFallbackPayload returns the standard troubleshooting payload.
func NewFallbackPayload() *FallbackPayload {
	return &FallbackPayload{
		Fix: "Check logs manually",
		Suggestions: []string{
			"Review WordPress debug.log file",
			"Check PHP error logs",
			"Verify plugin compatibility",
			"Clear cache and try again",
			"Contact support if issue persists",
		},
		Note: "AI service temporarily unavailable. Using fallback recommendations.",
	}
}

// Result is the discriminated union returned by Generate.
// Exactly one of Text, Fallback, or Message is populated, per Kind.
type Result struct {
	Kind Kind `json:"kind"`

	// Text is the generated content. Set only for KindSuccess.
	Text string `json:"text,omitempty"`

	// Fallback is the fixed payload. Set only for KindFallback.
	Fallback *FallbackPayload `json:"fallback,omitempty"`

	// Message is the upgrade prompt. Set only for KindQuotaExceeded.
	Message string `json:"message,omitempty"`

	// Provider is the tag that served (or would have served) the call.
	Provider provider.Tag `json:"provider,omitempty"`

	// Cached reports whether the result came from the response cache.
	// A side channel: callers cannot otherwise distinguish hit from fresh.
	Cached bool `json:"cached"`
}

// Success reports whether the dispatch produced generated text.
func (r Result) Success() bool { return r.Kind == KindSuccess }
