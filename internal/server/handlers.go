package server

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/sitewarden/sitewarden/internal/diagnostics"
	"github.com/sitewarden/sitewarden/internal/gateway"
	"github.com/sitewarden/sitewarden/pkg/apierr"
)

// Version is stamped by the build; reported by /health.
var Version = "dev"

type generateRequest struct {
	Prompt   string `json:"prompt"`
	MaxCalls int    `json:"max_calls"`
}

// generateResponse mirrors the envelope the WordPress plugin consumed from
// the original REST endpoint.
type generateResponse struct {
	Kind           gateway.Kind             `json:"kind"`
	Response       string                   `json:"response,omitempty"`
	Fallback       *gateway.FallbackPayload `json:"fallback,omitempty"`
	Message        string                   `json:"message,omitempty"`
	Provider       string                   `json:"provider,omitempty"`
	Cached         bool                     `json:"cached"`
	CallsRemaining int                      `json:"calls_remaining"`
	IsPremium      bool                     `json:"is_premium"`
}

func (s *Server) handleGenerate(ctx *fasthttp.RequestCtx) {
	var req generateRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}

	maxCalls := req.MaxCalls
	if maxCalls <= 0 {
		maxCalls = s.maxCalls
	}

	res, err := s.gw.Generate(ctx, req.Prompt, maxCalls)
	if err != nil {
		if errors.Is(err, gateway.ErrEmptyPrompt) {
			apierr.WriteInvalidRequest(ctx, "prompt must not be empty")
			return
		}
		s.log.ErrorContext(ctx, "generate failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}

	writeJSON(ctx, s.envelope(ctx, res, maxCalls))
}

func (s *Server) envelope(ctx *fasthttp.RequestCtx, res gateway.Result, maxCalls int) generateResponse {
	stats := s.gw.UsageStats(ctx)

	remaining := maxCalls - stats.CallsToday
	if remaining < 0 {
		remaining = 0
	}
	if stats.IsPremium {
		remaining = -1 // unlimited
	}

	return generateResponse{
		Kind:           res.Kind,
		Response:       res.Text,
		Fallback:       res.Fallback,
		Message:        res.Message,
		Provider:       string(res.Provider),
		Cached:         res.Cached,
		CallsRemaining: remaining,
		IsPremium:      stats.IsPremium,
	}
}

func (s *Server) handleUsage(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, s.gw.UsageStats(ctx))
}

func (s *Server) handleSecurity(ctx *fasthttp.RequestCtx) {
	var snap diagnostics.SecuritySnapshot
	if err := json.Unmarshal(ctx.PostBody(), &snap); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}

	report, err := s.security.Review(ctx, snap)
	if err != nil {
		s.log.ErrorContext(ctx, "security review failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}
	writeJSON(ctx, report)
}

func (s *Server) handlePerformance(ctx *fasthttp.RequestCtx) {
	var snap diagnostics.PerformanceSnapshot
	if err := json.Unmarshal(ctx.PostBody(), &snap); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}

	report, err := s.performance.Review(ctx, snap)
	if err != nil {
		s.log.ErrorContext(ctx, "performance review failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}
	writeJSON(ctx, report)
}

type seoRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleSEO(ctx *fasthttp.RequestCtx) {
	var req seoRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}
	if req.Content == "" {
		apierr.WriteInvalidRequest(ctx, "content must not be empty")
		return
	}

	out, err := s.seo.Optimize(ctx, req.Title, req.Content)
	if err != nil {
		if errors.Is(err, gateway.ErrEmptyPrompt) {
			apierr.WriteInvalidRequest(ctx, "content must not be empty")
			return
		}
		s.log.ErrorContext(ctx, "seo optimization failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}

	if out.Kind == string(gateway.KindQuotaExceeded) {
		apierr.WriteQuotaExceeded(ctx, out.Message)
		return
	}
	writeJSON(ctx, out)
}

type conflictRequest struct {
	Plugins []diagnostics.PluginInfo `json:"plugins"`
}

func (s *Server) handleConflicts(ctx *fasthttp.RequestCtx) {
	var req conflictRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}

	report, err := s.conflicts.Scan(ctx, req.Plugins)
	if err != nil {
		s.log.ErrorContext(ctx, "conflict scan failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}
	writeJSON(ctx, report)
}

type spamRequest struct {
	Content string `json:"content"`
	diagnostics.CommentMeta
}

func (s *Server) handleSpam(ctx *fasthttp.RequestCtx) {
	var req spamRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}
	if req.Content == "" {
		apierr.WriteInvalidRequest(ctx, "content must not be empty")
		return
	}

	verdict, err := s.spam.Classify(ctx, req.Content, req.CommentMeta)
	if err != nil {
		s.log.ErrorContext(ctx, "spam classification failed", "error", err)
		apierr.WriteInternal(ctx)
		return
	}
	writeJSON(ctx, verdict)
}

func (s *Server) handleAutomation(ctx *fasthttp.RequestCtx) {
	var req diagnostics.AutomationRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, "invalid JSON body")
		return
	}

	out, err := s.automator.Trigger(ctx, req)
	if err != nil {
		var unknown *diagnostics.ErrUnknownEvent
		if errors.As(err, &unknown) {
			apierr.WriteInvalidRequest(ctx, unknown.Error())
			return
		}
		s.log.ErrorContext(ctx, "automation failed", "event", req.Event, "error", err)
		apierr.WriteInternal(ctx)
		return
	}

	if out.Kind == string(gateway.KindQuotaExceeded) {
		apierr.WriteQuotaExceeded(ctx, out.Message)
		return
	}
	writeJSON(ctx, out)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]string{"status": "ok", "version": Version})
}

func notFound(ctx *fasthttp.RequestCtx) {
	apierr.WriteNotFound(ctx)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
