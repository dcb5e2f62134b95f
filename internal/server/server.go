// Package server exposes the gateway and diagnostics features over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/sitewarden/sitewarden/internal/diagnostics"
	"github.com/sitewarden/sitewarden/internal/gateway"
	"github.com/sitewarden/sitewarden/internal/metrics"
)

// Options configures a Server. Gateway is required; everything else is
// optional.
type Options struct {
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	CORSOrigins []string

	// DefaultMaxCalls is the quota ceiling applied to /v1/generate requests
	// that do not specify their own.
	DefaultMaxCalls int
}

// Server routes HTTP requests to the dispatcher and the diagnostics
// features.
type Server struct {
	gw   *gateway.Dispatcher
	log  *slog.Logger
	met  *metrics.Registry
	cors []string

	maxCalls int

	security    *diagnostics.SecurityReviewer
	performance *diagnostics.PerformanceReviewer
	seo         *diagnostics.SEOOptimizer
	conflicts   *diagnostics.ConflictDetector
	spam        *diagnostics.SpamClassifier
	automator   *diagnostics.Automator

	srv *fasthttp.Server
}

// New builds a Server wired to the given dispatcher. The diagnostics
// features are constructed here, all sharing the dispatcher's quota counter.
func New(gw *gateway.Dispatcher, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	maxCalls := opts.DefaultMaxCalls
	if maxCalls <= 0 {
		maxCalls = gateway.DefaultMaxCalls
	}

	return &Server{
		gw:          gw,
		log:         log,
		met:         opts.Metrics,
		cors:        opts.CORSOrigins,
		maxCalls:    maxCalls,
		security:    diagnostics.NewSecurityReviewer(gw),
		performance: diagnostics.NewPerformanceReviewer(gw),
		seo:         diagnostics.NewSEOOptimizer(gw),
		conflicts:   diagnostics.NewConflictDetector(gw),
		spam:        diagnostics.NewSpamClassifier(gw),
		automator:   diagnostics.NewAutomator(gw),
	}
}

// Handler builds the routed, middleware-wrapped request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/generate", s.handleGenerate)
	r.GET("/v1/usage", s.handleUsage)

	r.POST("/v1/diagnostics/security", s.handleSecurity)
	r.POST("/v1/diagnostics/performance", s.handlePerformance)
	r.POST("/v1/diagnostics/seo", s.handleSEO)
	r.POST("/v1/diagnostics/conflicts", s.handleConflicts)
	r.POST("/v1/classify/spam", s.handleSpam)
	r.POST("/v1/automations/trigger", s.handleAutomation)

	r.GET("/health", s.handleHealth)
	if s.met != nil {
		r.GET("/metrics", s.met.Handler())
	}

	r.NotFound = notFound

	return applyMiddleware(r.Handler,
		s.recovery,
		requestID,
		timing,
		s.observe,
		corsHandler(s.cors),
		securityHeaders,
	)
}

// Start serves on addr until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s.srv.ListenAndServe(addr)
}

// Serve runs against an existing listener. Used by tests with an in-memory
// listener.
func (s *Server) Serve(ln net.Listener) error {
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s.srv.Serve(ln)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.ShutdownWithContext(ctx)
}
