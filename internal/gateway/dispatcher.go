// Package gateway is the core AI-call dispatcher.
//
// Generate orchestrates one prompt through the fixed pipeline: cache lookup,
// free-tier quota check, credential classification, upstream call, cache
// store, quota increment. Upstream failures of any kind are recovered locally
// into the fixed fallback payload — nothing below the dispatcher leaks raw
// errors to feature callers.
//
// Key design constraints:
//   - Cache hits short-circuit everything: no quota check, no classification,
//     no upstream call.
//   - Failures are never cached and never counted against the quota.
//   - Premium accounts skip the quota entirely and are never counted.
//   - Concurrent cache misses for one fingerprint share a single upstream
//     call (singleflight).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sitewarden/sitewarden/internal/audit"
	"github.com/sitewarden/sitewarden/internal/cache"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/internal/provider"
	"github.com/sitewarden/sitewarden/internal/quota"
	"github.com/sitewarden/sitewarden/internal/store"
)

// DefaultMaxCalls is the per-dispatch free-tier ceiling applied when the
// caller does not supply one.
const DefaultMaxCalls = 3

// ErrEmptyPrompt is the only error Generate propagates: caller misuse.
var ErrEmptyPrompt = fmt.Errorf("gateway: prompt must not be empty")

// cacheEntry is the serialized form of a cached success.
type cacheEntry struct {
	Text     string       `json:"text"`
	Provider provider.Tag `json:"provider"`
}

// Options holds optional tuning parameters for a Dispatcher. All fields have
// sensible defaults and can be omitted.
type Options struct {
	// Logger is the structured logger for dispatch events.
	// Defaults to slog.Default when nil.
	Logger *slog.Logger

	// Metrics enables Prometheus metrics collection. Disabled when nil.
	Metrics *metrics.Registry

	// Audit is the async dispatch audit logger. Disabled when nil.
	Audit *audit.Logger

	// CacheTTL controls how long successful responses stay cached.
	// Default: cache.DefaultTTL (1h).
	CacheTTL time.Duration

	// Keyer derives cache keys. The zero value keys by prompt only.
	Keyer cache.Keyer

	// DefaultProvider serves credentials whose format is not recognised.
	// Default: provider.Groq.
	DefaultProvider provider.Tag

	// Credential is the configured API key. The options store value, when
	// set, takes precedence so runtime key updates apply without restart.
	Credential string
}

// Dispatcher is the AI-call gateway. All dependencies are injected via the
// constructor so they can be replaced with fakes in unit tests.
type Dispatcher struct {
	store   store.Store
	cache   cache.Cache
	quota   *quota.Tracker
	chat    provider.ChatClient
	keyer   cache.Keyer
	log     *slog.Logger
	metrics *metrics.Registry
	audit   *audit.Logger

	cacheTTL        time.Duration
	defaultProvider provider.Tag
	credential      string

	flight singleflight.Group
}

// New creates a Dispatcher. store, cache, quota, and chat are required.
func New(s store.Store, c cache.Cache, q *quota.Tracker, chat provider.ChatClient, opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	def := opts.DefaultProvider
	if def == "" || !provider.Known(def) {
		def = provider.Groq
	}

	return &Dispatcher{
		store:           s,
		cache:           c,
		quota:           q,
		chat:            chat,
		keyer:           opts.Keyer,
		log:             log,
		metrics:         opts.Metrics,
		audit:           opts.Audit,
		cacheTTL:        ttl,
		defaultProvider: def,
		credential:      opts.Credential,
	}
}

// Premium reports the account tier without dispatching. Exposed for callers
// that branch behaviour on tier.
func (d *Dispatcher) Premium(ctx context.Context) bool {
	return d.quota.Premium(ctx)
}

// UsageStats returns the read-only quota snapshot for display.
func (d *Dispatcher) UsageStats(ctx context.Context) quota.Stats {
	return d.quota.Snapshot(ctx)
}

// Generate runs one prompt through the dispatch pipeline and returns the
// outcome as a discriminated Result.
//
// maxCalls is the free-tier ceiling for THIS call site, compared against the
// single shared daily counter; pass 0 for the default of 3. The only error
// returned is ErrEmptyPrompt — every upstream condition is folded into the
// Result.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, maxCalls int) (Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return Result{}, ErrEmptyPrompt
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}

	start := time.Now()

	credential := d.store.GetDefault(ctx, store.OptCredential, d.credential)
	tag := d.resolveProvider(credential)

	// 1. Cache lookup. A live entry short-circuits quota, classification,
	// and the upstream call.
	key := d.keyer.Fingerprint(string(tag), prompt)
	if entry, ok := d.cacheGet(ctx, key); ok {
		res := Result{Kind: KindSuccess, Text: entry.Text, Provider: entry.Provider, Cached: true}
		d.observe(ctx, res, key, start)
		return res, nil
	}

	premium := d.quota.Premium(ctx)

	// 2. Free-tier quota gate.
	if !premium {
		if err := d.quota.CheckAndReset(ctx); err != nil {
			d.log.WarnContext(ctx, "quota_reset_error", slog.String("error", err.Error()))
		}
		count, err := d.quota.Count(ctx)
		if err != nil {
			d.log.WarnContext(ctx, "quota_read_error", slog.String("error", err.Error()))
		}
		if count >= maxCalls {
			if d.metrics != nil {
				d.metrics.RecordQuotaBlocked()
			}
			res := Result{Kind: KindQuotaExceeded, Message: QuotaMessage, Provider: tag}
			d.observe(ctx, res, key, start)
			return res, nil
		}
	}

	// 3–6. Upstream call, shared across concurrent identical prompts.
	v, err, _ := d.flight.Do(key, func() (any, error) {
		return d.callUpstream(ctx, tag, credential, prompt, key, premium), nil
	})
	if err != nil {
		// Unreachable: callUpstream never returns an error through Do.
		return Result{}, err
	}

	res := v.(Result)
	d.observe(ctx, res, key, start)
	return res, nil
}

// resolveProvider classifies the credential, substituting the configured
// default provider for unrecognised (but present) credentials.
func (d *Dispatcher) resolveProvider(credential string) provider.Tag {
	tag := provider.Classify(credential)
	if tag == provider.Unknown && credential != "" {
		return d.defaultProvider
	}
	return tag
}

// callUpstream performs the provider call and, on success, the cache store
// and quota increment. All failures collapse into the fallback Result.
func (d *Dispatcher) callUpstream(ctx context.Context, tag provider.Tag, credential, prompt, key string, premium bool) Result {
	if credential == "" {
		d.log.WarnContext(ctx, "dispatch_no_credential")
		return Result{Kind: KindFallback, Fallback: NewFallbackPayload(), Provider: provider.Unknown}
	}

	callCtx, cancel := context.WithTimeout(ctx, provider.RequestTimeout)
	defer cancel()

	upStart := time.Now()
	text, err := d.chat.Complete(callCtx, &provider.ChatRequest{
		Provider:   tag,
		Credential: credential,
		Prompt:     prompt,
	})
	upDur := time.Since(upStart)

	if err != nil {
		if d.metrics != nil {
			d.metrics.ObserveUpstream(string(tag), "error", upDur)
		}
		// The raw upstream error is logged for operators; the caller only
		// ever sees the fixed payload.
		d.log.ErrorContext(ctx, "upstream_error",
			slog.String("provider", string(tag)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", upDur),
		)
		return Result{Kind: KindFallback, Fallback: NewFallbackPayload(), Provider: tag}
	}

	if d.metrics != nil {
		d.metrics.ObserveUpstream(string(tag), "success", upDur)
	}

	d.cacheSet(ctx, key, cacheEntry{Text: text, Provider: tag})

	if !premium {
		if _, err := d.quota.Increment(ctx); err != nil {
			d.log.WarnContext(ctx, "quota_increment_error", slog.String("error", err.Error()))
		}
	}

	return Result{Kind: KindSuccess, Text: text, Provider: tag}
}

func (d *Dispatcher) cacheGet(ctx context.Context, key string) (cacheEntry, bool) {
	if d.cache == nil {
		return cacheEntry{}, false
	}

	data, ok := d.cache.Get(ctx, key)
	if !ok {
		if d.metrics != nil {
			d.metrics.CacheGetMiss()
		}
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Text == "" {
		// Unreadable entry: treat as a miss and drop it.
		_ = d.cache.Delete(ctx, key)
		if d.metrics != nil {
			d.metrics.CacheGetMiss()
		}
		return cacheEntry{}, false
	}

	if d.metrics != nil {
		d.metrics.CacheGetHit()
	}
	return entry, true
}

func (d *Dispatcher) cacheSet(ctx context.Context, key string, entry cacheEntry) {
	if d.cache == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := d.cache.Set(ctx, key, data, d.cacheTTL); err != nil {
		if d.metrics != nil {
			d.metrics.CacheSetError()
		}
		d.log.WarnContext(ctx, "cache_store_error", slog.String("error", err.Error()))
		return
	}
	if d.metrics != nil {
		d.metrics.CacheSetOK()
	}
}

// observe emits metrics, the debug log line, and the async audit entry for a
// completed dispatch.
func (d *Dispatcher) observe(ctx context.Context, res Result, key string, start time.Time) {
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.RecordDispatch(string(res.Kind), string(res.Provider), res.Cached)
	}

	d.log.DebugContext(ctx, "dispatch_done",
		slog.String("outcome", string(res.Kind)),
		slog.String("provider", string(res.Provider)),
		slog.Bool("cached", res.Cached),
		slog.Duration("elapsed", elapsed),
	)

	if d.audit != nil {
		d.audit.Log(audit.DispatchLog{
			ID:          uuid.New(),
			Fingerprint: shortKey(key),
			Provider:    string(res.Provider),
			Outcome:     string(res.Kind),
			Cached:      res.Cached,
			LatencyMs:   elapsed.Milliseconds(),
			CreatedAt:   time.Now(),
		})
	}
}

// shortKey truncates a cache key for logging so full fingerprints don't
// bloat audit output.
func shortKey(key string) string {
	const max = 19
	if len(key) <= max {
		return key
	}
	return key[:max]
}
