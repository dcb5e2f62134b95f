package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Upstream request parameters shared by all providers.
const (
	RequestTimeout = 30 * time.Second
	temperature    = 0.7
	maxTokens      = 800
)

// ErrNoContent is returned when the upstream response carries no
// choices[0].message.content. Callers treat it like any other protocol
// failure.
var ErrNoContent = errors.New("provider: no content in response")

// ChatRequest is a single prompt bound for one provider.
type ChatRequest struct {
	Provider   Tag
	Credential string
	Prompt     string
}

// ChatClient issues a chat-completion call and returns the response text.
// Implementations must return an error for any transport or protocol
// failure; they never return an empty string with a nil error.
type ChatClient interface {
	Complete(ctx context.Context, req *ChatRequest) (string, error)
}

// Client is the production ChatClient. One instance serves all provider tags;
// the base URL and credential are selected per call from the request.
type Client struct {
	client         openaiSDK.Client
	httpClient     *http.Client
	insecureClient *http.Client

	// overrides maps provider tags to replacement base URLs (local mocks).
	overrides map[Tag]string

	// devMode permits skipping TLS verification for loopback hosts.
	// Never enabled in production deployments.
	devMode bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLOverride points tag at an alternative endpoint, e.g. a local
// mock server. Empty URLs are ignored.
func WithBaseURLOverride(tag Tag, baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.overrides[tag] = baseURL
		}
	}
}

// WithDevMode allows TLS verification to be skipped — but only for loopback
// or *.local hosts, and only when explicitly enabled. Production wiring must
// never pass devMode=true.
func WithDevMode(enabled bool) Option {
	return func(c *Client) { c.devMode = enabled }
}

// NewClient creates a Client with a 30-second request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: RequestTimeout},
		overrides:  make(map[Tag]string),
	}

	for _, o := range opts {
		o(c)
	}

	if c.devMode {
		c.insecureClient = &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // loopback-only dev convenience
			},
		}
	}

	c.client = openaiSDK.NewClient(option.WithHTTPClient(c.httpClient))

	return c
}

// Complete sends req.Prompt to the provider named by req.Provider and returns
// the text content of the first choice.
func (c *Client) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	profile, ok := ProfileFor(req.Provider)
	if !ok {
		return "", fmt.Errorf("provider: unsupported tag %q", req.Provider)
	}
	if req.Credential == "" {
		return "", fmt.Errorf("provider: no credential configured")
	}

	baseURL := profile.BaseURL
	if o, ok := c.overrides[req.Provider]; ok {
		baseURL = o
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(req.Credential),
	}
	if hc := c.clientForHost(baseURL); hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Model: profile.Model,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.UserMessage(req.Prompt),
		},
		Temperature:         openaiSDK.Float(temperature),
		MaxCompletionTokens: openaiSDK.Int(maxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", toProviderError(req.Provider, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w (provider=%s, model=%s)", ErrNoContent, req.Provider, profile.Model)
	}

	return resp.Choices[0].Message.Content, nil
}

// clientForHost returns the insecure HTTP client when dev mode is on and the
// target host is local; nil otherwise (the default client applies).
func (c *Client) clientForHost(baseURL string) *http.Client {
	if c.insecureClient == nil {
		return nil
	}
	if isLocalHost(baseURL) {
		return c.insecureClient
	}
	return nil
}

// isLocalHost reports whether u points at a loopback or development host
// (localhost, 127.0.0.1, ::1, or a *.local name).
func isLocalHost(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ProviderError is a structured upstream API error.
type ProviderError struct {
	Provider   Tag
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(tag Tag, err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Provider:   tag,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return err
}
