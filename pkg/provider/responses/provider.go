package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/observability"
	"github.com/rhuss/rabbithole/pkg/provider"
)

const (
	// DefaultBaseURL is the public OpenAI API.
	DefaultBaseURL = "https://api.openai.com"

	responsesPath = "/v1/responses"
	providerName  = "responses"
)

// ResponsesProvider implements provider.Provider for backends that expose
// the Responses API. Requests are rebuilt with BuildPayload and streamed
// responses are converted with Transcode.
type ResponsesProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	build      BuildOptions
	stream     StreamOptions
}

// Ensure ResponsesProvider implements provider.Provider at compile time.
var _ provider.Provider = (*ResponsesProvider)(nil)

// Config holds configuration for the Responses API provider.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds the whole exchange, including reading a streamed body.
	// Zero means no client-side timeout.
	Timeout time.Duration

	DefaultModel string
	Tools        ToolTable

	MaxPendingBytes  int
	MaxPendingFrames int

	// HTTPClient replaces the default client (used by tests).
	HTTPClient *http.Client
}

// New creates a new ResponsesProvider. A missing API key is not an error;
// the backend will reject the request and the error is surfaced then.
func New(cfg Config) (*ResponsesProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("responses: base URL %q must start with http:// or https://", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	p := &ResponsesProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		build: BuildOptions{
			DefaultModel: cfg.DefaultModel,
			Tools:        cfg.Tools,
		},
	}
	p.stream = StreamOptions{
		MaxPendingBytes:  cfg.MaxPendingBytes,
		MaxPendingFrames: cfg.MaxPendingFrames,
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *ResponsesProvider) Name() string {
	return providerName
}

// Complete performs non-streaming inference via POST /v1/responses and
// returns the backend's JSON body as is.
func (p *ResponsesProvider) Complete(ctx context.Context, req *api.ChatRequest) (json.RawMessage, error) {
	payload := BuildPayload(req, p.build)
	payload.Stream = false

	start := time.Now()
	resp, err := p.do(ctx, payload)
	if err != nil {
		p.observe(payload.Model, "error", start)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.observe(payload.Model, "error", start)
		return nil, fmt.Errorf("responses: read response: %w", err)
	}
	p.observe(payload.Model, "success", start)

	debug.Log("providers", "response", "status", resp.StatusCode, "bytes", len(body))
	if debug.TraceIsEnabled("providers") {
		debug.Raw("providers", string(body))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("responses: backend returned invalid JSON")
	}
	p.recordUsage(payload.Model, body)
	return json.RawMessage(body), nil
}

// Stream performs streaming inference via POST /v1/responses with
// stream=true. The backend body is handed to Transcode; the returned reader
// yields chat.completion.chunk frames.
func (p *ResponsesProvider) Stream(ctx context.Context, req *api.ChatRequest) (io.ReadCloser, error) {
	payload := BuildPayload(req, p.build)
	payload.Stream = true

	start := time.Now()
	resp, err := p.do(ctx, payload)
	if err != nil {
		p.observe(payload.Model, "error", start)
		return nil, err
	}
	// Latency to the first byte of the stream.
	p.observe(payload.Model, "success", start)

	opts := p.stream
	model := payload.Model
	opts.OnUsage = func(in, out int) {
		observability.ProviderTokensTotal.WithLabelValues(providerName, model, "input").Add(float64(in))
		observability.ProviderTokensTotal.WithLabelValues(providerName, model, "output").Add(float64(out))
	}
	return Transcode(resp.Body, opts), nil
}

// do sends the payload and returns the response when the backend answered
// with a 2xx status. Other statuses become *provider.UpstreamError.
func (p *ResponsesProvider) do(ctx context.Context, payload *Payload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("responses: marshal request: %w", err)
	}

	url := p.baseURL + responsesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("responses: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	debug.Log("providers", "request", "method", http.MethodPost, "url", url,
		"model", payload.Model, "stream", payload.Stream, "messages", len(payload.Input),
		"authorization", debug.MaskSecret(p.apiKey))
	if debug.TraceIsEnabled("providers") {
		debug.Raw("providers", string(body))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("responses: HTTP request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		upErr := &provider.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(resp, respBody),
		}
		slog.Warn("upstream API error",
			"status", resp.StatusCode,
			"message", upErr.Message,
		)
		return nil, upErr
	}
	return resp, nil
}

// upstreamMessage picks the backend's error.message, falling back to the
// HTTP status text.
func upstreamMessage(resp *http.Response, body []byte) string {
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "status " + strconv.Itoa(resp.StatusCode)
}

func (p *ResponsesProvider) observe(model, status string, start time.Time) {
	observability.ProviderRequestsTotal.WithLabelValues(providerName, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(providerName, model).Observe(time.Since(start).Seconds())
}

// recordUsage counts tokens from a non-streaming response body.
func (p *ResponsesProvider) recordUsage(model string, body []byte) {
	var r struct {
		Usage *usage `json:"usage"`
	}
	if json.Unmarshal(body, &r) != nil || r.Usage == nil {
		return
	}
	observability.ProviderTokensTotal.WithLabelValues(providerName, model, "input").Add(float64(r.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(providerName, model, "output").Add(float64(r.Usage.OutputTokens))
}

// Close releases provider resources.
func (p *ResponsesProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
