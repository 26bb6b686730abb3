// Package claude adapts the Anthropic Messages API to extract.LanguageModel.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/openie/internal/extract"
)

const (
	DefaultModel          = "claude-sonnet-4-5"
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = time.Second
	defaultTimeout        = 120 * time.Second
	maxBackoff            = time.Minute
)

// ErrAPIKeyRequired is returned by New when no API key is configured.
var ErrAPIKeyRequired = errors.New("claude: API key required")

// Config configures a Client. An empty Model and zero durations fall back
// to the defaults above.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// MaxRetries bounds the retries of a retryable failure (429, 5xx, timeouts).
	MaxRetries     int
	InitialBackoff time.Duration
	// MinInterval spaces consecutive requests; zero disables pacing.
	MinInterval time.Duration
	Timeout     time.Duration
}

// Client implements extract.LanguageModel for Claude.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	logger         log.Logger
}

var _ extract.LanguageModel = (*Client)(nil)

// New creates a Claude client.
func New(cfg Config, logger log.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are handled here so they share the pacing limiter
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(cfg.Model),
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return string(c.model) }

// Complete sends a single system+user exchange and returns the text answer.
func (c *Client) Complete(ctx context.Context, req *extract.CompletionRequest) (*extract.Completion, error) {
	params := toSDKParams(c.model, req)

	var msg *anthropic.Message
	err := c.withRetry(ctx, "messages.new", func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromSDKMessage(msg)
}

// TokenCount returns the number of input tokens text costs as a user message.
func (c *Client) TokenCount(ctx context.Context, text string) (int, error) {
	params := anthropic.MessageCountTokensParams{
		Model: c.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}

	var count *anthropic.MessageTokensCount
	err := c.withRetry(ctx, "messages.count_tokens", func() error {
		var err error
		count, err = c.client.Messages.CountTokens(ctx, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(count.InputTokens), nil
}

// withRetry paces every attempt through the limiter and retries retryable
// failures with exponential backoff.
func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Warn(ctx, "claude call failed, retrying",
				"op", op,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", lastErr,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", op, err)
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, c.maxRetries+1, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.initialBackoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func toSDKParams(model anthropic.Model, req *extract.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	// zero TopP is left unset
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	return params
}

func fromSDKMessage(msg *anthropic.Message) (*extract.Completion, error) {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 && len(msg.Content) > 0 {
		return nil, fmt.Errorf("unexpected response format: no text block (first type=%s)", msg.Content[0].Type)
	}
	return &extract.Completion{
		Text:  b.String(),
		Model: string(msg.Model),
		Usage: extract.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Truncated: msg.StopReason == anthropic.StopReasonMaxTokens,
	}, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
