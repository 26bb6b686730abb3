package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/linnemanlabs/openie/internal/extract"
	"github.com/linnemanlabs/openie/internal/llm/claude"
)

// Config holds the server settings on top of the go-core log/http/ops
// configs registered by main.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	DatabaseURL           string
	SlackWebhookURL       string
	Model                 ModelConfig
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "comma-separated bearer tokens accepted by /api/v1 (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for run summaries")
	c.Model.RegisterFlags(fs)
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.SlackWebhookURL != "" && !strings.HasPrefix(c.SlackWebhookURL, "https://") {
		errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an https URL"))
	}
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// APITokens splits APIToken into the individual accepted tokens.
func (c *Config) APITokens() []string {
	var out []string
	for _, t := range strings.Split(c.APIToken, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ModelConfig holds the language model and extraction settings shared by
// the server and the CLI.
type ModelConfig struct {
	ClaudeAPIKey      string
	ClaudeModel       string
	MaxRetries        int
	MinIntervalMillis int
	TimeoutSeconds    int
	MaxTokens         int
	Temperature       float64
	TopP              float64
	LabelThreshold    float64
	AssociationCutoff float64
	CountSourceTokens bool
}

// RegisterFlags binds ModelConfig fields to the given FlagSet.
func (m *ModelConfig) RegisterFlags(fs *flag.FlagSet) {
	def := extract.DefaultConfig()
	fs.StringVar(&m.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider")
	fs.StringVar(&m.ClaudeModel, "claude-model", claude.DefaultModel, "Claude model to use")
	fs.IntVar(&m.MaxRetries, "claude-max-retries", claude.DefaultMaxRetries, "retries for rate-limited or failed model calls (0..20)")
	fs.IntVar(&m.MinIntervalMillis, "claude-min-interval-ms", 0, "minimum milliseconds between model calls (0 = unpaced)")
	fs.IntVar(&m.TimeoutSeconds, "claude-timeout-seconds", 120, "per-request timeout for model calls (1..600)")
	fs.IntVar(&m.MaxTokens, "max-tokens", def.Sampling.MaxTokens, "maximum tokens per model answer; longer answers are cut and their last line dropped")
	fs.Float64Var(&m.Temperature, "temperature", def.Sampling.Temperature, "sampling temperature (0..1)")
	fs.Float64Var(&m.TopP, "top-p", def.Sampling.TopP, "nucleus sampling; 0 leaves it unset (0..1)")
	fs.Float64Var(&m.LabelThreshold, "label-threshold", def.Policy.LabelThreshold, "minimum similarity for a restated label to match its entity (0..1)")
	fs.Float64Var(&m.AssociationCutoff, "association-cutoff", def.Policy.AssociationCutoff, "minimum similarity to attach a predicate description; 0 = closest match always wins (0..1)")
	fs.BoolVar(&m.CountSourceTokens, "count-source-tokens", false, "count input text tokens before extraction")
}

// Validate checks the model settings.
func (m *ModelConfig) Validate() error {
	var errs []error

	if m.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if m.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}
	if m.MaxRetries < 0 || m.MaxRetries > 20 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_RETRIES %d (must be 0..20)", m.MaxRetries))
	}
	if m.MinIntervalMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MIN_INTERVAL_MS %d (must be >= 0)", m.MinIntervalMillis))
	}
	if m.TimeoutSeconds <= 0 || m.TimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_TIMEOUT_SECONDS %d (must be 1..600)", m.TimeoutSeconds))
	}
	if m.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_TOKENS %d (must be > 0)", m.MaxTokens))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"TEMPERATURE", m.Temperature},
		{"TOP_P", m.TopP},
		{"LABEL_THRESHOLD", m.LabelThreshold},
		{"ASSOCIATION_CUTOFF", m.AssociationCutoff},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("invalid %s %v (must be 0..1)", f.name, f.v))
		}
	}

	return errors.Join(errs...)
}

// Pipeline returns the extraction pipeline settings.
func (m *ModelConfig) Pipeline() extract.Config {
	return extract.Config{
		Policy: extract.MatchPolicy{
			LabelThreshold:    m.LabelThreshold,
			AssociationCutoff: m.AssociationCutoff,
		},
		Sampling: extract.Sampling{
			Temperature: m.Temperature,
			TopP:        m.TopP,
			MaxTokens:   m.MaxTokens,
		},
		CountSourceTokens: m.CountSourceTokens,
	}
}

// Claude returns the provider settings.
func (m *ModelConfig) Claude() claude.Config {
	return claude.Config{
		APIKey:      m.ClaudeAPIKey,
		Model:       m.ClaudeModel,
		MaxRetries:  m.MaxRetries,
		MinInterval: time.Duration(m.MinIntervalMillis) * time.Millisecond,
		Timeout:     time.Duration(m.TimeoutSeconds) * time.Second,
	}
}
