// Package slack posts extraction summaries to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/openie/internal/extract"
)

const (
	maxSampleTriplets = 10
	maxErrorLen       = 500
	httpTimeout       = 10 * time.Second
)

// Notifier sends extraction results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts a summary of a finished extraction to the configured webhook.
func (n *Notifier) Send(ctx context.Context, result *extract.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(result))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // webhookURL comes from trusted config
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "extraction_id", result.ID)
	return nil
}

func buildMessage(r *extract.Result) map[string]any {
	blocks := []map[string]any{
		headerBlock(r),
		fieldsBlock(r),
		{"type": "divider"},
		tripletsBlock(r),
	}
	if r.Error != "" {
		blocks = append(blocks, errorBlock(r))
	}
	blocks = append(blocks, contextBlock(r))
	return map[string]any{"blocks": blocks}
}

func headerBlock(r *extract.Result) map[string]any {
	var entities, triplets int
	if r.Graph != nil {
		entities, triplets = len(r.Graph.Entities), len(r.Graph.Triplets)
	}
	title := "Extraction complete"
	if r.Status == extract.StatusFailed {
		title = "Extraction failed"
	}

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %d entities, %d triplets", statusEmoji(r), title, entities, triplets),
		},
	}
}

func fieldsBlock(r *extract.Result) map[string]any {
	var stats extract.Stats
	if r.Graph != nil {
		stats = r.Graph.Stats
	}

	field := func(format string, args ...any) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": fmt.Sprintf(format, args...)}
	}
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			field("*Language:* %s", r.Language),
			field("*Duration:* %.1fs", r.Duration),
			field("*Model:* %s", shortModel(r.Model)),
			field("*Model calls:* %d", stats.ModelCalls),
			field("*Tokens:* %d in / %d out", stats.InputTokens, stats.OutputTokens),
			field("*Dropped lines:* %d", stats.MalformedLines+stats.InconsistentLines),
		},
	}
}

func tripletsBlock(r *extract.Result) map[string]any {
	text := "_No triplets extracted._"
	if r.Graph != nil && len(r.Graph.Triplets) > 0 {
		var b strings.Builder
		for i, t := range r.Graph.Triplets {
			if i == maxSampleTriplets {
				fmt.Fprintf(&b, "_…and %d more_\n", len(r.Graph.Triplets)-maxSampleTriplets)
				break
			}
			fmt.Fprintf(&b, "• *%s* → %s → *%s*\n", t.SubjLabel, t.PredLabel, t.ObjLabel)
		}
		text = strings.TrimSuffix(b.String(), "\n")
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": "*Triplets*\n\n" + text,
		},
	}
}

func errorBlock(r *extract.Result) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Error*\n```%s```", truncate(r.Error, maxErrorLen)),
		},
	}
}

func contextBlock(r *extract.Result) map[string]any {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = r.CreatedAt
	}

	return map[string]any{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("openie • extraction %s • %s", r.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	}
}

func statusEmoji(r *extract.Result) string {
	switch {
	case r.Status == extract.StatusFailed:
		return "\U0001f534" // red circle
	case r.Graph == nil || len(r.Graph.Triplets) == 0:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// dateModelRe matches model names ending with a YYYYMMDD date suffix.
var dateModelRe = regexp.MustCompile(`-\d{8}$`)

func shortModel(model string) string {
	return dateModelRe.ReplaceAllString(model, "")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
