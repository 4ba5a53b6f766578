// Package slack delivers run failure notifications to a Slack incoming
// webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL   string
	Channel      string
	Username     string
	Timeout      time.Duration
	RetryLimit   int
	Client       *http.Client
	RunURLPrefix string
}

// Client posts run failure messages to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	runURLPrefix string
	client       *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "zapply"
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		retryLimit:   max(cfg.RetryLimit, 0),
		runURLPrefix: strings.TrimSpace(cfg.RunURLPrefix),
		client:       httpClient,
	}, nil
}

// SendRunFailure posts a formatted message to the webhook, retrying
// transient failures.
func (c *Client) SendRunFailure(ctx context.Context, payload notify.RunFailurePayload) error {
	msg := c.formatMessage(payload)
	return notify.Deliver(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, c.webhookURL, "slack webhook", msg)
	})
}

func (c *Client) formatMessage(payload notify.RunFailurePayload) map[string]any {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}

	var text strings.Builder
	text.WriteString("*Pipeline run failure*")
	if payload.RunID != "" {
		fmt.Fprintf(&text, " `%s`", payload.RunID)
	}
	if payload.TriggerType != "" {
		fmt.Fprintf(&text, " (%s)", payload.TriggerType)
	}
	text.WriteByte('\n')

	writeField(&text, "Severity", severity)
	writeField(&text, "Run", c.runReference(payload.RunID))
	writeField(&text, "Phase", payload.Phase)
	writeField(&text, "Error class", payload.ErrorClass)
	writeField(&text, "Error", payload.Error)
	writeMetadata(&text, payload.Metadata)
	fmt.Fprintf(&text, "• Timestamp: %s", occurredAt.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// runReference renders the run ID, linked to the run page when a URL
// prefix is configured. Slack requires &, < and > to be entity-escaped.
func (c *Client) runReference(runID string) string {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return ""
	}

	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(runID)

	link := c.runLink(runID)
	if link == "" {
		return escaped
	}
	return fmt.Sprintf("<%s|%s>", link, escaped)
}

func (c *Client) runLink(runID string) string {
	if c.runURLPrefix == "" {
		return ""
	}

	base, err := url.Parse(c.runURLPrefix)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ""
	}

	link, err := url.JoinPath(base.String(), runID)
	if err != nil {
		return ""
	}
	return link
}

func writeField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(text, "• %s: %s\n", label, value)
}

func writeMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text.WriteString("• Metadata:\n")
	for _, k := range keys {
		fmt.Fprintf(text, "    • %s: %s\n", k, metadata[k])
	}
}
