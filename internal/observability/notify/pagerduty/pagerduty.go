// Package pagerduty delivers run failure notifications through the
// PagerDuty Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes trigger events for failed pipeline runs.
type Client struct {
	routingKey string
	source     string
	component  string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client. A routing key is
// mandatory; everything else has defaults.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		source = "zapply"
	}
	component := strings.TrimSpace(cfg.Component)
	if component == "" {
		component = "ingest"
	}

	return &Client{
		routingKey: key,
		source:     source,
		component:  component,
		retryLimit: max(cfg.RetryLimit, 0),
		client:     httpClient,
	}, nil
}

// SendRunFailure submits a trigger event, retrying transient failures.
func (c *Client) SendRunFailure(ctx context.Context, payload notify.RunFailurePayload) error {
	event := c.buildEvent(payload)
	return notify.Deliver(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, APIEndpoint, "pagerduty api", event)
	})
}

func (c *Client) buildEvent(payload notify.RunFailurePayload) map[string]any {
	severity := strings.ToLower(strings.TrimSpace(payload.Severity))
	if severity == "" {
		severity = notify.SeverityCritical
	}

	occurredAt := payload.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	// Core fields win over metadata on key collisions.
	custom := map[string]any{
		"run_id":       payload.RunID,
		"trigger_type": payload.TriggerType,
		"phase":        payload.Phase,
		"error":        payload.Error,
		"error_class":  payload.ErrorClass,
	}
	for k, v := range payload.Metadata {
		if _, taken := custom[k]; !taken {
			custom[k] = v
		}
	}

	runID := payload.RunID
	if runID == "" {
		runID = "unknown"
	}
	triggerType := payload.TriggerType
	if triggerType == "" {
		triggerType = "unknown"
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		// Deduplicate repeated alerts for the same run.
		"dedup_key": "run:" + runID,
		"payload": map[string]any{
			"summary":        fmt.Sprintf("Pipeline run %s (%s) failed", runID, triggerType),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
