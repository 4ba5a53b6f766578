package pagerduty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

func TestNewClientRequiresRoutingKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing key")
}

func TestBuildEventDefaults(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := client.buildEvent(notify.RunFailurePayload{
		RunID:       "run-123",
		TriggerType: "manual",
		Phase:       "scraping",
		Error:       "boom",
		ErrorClass:  "err_class",
		OccurredAt:  occurredAt,
	})

	assert.Equal(t, "key", event["routing_key"])
	assert.Equal(t, "trigger", event["event_action"])
	assert.Equal(t, "run:run-123", event["dedup_key"])

	payload, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Pipeline run run-123 (manual) failed", payload["summary"])
	assert.Equal(t, notify.SeverityCritical, payload["severity"])
	assert.Equal(t, "zapply", payload["source"])
	assert.Equal(t, "ingest", payload["component"])
	assert.Equal(t, "2025-06-01T12:00:00Z", payload["timestamp"])

	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-123", custom["run_id"])
	assert.Equal(t, "manual", custom["trigger_type"])
	assert.Equal(t, "scraping", custom["phase"])
	assert.Equal(t, "boom", custom["error"])
	assert.Equal(t, "err_class", custom["error_class"])
}

func TestBuildEventUnknownRun(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.RunFailurePayload{Error: "boom"})
	assert.Equal(t, "run:unknown", event["dedup_key"])

	payload := event["payload"].(map[string]any)
	assert.Equal(t, "Pipeline run unknown (unknown) failed", payload["summary"])
}

func TestBuildEventMetadataDoesNotOverrideCore(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.RunFailurePayload{
		RunID: "run-1",
		Error: "boom",
		Metadata: map[string]string{
			"error":  "not-the-real-error",
			"region": "us-east-1",
		},
	})

	custom := event["payload"].(map[string]any)["custom_details"].(map[string]any)
	assert.Equal(t, "boom", custom["error"])
	assert.Equal(t, "us-east-1", custom["region"])
}
