package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

func TestNewClientRequiresWebhookURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook url")
}

func TestFormatMessageIncludesFields(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.RunFailurePayload{
		RunID:       "run-123",
		TriggerType: "manual",
		Phase:       "scraping",
		Error:       "boom",
		ErrorClass:  "test_error",
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#alerts", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{"Pipeline run failure", "run-123", "manual", "scraping", "boom", "test_error", notify.SeverityCritical} {
		assert.Contains(t, text, want)
	}
}

func TestFormatMessageOmitsChannelWhenUnset(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.RunFailurePayload{RunID: "run-1"})
	assert.NotContains(t, msg, "channel")
	assert.Equal(t, "zapply", msg["username"])
}

func TestFormatMessageLinksRun(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		WebhookURL:   "https://hooks.slack.com/services/test",
		RunURLPrefix: "https://zapply.example.com/runs",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.RunFailurePayload{RunID: "run-9"})
	text, _ := msg["text"].(string)
	assert.Contains(t, text, "<https://zapply.example.com/runs/run-9|run-9>")
}

func TestFormatMessageEscapesRunID(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.RunFailurePayload{RunID: "run<1>&2"})
	text, _ := msg["text"].(string)
	assert.Contains(t, text, "run&lt;1&gt;&amp;2")
}

func TestFormatMessageSortsMetadata(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.RunFailurePayload{
		RunID:    "run-1",
		Metadata: map[string]string{"zeta": "z", "alpha": "a"},
	})
	text, _ := msg["text"].(string)

	alphaIdx := strings.Index(text, "alpha")
	zetaIdx := strings.Index(text, "zeta")
	require.GreaterOrEqual(t, alphaIdx, 0)
	require.GreaterOrEqual(t, zetaIdx, 0)
	assert.Less(t, alphaIdx, zetaIdx)
}

func TestSendRunFailureRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		WebhookURL: server.URL,
		RetryLimit: 2,
		Client:     server.Client(),
	})
	require.NoError(t, err)

	err = client.SendRunFailure(context.Background(), notify.RunFailurePayload{RunID: "run-1", Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
