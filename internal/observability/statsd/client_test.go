package statsd

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureConn collects everything written to it.
type captureConn struct {
	net.Conn
	mu    sync.Mutex
	lines []string
}

func (c *captureConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, string(p))
	return len(p), nil
}

func (c *captureConn) Close() error { return nil }

func newCaptureClient(prefix string, globalTags map[string]string) (*Client, *captureConn) {
	conn := &captureConn{}
	return &Client{
		prefix:     prefix,
		globalTags: cleanTags(globalTags),
		conn:       conn,
	}, conn
}

func TestClientEmitsProtocolLines(t *testing.T) {
	t.Parallel()

	client, conn := newCaptureClient("zapply", nil)

	client.Count("run.transition", 1, map[string]string{"result": "success"})
	client.Gauge("queue.depth", 12.5, nil)
	client.Timing("run.duration", 1500*time.Millisecond, nil)

	require.Len(t, conn.lines, 3)
	assert.Equal(t, "zapply.run.transition:1|c|#result:success", conn.lines[0])
	assert.Equal(t, "zapply.queue.depth:12.5|g", conn.lines[1])
	assert.Equal(t, "zapply.run.duration:1500|ms", conn.lines[2])
}

func TestClientQualifiesMetricNames(t *testing.T) {
	t.Parallel()

	withPrefix, _ := newCaptureClient("zapply", nil)
	noPrefix, _ := newCaptureClient("", nil)

	tests := []struct {
		client *Client
		name   string
		want   string
	}{
		{withPrefix, "run.duration", "zapply.run.duration"},
		{withPrefix, " scrape/remotive ", "zapply.scrape_remotive"},
		{withPrefix, "foo..bar", "zapply.foo.bar"},
		{withPrefix, "", "zapply"},
		{noPrefix, "run.duration", "run.duration"},
		{noPrefix, "", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.client.qualify(tt.name), "name %q", tt.name)
	}
}

func TestTagSuffixMergesAndSorts(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " ingest "}
	local := map[string]string{"result": " success ", "": "dropped", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:ingest", tagSuffix(global, local))
	assert.Empty(t, tagSuffix(nil, nil))
	assert.Empty(t, tagSuffix(map[string]string{"": "x"}, nil))
}

func TestCleanTagsCopies(t *testing.T) {
	t.Parallel()

	original := map[string]string{"env": "prod", "": "dropped"}
	cleaned := cleanTags(original)

	require.NotNil(t, cleaned)
	assert.NotContains(t, cleaned, "")

	cleaned["env"] = "stage"
	assert.Equal(t, "prod", original["env"])
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	client, _ := newCaptureClient("", nil)
	assert.True(t, client.Enabled())

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())

	// Emitting after Close drops the metric instead of panicking.
	assert.NotPanics(t, func() { client.Count("run.transition", 1, nil) })

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	assert.NotPanics(t, func() { nilClient.Count("run.transition", 1, nil) })
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
