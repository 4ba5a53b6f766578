package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONSuccess(t *testing.T) {
	t.Parallel()

	var got []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.Client(), server.URL, "test sink", map[string]string{"run_id": "run-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(got))
}

func TestPostJSONReportsStatusAndBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.Client(), server.URL, "test sink", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test sink 400")
	assert.Contains(t, err.Error(), "invalid routing key")
}

func TestPostJSONRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	err := PostJSON(context.Background(), http.DefaultClient, "http://localhost:0", "test sink", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode test sink payload")
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Deliver(context.Background(), 3, func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverReturnsLastError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Deliver(context.Background(), 1, func(context.Context) error {
		return errors.New("attempt " + string(rune('0'+calls.Add(1))))
	})

	require.Error(t, err)
	assert.Equal(t, "attempt 2", err.Error())
}

func TestDeliverStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	err := Deliver(ctx, 10, func(context.Context) error {
		calls.Add(1)
		return errors.New("always fails")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, calls.Load(), int32(11))
}
