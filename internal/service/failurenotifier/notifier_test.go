package failurenotifier

import (
	"context"
	"errors"
	"testing"

	"github.com/zapply/ingest-api/internal/observability/notify"
)

func TestServiceNotifyRunFailure(t *testing.T) {
	ctx := context.Background()

	var received []notify.RunFailurePayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	svc.NotifyRunFailure(ctx, notify.RunFailurePayload{
		RunID:       "run-123",
		TriggerType: "manual",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceFanOutToAllSinks(t *testing.T) {
	var first, second int
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "first",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
					first++
					return nil
				}),
			},
			{
				Name: "second",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
					second++
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyRunFailure(context.Background(), notify.RunFailurePayload{RunID: "run-1"})

	if first != 1 || second != 1 {
		t.Fatalf("expected both sinks called once, got first=%d second=%d", first, second)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestServiceSkipsNilSinks(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "nil-sink", Sink: nil}},
	})
	if svc.Enabled() {
		t.Fatal("expected nil sinks to be dropped at construction")
	}
	// Must be a no-op, not a panic.
	svc.NotifyRunFailure(context.Background(), notify.RunFailurePayload{RunID: "run-1"})
}
