package events

import (
	"fmt"
	"testing"

	"github.com/renameflux/renameflux/pkg/protocol"
)

func logEnv(t *testing.T, jobID, msg string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.TypeLog, jobID, protocol.LogEvent{Message: msg})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	return env
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job1")
	defer cancel()

	for i := 0; i < 10; i++ {
		hub.Publish("job1", logEnv(t, "job1", fmt.Sprintf("line %d", i)))
	}

	for i := 0; i < 10; i++ {
		env := <-ch
		var ev protocol.LogEvent
		if err := env.DecodePayload(&ev); err != nil {
			t.Fatalf("DecodePayload() error = %v", err)
		}
		want := fmt.Sprintf("line %d", i)
		if ev.Message != want {
			t.Fatalf("event %d = %q, want %q", i, ev.Message, want)
		}
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("job1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("job1")
	defer cancel2()

	hub.Publish("job1", logEnv(t, "job1", "hello"))

	for _, ch := range []<-chan protocol.Envelope{ch1, ch2} {
		env := <-ch
		if env.Type != protocol.TypeLog {
			t.Fatalf("Type = %s, want log", env.Type)
		}
	}
}

func TestHubJobIsolation(t *testing.T) {
	hub := NewHub()
	ch1, cancel := hub.Subscribe("job1")
	defer cancel()

	hub.Publish("job2", logEnv(t, "job2", "other job"))

	select {
	case env := <-ch1:
		t.Fatalf("unexpected event for job1: %v", env)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	if n := hub.SubscriberCount("job1"); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestHubCloseJobClosesSubscribers(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe("job1")

	hub.Publish("job1", logEnv(t, "job1", "final"))
	hub.CloseJob("job1")

	env, ok := <-ch
	if !ok {
		t.Fatal("expected the final event before close")
	}
	if env.Type != protocol.TypeLog {
		t.Fatalf("Type = %s, want log", env.Type)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after CloseJob")
	}
}

func TestHubOverflowDisconnectsSubscriber(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe("job1")

	// Never drain; overflow must disconnect, not reorder or skip.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish("job1", logEnv(t, "job1", fmt.Sprintf("line %d", i)))
	}

	if n := hub.SubscriberCount("job1"); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0 after overflow", n)
	}

	// Everything buffered before the disconnect is still in order.
	i := 0
	for env := range ch {
		var ev protocol.LogEvent
		if err := env.DecodePayload(&ev); err != nil {
			t.Fatalf("DecodePayload() error = %v", err)
		}
		want := fmt.Sprintf("line %d", i)
		if ev.Message != want {
			t.Fatalf("event %d = %q, want %q", i, ev.Message, want)
		}
		i++
	}
	if i != subscriberBuffer {
		t.Fatalf("received %d events before disconnect, want %d", i, subscriberBuffer)
	}
}
