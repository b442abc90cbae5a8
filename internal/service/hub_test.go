package service

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(StageEvent{CaptureID: "c1", Stage: "loading", At: time.Now().UTC()})

	select {
	case data := <-ch:
		var ev StageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.CaptureID != "c1" || ev.Stage != "loading" {
			t.Fatalf("event = %+v, want capture c1 stage loading", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()

	cancel()
	cancel() // must not panic closing twice

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}

	// Publishing after cancel must not panic either.
	h.Publish(StageEvent{CaptureID: "c2", Stage: "done"})
}

func TestHubDropsWhenSubscriberIsBehind(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < 200; i++ {
		h.Publish(StageEvent{CaptureID: "c3", Stage: "measuring"})
	}

	if n := len(ch); n != cap(ch) {
		t.Fatalf("buffered = %d, want full buffer %d", n, cap(ch))
	}
}
