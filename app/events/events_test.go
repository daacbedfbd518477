package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.Publish(KeywordsChanged, "req-1", map[string]any{"keywords": []string{"golang"}})

	evt := <-ch
	if evt.Type != KeywordsChanged {
		t.Errorf("Expected type %s, got %s", KeywordsChanged, evt.Type)
	}
	if evt.RequestID != "req-1" {
		t.Errorf("Expected request id req-1, got %s", evt.RequestID)
	}

	var data struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if len(data.Keywords) != 1 || data.Keywords[0] != "golang" {
		t.Errorf("Unexpected data: %s", evt.Data)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()

	for i := 0; i < hub.buffer*3; i++ {
		hub.Publish(CollectionStarted, "", nil)
	}

	if len(ch) != hub.buffer {
		t.Errorf("Expected buffer to be full with %d events, got %d", hub.buffer, len(ch))
	}
	hub.Unsubscribe(ch)
}

func TestHub_UnsubscribeTwice(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()

	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)

	if hub.Subscribers() != 0 {
		t.Errorf("Expected no subscribers, got %d", hub.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Close()

	if _, ok := <-a; ok {
		t.Error("Expected first channel closed")
	}
	if _, ok := <-b; ok {
		t.Error("Expected second channel closed")
	}
	hub.Unsubscribe(a)
}

func TestRequestIDContext(t *testing.T) {
	if id := RequestID(context.Background()); id != "" {
		t.Errorf("Expected empty id, got %q", id)
	}

	ctx := WithRequestID(context.Background(), "req-42")
	if id := RequestID(ctx); id != "req-42" {
		t.Errorf("Expected req-42, got %q", id)
	}
}
