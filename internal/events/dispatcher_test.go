package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestInMemoryDispatcherDelivers(t *testing.T) {
	d := NewInMemoryDispatcher(nil, 2)

	var mu sync.Mutex
	var got []string
	d.Subscribe(EventOnTicketCreate, func(ctx context.Context, e Event) error {
		if ctx.Err() != nil {
			t.Errorf("handler context should not inherit cancellation")
		}
		var p OnTicketCreatePayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, "first:"+p.TicketID)
		mu.Unlock()
		return errors.New("handler failure must not stop the next one")
	})
	d.Subscribe(EventOnTicketCreate, func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, "second")
		mu.Unlock()
		return nil
	})

	event, err := NewEvent(EventOnTicketCreate, OnTicketCreatePayload{TicketID: "T1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Fatalf("envelope not populated: %+v", event)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancel()
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(got) != 2 || got[0] != "first:T1" || got[1] != "second" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if err := d.Publish(context.Background(), event); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close should fail, got %v", err)
	}
}

func TestEventTypesKnown(t *testing.T) {
	for _, name := range []EventType{EventTicketCreated, EventOnTicketCreate, EventTicketAssigned} {
		if !name.Known() {
			t.Errorf("%s should be known", name)
		}
	}
	if EventType("ticket_created").Known() {
		t.Errorf("unexpected known event")
	}
}

func TestStreamEntryRoundTrip(t *testing.T) {
	event, err := NewEvent(EventTicketCreated, TicketCreatedPayload{TicketID: "T9", Message: "hello"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	values, err := encodeEntry(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeEntry(values)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != event.ID || decoded.Name != event.Name || string(decoded.Data) != string(event.Data) {
		t.Fatalf("round trip changed event: %+v vs %+v", decoded, event)
	}

	for name, values := range map[string]map[string]any{
		"missing field": {"other": "x"},
		"bad json":      {streamField: "{"},
		"unknown name":  {streamField: `{"id":"1","name":"nope","data":{}}`},
		"missing id":    {streamField: `{"name":"ticket.created","data":{}}`},
	} {
		if _, err := decodeEntry(values); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
