package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestDispatchToUserFiltersByEventAndUser(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_1",
		UserID: "usr_worker",
		URL:    srv.URL,
		Events: []EventType{EventPayoutReleased},
		Active: true,
	})
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_2",
		UserID: "usr_worker",
		URL:    srv.URL,
		Events: []EventType{EventDisputeOpened},
		Active: true,
	})

	d := NewDispatcher(store)
	err := d.DispatchToUser(context.Background(), "usr_worker", &Event{
		ID:        "evt_1",
		Type:      EventPayoutReleased,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"choreId": "chr_1"},
	})
	if err != nil {
		t.Fatalf("DispatchToUser failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(received))
	}
	if received[0].Type != EventPayoutReleased {
		t.Errorf("wrong event type delivered: %s", received[0].Type)
	}
}

func TestDispatchSkipsInactive(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_1",
		UserID: "usr_owner",
		URL:    srv.URL,
		Events: []EventType{EventPaymentFailed},
		Active: false,
	})

	d := NewDispatcher(store)
	_ = d.DispatchToUser(context.Background(), "usr_owner", &Event{
		ID:   "evt_1",
		Type: EventPaymentFailed,
	})

	select {
	case <-hit:
		t.Fatal("inactive subscription must not receive events")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDeliveryRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_1",
		UserID: "usr_owner",
		URL:    srv.URL,
		Events: []EventType{EventChoreFunded},
		Active: true,
	})

	d := NewDispatcher(store)
	_ = d.DispatchToUser(context.Background(), "usr_owner", &Event{
		ID:   "evt_1",
		Type: EventChoreFunded,
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was not retried after a 503")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestDeliveryDoesNotRetryRejection(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_1",
		UserID: "usr_owner",
		URL:    srv.URL,
		Events: []EventType{EventChoreFunded},
		Active: true,
	})

	d := NewDispatcher(store)
	_ = d.DispatchToUser(context.Background(), "usr_owner", &Event{
		ID:   "evt_1",
		Type: EventChoreFunded,
	})

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts)
	}
}

func TestDeliverySignature(t *testing.T) {
	sigCh := make(chan string, 1)
	bodyCh := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		sigCh <- r.Header.Get("X-Chorebay-Signature")
		bodyCh <- buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "sub_1",
		UserID: "usr_owner",
		URL:    srv.URL,
		Secret: "topsecret",
		Events: []EventType{EventChoreFunded},
		Active: true,
	})

	d := NewDispatcher(store)
	_ = d.DispatchToUser(context.Background(), "usr_owner", &Event{
		ID:        "evt_1",
		Type:      EventChoreFunded,
		Timestamp: time.Now(),
	})

	select {
	case sig := <-sigCh:
		body := <-bodyCh
		if want := d.sign(body, "topsecret"); sig != want {
			t.Errorf("signature mismatch: got %s want %s", sig, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
	}
}
