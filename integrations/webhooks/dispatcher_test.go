package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"loanledger/core/events"
)

func TestDispatcherSignsPayload(t *testing.T) {
	type received struct {
		body      []byte
		signature string
		eventType string
	}
	got := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		got <- received{
			body:      body,
			signature: r.Header.Get("X-Ledger-Signature"),
			eventType: r.Header.Get("X-Ledger-Event"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := []byte("hook-secret")
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	payload := []byte(`{"type":"lending.loan.originated"}`)
	if err := dispatcher.Enqueue(events.TypeLoanOriginated, payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case rec := <-got:
		if string(rec.body) != string(payload) {
			t.Fatalf("unexpected body: %s", rec.body)
		}
		if rec.eventType != events.TypeLoanOriginated {
			t.Fatalf("unexpected event header: %s", rec.eventType)
		}
		mac := hmac.New(sha256.New, secret)
		mac.Write(payload)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if rec.signature != want {
			t.Fatalf("signature mismatch: got %s want %s", rec.signature, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("delivery never arrived")
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	if err := dispatcher.Enqueue(events.TypeLoanRepaid, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestDispatcherEventFilter(t *testing.T) {
	delivered := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithEventFilter(events.TypeLoanRevoked))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	if !dispatcher.Accepts(events.TypeLoanRevoked) {
		t.Fatalf("expected subscription to revoked events")
	}
	if dispatcher.Accepts(events.TypeLoanRepaid) {
		t.Fatalf("expected repaid events to be filtered")
	}

	if err := dispatcher.Enqueue(events.TypeLoanRepaid, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue filtered: %v", err)
	}
	if err := dispatcher.Enqueue(events.TypeLoanRevoked, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue subscribed: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&delivered) >= 1 }, time.Second)
	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

func TestBridgeDeliversEnvelope(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	bridge := NewBridge(dispatcher)
	defer bridge.Close()

	var payer [20]byte
	payer[19] = 0xB0
	bridge.Emit(events.LoanRepaid{
		LoanID:           4,
		ProgramID:        2,
		Payer:            payer,
		Amount:           big.NewInt(40),
		RemainingBalance: big.NewInt(75),
		Full:             false,
		Timestamp:        1_700_000_000,
	})

	select {
	case body := <-bodies:
		var envelope struct {
			Type       string                 `json:"type"`
			DeliveryID string                 `json:"deliveryId"`
			Payload    map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if envelope.Type != events.TypeLoanRepaid {
			t.Fatalf("unexpected type: %s", envelope.Type)
		}
		if envelope.DeliveryID == "" {
			t.Fatalf("expected delivery id")
		}
		if envelope.Payload["amount"] != "40" || envelope.Payload["remainingBalance"] != "75" {
			t.Fatalf("unexpected amounts: %v", envelope.Payload)
		}
		if envelope.Payload["payer"] != "0x"+hex.EncodeToString(payer[:]) {
			t.Fatalf("unexpected payer: %v", envelope.Payload["payer"])
		}
		if full, ok := envelope.Payload["full"].(bool); !ok || full {
			t.Fatalf("unexpected full flag: %v", envelope.Payload["full"])
		}
	case <-time.After(time.Second):
		t.Fatalf("envelope never arrived")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
