package webhooks

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"loanledger/core/events"
)

// Envelope is the JSON body delivered to webhook endpoints. Payload carries
// the event fields with addresses hex-encoded and amounts rendered as decimal
// strings.
type Envelope struct {
	Type       string      `json:"type"`
	DeliveryID string      `json:"deliveryId"`
	EmittedAt  time.Time   `json:"emittedAt"`
	Payload    interface{} `json:"payload"`
}

// Bridge fans ledger events out to webhook dispatchers as signed JSON
// deliveries. It implements events.Emitter, so it can sit directly behind the
// ledger's commit-gated event flush.
type Bridge struct {
	dispatchers []*Dispatcher
	now         func() time.Time
	seq         atomic.Uint64
}

// NewBridge wraps the supplied dispatchers. The bridge owns their lifecycle;
// closing the bridge closes every dispatcher.
func NewBridge(dispatchers ...*Dispatcher) *Bridge {
	return &Bridge{
		dispatchers: dispatchers,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Emit implements events.Emitter. Serialisation failures and closed
// dispatchers drop the delivery; events never propagate errors back into the
// ledger.
func (b *Bridge) Emit(evt events.Event) {
	if b == nil || evt == nil || len(b.dispatchers) == 0 {
		return
	}
	eventType := evt.EventType()
	envelope := Envelope{
		Type:       eventType,
		DeliveryID: fmt.Sprintf("%s-%d", eventType, b.seq.Add(1)),
		EmittedAt:  b.now(),
		Payload:    payloadFields(evt),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	for _, dispatcher := range b.dispatchers {
		_ = dispatcher.Enqueue(eventType, body)
	}
}

// Close shuts down every wrapped dispatcher.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	for _, dispatcher := range b.dispatchers {
		dispatcher.Close()
	}
}

// payloadFields renders the known event payloads with webhook-friendly field
// names. Unknown event types are serialised as-is.
func payloadFields(evt events.Event) interface{} {
	switch e := evt.(type) {
	case events.LoanOriginated:
		return map[string]interface{}{
			"loanId":             e.LoanID,
			"programId":          e.ProgramID,
			"borrower":           hexAddr(e.Borrower),
			"principal":          amountString(e.Principal),
			"initialBalance":     amountString(e.InitialBalance),
			"durationPeriods":    e.DurationPeriods,
			"ratePrimary":        e.RatePrimary,
			"rateSecondary":      e.RateSecondary,
			"startTimestamp":     e.StartTimestamp,
			"firstInstallmentId": e.FirstInstallmentID,
			"installmentCount":   e.InstallmentCount,
		}
	case events.LoanRepaid:
		return map[string]interface{}{
			"loanId":           e.LoanID,
			"programId":        e.ProgramID,
			"payer":            hexAddr(e.Payer),
			"amount":           amountString(e.Amount),
			"remainingBalance": amountString(e.RemainingBalance),
			"full":             e.Full,
			"timestamp":        e.Timestamp,
		}
	case events.LoanFrozen:
		return map[string]interface{}{
			"loanId":    e.LoanID,
			"programId": e.ProgramID,
			"timestamp": e.Timestamp,
		}
	case events.LoanUnfrozen:
		return map[string]interface{}{
			"loanId":          e.LoanID,
			"programId":       e.ProgramID,
			"frozenPeriods":   e.FrozenPeriods,
			"durationPeriods": e.DurationPeriods,
			"timestamp":       e.Timestamp,
		}
	case events.LoanRevoked:
		return map[string]interface{}{
			"loanId":    e.LoanID,
			"programId": e.ProgramID,
			"initiator": hexAddr(e.Initiator),
			"shortfall": amountString(e.Shortfall),
			"excess":    amountString(e.Excess),
			"timestamp": e.Timestamp,
		}
	case events.LoanRenegotiated:
		return map[string]interface{}{
			"loanId":    e.LoanID,
			"programId": e.ProgramID,
			"change":    e.Change,
			"oldValue":  e.OldValue,
			"newValue":  e.NewValue,
			"timestamp": e.Timestamp,
		}
	case events.ProgramCreated:
		return map[string]interface{}{
			"programId": e.ProgramID,
			"lender":    hexAddr(e.Lender),
			"policyRef": hexAddr(e.PolicyRef),
			"sourceRef": hexAddr(e.SourceRef),
			"timestamp": e.Timestamp,
		}
	case events.ProgramUpdated:
		return map[string]interface{}{
			"programId": e.ProgramID,
			"lender":    hexAddr(e.Lender),
			"policyRef": hexAddr(e.PolicyRef),
			"sourceRef": hexAddr(e.SourceRef),
			"timestamp": e.Timestamp,
		}
	case events.PolicyRegistered:
		return map[string]interface{}{
			"ref":       hexAddr(e.Ref),
			"lender":    hexAddr(e.Lender),
			"timestamp": e.Timestamp,
		}
	case events.SourceRegistered:
		return map[string]interface{}{
			"ref":       hexAddr(e.Ref),
			"lender":    hexAddr(e.Lender),
			"timestamp": e.Timestamp,
		}
	case events.AliasConfigured:
		return map[string]interface{}{
			"lender":    hexAddr(e.Lender),
			"alias":     hexAddr(e.Alias),
			"timestamp": e.Timestamp,
		}
	default:
		return evt
	}
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
