package bank

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PeriodEvent is broadcast to every connected websocket client whenever the Bank seals a
// period, carrying just enough for a dashboard to refresh its view without
// re-fetching the whole HBlock. EventID is a correlation id a dashboard can
// use to dedupe a redelivered broadcast, mirroring the id the teacher's
// AlertManager generates per alert.
type PeriodEvent struct {
	EventID      string    `json:"eventId"`
	Timestamp    time.Time `json:"timestamp"`
	PeriodID     uint64    `json:"periodId"`
	HBlockHash   string    `json:"hblockHash"`
	NumTxs       int       `json:"numTxs"`
	NumMintettes int       `json:"numMintettes"`
}

// Notifier fans period-transition events out to subscribers, mirroring the
// teacher's AlertManager (internal/heuristics/alert_system.go): an in-memory
// bounded history plus a broadcast callback, with webhook delivery dropped
// (the Bank has no equivalent of SOC webhook integrations) and the callback
// wired directly to the websocket Hub instead.
type Notifier struct {
	mu           sync.RWMutex
	recent       []PeriodEvent
	maxHistory   int
	broadcastFn  func(PeriodEvent)
}

// NewNotifier creates a notifier that invokes broadcastFn for every event,
// in addition to recording it in the bounded history.
func NewNotifier(broadcastFn func(PeriodEvent)) *Notifier {
	return &Notifier{
		recent:      make([]PeriodEvent, 0),
		maxHistory:  1000,
		broadcastFn: broadcastFn,
	}
}

// Emit records ev and invokes the broadcast callback.
func (n *Notifier) Emit(ev PeriodEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	n.mu.Lock()
	n.recent = append(n.recent, ev)
	if len(n.recent) > n.maxHistory {
		n.recent = n.recent[len(n.recent)-n.maxHistory:]
	}
	n.mu.Unlock()

	if n.broadcastFn != nil {
		n.broadcastFn(ev)
	}

	log.Printf("[bank] period %d sealed: %d txs, %d mintettes, hblock %s",
		ev.PeriodID, ev.NumTxs, ev.NumMintettes, ev.HBlockHash)
}

// Recent returns the most recent events, most recent first.
func (n *Notifier) Recent(limit int) []PeriodEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if limit <= 0 || limit > len(n.recent) {
		limit = len(n.recent)
	}
	start := len(n.recent) - limit
	out := make([]PeriodEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = n.recent[start+limit-1-i]
	}
	return out
}

// MarshalBroadcast encodes ev the way the websocket Hub expects: a typed
// envelope so dashboard clients can dispatch on "type" without guessing.
func MarshalBroadcast(ev PeriodEvent) []byte {
	payload := map[string]interface{}{
		"type":  "period_sealed",
		"event": ev,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
