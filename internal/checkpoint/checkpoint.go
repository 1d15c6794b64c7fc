package checkpoint

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/minstrelbot/minstrel/internal/payment"
	"github.com/minstrelbot/minstrel/internal/storage"
	"github.com/minstrelbot/minstrel/internal/store"
	"github.com/minstrelbot/minstrel/types"
)

// checkpointKey is the fixed identifier under which the latest snapshot is
// persisted. Every save overwrites the previous one.
const checkpointKey = "minstrel:checkpoint:latest"

// Manager periodically snapshots pending request/payment state and replays
// it on startup. Durability is best-effort: a missed checkpoint is logged,
// never fatal.
type Manager struct {
	mu          sync.Mutex
	lastSavedAt *time.Time

	requests *store.RequestStore
	ledger   *payment.Ledger
	storage  storage.Store
	logger   *log.Logger
	now      func() time.Time
}

func NewManager(requests *store.RequestStore, ledger *payment.Ledger, st storage.Store, logger *log.Logger) *Manager {
	return &Manager{
		requests: requests,
		ledger:   ledger,
		storage:  st,
		logger:   logger,
		now:      time.Now,
	}
}

// Save snapshots all pending requests and payments to durable storage.
// Failures are logged and swallowed. The snapshot is built from deep
// copies, so encoding never reads a payment the verifier is mutating.
func (m *Manager) Save(ctx context.Context) {
	payments := m.ledger.Pending()
	byOrder := make(map[string]*types.PaymentRequest, len(payments))
	for _, p := range payments {
		byOrder[p.OrderID] = p
	}

	// A request is pending exactly when its payment is in the ledger
	// snapshot. The struct copy reads only immutable request fields;
	// the shared payment pointer is swapped for the snapshot's copy.
	var pendingRequests []*types.StoredRequest
	for _, req := range m.requests.All() {
		p, ok := byOrder[req.Payment.OrderID]
		if !ok {
			continue
		}
		snap := *req
		snap.Payment = p
		pendingRequests = append(pendingRequests, &snap)
	}

	cp := &types.Checkpoint{
		Timestamp:       m.now(),
		PendingRequests: pendingRequests,
		PendingPayments: payments,
	}

	data, err := json.Marshal(cp)
	if err != nil {
		m.logger.Printf("checkpoint marshal failed: %v", err)
		return
	}

	if err := m.storage.Set(ctx, checkpointKey, data); err != nil {
		m.logger.Printf("checkpoint save failed: %v", err)
		return
	}

	m.mu.Lock()
	ts := cp.Timestamp
	m.lastSavedAt = &ts
	m.mu.Unlock()

	m.logger.Printf("checkpoint saved: %d requests, %d payments", len(cp.PendingRequests), len(cp.PendingPayments))
}

// Recover reads the last persisted snapshot and re-inserts every pending
// request and payment. Durability stays best-effort in both directions: an
// absent, unreadable or corrupt snapshot means a fresh start, never a dead
// process. A single item that fails to re-insert is logged and skipped;
// the rest of the recovery proceeds.
func (m *Manager) Recover(ctx context.Context) {
	data, found, err := m.storage.Get(ctx, checkpointKey)
	if err != nil {
		m.logger.Printf("checkpoint load failed, starting fresh: %v", err)
		return
	}
	if !found {
		m.logger.Println("no checkpoint found, starting fresh")
		return
	}

	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		m.logger.Printf("checkpoint decode failed, starting fresh: %v", err)
		return
	}

	for _, p := range cp.PendingPayments {
		if err := m.ledger.Restore(p); err != nil {
			m.logger.Printf("skipping payment %s during recovery: %v", p.OrderID, err)
		}
	}

	recovered := 0
	for _, req := range cp.PendingRequests {
		// Re-link to the ledger's instance so request and ledger keep
		// sharing one PaymentRequest, as they did before the restart.
		if req.Payment != nil {
			if p, err := m.ledger.Get(req.Payment.OrderID); err == nil {
				req.Payment = p
			}
		}
		if err := m.requests.Store(req); err != nil {
			m.logger.Printf("skipping request %s during recovery: %v", req.CorrelationID, err)
			continue
		}
		recovered++
	}

	m.logger.Printf("recovered %d requests from checkpoint taken at %s", recovered, cp.Timestamp.Format(time.RFC3339))
}

// LastSavedAt reports when the last successful checkpoint was taken.
func (m *Manager) LastSavedAt() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSavedAt
}
