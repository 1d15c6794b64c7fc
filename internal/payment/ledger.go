package payment

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minstrelbot/minstrel/custom_errors"
	"github.com/minstrelbot/minstrel/internal/chain"
	"github.com/minstrelbot/minstrel/internal/state"
	"github.com/minstrelbot/minstrel/internal/store"
	"github.com/minstrelbot/minstrel/types"
	"github.com/shopspring/decimal"
)

// Config fixes the ledger's pricing and verification policy.
type Config struct {
	Price                decimal.Decimal
	DestinationAddresses map[string]string
	MaxVerificationTime  time.Duration
	MaxAttempts          int
	// AmountTolerance is the relative tolerance for balance-delta
	// verification; it absorbs price-oracle drift between request creation
	// and payment.
	AmountTolerance float64
}

// Events receives payment lifecycle notifications. Any callback may be nil.
type Events struct {
	OnCompleted func(p *types.PaymentRequest)
	OnFailed    func(p *types.PaymentRequest)
	OnRetried   func(p *types.PaymentRequest)
}

// Ledger owns every PaymentRequest and drives the verification state
// machine: pending -> completed, pending -> failed, and the manual-only
// failed -> pending retry. Lookup-then-transition sequences hold the mutex
// for their full duration.
type Ledger struct {
	mu       sync.Mutex
	payments map[string]*types.PaymentRequest
	failures map[string]string // orderID -> last failure message

	cfg      Config
	verifier chain.Verifier
	requests *store.RequestStore
	events   Events
	logger   *log.Logger
	now      func() time.Time
}

func NewLedger(cfg Config, verifier chain.Verifier, requests *store.RequestStore, events Events, logger *log.Logger) *Ledger {
	return &Ledger{
		payments: make(map[string]*types.PaymentRequest),
		failures: make(map[string]string),
		cfg:      cfg,
		verifier: verifier,
		requests: requests,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePaymentRequest allocates a new pending payment with a unique,
// immutable order id.
func (l *Ledger) CreatePaymentRequest(userID, correlationID string) *types.PaymentRequest {
	now := l.now()
	orderID := fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), uuid.NewString()[:8])

	addrs := make(map[string]string, len(l.cfg.DestinationAddresses))
	for chainSym, addr := range l.cfg.DestinationAddresses {
		addrs[chainSym] = addr
	}

	p := &types.PaymentRequest{
		OrderID:              orderID,
		UserID:               userID,
		CorrelationID:        correlationID,
		Amount:               l.cfg.Price,
		DestinationAddresses: addrs,
		Status:               state.StatusPending,
		CreatedAt:            now,
	}

	l.mu.Lock()
	l.payments[orderID] = p
	l.mu.Unlock()

	l.logger.Printf("created payment %s for user %s (post %s), amount %s", orderID, userID, correlationID, p.Amount)
	return p
}

// Get returns the payment with the given order id.
func (l *Ledger) Get(orderID string) (*types.PaymentRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", orderID, custom_errors.ErrNotFound)
	}
	return p, nil
}

// Pending returns all pending payments, oldest first, as deep copies taken
// under the lock. Callers can serialize or inspect them while verification
// keeps mutating the live instances.
func (l *Ledger) Pending() []*types.PaymentRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []*types.PaymentRequest
	for _, p := range l.payments {
		if p.IsPending() {
			pending = append(pending, p.Clone())
		}
	}
	sortPayments(pending)
	return pending
}

// Restore re-inserts a payment recovered from a checkpoint. Existing
// entries are left untouched.
func (l *Ledger) Restore(p *types.PaymentRequest) error {
	if p == nil || p.OrderID == "" {
		return fmt.Errorf("payment must have an order id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.payments[p.OrderID]; exists {
		return fmt.Errorf("payment %s already present", p.OrderID)
	}
	l.payments[p.OrderID] = p
	return nil
}

// VerifyPayment runs one verification pass for orderID. Expiry takes
// precedence over everything else; a completed payment verifies true
// idempotently; a transport error from the chain capability is folded into
// a negative outcome with its message recorded, never propagated.
func (l *Ledger) VerifyPayment(ctx context.Context, orderID, proof string) (bool, error) {
	l.mu.Lock()
	p, ok := l.payments[orderID]
	if !ok {
		l.mu.Unlock()
		return false, fmt.Errorf("payment %s: %w", orderID, custom_errors.ErrNotFound)
	}

	if p.Status == state.StatusCompleted {
		l.mu.Unlock()
		return true, nil
	}

	if l.now().Sub(p.CreatedAt) > l.cfg.MaxVerificationTime {
		l.transitionLocked(p, state.StatusFailed)
		l.failures[orderID] = custom_errors.ErrExpired.Error()
		l.mu.Unlock()
		l.logger.Printf("payment %s expired after %s", orderID, l.cfg.MaxVerificationTime)
		l.notifyFailed(p)
		return false, nil
	}
	l.mu.Unlock()

	// External call happens outside the lock; the chain capability can be
	// arbitrarily slow.
	verified, verr := l.checkOnChain(ctx, p, proof)

	l.mu.Lock()
	if verified {
		l.transitionLocked(p, state.StatusCompleted)
		now := l.now()
		p.CompletedAt = &now
		p.LastError = ""
		delete(l.failures, orderID)
		l.mu.Unlock()
		l.logger.Printf("payment %s verified", orderID)
		l.notifyCompleted(p)
		return true, nil
	}

	msg := custom_errors.ErrVerificationFailed.Error()
	if verr != nil {
		msg = verr.Error()
	}
	p.VerificationAttempts++
	p.LastError = msg

	// The retryable failure record is created only on terminal failure; a
	// payment that is merely pending awaits its next scheduled re-check.
	exhausted := p.VerificationAttempts >= l.cfg.MaxAttempts
	if exhausted {
		l.transitionLocked(p, state.StatusFailed)
		l.failures[orderID] = msg
	}
	attempts := p.VerificationAttempts
	l.mu.Unlock()

	l.logger.Printf("payment %s verification failed (attempt %d/%d): %s", orderID, attempts, l.cfg.MaxAttempts, msg)
	if exhausted {
		l.notifyFailed(p)
	}
	return false, nil
}

// RetryFailedPayment resets the attempt counter for a payment that has a
// failure record and runs verification again. Payments without a failure
// record cannot be retried through this path.
func (l *Ledger) RetryFailedPayment(ctx context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	p, ok := l.payments[orderID]
	if !ok {
		l.mu.Unlock()
		return false, fmt.Errorf("payment %s: %w", orderID, custom_errors.ErrNotFound)
	}
	if _, failed := l.failures[orderID]; !failed {
		l.mu.Unlock()
		l.logger.Printf("payment %s has no failure record, nothing to retry", orderID)
		return false, nil
	}

	// The record is consumed by the retry; only another terminal failure
	// re-arms this path, so a now-pending payment cannot be retried again.
	delete(l.failures, orderID)

	p.VerificationAttempts = 0
	if p.Status == state.StatusFailed {
		l.transitionLocked(p, state.StatusPending)
	}
	l.mu.Unlock()

	l.logger.Printf("manual retry for payment %s", orderID)
	if l.events.OnRetried != nil {
		l.events.OnRetried(p)
	}
	return l.VerifyPayment(ctx, orderID, "")
}

// checkOnChain verifies by proof when one is supplied, otherwise by balance
// delta on each destination address with the configured tolerance.
func (l *Ledger) checkOnChain(ctx context.Context, p *types.PaymentRequest, proof string) (bool, error) {
	if proof != "" {
		for _, addr := range l.addressesOf(p) {
			ok, err := l.verifier.VerifyProof(ctx, proof, addr, p.Amount)
			if err != nil {
				return false, custom_errors.NewTransportError("verify proof", err)
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	for _, addr := range l.addressesOf(p) {
		delta, err := l.verifier.BalanceDelta(ctx, addr)
		if err != nil {
			return false, custom_errors.NewTransportError("balance delta", err)
		}
		if l.withinTolerance(delta, p.Amount) {
			return true, nil
		}
	}
	return false, nil
}

// withinTolerance accepts an observed balance increase that matches the
// expected amount within the configured relative tolerance.
func (l *Ledger) withinTolerance(observed, expected decimal.Decimal) bool {
	if expected.IsZero() {
		return false
	}
	diff := observed.Sub(expected).Abs()
	tolerance := expected.Mul(decimal.NewFromFloat(l.cfg.AmountTolerance))
	return diff.LessThanOrEqual(tolerance)
}

func (l *Ledger) addressesOf(p *types.PaymentRequest) []string {
	chains := make([]string, 0, len(p.DestinationAddresses))
	for c := range p.DestinationAddresses {
		chains = append(chains, c)
	}
	// Stable order so retries check addresses consistently.
	sort.Strings(chains)
	addrs := make([]string, len(chains))
	for i, c := range chains {
		addrs[i] = p.DestinationAddresses[c]
	}
	return addrs
}

func (l *Ledger) transitionLocked(p *types.PaymentRequest, to state.PaymentStatus) {
	if !state.IsValidTransition(p.Status, to) {
		l.logger.Printf("refused transition %s -> %s for payment %s", p.Status, to, p.OrderID)
		return
	}
	p.Status = to
	if err := l.requests.UpdatePaymentStatus(p.OrderID, to); err != nil {
		// A payment may exist before its request is stored, or after the
		// request was purged; not an error for the ledger.
		l.logger.Printf("request store update for %s: %v", p.OrderID, err)
	}
}

func (l *Ledger) notifyCompleted(p *types.PaymentRequest) {
	if l.events.OnCompleted != nil {
		l.events.OnCompleted(p)
	}
}

func (l *Ledger) notifyFailed(p *types.PaymentRequest) {
	if l.events.OnFailed != nil {
		l.events.OnFailed(p)
	}
}

func sortPayments(payments []*types.PaymentRequest) {
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].OrderID < payments[j].OrderID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}
