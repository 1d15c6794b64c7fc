package bot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/minstrelbot/minstrel/internal/broker"
	"github.com/minstrelbot/minstrel/internal/generation"
	"github.com/minstrelbot/minstrel/internal/payment"
	"github.com/minstrelbot/minstrel/internal/ratelimit"
	"github.com/minstrelbot/minstrel/internal/retry"
	"github.com/minstrelbot/minstrel/internal/social"
	"github.com/minstrelbot/minstrel/internal/store"
	"github.com/minstrelbot/minstrel/internal/taskqueue"
	"github.com/minstrelbot/minstrel/types"
	"golang.org/x/sync/semaphore"
)

// recheckWorkers bounds how many stale payments are re-verified at once.
const recheckWorkers = 4

// Orchestrator wires the rate limiter, task queue, payment ledger and
// external collaborators into the mention-to-clip flow. It contains no
// policy of its own beyond composition.
type Orchestrator struct {
	limiter   *ratelimit.RateLimiter
	queue     *taskqueue.TaskQueue
	ledger    *payment.Ledger
	requests  *store.RequestStore
	social    social.Client
	generator generation.Provider
	publisher broker.Publisher
	logger    *log.Logger

	clipDuration  time.Duration
	socialRetry   retry.Options
	generateRetry retry.Options
}

func NewOrchestrator(
	limiter *ratelimit.RateLimiter,
	queue *taskqueue.TaskQueue,
	ledger *payment.Ledger,
	requests *store.RequestStore,
	socialClient social.Client,
	generator generation.Provider,
	publisher broker.Publisher,
	clipDuration time.Duration,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		limiter:      limiter,
		queue:        queue,
		ledger:       ledger,
		requests:     requests,
		social:       socialClient,
		generator:    generator,
		publisher:    publisher,
		clipDuration: clipDuration,
		logger:       logger,

		socialRetry:   retry.Options{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		generateRetry: retry.Options{MaxAttempts: 3, Delay: 5 * time.Second, Backoff: true},
	}
}

// HandleMention gates an inbound mention through the rate limiter and, if
// accepted, queues it for processing. The caller is never blocked on the
// payment flow.
func (o *Orchestrator) HandleMention(ctx context.Context, mention types.Mention) {
	if !o.limiter.CheckLimit(mention.UserID) {
		wait := o.limiter.TimeUntilReset(mention.UserID)
		o.logger.Printf("mention %s from %s rate limited, %s until reset", mention.PostID, mention.UserID, wait)
		o.reply(ctx, mention.PostID, fmt.Sprintf(
			"You've hit your hourly request limit. Try again in %d minutes.",
			int(wait.Minutes())+1,
		))
		return
	}

	m := mention
	o.queue.Add("process-mention-"+m.PostID, func(taskCtx context.Context) error {
		return o.processMention(taskCtx, m)
	})
}

// processMention creates the payment, stores the request and replies with
// payment instructions. A queue retry after a partial failure reuses the
// already-created payment instead of allocating a second one.
func (o *Orchestrator) processMention(ctx context.Context, mention types.Mention) error {
	var p *types.PaymentRequest

	if existing, err := o.requests.Get(mention.PostID); err == nil {
		p = existing.Payment
	} else {
		p = o.ledger.CreatePaymentRequest(mention.UserID, mention.PostID)
		req := &types.StoredRequest{
			CorrelationID: mention.PostID,
			UserID:        mention.UserID,
			Prompt:        strings.TrimSpace(mention.Text),
			Payment:       p,
			CreatedAt:     p.CreatedAt,
		}
		if err := o.requests.Store(req); err != nil {
			return fmt.Errorf("store request %s: %w", mention.PostID, err)
		}
		o.publish(ctx, types.EventPaymentCreated, p)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your clip is queued! Send %s to one of these addresses to start generation:\n", p.Amount)
	for _, chainSym := range sortedChains(p.DestinationAddresses) {
		fmt.Fprintf(&sb, "%s: %s\n", chainSym, p.DestinationAddresses[chainSym])
	}
	fmt.Fprintf(&sb, "Order %s", p.OrderID)

	if err := o.replyErr(ctx, mention.PostID, sb.String()); err != nil {
		return fmt.Errorf("payment instructions for %s: %w", mention.PostID, err)
	}
	return nil
}

// OnPaymentCompleted is invoked by the ledger when a payment reaches
// completed. Generation and delivery run on the task queue so they retry
// and never overlap other work.
func (o *Orchestrator) OnPaymentCompleted(p *types.PaymentRequest) {
	o.publish(context.Background(), types.EventPaymentCompleted, p)

	orderID := p.OrderID
	correlationID := p.CorrelationID
	o.queue.Add("deliver-"+orderID, func(ctx context.Context) error {
		return o.generateAndDeliver(ctx, correlationID)
	})
}

// OnPaymentFailed publishes the terminal failure and tells the user how to
// retry.
func (o *Orchestrator) OnPaymentFailed(p *types.PaymentRequest) {
	o.publish(context.Background(), types.EventPaymentFailed, p)
	o.reply(context.Background(), p.CorrelationID, fmt.Sprintf(
		"We couldn't confirm payment for order %s. Reply once you've paid to try again.", p.OrderID,
	))
}

// OnPaymentRetried publishes the manual-retry event.
func (o *Orchestrator) OnPaymentRetried(p *types.PaymentRequest) {
	o.publish(context.Background(), types.EventPaymentRetried, p)
}

func (o *Orchestrator) generateAndDeliver(ctx context.Context, correlationID string) error {
	req, err := o.requests.Get(correlationID)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", correlationID, err)
	}

	mediaRef, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, req.Prompt, o.clipDuration)
	}, o.generateRetry)
	if err != nil {
		return fmt.Errorf("generate clip for %s: %w", correlationID, err)
	}

	_, err = retry.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.social.ReplyWithMedia(ctx, correlationID, "Here's your clip!", mediaRef)
	}, o.socialRetry)
	if err != nil {
		return fmt.Errorf("deliver clip for %s: %w", correlationID, err)
	}

	o.logger.Printf("delivered clip for %s", correlationID)
	return nil
}

// RecheckStalePayments re-verifies every pending payment past the
// staleness window with bounded parallelism. One payment's failure never
// aborts the rest of the batch.
func (o *Orchestrator) RecheckStalePayments(ctx context.Context) error {
	stale := o.requests.Expired()
	if len(stale) == 0 {
		return nil
	}
	o.logger.Printf("re-verifying %d stale payments", len(stale))

	sem := semaphore.NewWeighted(recheckWorkers)
	for _, req := range stale {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		orderID := req.Payment.OrderID
		go func() {
			defer sem.Release(1)
			if _, err := o.ledger.VerifyPayment(ctx, orderID, ""); err != nil {
				o.logger.Printf("recheck of %s: %v", orderID, err)
			}
		}()
	}

	// Drain so the scheduler's re-entrancy guard covers the whole batch.
	return sem.Acquire(ctx, recheckWorkers)
}

// RunMaintenance purges aged-out requests and expired rate windows.
func (o *Orchestrator) RunMaintenance(ctx context.Context) error {
	o.requests.Cleanup()
	o.limiter.Cleanup()
	return nil
}

// reply is best-effort: delivery failures are logged, not surfaced.
func (o *Orchestrator) reply(ctx context.Context, postID, text string) {
	if err := o.replyErr(ctx, postID, text); err != nil {
		o.logger.Printf("reply to %s failed: %v", postID, err)
	}
}

func (o *Orchestrator) replyErr(ctx context.Context, postID, text string) error {
	_, err := retry.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.social.Reply(ctx, postID, text)
	}, o.socialRetry)
	return err
}

func (o *Orchestrator) publish(ctx context.Context, eventType types.EventType, p *types.PaymentRequest) {
	event := broker.NewEvent(eventType, map[string]string{
		"order_id":       p.OrderID,
		"correlation_id": p.CorrelationID,
		"user_id":        p.UserID,
		"status":         p.Status.String(),
	})
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Printf("publish %s for %s: %v", eventType, p.OrderID, err)
	}
}

func sortedChains(addrs map[string]string) []string {
	chains := make([]string, 0, len(addrs))
	for c := range addrs {
		chains = append(chains, c)
	}
	sort.Strings(chains)
	return chains
}
