package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/minstrelbot/minstrel/custom_errors"
	"github.com/minstrelbot/minstrel/internal/checkpoint"
	"github.com/minstrelbot/minstrel/internal/payment"
	"github.com/minstrelbot/minstrel/internal/ratelimit"
	"github.com/minstrelbot/minstrel/internal/scheduler"
	"github.com/minstrelbot/minstrel/internal/store"
	"github.com/minstrelbot/minstrel/internal/taskqueue"
)

// HttpRouteHandler exposes the operator's read/retry surface. It never
// mutates domain state itself beyond triggering a manual payment retry.
type HttpRouteHandler struct {
	requests    *store.RequestStore
	ledger      *payment.Ledger
	limiter     *ratelimit.RateLimiter
	queue       *taskqueue.TaskQueue
	scheduler   *scheduler.Scheduler
	checkpoints *checkpoint.Manager
	logger      *log.Logger

	Token string // Optional static bearer token; empty disables auth
	Port  uint

	server *http.Server
}

func NewRouteHandler(
	requests *store.RequestStore,
	ledger *payment.Ledger,
	limiter *ratelimit.RateLimiter,
	queue *taskqueue.TaskQueue,
	sched *scheduler.Scheduler,
	checkpoints *checkpoint.Manager,
	token string,
	port uint,
	logger *log.Logger,
) *HttpRouteHandler {
	return &HttpRouteHandler{
		requests:    requests,
		ledger:      ledger,
		limiter:     limiter,
		queue:       queue,
		scheduler:   sched,
		checkpoints: checkpoints,
		Token:       token,
		Port:        port,
		logger:      logger,
	}
}

func (handler *HttpRouteHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(handler.Token))
		r.Get("/stats", handler.handleStats)
		r.Get("/requests", handler.handleRequests)
		r.Get("/payments/{orderID}", handler.handleGetPayment)
		r.Post("/payments/{orderID}/retry", handler.handleRetryPayment)
	})

	return r
}

// Serve blocks until the listener fails or Shutdown is called.
func (handler *HttpRouteHandler) Serve() error {
	handler.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", handler.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	handler.logger.Printf("admin server listening on %s", handler.server.Addr)
	err := handler.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (handler *HttpRouteHandler) Shutdown(ctx context.Context) error {
	if handler.server == nil {
		return nil
	}
	return handler.server.Shutdown(ctx)
}

// bearerAuth enforces a static token. An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (handler *HttpRouteHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Requests        int        `json:"requests"`
	PendingPayments int        `json:"pending_payments"`
	QueuedTasks     int        `json:"queued_tasks"`
	ActiveWindows   int        `json:"active_rate_windows"`
	Jobs            []string   `json:"jobs"`
	LastCheckpoint  *time.Time `json:"last_checkpoint,omitempty"`
}

func (handler *HttpRouteHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Requests:        handler.requests.Len(),
		PendingPayments: len(handler.ledger.Pending()),
		QueuedTasks:     handler.queue.Len(),
		ActiveWindows:   handler.limiter.ActiveWindows(),
		Jobs:            handler.scheduler.Jobs(),
		LastCheckpoint:  handler.checkpoints.LastSavedAt(),
	})
}

func (handler *HttpRouteHandler) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.requests.All())
}

func (handler *HttpRouteHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	p, err := handler.ledger.Get(orderID)
	if err != nil {
		if errors.Is(err, custom_errors.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type retryResponse struct {
	OrderID  string `json:"order_id"`
	Verified bool   `json:"verified"`
}

func (handler *HttpRouteHandler) handleRetryPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	verified, err := handler.ledger.RetryFailedPayment(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, custom_errors.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	handler.logger.Printf("manual retry of %s, verified=%v", orderID, verified)
	writeJSON(w, http.StatusOK, retryResponse{OrderID: orderID, Verified: verified})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
