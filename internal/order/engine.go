package order

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/config"
	"github.com/seralis/hermes/internal/logger"
	"github.com/seralis/hermes/internal/model"
	"github.com/seralis/hermes/internal/provider"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/internal/wallet"
	"github.com/seralis/hermes/pkg/constants"
)

// Engine watches in-flight orders for delivered SMS codes. One goroutine
// per order, owned exclusively by the engine: starting a watch for an
// order that already has one replaces the old watcher.
type Engine struct {
	store   *store.Store
	wallets *wallet.WalletService
	client  provider.Client
	cfg     *config.EngineConfig
	log     zerolog.Logger

	mu       sync.Mutex
	watchers map[string]*watcher
	wg       sync.WaitGroup

	// Swappable in tests to avoid multi-second polls.
	intervalFor func(elapsed time.Duration) time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

type watcher struct {
	cancel context.CancelFunc
}

func NewEngine(st *store.Store, ws *wallet.WalletService, client provider.Client, cfg *config.EngineConfig, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:       st,
		wallets:     ws,
		client:      client,
		cfg:         cfg,
		log:         logger.NewComponentLogger(log, "otp-engine"),
		watchers:    make(map[string]*watcher),
		intervalFor: pollInterval,
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
}

// StartWatch begins polling for an order's SMS. A previous watcher for the
// same order is cancelled first so at most one poll loop exists per order.
func (e *Engine) StartWatch(ord *model.Order) {
	e.mu.Lock()
	if prev, ok := e.watchers[ord.ID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	w := &watcher{cancel: cancel}
	e.watchers[ord.ID] = w
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.deregister(ord.ID, w)
		e.watch(ctx, ord)
	}()
}

// CancelWatch stops the poll loop for an order, if one is running. The
// order and reservation are left untouched.
func (e *Engine) CancelWatch(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.watchers[orderID]; ok {
		w.cancel()
		delete(e.watchers, orderID)
	}
}

// Watching reports whether a poll loop currently exists for the order.
func (e *Engine) Watching(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watchers[orderID]
	return ok
}

// Shutdown cancels all watchers and waits for them to drain, up to the
// configured grace period.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.baseCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("all watchers drained")
		return nil
	case <-ctx.Done():
		e.log.Warn().Msg("shutdown grace period expired with watchers still running")
		return ctx.Err()
	}
}

func (e *Engine) deregister(orderID string, w *watcher) {
	w.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	// Only remove our own entry; a replacement watcher may have been
	// registered under the same order id.
	if current, ok := e.watchers[orderID]; ok && current == w {
		delete(e.watchers, orderID)
	}
}

// pollInterval widens as the wait drags on. Most codes arrive within the
// first minute.
func pollInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 60*time.Second:
		return 2 * time.Second
	case elapsed < 180*time.Second:
		return 3 * time.Second
	case elapsed < 300*time.Second:
		return 5 * time.Second
	default:
		return 10 * time.Second
	}
}

func (e *Engine) watch(ctx context.Context, ord *model.Order) {
	log := e.log.With().Str("order_id", ord.ID).Int64("user_id", ord.UserID).Logger()
	log.Info().Msg("watching order for SMS")

	deadline := time.Now().Add(e.cfg.TotalTimeout)
	consecTimeouts := 0
	consecErrors := 0
	polls := 0
	markedProcessing := false

	// Poll first, sleep after. The first check goes out immediately so a
	// fast provider is not charged one interval of latency.
	for {
		if time.Now().After(deadline) {
			log.Warn().Int("polls", polls).Msg("order timed out waiting for SMS")
			e.settleTimeout(ord, polls)
			return
		}

		callCtx, cancelCall := context.WithTimeout(ctx, e.cfg.CallTimeout)
		result, err := e.client.CheckStatus(callCtx, ord.ID)
		timedOut := callCtx.Err() == context.DeadlineExceeded
		cancelCall()
		polls++

		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("watcher cancelled")
				return
			}
			// Only a successful call resets the counters; a flapping
			// provider that alternates failure modes still aborts.
			if timedOut {
				consecTimeouts++
				log.Warn().Int("consecutive", consecTimeouts).Msg("status check timed out")
				if consecTimeouts >= e.cfg.MaxConsecTimeouts {
					log.Error().Msg("too many consecutive timeouts, aborting watch")
					e.settleError(ord, polls, "provider unresponsive")
					return
				}
			} else {
				consecErrors++
				log.Warn().Err(err).Int("consecutive", consecErrors).Msg("status check failed")
				if consecErrors >= e.cfg.MaxConsecErrors {
					log.Error().Msg("too many consecutive errors, aborting watch")
					e.settleError(ord, polls, "provider errors")
					return
				}
			}
		} else {
			consecTimeouts = 0
			consecErrors = 0

			switch {
			case result.Status.Code == provider.StatusDelivered,
				result.Status.Code == provider.StatusProcessing && result.SMS != "":
				if result.SMS != "" {
					otp := ExtractOTP(result.SMS)
					log.Info().Int("polls", polls).Msg("SMS received")
					e.settleDelivered(ord, otp, polls)
					return
				}
				// Delivered with no body yet; the next poll should carry it.
				log.Debug().Msg("delivered status without SMS body, repolling")
			case result.Status.Terminal():
				log.Warn().Str("status", result.Status.String()).Msg("order ended at provider")
				e.settleTerminal(ord, result.Status, polls)
				return
			case result.Status.Code == provider.StatusProcessing && !markedProcessing:
				markedProcessing = true
				log.Debug().Msg("order processing at provider")
				e.updateOrder(ctx, ord.ID, func(o *model.Order) {
					if o.Status == constants.OrderPending {
						o.Status = constants.OrderProcessing
						o.UpdatedAt = time.Now()
					}
				})
			default:
				// still pending, keep polling
			}
		}

		interval := e.intervalFor(e.cfg.TotalTimeout - time.Until(deadline))
		select {
		case <-ctx.Done():
			log.Info().Msg("watcher cancelled")
			return
		case <-time.After(interval):
		}
	}
}

// settleDelivered confirms the reservation and completes the order.
func (e *Engine) settleDelivered(ord *model.Order, otp string, polls int) {
	ctx, cancel := e.settleContext()
	defer cancel()

	if err := e.wallets.Confirm(ctx, ord.UserID, ord.Cost, ord.ReservationID, "SMS delivered for "+ord.ServiceName); err != nil {
		e.log.Error().Err(err).Str("order_id", ord.ID).Msg("CRITICAL: failed to confirm reservation for delivered order")
	}

	now := time.Now()
	e.updateOrder(ctx, ord.ID, func(o *model.Order) {
		o.Status = constants.OrderCompleted
		o.OTP = otp
		o.OTPReceivedAt = &now
		o.PollCount = polls
		o.UpdatedAt = now
	})
}

// settleTerminal releases the reservation after the provider ended the
// order on its side.
func (e *Engine) settleTerminal(ord *model.Order, st provider.Status, polls int) {
	ctx, cancel := e.settleContext()
	defer cancel()

	if err := e.wallets.Cancel(ctx, ord.UserID, ord.Cost, ord.ReservationID, "provider status "+st.String()); err != nil {
		e.log.Error().Err(err).Str("order_id", ord.ID).Msg("failed to release reservation")
	}

	status := st.TerminalOrderStatus()
	e.updateOrder(ctx, ord.ID, func(o *model.Order) {
		o.Status = status
		o.PollCount = polls
		o.UpdatedAt = time.Now()
	})
}

// settleTimeout cancels upstream best-effort, releases the reservation and
// marks the order timed out.
func (e *Engine) settleTimeout(ord *model.Order, polls int) {
	ctx, cancel := e.settleContext()
	defer cancel()

	if err := e.client.CancelOrder(ctx, ord.ID); err != nil {
		e.log.Warn().Err(err).Str("order_id", ord.ID).Msg("best-effort provider cancel failed")
	}
	if err := e.wallets.Cancel(ctx, ord.UserID, ord.Cost, ord.ReservationID, "timed out waiting for SMS"); err != nil {
		e.log.Error().Err(err).Str("order_id", ord.ID).Msg("failed to release reservation")
	}

	e.updateOrder(ctx, ord.ID, func(o *model.Order) {
		o.Status = constants.OrderTimeout
		o.PollCount = polls
		o.UpdatedAt = time.Now()
	})
}

// settleError handles repeated provider failures mid-watch.
func (e *Engine) settleError(ord *model.Order, polls int, reason string) {
	ctx, cancel := e.settleContext()
	defer cancel()

	if err := e.client.CancelOrder(ctx, ord.ID); err != nil {
		e.log.Warn().Err(err).Str("order_id", ord.ID).Msg("best-effort provider cancel failed")
	}
	if err := e.wallets.Cancel(ctx, ord.UserID, ord.Cost, ord.ReservationID, reason); err != nil {
		e.log.Error().Err(err).Str("order_id", ord.ID).Msg("failed to release reservation")
	}

	e.updateOrder(ctx, ord.ID, func(o *model.Order) {
		o.Status = constants.OrderError
		o.PollCount = polls
		o.UpdatedAt = time.Now()
	})
}

// settleContext is detached from the watcher's context so that settlement
// still lands when the watch is being torn down.
func (e *Engine) settleContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func (e *Engine) updateOrder(ctx context.Context, orderID string, mutate func(*model.Order)) {
	err := e.store.WriteLocked(ctx, func(doc *store.Document) error {
		o, ok := doc.Orders[orderID]
		if !ok {
			return nil
		}
		mutate(o)
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Str("order_id", orderID).Msg("failed to persist order update")
	}
}
