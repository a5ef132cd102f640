package order

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/internal/model"
	"github.com/seralis/hermes/internal/provider"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/internal/wallet"
	"github.com/seralis/hermes/pkg/constants"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrUnknownService  = errors.New("unknown service")
	ErrUnknownCountry  = errors.New("unknown country")
	ErrNotCancellable  = errors.New("order can no longer be cancelled")
	ErrNotRefundable   = errors.New("order is not eligible for a refund")
	ErrAlreadyRefunded = errors.New("order already refunded")
)

// OrderService runs the purchase lifecycle: reserve funds, provision a
// number upstream, then hand the order to the engine to watch for the SMS.
type OrderService struct {
	store   *store.Store
	wallets *wallet.WalletService
	client  provider.Client
	engine  *Engine
	markup  int64
}

func NewOrderService(st *store.Store, ws *wallet.WalletService, client provider.Client, engine *Engine, markupPct int64) *OrderService {
	return &OrderService{
		store:   st,
		wallets: ws,
		client:  client,
		engine:  engine,
		markup:  markupPct,
	}
}

// Purchase reserves the quoted cost, provisions a number and starts the
// SMS watch. Funds are only held, not deducted; the engine settles the
// reservation when the order reaches a terminal state.
func (s *OrderService) Purchase(ctx context.Context, userID int64, serviceID, countryID int) (*model.Order, error) {
	logger := middleware.GetLogger(ctx)

	svc := provider.ServiceByID(serviceID)
	if svc == nil {
		return nil, ErrUnknownService
	}
	country := provider.CountryByID(countryID)
	if country == nil {
		return nil, ErrUnknownCountry
	}

	quoted := provider.Quote(svc.BaseCost, s.markup)
	reservationID := "RSV_" + uuid.NewString()

	if err := s.wallets.Reserve(ctx, userID, quoted, reservationID, svc.Name+" number"); err != nil {
		return nil, err
	}

	result, err := s.client.PurchaseNumber(ctx, serviceID, countryID)
	if err != nil {
		logger.Warn().Err(err).
			Int64("user_id", userID).
			Int("service_id", serviceID).
			Msg("number purchase failed, releasing reservation")
		if cancelErr := s.wallets.Cancel(ctx, userID, quoted, reservationID, "purchase failed"); cancelErr != nil {
			logger.Error().Err(cancelErr).
				Str("reservation_id", reservationID).
				Msg("CRITICAL: failed to release reservation after purchase failure")
		}
		return nil, err
	}

	now := time.Now()
	ord := &model.Order{
		ID:            result.OrderID,
		UserID:        userID,
		PhoneNumber:   result.PhoneNumber,
		ServiceID:     serviceID,
		ServiceName:   svc.Name,
		CountryID:     countryID,
		CountryName:   country.Name,
		Cost:          quoted,
		ActualCost:    result.Cost,
		Status:        constants.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.engine.cfg.TotalTimeout),
		ReservationID: reservationID,
	}

	err = s.store.WriteLocked(ctx, func(doc *store.Document) error {
		doc.Orders[ord.ID] = ord
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Str("order_id", ord.ID).Msg("failed to persist order")
		if cancelErr := s.wallets.Cancel(ctx, userID, quoted, reservationID, "order persistence failed"); cancelErr != nil {
			logger.Error().Err(cancelErr).Str("reservation_id", reservationID).Msg("failed to release reservation")
		}
		if cancelErr := s.client.CancelOrder(ctx, ord.ID); cancelErr != nil {
			logger.Warn().Err(cancelErr).Str("order_id", ord.ID).Msg("best-effort provider cancel failed")
		}
		return nil, err
	}

	s.engine.StartWatch(ord)

	logger.Info().
		Str("order_id", ord.ID).
		Int64("user_id", userID).
		Str("service", svc.Name).
		Int64("cost", quoted).
		Msg("order created")
	return ord, nil
}

// Get returns an order owned by the given user.
func (s *OrderService) Get(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	var ord *model.Order
	err := s.store.View(ctx, func(doc *store.Document) error {
		o, ok := doc.Orders[orderID]
		if !ok || o.UserID != userID {
			return ErrOrderNotFound
		}
		cp := *o
		ord = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

// UserOrders lists a user's orders, newest first.
func (s *OrderService) UserOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, o := range doc.Orders {
			if o.UserID == userID {
				cp := *o
				orders = append(orders, &cp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// RequestCancel stops an active order. The watch is torn down, the
// upstream order cancelled best-effort and the reservation released.
func (s *OrderService) RequestCancel(ctx context.Context, userID int64, orderID, reason string) (*model.Order, error) {
	logger := middleware.GetLogger(ctx)

	ord, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != constants.OrderPending && ord.Status != constants.OrderProcessing {
		return nil, ErrNotCancellable
	}

	s.engine.CancelWatch(orderID)

	if err := s.client.CancelOrder(ctx, orderID); err != nil {
		logger.Warn().Err(err).Str("order_id", orderID).Msg("best-effort provider cancel failed")
	}

	if reason == "" {
		reason = "cancelled by user"
	}
	if err := s.wallets.Cancel(ctx, userID, ord.Cost, ord.ReservationID, reason); err != nil {
		logger.Error().Err(err).Str("order_id", orderID).Msg("failed to release reservation on cancel")
		return nil, err
	}

	err = s.store.WriteLocked(ctx, func(doc *store.Document) error {
		o, ok := doc.Orders[orderID]
		if !ok {
			return ErrOrderNotFound
		}
		o.Status = constants.OrderCancelled
		o.UpdatedAt = time.Now()
		ord = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("order_id", orderID).Int64("user_id", userID).Msg("order cancelled")
	cp := *ord
	return &cp, nil
}

// RequestRefund credits back an order that ended without a delivered SMS.
// Completed orders are never refundable and each order refunds at most once.
func (s *OrderService) RequestRefund(ctx context.Context, userID int64, orderID, reason string) (*model.Order, error) {
	logger := middleware.GetLogger(ctx)

	ord, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	switch ord.Status {
	case constants.OrderCompleted:
		return nil, ErrNotRefundable
	case constants.OrderRefunded:
		return nil, ErrAlreadyRefunded
	case constants.OrderPending, constants.OrderProcessing:
		return nil, ErrNotRefundable
	}

	if reason == "" {
		reason = "no SMS delivered"
	}
	if err := s.wallets.Refund(ctx, userID, ord.Cost, orderID, reason); err != nil {
		if errors.Is(err, wallet.ErrDuplicateRefund) {
			return nil, ErrAlreadyRefunded
		}
		return nil, err
	}

	err = s.store.WriteLocked(ctx, func(doc *store.Document) error {
		o, ok := doc.Orders[orderID]
		if !ok {
			return ErrOrderNotFound
		}
		o.Status = constants.OrderRefunded
		o.UpdatedAt = time.Now()
		ord = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("order_id", orderID).
		Int64("user_id", userID).
		Int64("amount", ord.Cost).
		Msg("order refunded")
	cp := *ord
	return &cp, nil
}

// ResumeWatches restores poll loops after a restart. Active orders whose
// window already expired are settled as timed out instead of rewatched.
func (s *OrderService) ResumeWatches(ctx context.Context) error {
	logger := middleware.GetLogger(ctx)

	var active, expired []*model.Order
	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, o := range doc.Orders {
			if o.Status != constants.OrderPending && o.Status != constants.OrderProcessing {
				continue
			}
			cp := *o
			if time.Now().After(o.ExpiresAt) {
				expired = append(expired, &cp)
			} else {
				active = append(active, &cp)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, o := range expired {
		logger.Warn().Str("order_id", o.ID).Msg("order expired while service was down")
		s.engine.settleTimeout(o, o.PollCount)
	}
	for _, o := range active {
		logger.Info().Str("order_id", o.ID).Msg("resuming watch")
		s.engine.StartWatch(o)
	}

	if n := len(active) + len(expired); n > 0 {
		logger.Info().Int("resumed", len(active)).Int("expired", len(expired)).Msg("order recovery complete")
	}
	return nil
}
