// README: Matching service lists claimable orders for a courier, runs the atomic claim and announces ready orders.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/order"
	"dispatch/internal/notify"
	"dispatch/internal/types"
)

// Orders is the read side of the order store used for matching.
type Orders interface {
	ReadyWithin(ctx context.Context, box geo.Box) ([]order.Order, error)
	ListReadyUnassigned(ctx context.Context, limit int) ([]order.Order, error)
}

type Assigner interface {
	Assign(ctx context.Context, orderID, courierID types.ID) (*order.Order, error)
}

type Couriers interface {
	Get(ctx context.Context, id types.ID) (*courier.Courier, error)
}

type Locator interface {
	NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]geo.Match[courier.Courier], error)
}

type DispatchStore interface {
	RecordDispatch(ctx context.Context, orderID types.ID, courierIDs []types.ID, at time.Time) error
	GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error)
	NotifiedCouriers(ctx context.Context, orderID types.ID) (map[types.ID]bool, error)
	MarkOrderBroadcast(ctx context.Context, orderID types.ID) error
	IsOrderBroadcast(ctx context.Context, orderID types.ID) (bool, error)
}

type Service struct {
	orders   Orders
	assigner Assigner
	couriers Couriers
	locator  Locator
	dispatch DispatchStore
	notifier notify.Notifier
	cfg      config.MatchingConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(orders Orders, assigner Assigner, couriers Couriers, locator Locator, dispatch DispatchStore, notifier notify.Notifier, cfg config.MatchingConfig, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:   orders,
		assigner: assigner,
		couriers: couriers,
		locator:  locator,
		dispatch: dispatch,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// FindAvailableOrders lists ready, unassigned orders whose pickup point lies
// within the courier's action radius, nearest first.
func (s *Service) FindAvailableOrders(ctx context.Context, courierID types.ID) ([]geo.Match[order.Order], error) {
	c, err := s.couriers.Get(ctx, courierID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, courier.ErrInactive
	}
	if c.Position == nil {
		return nil, courier.ErrPositionNotSet
	}
	radius := c.ActionRadiusKm
	if radius <= 0 {
		radius = courier.DefaultActionRadiusKm
	}
	candidates, err := s.orders.ReadyWithin(ctx, geo.BoundingBox(*c.Position, radius))
	if err != nil {
		return nil, fmt.Errorf("load ready orders: %w", err)
	}
	return geo.Nearest(*c.Position, radius, geo.DefaultLimit, candidates, func(o order.Order) *types.Point {
		p := o.Pickup
		return &p
	}), nil
}

// ClaimOrder assigns the order to the courier. Of any number of concurrent
// claims on one order exactly one succeeds; the others get
// order.ErrNoLongerAvailable.
func (s *Service) ClaimOrder(ctx context.Context, orderID, courierID types.ID) (*order.Order, error) {
	c, err := s.couriers.Get(ctx, courierID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, courier.ErrInactive
	}
	o, err := s.assigner.Assign(ctx, orderID, courierID)
	switch {
	case err == nil:
		metrics.ClaimsTotal.WithLabelValues("ok").Inc()
		s.logger.Info("order claimed", zap.String("order_id", string(orderID)), zap.String("courier_id", string(courierID)))
	case errors.Is(err, order.ErrNoLongerAvailable):
		metrics.ClaimsTotal.WithLabelValues("taken").Inc()
	case errors.Is(err, order.ErrCourierUnavailable):
		metrics.ClaimsTotal.WithLabelValues("courier_unavailable").Inc()
	default:
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
	}
	return o, err
}

// RunScheduler announces ready orders to nearby idle couriers until ctx is
// cancelled. Couriers still claim through ClaimOrder.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickDispatch(ctx)
		}
	}
}

func (s *Service) tickDispatch(ctx context.Context) {
	orders, err := s.orders.ListReadyUnassigned(ctx, dispatchBatch)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("dispatch_list").Inc()
		s.logger.Error("dispatch: list ready orders", zap.Error(err))
		return
	}
	for i := range orders {
		if ctx.Err() != nil {
			return
		}
		if err := s.dispatchOrder(ctx, &orders[i]); err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("dispatch").Inc()
			s.logger.Warn("dispatch order", zap.String("order_id", string(orders[i].ID)), zap.Error(err))
		}
	}
}

func (s *Service) dispatchOrder(ctx context.Context, o *order.Order) error {
	now := s.now()
	dispatchedAt, dispatched, err := s.dispatch.GetDispatchedAt(ctx, o.ID)
	if err != nil {
		return err
	}

	if !dispatched {
		matches, err := s.candidates(ctx, o, s.cfg.RadiusKm, nil)
		if err != nil {
			return err
		}
		selected := PickRandomCouriers(ids(matches), notifyInitialCount)
		if err := s.dispatch.RecordDispatch(ctx, o.ID, selected, now); err != nil {
			return err
		}
		s.announce(ctx, o, selected, byID(matches), "initial")
		return nil
	}

	if now.Sub(dispatchedAt) < broadcastDelay {
		return nil
	}
	done, err := s.dispatch.IsOrderBroadcast(ctx, o.ID)
	if err != nil || done {
		return err
	}
	notified, err := s.dispatch.NotifiedCouriers(ctx, o.ID)
	if err != nil {
		return err
	}
	matches, err := s.candidates(ctx, o, s.cfg.BroadcastRadiusKm, notified)
	if err != nil {
		return err
	}
	selected := ids(matches)
	if len(selected) > broadcastExtraCount {
		selected = selected[:broadcastExtraCount]
	}
	if err := s.dispatch.RecordDispatch(ctx, o.ID, selected, now); err != nil {
		return err
	}
	if err := s.dispatch.MarkOrderBroadcast(ctx, o.ID); err != nil {
		return err
	}
	s.announce(ctx, o, selected, byID(matches), "broadcast")
	return nil
}

// candidates returns idle couriers near the pickup who would see the order
// in their own available list, minus those already notified.
func (s *Service) candidates(ctx context.Context, o *order.Order, radiusKm float64, skip map[types.ID]bool) ([]geo.Match[courier.Courier], error) {
	matches, err := s.locator.NearbyCouriers(ctx, o.Pickup, radiusKm, s.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if skip[m.Item.ID] {
			continue
		}
		radius := m.Item.ActionRadiusKm
		if radius <= 0 {
			radius = courier.DefaultActionRadiusKm
		}
		if m.DistanceKm > radius {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) announce(ctx context.Context, o *order.Order, selected []types.ID, dist map[types.ID]float64, phase string) {
	if len(selected) == 0 {
		return
	}
	metrics.CouriersNotifiedTotal.WithLabelValues(phase).Add(float64(len(selected)))
	recipients := make([]notify.Recipient, len(selected))
	for i, id := range selected {
		recipients[i] = notify.Recipient{Role: string(order.RoleCourier), ID: id}
	}
	err := s.notifier.Notify(ctx, notify.Event{
		Type:        notify.EventOrderAvailable,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(o.Status),
		Recipients:  recipients,
		Data: map[string]string{
			"pickup_lat":   strconv.FormatFloat(o.Pickup.Lat, 'f', 6, 64),
			"pickup_lng":   strconv.FormatFloat(o.Pickup.Lng, 'f', 6, 64),
			"delivery_fee": strconv.FormatInt(o.DeliveryFee.Amount, 10),
			"phase":        phase,
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("dispatch notification failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
	s.logger.Debug("order announced",
		zap.String("order_id", string(o.ID)),
		zap.String("phase", phase),
		zap.Int("couriers", len(selected)),
		zap.Any("distance_km", dist),
	)
}

func ids(matches []geo.Match[courier.Courier]) []types.ID {
	out := make([]types.ID, len(matches))
	for i, m := range matches {
		out[i] = m.Item.ID
	}
	return out
}

func byID(matches []geo.Match[courier.Courier]) map[types.ID]float64 {
	out := make(map[types.ID]float64, len(matches))
	for _, m := range matches {
		out[m.Item.ID] = m.DistanceKm
	}
	return out
}
