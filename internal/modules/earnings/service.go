// README: Earnings service loads delivered orders and builds the courier dashboard.
package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/config"
	"dispatch/internal/modules/courier"
	"dispatch/internal/types"
)

type Store interface {
	Deliveries(ctx context.Context, courierID types.ID, since time.Time) ([]Delivery, error)
}

type CourierReader interface {
	Get(ctx context.Context, id types.ID) (*courier.Courier, error)
}

type Service struct {
	store    Store
	couriers CourierReader
	cfg      config.EarningsConfig
	currency string
	logger   *zap.Logger
}

func NewService(store Store, couriers CourierReader, cfg config.EarningsConfig, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, couriers: couriers, cfg: cfg, currency: currency, logger: logger}
}

// Summary never fails for an unknown courier or an empty history: the
// dashboard gets a zero-filled shape instead.
func (s *Service) Summary(ctx context.Context, courierID types.ID, now time.Time) (*Summary, error) {
	deliveries, err := s.store.Deliveries(ctx, courierID, windowStart(now))
	if err != nil {
		return nil, fmt.Errorf("load deliveries: %w", err)
	}
	sum := Aggregate(courierID, deliveries, now)
	sum.Currency = s.currency
	sum.WeeklyGoal = s.cfg.WeeklyGoal
	if sum.WeeklyGoal > 0 {
		sum.WeeklyProgress = float64(sum.Week.Deliveries) / float64(sum.WeeklyGoal)
	}

	if s.couriers != nil {
		c, err := s.couriers.Get(ctx, courierID)
		switch {
		case errors.Is(err, courier.ErrNotFound):
		case err != nil:
			s.logger.Warn("earnings: courier profile unavailable", zap.String("courier_id", string(courierID)), zap.Error(err))
		default:
			sum.AverageRating = c.AverageRating
			sum.Lifetime = Totals{Earnings: c.TotalEarnings, Deliveries: c.DeliveryCount}
		}
	}
	return &sum, nil
}
