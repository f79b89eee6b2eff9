// README: Location service records courier positions and answers nearby queries for couriers and merchants.
package location

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/geo"
	"dispatch/internal/modules/courier"
	"dispatch/internal/types"
)

type Couriers interface {
	Ensure(ctx context.Context, id types.ID) (*courier.Courier, error)
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	SetStatus(ctx context.Context, id types.ID, target courier.Availability, approved bool) (*courier.Courier, error)
	FilterIdle(ctx context.Context, ids []types.ID) ([]courier.Courier, error)
}

// GeoIndex narrows courier candidates by position. It may return couriers
// slightly outside the radius; callers decide with geo.DistanceKm.
type GeoIndex interface {
	SetCourier(ctx context.Context, id types.ID, p types.Point) error
	RemoveCourier(ctx context.Context, id types.ID) error
	NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64, count int) ([]types.ID, error)
}

type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	MerchantsWithin(ctx context.Context, box geo.Box, kind string) ([]Merchant, error)
}

// PositionMirror publishes live courier positions for client-side tracking.
type PositionMirror interface {
	PublishCourier(ctx context.Context, c *courier.Courier) error
}

type Service struct {
	couriers Couriers
	index    GeoIndex
	store    SnapshotStore
	mirror   PositionMirror
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(couriers Couriers, index GeoIndex, store SnapshotStore, mirror PositionMirror, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{couriers: couriers, index: index, store: store, mirror: mirror, logger: logger, now: time.Now}
}

// UpdateCourierPosition stores the courier's position. Postgres is the
// source of truth; the GEO index, the snapshot trail and the live mirror are
// best effort.
func (s *Service) UpdateCourierPosition(ctx context.Context, courierID types.ID, p types.Point) (*courier.Courier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c, err := s.couriers.Ensure(ctx, courierID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.couriers.UpdatePosition(ctx, courierID, p, now); err != nil {
		return nil, fmt.Errorf("update courier position: %w", err)
	}
	c.Position = &p
	c.PositionUpdatedAt = &now
	c.UpdatedAt = now

	if s.index != nil {
		if err := s.index.SetCourier(ctx, courierID, p); err != nil {
			s.logger.Warn("geo index update failed", zap.String("courier_id", string(courierID)), zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.AppendSnapshot(ctx, Snapshot{CourierID: courierID, Position: p, RecordedAt: now}); err != nil {
			s.logger.Warn("location snapshot failed", zap.String("courier_id", string(courierID)), zap.Error(err))
		}
	}
	if s.mirror != nil {
		if err := s.mirror.PublishCourier(ctx, c); err != nil {
			s.logger.Warn("position mirror failed", zap.String("courier_id", string(courierID)), zap.Error(err))
		}
	}
	return c, nil
}

// SetCourierStatus changes the courier's availability and keeps the GEO
// index in step: couriers going offline or paused leave it, couriers going
// idle with a known position rejoin it.
func (s *Service) SetCourierStatus(ctx context.Context, courierID types.ID, target courier.Availability, approved bool) (*courier.Courier, error) {
	c, err := s.couriers.SetStatus(ctx, courierID, target, approved)
	if err != nil {
		return nil, err
	}
	if s.index == nil {
		return c, nil
	}
	switch {
	case c.Status == courier.StatusOffline || c.Status == courier.StatusPaused:
		err = s.index.RemoveCourier(ctx, courierID)
	case c.Status == courier.StatusIdle && c.Position != nil:
		err = s.index.SetCourier(ctx, courierID, *c.Position)
	}
	if err != nil {
		s.logger.Warn("geo index status sync failed", zap.String("courier_id", string(courierID)), zap.Error(err))
	}
	return c, nil
}

// NearbyCouriers returns idle couriers within radiusKm of p, nearest first.
func (s *Service) NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]geo.Match[courier.Courier], error) {
	if limit <= 0 {
		limit = geo.DefaultLimit
	}
	ids, err := s.index.NearbyCouriers(ctx, p, radiusKm, limit*3)
	if err != nil {
		return nil, fmt.Errorf("geo index search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	idle, err := s.couriers.FilterIdle(ctx, ids)
	if err != nil {
		return nil, err
	}
	return geo.Nearest(p, radiusKm, limit, idle, func(c courier.Courier) *types.Point { return c.Position }), nil
}

// NearbyMerchants lists merchants around p. kind may be empty for both
// restaurants and supermarkets.
func (s *Service) NearbyMerchants(ctx context.Context, p types.Point, radiusKm float64, kind string) ([]geo.Match[Merchant], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) {
		return nil, types.NewFieldError("radius", "must be a number")
	}
	if radiusKm <= 0 {
		radiusKm = DefaultMerchantRadiusKm
	}
	if radiusKm > MaxMerchantRadiusKm {
		return nil, types.NewFieldError("radius", fmt.Sprintf("must be at most %.0f km", MaxMerchantRadiusKm))
	}
	merchants, err := s.store.MerchantsWithin(ctx, geo.BoundingBox(p, radiusKm), kind)
	if err != nil {
		return nil, fmt.Errorf("load merchants: %w", err)
	}
	return geo.Nearest(p, radiusKm, 0, merchants, func(m Merchant) *types.Point {
		pos := m.Position
		return &pos
	}), nil
}
