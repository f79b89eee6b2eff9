// README: Courier service covers profile access and the availability rules.
package courier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/types"
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Courier, error)
	// Ensure inserts a default profile if none exists and returns the row.
	Ensure(ctx context.Context, c *Courier) (*Courier, error)
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	// SetStatus changes availability only while the stored value is still from.
	SetStatus(ctx context.Context, id types.ID, from, to Availability, at time.Time) (bool, error)
	// FilterIdle returns the active idle couriers among ids that have a position.
	FilterIdle(ctx context.Context, ids []types.ID) ([]Courier, error)
}

type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Courier, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Ensure(ctx context.Context, id types.ID) (*Courier, error) {
	return s.repo.Ensure(ctx, New(id, s.now()))
}

// SetStatus applies a courier-requested availability change. Busy is owned
// by claims and deliveries; going idle needs an approved account.
func (s *Service) SetStatus(ctx context.Context, id types.ID, target Availability, approved bool) (*Courier, error) {
	switch target {
	case StatusOffline, StatusIdle, StatusPaused:
	case StatusBusy:
		return nil, types.NewFieldError("status", "busy cannot be set manually")
	default:
		return nil, types.NewFieldError("status", "must be offline, idle or paused")
	}

	c, err := s.Ensure(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrInactive
	}
	if c.Status == StatusBusy {
		return nil, ErrBusy
	}
	if target == StatusIdle && !approved {
		return nil, ErrNotApproved
	}
	if c.Status == target {
		return c, nil
	}

	now := s.now()
	ok, err := s.repo.SetStatus(ctx, id, c.Status, target, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	s.logger.Info("courier status changed",
		zap.String("courier_id", string(id)),
		zap.String("from", string(c.Status)),
		zap.String("to", string(target)),
	)
	c.Status = target
	c.UpdatedAt = now
	return c, nil
}

func (s *Service) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	return s.repo.UpdatePosition(ctx, id, p, at)
}

func (s *Service) FilterIdle(ctx context.Context, ids []types.ID) ([]Courier, error) {
	return s.repo.FilterIdle(ctx, ids)
}
