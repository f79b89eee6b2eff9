// README: Order service implements creation, state transitions, courier assignment and client ratings.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/notify"
	"dispatch/internal/types"
)

const (
	listLimit    = 50
	historyLimit = 50
)

type Pricer interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

type RouteEstimator interface {
	EstimateMinutes(ctx context.Context, from, to types.Point) (int, error)
}

type Service struct {
	repo     Repository
	pricer   Pricer
	cfg      config.OrderConfig
	geocoder Geocoder
	routes   RouteEstimator
	limiter  AttemptLimiter
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithGeocoder(g Geocoder) Option { return func(s *Service) { s.geocoder = g } }
func WithRouteEstimator(r RouteEstimator) Option { return func(s *Service) { s.routes = r } }
func WithAttemptLimiter(l AttemptLimiter) Option { return func(s *Service) { s.limiter = l } }
func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, pricer Pricer, cfg config.OrderConfig, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		pricer:   pricer,
		cfg:      cfg,
		notifier: notify.Nop{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.AvgSpeedKmh <= 0 {
		s.cfg.AvgSpeedKmh = 20
	}
	return s
}

type ItemRequest struct {
	ProductID    types.ID
	Quantity     int
	Instructions string
}

type CreateCommand struct {
	ClientID        types.ID
	MerchantID      types.ID
	MerchantKind    MerchantKind
	Items           []ItemRequest
	Delivery        *types.Point
	DeliveryAddress string
	PaymentMode     PaymentMode
}

type TransitionCommand struct {
	OrderID types.ID
	Actor   Actor
	Target  Status
	OTPCode string
	Reason  string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.ClientID == "" {
		return nil, types.NewFieldError("client_id", "is required")
	}
	if !cmd.MerchantKind.Valid() {
		return nil, types.NewFieldError("merchant_kind", "must be restaurant or supermarket")
	}
	if cmd.PaymentMode == "" {
		cmd.PaymentMode = PaymentCash
	}
	if !cmd.PaymentMode.Valid() {
		return nil, types.NewFieldError("payment_mode", "must be cash, card or mobile_money")
	}
	cmd.DeliveryAddress = strings.TrimSpace(cmd.DeliveryAddress)

	delivery, err := s.resolveDelivery(ctx, cmd)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.LineRequest, len(cmd.Items))
	for i, it := range cmd.Items {
		lines[i] = pricing.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	q, err := s.pricer.Quote(ctx, pricing.QuoteRequest{
		MerchantID:   cmd.MerchantID,
		MerchantKind: string(cmd.MerchantKind),
		Items:        lines,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	distance := geo.DistanceKm(q.Merchant.Position, delivery)
	o := &Order{
		ID:               newID(),
		Number:           newNumber(),
		ClientID:         cmd.ClientID,
		MerchantID:       q.Merchant.ID,
		MerchantKind:     cmd.MerchantKind,
		Status:           StatusPending,
		Pickup:           q.Merchant.Position,
		Delivery:         delivery,
		DeliveryAddress:  cmd.DeliveryAddress,
		DistanceKm:       math.Round(distance*100) / 100,
		EstimatedMinutes: s.estimateMinutes(ctx, q.Merchant.Position, delivery, distance),
		Subtotal:         q.Subtotal,
		DeliveryFee:      q.DeliveryFee,
		Commission:       q.Commission,
		Total:            q.Total,
		CourierEarnings:  types.NewMoney(0, q.Total.Currency),
		PaymentMode:      cmd.PaymentMode,
		PaymentStatus:    PaymentStatusPending,
		OTPCode:          newOTP(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, l := range q.Lines {
		o.Items = append(o.Items, Item{
			ProductID:    l.ProductID,
			Name:         l.Name,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineTotal:    l.LineTotal,
			Instructions: cmd.Items[i].Instructions,
		})
	}

	if err := s.repo.Create(ctx, o); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("order_create").Inc()
		return nil, fmt.Errorf("create order: %w", err)
	}
	metrics.OrdersCreatedTotal.Inc()
	clientID := cmd.ClientID
	s.appendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  string(RoleClient),
		ActorID:    &clientID,
		CreatedAt:  now,
	})
	s.notify(ctx, notify.EventOrderCreated, o, notify.Recipient{Role: string(o.MerchantKind), ID: o.MerchantID})
	return o, nil
}

func (s *Service) resolveDelivery(ctx context.Context, cmd CreateCommand) (types.Point, error) {
	if cmd.Delivery != nil {
		if err := cmd.Delivery.Validate(); err != nil {
			return types.Point{}, err
		}
		if cmd.DeliveryAddress == "" {
			return types.Point{}, types.NewFieldError("delivery_address", "is required")
		}
		return *cmd.Delivery, nil
	}
	if cmd.DeliveryAddress == "" {
		return types.Point{}, types.NewFieldError("delivery_address", "is required")
	}
	if s.geocoder == nil {
		return types.Point{}, types.NewFieldError("delivery", "coordinates are required")
	}
	p, err := s.geocoder.Geocode(ctx, cmd.DeliveryAddress)
	if err != nil {
		s.logger.Warn("geocoding failed", zap.String("address", cmd.DeliveryAddress), zap.Error(err))
		return types.Point{}, types.NewFieldError("delivery_address", "could not be located")
	}
	return p, nil
}

// estimateMinutes asks the route estimator first and falls back to the
// straight-line distance at the average courier speed.
func (s *Service) estimateMinutes(ctx context.Context, from, to types.Point, distanceKm float64) int {
	if s.routes != nil {
		m, err := s.routes.EstimateMinutes(ctx, from, to)
		if err == nil && m > 0 {
			return m
		}
		if err != nil {
			s.logger.Debug("route estimate failed, using straight line", zap.Error(err))
		}
	}
	return int(math.Ceil(distanceKm / s.cfg.AvgSpeedKmh * 60))
}

// Transition applies one step of the state machine. Checks run in a fixed
// order: existence, state table, actor, payload, delivery code, then the
// compare-and-set.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.Target) {
		return nil, &StateError{Current: o.Status, Requested: cmd.Target}
	}
	if err := authorize(o, cmd.Actor, cmd.Target); err != nil {
		return nil, err
	}
	if len(cmd.Reason) > 500 {
		return nil, types.NewFieldError("reason", "must be at most 500 characters")
	}
	if cmd.Target == StatusDelivered {
		return s.deliver(ctx, o, cmd)
	}

	now := s.now()
	u := StatusUpdate{
		OrderID:        o.ID,
		From:           o.Status,
		To:             cmd.Target,
		Version:        o.StatusVersion,
		ReleaseCourier: (cmd.Target == StatusCancelled || cmd.Target == StatusRefused) && o.CourierID != nil,
		At:             now,
	}
	if cmd.Target == StatusCancelled || cmd.Target == StatusRefused {
		reason := cmd.Reason
		u.Reason = &reason
	}
	ok, err := s.repo.UpdateStatus(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}

	from := o.Status
	o.Status = cmd.Target
	o.StatusVersion++
	o.Stamp(cmd.Target, now)
	if u.Reason != nil {
		o.CancelReason = u.Reason
	}
	s.afterTransition(ctx, o, from, cmd.Actor, now)
	return o, nil
}

func (s *Service) deliver(ctx context.Context, o *Order, cmd TransitionCommand) (*Order, error) {
	if cmd.OTPCode == "" {
		return nil, types.NewFieldError("otp_code", "is required")
	}
	if s.limiter != nil {
		allowed, err := s.limiter.Acquire(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("count delivery code attempt: %w", err)
		}
		if !allowed {
			return nil, ErrOTPLocked
		}
	}
	if !otpMatches(o.OTPCode, cmd.OTPCode) {
		metrics.OTPFailuresTotal.Inc()
		return nil, ErrInvalidOTP
	}

	now := s.now()
	earnings := o.DeliveryFee.MulRound(s.cfg.CourierShare)
	ok, err := s.repo.Deliver(ctx, Delivery{
		OrderID:   o.ID,
		CourierID: *o.CourierID,
		Version:   o.StatusVersion,
		Earnings:  earnings,
		At:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("deliver order: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, o.ID); err != nil {
			s.logger.Warn("clearing delivery code attempts", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}

	from := o.Status
	o.Status = StatusDelivered
	o.StatusVersion++
	o.CourierEarnings = earnings
	o.Stamp(StatusDelivered, now)
	s.afterTransition(ctx, o, from, cmd.Actor, now)
	return o, nil
}

// Assign hands a ready order to a courier. It is the only way into
// courier_assigned and is driven by a courier claim.
func (s *Service) Assign(ctx context.Context, orderID, courierID types.ID) (*Order, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.Claim(ctx, orderID, courierID, now); err != nil {
		if errors.Is(err, ErrNoLongerAvailable) || errors.Is(err, ErrCourierUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim order: %w", err)
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, o, StatusReady, Actor{ID: courierID, Role: RoleCourier}, now)
	return o, nil
}

func (s *Service) afterTransition(ctx context.Context, o *Order, from Status, actor Actor, at time.Time) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(o.Status)).Inc()
	actorID := actor.ID
	var idPtr *types.ID
	if actorID != "" {
		idPtr = &actorID
	}
	s.appendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   o.Status,
		ActorType:  string(actor.Role),
		ActorID:    idPtr,
		CreatedAt:  at,
	})

	recipients := []notify.Recipient{{Role: string(RoleClient), ID: o.ClientID}}
	if actor.Role != RoleRestaurant && actor.Role != RoleSupermarket {
		recipients = append(recipients, notify.Recipient{Role: string(o.MerchantKind), ID: o.MerchantID})
	}
	if o.CourierID != nil && actor.Role != RoleCourier {
		recipients = append(recipients, notify.Recipient{Role: string(RoleCourier), ID: *o.CourierID})
	}
	s.notify(ctx, notify.EventOrderStatus, o, recipients...)
}

func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.logger.Warn("append order event", zap.String("order_id", string(e.OrderID)), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, typ notify.EventType, o *Order, recipients ...notify.Recipient) {
	err := s.notifier.Notify(ctx, notify.Event{
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(o.Status),
		Recipients:  recipients,
		Data: map[string]string{
			"total":       strconv.FormatInt(o.Total.Amount, 10),
			"distance_km": strconv.FormatFloat(o.DistanceKm, 'f', 2, 64),
		},
		At: s.now(),
	})
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("notify").Inc()
		s.logger.Warn("order notification failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
}

type RateCommand struct {
	OrderID types.ID
	Actor   Actor
	Rating  int
	Comment string
}

const maxCommentLen = 1000

// Rate records the ordering client's rating of a delivered order's courier.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Rating, error) {
	if cmd.Rating < MinRating || cmd.Rating > MaxRating {
		return nil, types.NewFieldError("rating", fmt.Sprintf("must be between %d and %d", MinRating, MaxRating))
	}
	comment := strings.TrimSpace(cmd.Comment)
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return nil, types.NewFieldError("comment", fmt.Sprintf("must be at most %d characters", maxCommentLen))
	}
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.Actor.isClient(o) {
		return nil, ErrForbidden
	}
	if o.Status != StatusDelivered || o.CourierID == nil {
		return nil, ErrNotDelivered
	}

	r := &Rating{
		OrderID:   o.ID,
		CourierID: *o.CourierID,
		ClientID:  o.ClientID,
		Rating:    cmd.Rating,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	if err := s.repo.Rate(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyRated) {
			return nil, err
		}
		metrics.OperationErrorsTotal.WithLabelValues("order_rate").Inc()
		return nil, fmt.Errorf("rate order: %w", err)
	}
	s.logger.Info("order rated",
		zap.String("order_id", string(o.ID)),
		zap.String("courier_id", string(r.CourierID)),
		zap.Int("rating", r.Rating),
	)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// View returns the order if actor is one of its parties.
func (s *Service) View(ctx context.Context, id types.ID, actor Actor) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(o, actor) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListForClient returns the client's orders, newest first, optionally
// filtered by status.
func (s *Service) ListForClient(ctx context.Context, clientID types.ID, status Status) ([]Order, error) {
	return s.repo.ListByClient(ctx, clientID, status, listLimit)
}

// ActiveForCourier returns the courier's current order, or nil.
func (s *Service) ActiveForCourier(ctx context.Context, courierID types.ID) (*Order, error) {
	orders, err := s.repo.ListByCourier(ctx, courierID, ActiveStatuses, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Service) HistoryForCourier(ctx context.Context, courierID types.ID) ([]Order, error) {
	return s.repo.ListByCourier(ctx, courierID, HistoryStatuses, historyLimit)
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

// newNumber returns a human-readable order number such as CMD-3F2A9C01.
func newNumber() string {
	hexID := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CMD-" + strings.ToUpper(hexID[:8])
}
