// Package testutil holds in-memory stores that follow the Postgres and
// Redis stores' conditional-update semantics, plus DB and token helpers.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/earnings"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/types"
)

// Store is one shared in-memory database. Its views implement the
// repositories of the order, courier, earnings, location and pricing
// modules; a single mutex makes the claim and delivery atomic across
// orders and couriers.
type Store struct {
	mu        sync.Mutex
	orders    map[types.ID]*order.Order
	couriers  map[types.ID]*courier.Courier
	events    []order.Event
	ratings   map[types.ID]order.Rating
	snapshots []location.Snapshot
	merchants map[types.ID]pricing.Merchant
	products  map[types.ID]pricing.Product
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[types.ID]*order.Order),
		couriers:  make(map[types.ID]*courier.Courier),
		ratings:   make(map[types.ID]order.Rating),
		merchants: make(map[types.ID]pricing.Merchant),
		products:  make(map[types.ID]pricing.Product),
	}
}

func (s *Store) Orders() *OrderRepo { return &OrderRepo{s} }
func (s *Store) Couriers() *CourierRepo { return &CourierRepo{s} }
func (s *Store) Earnings() *EarningsRepo { return &EarningsRepo{s} }
func (s *Store) Locations() *LocationRepo { return &LocationRepo{s} }
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{s} }

func (s *Store) SeedCourier(c courier.Courier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	if cp.Position != nil {
		p := *cp.Position
		cp.Position = &p
	}
	s.couriers[c.ID] = &cp
}

func (s *Store) SeedMerchant(m pricing.Merchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchants[m.ID] = m
}

func (s *Store) SeedProduct(p pricing.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SeedOrder stores o as is, bypassing the service.
func (s *Store) SeedOrder(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(&o)
}

func (s *Store) Events(orderID types.ID) []order.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Event
	for _, e := range s.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// Rating returns the stored rating of an order.
func (s *Store) Rating(orderID types.ID) (order.Rating, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[orderID]
	return r, ok
}

func (s *Store) Snapshots() []location.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]location.Snapshot(nil), s.snapshots...)
}

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	if o.CourierID != nil {
		id := *o.CourierID
		cp.CourierID = &id
	}
	if o.CancelReason != nil {
		r := *o.CancelReason
		cp.CancelReason = &r
	}
	return &cp
}

func copyCourier(c *courier.Courier) *courier.Courier {
	cp := *c
	if c.Position != nil {
		p := *c.Position
		cp.Position = &p
	}
	if c.PositionUpdatedAt != nil {
		t := *c.PositionUpdatedAt
		cp.PositionUpdatedAt = &t
	}
	return &cp
}

func (s *Store) hasActiveOrder(courierID types.ID) bool {
	for _, o := range s.orders {
		if o.CourierID != nil && *o.CourierID == courierID && o.Status.Active() {
			return true
		}
	}
	return false
}

// OrderRepo implements order.Repository.
type OrderRepo struct{ s *Store }

var _ order.Repository = (*OrderRepo)(nil)

func (r *OrderRepo) Create(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *OrderRepo) Get(_ context.Context, id types.ID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r *OrderRepo) ListByClient(_ context.Context, clientID types.ID, status order.Status, limit int) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.ClientID == clientID && (status == "" || o.Status == status)
	}, func(o *order.Order) time.Time { return o.CreatedAt }, limit), nil
}

func (r *OrderRepo) ListByCourier(_ context.Context, courierID types.ID, statuses []order.Status, limit int) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool {
		if o.CourierID == nil || *o.CourierID != courierID {
			return false
		}
		for _, st := range statuses {
			if o.Status == st {
				return true
			}
		}
		return false
	}, func(o *order.Order) time.Time { return o.UpdatedAt }, limit), nil
}

func (r *OrderRepo) list(keep func(*order.Order) bool, key func(*order.Order) time.Time, limit int) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return key(&out[i]).After(key(&out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *OrderRepo) UpdateStatus(_ context.Context, u order.StatusUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[u.OrderID]
	if !ok || o.Status != u.From || o.StatusVersion != u.Version {
		return false, nil
	}
	o.Status = u.To
	o.StatusVersion++
	o.Stamp(u.To, u.At)
	if u.Reason != nil {
		reason := *u.Reason
		o.CancelReason = &reason
	}
	if u.ReleaseCourier && o.CourierID != nil {
		if c, ok := r.s.couriers[*o.CourierID]; ok && c.Status == courier.StatusBusy {
			c.Status = courier.StatusIdle
			c.UpdatedAt = u.At
		}
	}
	return true, nil
}

func (r *OrderRepo) Claim(_ context.Context, orderID, courierID types.ID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couriers[courierID]
	if !ok || c.Status != courier.StatusIdle || !c.Active || r.s.hasActiveOrder(courierID) {
		return order.ErrCourierUnavailable
	}
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != order.StatusReady || o.CourierID != nil {
		return order.ErrNoLongerAvailable
	}
	c.Status = courier.StatusBusy
	c.UpdatedAt = at
	id := courierID
	o.CourierID = &id
	o.Status = order.StatusCourierAssigned
	o.StatusVersion++
	o.Stamp(order.StatusCourierAssigned, at)
	return nil
}

func (r *OrderRepo) Deliver(_ context.Context, d order.Delivery) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[d.OrderID]
	if !ok || o.Status != order.StatusInDelivery || o.StatusVersion != d.Version ||
		o.CourierID == nil || *o.CourierID != d.CourierID {
		return false, nil
	}
	o.Status = order.StatusDelivered
	o.StatusVersion++
	o.CourierEarnings = d.Earnings
	o.Stamp(order.StatusDelivered, d.At)
	if c, ok := r.s.couriers[d.CourierID]; ok {
		c.DeliveryCount++
		c.TotalEarnings += d.Earnings.Amount
		c.Status = courier.StatusIdle
		c.UpdatedAt = d.At
	}
	return true, nil
}

func (r *OrderRepo) ReadyWithin(_ context.Context, box geo.Box) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if o.Status == order.StatusReady && o.CourierID == nil && box.Contains(o.Pickup) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *OrderRepo) ListReadyUnassigned(_ context.Context, limit int) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if o.Status == order.StatusReady && o.CourierID == nil {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OrderRepo) AppendEvent(_ context.Context, e *order.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev := *e
	ev.ID = int64(len(r.s.events) + 1)
	r.s.events = append(r.s.events, ev)
	return nil
}

func (r *OrderRepo) Rate(_ context.Context, rt *order.Rating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.ratings[rt.OrderID]; ok {
		return order.ErrAlreadyRated
	}
	r.s.ratings[rt.OrderID] = *rt
	if c, ok := r.s.couriers[rt.CourierID]; ok {
		c.AverageRating = (c.AverageRating*float64(c.RatingCount) + float64(rt.Rating)) / float64(c.RatingCount+1)
		c.RatingCount++
		c.UpdatedAt = rt.CreatedAt
	}
	return nil
}

// CourierRepo implements courier.Repository.
type CourierRepo struct{ s *Store }

var _ courier.Repository = (*CourierRepo)(nil)

func (r *CourierRepo) Get(_ context.Context, id types.ID) (*courier.Courier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couriers[id]
	if !ok {
		return nil, courier.ErrNotFound
	}
	return copyCourier(c), nil
}

func (r *CourierRepo) Ensure(_ context.Context, c *courier.Courier) (*courier.Courier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.couriers[c.ID]
	if !ok {
		existing = copyCourier(c)
		r.s.couriers[c.ID] = existing
	}
	return copyCourier(existing), nil
}

func (r *CourierRepo) UpdatePosition(_ context.Context, id types.ID, p types.Point, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couriers[id]
	if !ok {
		return courier.ErrNotFound
	}
	pos := p
	ts := at
	c.Position = &pos
	c.PositionUpdatedAt = &ts
	c.UpdatedAt = at
	return nil
}

func (r *CourierRepo) SetStatus(_ context.Context, id types.ID, from, to courier.Availability, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couriers[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = at
	return true, nil
}

func (r *CourierRepo) FilterIdle(_ context.Context, ids []types.ID) ([]courier.Courier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []courier.Courier
	for _, id := range ids {
		c, ok := r.s.couriers[id]
		if ok && c.Status == courier.StatusIdle && c.Active && c.Position != nil {
			out = append(out, *copyCourier(c))
		}
	}
	return out, nil
}

// EarningsRepo implements earnings.Store.
type EarningsRepo struct{ s *Store }

var _ earnings.Store = (*EarningsRepo)(nil)

func (r *EarningsRepo) Deliveries(_ context.Context, courierID types.ID, since time.Time) ([]earnings.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []earnings.Delivery
	for _, o := range r.s.orders {
		if o.Status != order.StatusDelivered || o.CourierID == nil || *o.CourierID != courierID || o.DeliveredAt == nil {
			continue
		}
		if o.DeliveredAt.Before(since) {
			continue
		}
		out = append(out, earnings.Delivery{OrderID: o.ID, DeliveredAt: *o.DeliveredAt, Earnings: o.CourierEarnings.Amount})
	}
	return out, nil
}

// LocationRepo implements location.SnapshotStore.
type LocationRepo struct{ s *Store }

var _ location.SnapshotStore = (*LocationRepo)(nil)

func (r *LocationRepo) AppendSnapshot(_ context.Context, snap location.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap.ID = int64(len(r.s.snapshots) + 1)
	r.s.snapshots = append(r.s.snapshots, snap)
	return nil
}

func (r *LocationRepo) MerchantsWithin(_ context.Context, box geo.Box, kind string) ([]location.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []location.Merchant
	for _, m := range r.s.merchants {
		if !m.Active || (kind != "" && m.Kind != kind) || !box.Contains(m.Position) {
			continue
		}
		out = append(out, location.Merchant{
			ID:       m.ID,
			Kind:     m.Kind,
			Name:     m.Name,
			Address:  m.Address,
			Position: m.Position,
			Open:     m.Open,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CatalogRepo implements pricing.Catalog.
type CatalogRepo struct{ s *Store }

var _ pricing.Catalog = (*CatalogRepo)(nil)

func (r *CatalogRepo) Merchant(_ context.Context, id types.ID) (*pricing.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.merchants[id]
	if !ok {
		return nil, pricing.ErrMerchantNotFound
	}
	return &m, nil
}

func (r *CatalogRepo) Products(_ context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]pricing.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[types.ID]pricing.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.MerchantID == merchantID {
			out[id] = p
		}
	}
	return out, nil
}
