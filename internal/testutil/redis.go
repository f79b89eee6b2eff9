package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/types"
)

// GeoIndex is an in-memory courier position index.
type GeoIndex struct {
	mu  sync.Mutex
	pos map[types.ID]types.Point
}

func NewGeoIndex() *GeoIndex {
	return &GeoIndex{pos: make(map[types.ID]types.Point)}
}

func (g *GeoIndex) SetCourier(_ context.Context, id types.ID, p types.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pos[id] = p
	return nil
}

func (g *GeoIndex) RemoveCourier(_ context.Context, id types.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pos, id)
	return nil
}

func (g *GeoIndex) NearbyCouriers(_ context.Context, p types.Point, radiusKm float64, count int) ([]types.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	type entry struct {
		id types.ID
		d  float64
	}
	var hits []entry
	for id, pos := range g.pos {
		if d := geo.DistanceKm(p, pos); d <= radiusKm {
			hits = append(hits, entry{id, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	if count > 0 && len(hits) > count {
		hits = hits[:count]
	}
	out := make([]types.ID, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

// DispatchStore is an in-memory version of the Redis dispatch markers.
type DispatchStore struct {
	mu         sync.Mutex
	dispatched map[types.ID]time.Time
	notified   map[types.ID]map[types.ID]bool
	broadcast  map[types.ID]bool
}

func NewDispatchStore() *DispatchStore {
	return &DispatchStore{
		dispatched: make(map[types.ID]time.Time),
		notified:   make(map[types.ID]map[types.ID]bool),
		broadcast:  make(map[types.ID]bool),
	}
}

func (d *DispatchStore) RecordDispatch(_ context.Context, orderID types.ID, courierIDs []types.ID, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dispatched[orderID]; !ok {
		d.dispatched[orderID] = at
	}
	set := d.notified[orderID]
	if set == nil {
		set = make(map[types.ID]bool)
		d.notified[orderID] = set
	}
	for _, id := range courierIDs {
		set[id] = true
	}
	return nil
}

func (d *DispatchStore) GetDispatchedAt(_ context.Context, orderID types.ID) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.dispatched[orderID]
	return t, ok, nil
}

func (d *DispatchStore) NotifiedCouriers(_ context.Context, orderID types.ID) (map[types.ID]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[types.ID]bool, len(d.notified[orderID]))
	for id := range d.notified[orderID] {
		out[id] = true
	}
	return out, nil
}

func (d *DispatchStore) MarkOrderBroadcast(_ context.Context, orderID types.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcast[orderID] = true
	return nil
}

func (d *DispatchStore) IsOrderBroadcast(_ context.Context, orderID types.ID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.broadcast[orderID], nil
}

// ForceDispatchedAt rewrites the first-dispatch time of an order.
func (d *DispatchStore) ForceDispatchedAt(orderID types.ID, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched[orderID] = at
}

// AttemptCounter is an in-memory delivery-code attempt limiter without
// expiry.
type AttemptCounter struct {
	mu       sync.Mutex
	max      int
	attempts map[types.ID]int
}

func NewAttemptCounter(maxAttempts int) *AttemptCounter {
	return &AttemptCounter{max: maxAttempts, attempts: make(map[types.ID]int)}
}

func (a *AttemptCounter) Acquire(_ context.Context, orderID types.ID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[orderID]++
	return a.attempts[orderID] <= a.max, nil
}

func (a *AttemptCounter) Reset(_ context.Context, orderID types.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attempts, orderID)
	return nil
}

// Attempts reports the attempts counted since the last reset.
func (a *AttemptCounter) Attempts(orderID types.ID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[orderID]
}
