package earnings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/config"
	"dispatch/internal/modules/courier"
	"dispatch/internal/types"
)

// Wednesday 2025-03-05 14:00 UTC; ISO week starts Monday 2025-03-03.
var wednesday = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

func TestAggregate_ZeroHistory(t *testing.T) {
	s := Aggregate("k1", nil, wednesday)

	assert.Equal(t, Totals{}, s.Today)
	assert.Equal(t, Totals{}, s.Week)
	assert.Equal(t, Totals{}, s.Month)
	require.Len(t, s.Daily, 7)
	for _, d := range s.Daily {
		assert.Zero(t, d.Earnings)
		assert.Zero(t, d.Deliveries)
	}
	assert.Equal(t, "2025-03-05", s.Daily[0].Date)
	assert.Equal(t, "Wednesday", s.Daily[0].Weekday)
	assert.Equal(t, "2025-02-27", s.Daily[6].Date)
	assert.Equal(t, "Thursday", s.Daily[6].Weekday)
}

func TestAggregate_Windows(t *testing.T) {
	deliveries := []Delivery{
		{OrderID: "a", DeliveredAt: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), Earnings: 375},  // today
		{OrderID: "b", DeliveredAt: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Earnings: 300},  // Monday 00:00, this week
		{OrderID: "c", DeliveredAt: time.Date(2025, 3, 2, 23, 59, 0, 0, time.UTC), Earnings: 200}, // Sunday, last week
		{OrderID: "d", DeliveredAt: time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC), Earnings: 100}, // last month, within 7 days
		{OrderID: "e", DeliveredAt: time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC), Earnings: 50},  // outside everything
		{OrderID: "f", DeliveredAt: time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC), Earnings: 999},  // after now
	}
	s := Aggregate("k1", deliveries, wednesday)

	assert.Equal(t, Totals{Earnings: 375, Deliveries: 1}, s.Today)
	assert.Equal(t, Totals{Earnings: 675, Deliveries: 2}, s.Week)
	assert.Equal(t, Totals{Earnings: 875, Deliveries: 3}, s.Month)

	byDate := map[string]Day{}
	for _, d := range s.Daily {
		byDate[d.Date] = d
	}
	assert.Equal(t, int64(375), byDate["2025-03-05"].Earnings)
	assert.Equal(t, int64(300), byDate["2025-03-03"].Earnings)
	assert.Equal(t, int64(200), byDate["2025-03-02"].Earnings)
	assert.Equal(t, int64(100), byDate["2025-02-28"].Earnings)
	assert.Equal(t, 1, byDate["2025-02-28"].Deliveries)
}

func TestAggregate_UsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	now := time.Date(2025, 3, 5, 0, 30, 0, 0, loc)
	// 23:15 UTC on the 4th is 00:15 local on the 5th.
	d := Delivery{OrderID: "a", DeliveredAt: time.Date(2025, 3, 4, 23, 15, 0, 0, time.UTC), Earnings: 10}

	s := Aggregate("k1", []Delivery{d}, now)
	assert.Equal(t, 1, s.Today.Deliveries)
	assert.Equal(t, "2025-03-05", s.Daily[0].Date)
	assert.Equal(t, int64(10), s.Daily[0].Earnings)
}

func TestWindowStart(t *testing.T) {
	// Early in the month the 7-day window reaches further back than the month.
	assert.Equal(t, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), windowStart(wednesday))
	// Late in the month the month start is earliest.
	late := time.Date(2025, 3, 28, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), windowStart(late))
	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), startOfWeek(sunday))
}

type fakeStore struct {
	deliveries []Delivery
	since      time.Time
}

func (f *fakeStore) Deliveries(_ context.Context, _ types.ID, since time.Time) ([]Delivery, error) {
	f.since = since
	return f.deliveries, nil
}

type fakeCouriers map[types.ID]courier.Courier

func (f fakeCouriers) Get(_ context.Context, id types.ID) (*courier.Courier, error) {
	c, ok := f[id]
	if !ok {
		return nil, courier.ErrNotFound
	}
	return &c, nil
}

func TestSummary_UnknownCourierIsZeroShape(t *testing.T) {
	svc := NewService(&fakeStore{}, fakeCouriers{}, config.EarningsConfig{WeeklyGoal: 25}, "XOF", nil)

	s, err := svc.Summary(context.Background(), "nobody", wednesday)
	require.NoError(t, err)
	assert.Len(t, s.Daily, 7)
	assert.Equal(t, Totals{}, s.Month)
	assert.Equal(t, 25, s.WeeklyGoal)
	assert.Zero(t, s.WeeklyProgress)
	assert.Equal(t, "XOF", s.Currency)
}

func TestSummary_GoalAndProfile(t *testing.T) {
	store := &fakeStore{deliveries: []Delivery{
		{OrderID: "a", DeliveredAt: wednesday.Add(-time.Hour), Earnings: 375},
		{OrderID: "b", DeliveredAt: wednesday.Add(-2 * time.Hour), Earnings: 375},
	}}
	couriers := fakeCouriers{"k1": {ID: "k1", AverageRating: 4.5, DeliveryCount: 12, TotalEarnings: 4500}}
	svc := NewService(store, couriers, config.EarningsConfig{WeeklyGoal: 4}, "XOF", nil)

	s, err := svc.Summary(context.Background(), "k1", wednesday)
	require.NoError(t, err)
	assert.Equal(t, windowStart(wednesday), store.since)
	assert.Equal(t, Totals{Earnings: 750, Deliveries: 2}, s.Today)
	assert.InDelta(t, 0.5, s.WeeklyProgress, 1e-9)
	assert.Equal(t, 4.5, s.AverageRating)
	assert.Equal(t, Totals{Earnings: 4500, Deliveries: 12}, s.Lifetime)
}
