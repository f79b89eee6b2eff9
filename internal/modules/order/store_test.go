package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/testutil"
	"dispatch/internal/types"
)

func seedDB(t *testing.T, db *pgxpool.Pool, couriers ...types.ID) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Exec(ctx, `
		INSERT INTO merchants (id, kind, name, address, lat, lng, base_delivery_fee)
		VALUES ($1, 'restaurant', 'Chez Mama', 'Rue Nachtigal', $2, $3, 500)`,
		string(testutil.RestaurantID), testutil.RestaurantPos.Lat, testutil.RestaurantPos.Lng,
	)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `
		INSERT INTO products (id, merchant_id, name, price)
		VALUES ($1, $2, 'Ndole', 1500)`,
		string(testutil.ProductNdole), string(testutil.RestaurantID),
	)
	require.NoError(t, err)
	for _, id := range couriers {
		_, err := db.Exec(ctx, `
			INSERT INTO couriers (id, status, lat, lng, position_updated_at)
			VALUES ($1, 'idle', $2, $3, now())`,
			string(id), testutil.NearPos.Lat, testutil.NearPos.Lng,
		)
		require.NoError(t, err)
	}
}

func newDBService(db *pgxpool.Pool) *order.Service {
	pricer := pricing.NewService(pricing.NewStore(db), config.PricingConfig{Currency: "XOF", DefaultCommissionPct: 10})
	return order.NewService(order.NewStore(db), pricer, config.OrderConfig{CourierShare: 0.75, AvgSpeedKmh: 20})
}

func createReadyDB(t *testing.T, svc *order.Service) *order.Order {
	t.Helper()
	ctx := context.Background()
	delivery := testutil.DeliveryPos
	o, err := svc.Create(ctx, order.CreateCommand{
		ClientID:        testutil.ClientID,
		MerchantID:      testutil.RestaurantID,
		MerchantKind:    order.MerchantRestaurant,
		Items:           []order.ItemRequest{{ProductID: testutil.ProductNdole, Quantity: 2}},
		Delivery:        &delivery,
		DeliveryAddress: "Bastos",
	})
	require.NoError(t, err)
	for _, s := range []order.Status{order.StatusAccepted, order.StatusPreparing, order.StatusReady} {
		_, err := svc.Transition(ctx, order.TransitionCommand{OrderID: o.ID, Actor: restaurant, Target: s})
		require.NoError(t, err)
	}
	return o
}

func TestStore_CreateAndGetRoundTrip(t *testing.T) {
	db := testutil.OpenTestDB(t)
	seedDB(t, db)
	svc := newDBService(db)
	ctx := context.Background()

	o := createReadyDB(t, svc)
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, order.StatusReady, got.Status)
	assert.Equal(t, 3, got.StatusVersion)
	assert.Equal(t, types.NewMoney(3800, "XOF"), got.Total)
	assert.Len(t, got.OTPCode, 6)
	require.Len(t, got.Items, 1)
	assert.Equal(t, types.NewMoney(3000, "XOF"), got.Items[0].LineTotal)
	assert.NotNil(t, got.AcceptedAt)
	assert.NotNil(t, got.ReadyAt)
	assert.Nil(t, got.AssignedAt)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)

	ready, err := order.NewStore(db).ReadyWithin(ctx, geo.BoundingBox(testutil.NearPos, 3))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, o.ID, ready[0].ID)
}

func TestStore_UpdateStatusIsCompareAndSet(t *testing.T) {
	db := testutil.OpenTestDB(t)
	seedDB(t, db)
	svc := newDBService(db)
	store := order.NewStore(db)
	ctx := context.Background()

	o := createReadyDB(t, svc)
	stale := order.StatusUpdate{OrderID: o.ID, From: order.StatusReady, To: order.StatusCancelled, Version: 0, At: time.Now()}
	ok, err := store.UpdateStatus(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	stale.Version = 3
	ok, err = store.UpdateStatus(ctx, stale)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
}

func TestStore_ConcurrentClaims(t *testing.T) {
	db := testutil.OpenTestDB(t)
	const racers = 6
	ids := make([]types.ID, racers)
	for i := range ids {
		ids[i] = types.ID(fmt.Sprintf("courier-race-%d", i))
	}
	seedDB(t, db, ids...)
	svc := newDBService(db)
	ctx := context.Background()
	o := createReadyDB(t, svc)

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]error, racers)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, cid types.ID) {
			defer wg.Done()
			<-start
			_, results[i] = svc.Assign(ctx, o.ID, cid)
		}(i, id)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, order.ErrNoLongerAvailable), errors.Is(err, order.ErrCourierUnavailable):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	require.Equal(t, 1, winners)

	var busy int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM couriers WHERE status = 'busy'`).Scan(&busy))
	assert.Equal(t, 1, busy)

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCourierAssigned, got.Status)
	assert.NotNil(t, got.AssignedAt)
}

func deliverDB(t *testing.T, svc *order.Service) *order.Order {
	t.Helper()
	ctx := context.Background()
	o := createReadyDB(t, svc)
	_, err := svc.Assign(ctx, o.ID, testutil.CourierNear)
	require.NoError(t, err)
	for _, s := range []order.Status{order.StatusEnRouteToPickup, order.StatusCollected, order.StatusInDelivery} {
		_, err := svc.Transition(ctx, order.TransitionCommand{OrderID: o.ID, Actor: courierOne, Target: s})
		require.NoError(t, err)
	}
	stored, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	delivered, err := svc.Transition(ctx, order.TransitionCommand{OrderID: o.ID, Actor: courierOne, Target: order.StatusDelivered, OTPCode: stored.OTPCode})
	require.NoError(t, err)
	return delivered
}

func TestStore_DeliverCreditsCourier(t *testing.T) {
	db := testutil.OpenTestDB(t)
	seedDB(t, db, testutil.CourierNear)
	svc := newDBService(db)
	ctx := context.Background()

	o := deliverDB(t, svc)

	c, err := courier.NewStore(db).Get(ctx, testutil.CourierNear)
	require.NoError(t, err)
	assert.Equal(t, courier.StatusIdle, c.Status)
	assert.Equal(t, 1, c.DeliveryCount)
	assert.Equal(t, int64(375), c.TotalEarnings)

	var events int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM order_state_events WHERE order_id = $1`, string(o.ID)).Scan(&events))
	assert.Equal(t, 9, events)
}

func TestStore_RateUpdatesCourierAverage(t *testing.T) {
	db := testutil.OpenTestDB(t)
	seedDB(t, db, testutil.CourierNear)
	svc := newDBService(db)
	ctx := context.Background()

	first := deliverDB(t, svc)
	second := deliverDB(t, svc)

	_, err := svc.Rate(ctx, order.RateCommand{OrderID: first.ID, Actor: client, Rating: 5, Comment: "  rapide  "})
	require.NoError(t, err)
	_, err = svc.Rate(ctx, order.RateCommand{OrderID: second.ID, Actor: client, Rating: 2})
	require.NoError(t, err)

	_, err = svc.Rate(ctx, order.RateCommand{OrderID: first.ID, Actor: client, Rating: 1})
	assert.ErrorIs(t, err, order.ErrAlreadyRated)

	c, err := courier.NewStore(db).Get(ctx, testutil.CourierNear)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RatingCount)
	assert.InDelta(t, 3.5, c.AverageRating, 1e-9)

	var rating int
	var comment string
	require.NoError(t, db.QueryRow(ctx,
		`SELECT rating, comment FROM order_ratings WHERE order_id = $1`, string(first.ID),
	).Scan(&rating, &comment))
	assert.Equal(t, 5, rating)
	assert.Equal(t, "rapide", comment)
}

func TestStore_ConcurrentRatingsCountOnce(t *testing.T) {
	db := testutil.OpenTestDB(t)
	seedDB(t, db, testutil.CourierNear)
	svc := newDBService(db)
	ctx := context.Background()
	o := deliverDB(t, svc)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			_, err := svc.Rate(ctx, order.RateCommand{OrderID: o.ID, Actor: client, Rating: r})
			errs <- err
		}(i%5 + 1)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, order.ErrAlreadyRated)
	}
	assert.Equal(t, 1, success)

	c, err := courier.NewStore(db).Get(ctx, testutil.CourierNear)
	require.NoError(t, err)
	assert.Equal(t, 1, c.RatingCount)
}
