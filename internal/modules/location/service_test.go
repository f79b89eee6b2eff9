package location_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/testutil"
	"dispatch/internal/types"
)

type recordingMirror struct {
	published []courier.Courier
	err       error
}

func (m *recordingMirror) PublishCourier(_ context.Context, c *courier.Courier) error {
	m.published = append(m.published, *c)
	return m.err
}

type failingIndex struct{}

func (failingIndex) SetCourier(context.Context, types.ID, types.Point) error {
	return errors.New("redis down")
}

func (failingIndex) RemoveCourier(context.Context, types.ID) error {
	return errors.New("redis down")
}

func (failingIndex) NearbyCouriers(context.Context, types.Point, float64, int) ([]types.ID, error) {
	return nil, errors.New("redis down")
}

func TestUpdateCourierPosition(t *testing.T) {
	store := testutil.NewStore()
	index := testutil.NewGeoIndex()
	mirror := &recordingMirror{}
	svc := location.NewService(courier.NewService(store.Couriers(), nil), index, store.Locations(), mirror, nil)
	ctx := context.Background()

	c, err := svc.UpdateCourierPosition(ctx, "k-new", testutil.NearPos)
	require.NoError(t, err)
	require.NotNil(t, c.Position)
	assert.Equal(t, testutil.NearPos, *c.Position)
	assert.Equal(t, courier.StatusOffline, c.Status, "first access creates an offline profile")

	stored, err := store.Couriers().Get(ctx, "k-new")
	require.NoError(t, err)
	require.NotNil(t, stored.Position)
	assert.Equal(t, testutil.NearPos, *stored.Position)
	assert.NotNil(t, stored.PositionUpdatedAt)

	ids, err := index.NearbyCouriers(ctx, testutil.NearPos, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"k-new"}, ids)

	snaps := store.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, types.ID("k-new"), snaps[0].CourierID)

	require.Len(t, mirror.published, 1)
	assert.Equal(t, types.ID("k-new"), mirror.published[0].ID)
}

func TestUpdateCourierPosition_RejectsBadCoordinates(t *testing.T) {
	store := testutil.NewStore()
	svc := location.NewService(courier.NewService(store.Couriers(), nil), testutil.NewGeoIndex(), store.Locations(), nil, nil)

	for _, p := range []types.Point{{Lat: 90.5, Lng: 0}, {Lat: 0, Lng: -181}} {
		_, err := svc.UpdateCourierPosition(context.Background(), "k1", p)
		assert.ErrorIs(t, err, types.ErrValidation, "%+v", p)
	}
	_, err := store.Couriers().Get(context.Background(), "k1")
	assert.ErrorIs(t, err, courier.ErrNotFound, "rejected updates create nothing")
}

func TestUpdateCourierPosition_SideChannelsAreBestEffort(t *testing.T) {
	store := testutil.NewStore()
	mirror := &recordingMirror{err: errors.New("firebase unavailable")}
	svc := location.NewService(courier.NewService(store.Couriers(), nil), failingIndex{}, store.Locations(), mirror, nil)

	c, err := svc.UpdateCourierPosition(context.Background(), "k1", testutil.NearPos)
	require.NoError(t, err)
	assert.Equal(t, testutil.NearPos, *c.Position)
	assert.Len(t, mirror.published, 1)
}

func TestSetCourierStatus_SyncsGeoIndex(t *testing.T) {
	store := testutil.NewStore()
	testutil.SeedMarketplace(store)
	index := testutil.NewGeoIndex()
	ctx := context.Background()
	svc := location.NewService(courier.NewService(store.Couriers(), nil), index, store.Locations(), nil, nil)
	require.NoError(t, index.SetCourier(ctx, testutil.CourierNear, testutil.NearPos))

	c, err := svc.SetCourierStatus(ctx, testutil.CourierNear, courier.StatusPaused, true)
	require.NoError(t, err)
	assert.Equal(t, courier.StatusPaused, c.Status)
	ids, err := index.NearbyCouriers(ctx, testutil.NearPos, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "paused couriers leave the index")

	_, err = svc.SetCourierStatus(ctx, testutil.CourierNear, courier.StatusIdle, true)
	require.NoError(t, err)
	ids, err = index.NearbyCouriers(ctx, testutil.NearPos, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{testutil.CourierNear}, ids, "idle couriers rejoin at their last position")

	_, err = svc.SetCourierStatus(ctx, testutil.CourierNear, courier.StatusBusy, true)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSetCourierStatus_IndexFailureIsBestEffort(t *testing.T) {
	store := testutil.NewStore()
	testutil.SeedMarketplace(store)
	svc := location.NewService(courier.NewService(store.Couriers(), nil), failingIndex{}, store.Locations(), nil, nil)

	c, err := svc.SetCourierStatus(context.Background(), testutil.CourierNear, courier.StatusOffline, false)
	require.NoError(t, err)
	assert.Equal(t, courier.StatusOffline, c.Status)
}

func TestNearbyCouriers_IdleOnlyNearestFirst(t *testing.T) {
	store := testutil.NewStore()
	testutil.SeedMarketplace(store)
	index := testutil.NewGeoIndex()
	ctx := context.Background()
	svc := location.NewService(courier.NewService(store.Couriers(), nil), index, store.Locations(), nil, nil)

	busy := courier.New("k-busy", time.Now())
	busy.Status = courier.StatusBusy
	store.SeedCourier(*busy)
	for id, p := range map[types.ID]types.Point{
		testutil.CourierNear:   testutil.NearPos,
		testutil.CourierSecond: testutil.SecondPos,
		"k-busy":               testutil.RestaurantPos,
	} {
		_, err := svc.UpdateCourierPosition(ctx, id, p)
		require.NoError(t, err)
	}

	matches, err := svc.NearbyCouriers(ctx, testutil.RestaurantPos, 3, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, testutil.CourierNear, matches[0].Item.ID)
	assert.Equal(t, testutil.CourierSecond, matches[1].Item.ID)
	assert.LessOrEqual(t, matches[0].DistanceKm, matches[1].DistanceKm)

	matches, err = svc.NearbyCouriers(ctx, testutil.RestaurantPos, 0.1, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestNearbyMerchants(t *testing.T) {
	store := testutil.NewStore()
	testutil.SeedMarketplace(store)
	store.SeedMerchant(pricing.Merchant{
		ID: "far-away", Kind: "restaurant", Name: "Douala Grill",
		Position: types.Point{Lat: 4.0511, Lng: 9.7679}, Open: true, Active: true,
	})
	store.SeedMerchant(pricing.Merchant{
		ID: "closed-down", Kind: "restaurant", Name: "Gone",
		Position: testutil.NearPos, Active: false,
	})
	svc := location.NewService(courier.NewService(store.Couriers(), nil), testutil.NewGeoIndex(), store.Locations(), nil, nil)
	ctx := context.Background()

	all, err := svc.NearbyMerchants(ctx, testutil.NearPos, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, testutil.RestaurantID, all[0].Item.ID)
	assert.Equal(t, testutil.SupermarketID, all[1].Item.ID)

	markets, err := svc.NearbyMerchants(ctx, testutil.NearPos, 5, "supermarket")
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, testutil.SupermarketID, markets[0].Item.ID)

	_, err = svc.NearbyMerchants(ctx, testutil.NearPos, 80, "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.NearbyMerchants(ctx, types.Point{Lat: 100}, 5, "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.NearbyMerchants(ctx, types.Point{Lat: math.NaN(), Lng: 11.5}, 5, "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.NearbyMerchants(ctx, testutil.NearPos, math.NaN(), "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.NearbyMerchants(ctx, testutil.NearPos, math.Inf(1), "")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRedisIndex(t *testing.T) {
	addr := os.Getenv("DISPATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISPATCH_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	index := location.NewRedisIndex(rdb)
	ctx := context.Background()

	near := types.ID(fmt.Sprintf("k-near-%d", time.Now().UnixNano()))
	far := types.ID(fmt.Sprintf("k-far-%d", time.Now().UnixNano()))
	require.NoError(t, index.SetCourier(ctx, near, testutil.NearPos))
	require.NoError(t, index.SetCourier(ctx, far, types.Point{Lat: 4.0511, Lng: 9.7679}))
	t.Cleanup(func() {
		_ = index.RemoveCourier(ctx, near)
		_ = index.RemoveCourier(ctx, far)
	})

	ids, err := index.NearbyCouriers(ctx, testutil.RestaurantPos, 2, 50)
	require.NoError(t, err)
	assert.Contains(t, ids, near)
	assert.NotContains(t, ids, far)
}
