package courier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/modules/courier"
	"dispatch/internal/testutil"
	"dispatch/internal/types"
)

func newService() (*courier.Service, *testutil.Store) {
	store := testutil.NewStore()
	return courier.NewService(store.Couriers(), nil), store
}

func TestEnsureCreatesDefaultProfile(t *testing.T) {
	svc, _ := newService()
	c, err := svc.Ensure(context.Background(), "new-courier")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusOffline, c.Status)
	assert.Equal(t, courier.DefaultActionRadiusKm, c.ActionRadiusKm)
	assert.True(t, c.Active)
	assert.Nil(t, c.Position)

	again, err := svc.Ensure(context.Background(), "new-courier")
	require.NoError(t, err)
	assert.Equal(t, c.CreatedAt, again.CreatedAt)
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name     string
		seed     *courier.Availability
		inactive bool
		target   courier.Availability
		approved bool
		want     courier.Availability
		wantErr  error
	}{
		{name: "first access goes idle", target: courier.StatusIdle, approved: true, want: courier.StatusIdle},
		{name: "pause", seed: ptr(courier.StatusIdle), target: courier.StatusPaused, want: courier.StatusPaused},
		{name: "offline without approval", seed: ptr(courier.StatusIdle), target: courier.StatusOffline, want: courier.StatusOffline},
		{name: "same status is a no-op", seed: ptr(courier.StatusPaused), target: courier.StatusPaused, want: courier.StatusPaused},
		{name: "idle needs approval", target: courier.StatusIdle, wantErr: courier.ErrNotApproved},
		{name: "busy cannot be set", target: courier.StatusBusy, approved: true, wantErr: types.ErrValidation},
		{name: "unknown value", target: "sleeping", approved: true, wantErr: types.ErrValidation},
		{name: "busy courier keeps status", seed: ptr(courier.StatusBusy), target: courier.StatusOffline, wantErr: courier.ErrBusy},
		{name: "inactive account", inactive: true, target: courier.StatusIdle, approved: true, wantErr: courier.ErrInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService()
			if tt.seed != nil || tt.inactive {
				c := courier.New("k1", time.Now())
				if tt.seed != nil {
					c.Status = *tt.seed
				}
				c.Active = !tt.inactive
				store.SeedCourier(*c)
			}

			got, err := svc.SetStatus(context.Background(), "k1", tt.target, tt.approved)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			stored, err := svc.Get(context.Background(), "k1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, courier.ErrNotFound)
}

func TestFilterIdleRequiresPosition(t *testing.T) {
	svc, store := newService()
	testutil.SeedMarketplace(store)
	noPos := courier.New("k-nopos", time.Now())
	noPos.Status = courier.StatusIdle
	store.SeedCourier(*noPos)
	busy := courier.New("k-busy", time.Now())
	busy.Status = courier.StatusBusy
	p := testutil.NearPos
	busy.Position = &p
	store.SeedCourier(*busy)

	got, err := svc.FilterIdle(context.Background(), []types.ID{testutil.CourierNear, "k-nopos", "k-busy", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testutil.CourierNear, got[0].ID)
}

func TestParseAvailability(t *testing.T) {
	a, ok := courier.ParseAvailability("paused")
	assert.True(t, ok)
	assert.Equal(t, courier.StatusPaused, a)
	_, ok = courier.ParseAvailability("napping")
	assert.False(t, ok)
}

func ptr(a courier.Availability) *courier.Availability { return &a }
