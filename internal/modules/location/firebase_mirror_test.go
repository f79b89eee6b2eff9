package location

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dispatch/internal/modules/courier"
	"dispatch/internal/types"
)

func TestNewRTDBEntry(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := courier.New("k1", at)
	c.Status = courier.StatusIdle
	c.Position = &types.Point{Lat: 3.85, Lng: 11.50}
	c.PositionUpdatedAt = &at

	e := newRTDBEntry(c)
	assert.Equal(t, 3.85, e.Lat)
	assert.Equal(t, 11.50, e.Lng)
	assert.Equal(t, "idle", e.Status)
	assert.Equal(t, at.UnixMilli(), e.Timestamp)
}
