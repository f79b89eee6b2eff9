package maps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dispatch/internal/types"
)

func TestLatLng(t *testing.T) {
	assert.Equal(t, "3.848000,11.502100", latLng(types.Point{Lat: 3.848, Lng: 11.5021}))
	assert.Equal(t, "-33.868800,151.209300", latLng(types.Point{Lat: -33.8688, Lng: 151.2093}))
}

func TestMinutesRoundsUp(t *testing.T) {
	assert.Equal(t, 0, minutes(0))
	assert.Equal(t, 1, minutes(0.2))
	assert.Equal(t, 12, minutes(12))
	assert.Equal(t, 13, minutes(12.01))
}
