// README: Nearby merchant search.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/location"
	"dispatch/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type nearbyMerchant struct {
	location.Merchant
	DistanceKm float64 `json:"distance_km"`
}

// MerchantsNearby serves GET /merchants/nearby?lat=&lon=&radius=&kind=.
func (h *LocationHandler) MerchantsNearby(c *gin.Context) {
	if c.Query("lat") == "" || c.Query("lon") == "" {
		writeServiceError(c, types.NewFieldError("position", "lat and lon are required"))
		return
	}
	lat, err := queryFloat(c, "lat", 0)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	lng, err := queryFloat(c, "lon", 0)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	radius, err := queryFloat(c, "radius", location.DefaultMerchantRadiusKm)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	kind := c.Query("kind")
	if kind != "" && kind != "restaurant" && kind != "supermarket" {
		writeServiceError(c, types.NewFieldError("kind", "must be restaurant or supermarket"))
		return
	}

	matches, err := h.location.NearbyMerchants(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, kind)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]nearbyMerchant, len(matches))
	for i, m := range matches {
		out[i] = nearbyMerchant{Merchant: m.Item, DistanceKm: m.DistanceKm}
	}
	writeJSON(c, http.StatusOK, gin.H{"merchants": out})
}
