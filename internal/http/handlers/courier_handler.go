// README: Courier self-service handlers: profile, position, availability, available orders, claim, history and earnings.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/earnings"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

type CourierHandler struct {
	couriers *courier.Service
	location *location.Service
	matching *matching.Service
	order    *order.Service
	earnings *earnings.Service
	now      func() time.Time
}

func NewCourierHandler(
	couriers *courier.Service,
	locationSvc *location.Service,
	matchingSvc *matching.Service,
	orderSvc *order.Service,
	earningsSvc *earnings.Service,
) *CourierHandler {
	return &CourierHandler{
		couriers: couriers,
		location: locationSvc,
		matching: matchingSvc,
		order:    orderSvc,
		earnings: earningsSvc,
		now:      time.Now,
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func (h *CourierHandler) Me(c *gin.Context) {
	cr, err := h.couriers.Ensure(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cr)
}

type positionReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lon"`
}

func (h *CourierHandler) UpdatePosition(c *gin.Context) {
	var req positionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil {
		writeServiceError(c, types.NewFieldError("latitude", "is required"))
		return
	}
	if req.Lng == nil {
		writeServiceError(c, types.NewFieldError("longitude", "is required"))
		return
	}
	cr, err := h.location.UpdateCourierPosition(c.Request.Context(), callerID(c), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cr)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *CourierHandler) SetStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cr, err := h.location.SetCourierStatus(c.Request.Context(), callerID(c), courier.Availability(req.Status), middleware.CallerApproved(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cr)
}

type availableOrder struct {
	*order.Order
	DistanceToPickupKm float64 `json:"distance_to_pickup_km"`
}

func (h *CourierHandler) AvailableOrders(c *gin.Context) {
	matches, err := h.matching.FindAvailableOrders(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]availableOrder, len(matches))
	for i := range matches {
		out[i] = availableOrder{Order: &matches[i].Item, DistanceToPickupKm: matches[i].DistanceKm}
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out})
}

func (h *CourierHandler) Claim(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.matching.ClaimOrder(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *CourierHandler) ActiveOrder(c *gin.Context) {
	o, err := h.order.ActiveForCourier(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *CourierHandler) History(c *gin.Context) {
	orders, err := h.order.HistoryForCourier(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

// Earnings returns the dashboard summary as of ?as_of (RFC3339), default now.
func (h *CourierHandler) Earnings(c *gin.Context) {
	asOf := h.now()
	if v := c.Query("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeServiceError(c, types.NewFieldError("as_of", "must be an RFC3339 timestamp"))
			return
		}
		asOf = t
	}
	sum, err := h.earnings.Summary(c.Request.Context(), callerID(c), asOf)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sum)
}
