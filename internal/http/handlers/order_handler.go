// README: Order handlers for clients (create, list, view, tracking, cancel, rating) and the generic transition endpoint.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

// CourierLookup resolves the assigned courier for tracking.
type CourierLookup interface {
	Get(ctx context.Context, id types.ID) (*courier.Courier, error)
}

type OrderHandler struct {
	order    *order.Service
	couriers CourierLookup
}

func NewOrderHandler(svc *order.Service, couriers CourierLookup) *OrderHandler {
	return &OrderHandler{order: svc, couriers: couriers}
}

type itemReq struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions"`
}

type createOrderReq struct {
	MerchantID      string    `json:"merchant_id"`
	MerchantKind    string    `json:"merchant_kind"`
	Items           []itemReq `json:"items"`
	DeliveryLat     *float64  `json:"delivery_lat"`
	DeliveryLng     *float64  `json:"delivery_lon"`
	DeliveryAddress string    `json:"delivery_address"`
	PaymentMode     string    `json:"payment_mode"`
}

type transitionReq struct {
	Status  string `json:"status"`
	OTPCode string `json:"otp_code"`
	Reason  string `json:"reason"`
}

type rateReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// orderResponse adds the delivery code for the ordering client only.
type orderResponse struct {
	*order.Order
	OTPCode string `json:"otp_code,omitempty"`
}

func present(o *order.Order, actor order.Actor) orderResponse {
	resp := orderResponse{Order: o}
	if actor.Role == order.RoleClient && actor.ID == o.ClientID {
		resp.OTPCode = o.OTPCode
	}
	return resp
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if (req.DeliveryLat == nil) != (req.DeliveryLng == nil) {
		writeServiceError(c, types.NewFieldError("delivery", "latitude and longitude go together"))
		return
	}
	actor := callerActor(c)
	cmd := order.CreateCommand{
		ClientID:        actor.ID,
		MerchantID:      types.ID(req.MerchantID),
		MerchantKind:    order.MerchantKind(req.MerchantKind),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMode:     order.PaymentMode(req.PaymentMode),
	}
	if req.DeliveryLat != nil {
		cmd.Delivery = &types.Point{Lat: *req.DeliveryLat, Lng: *req.DeliveryLng}
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, order.ItemRequest{
			ProductID:    types.ID(it.ProductID),
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
		})
	}
	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, present(o, actor))
}

func (h *OrderHandler) List(c *gin.Context) {
	var status order.Status
	if v := c.Query("status"); v != "" {
		s, ok := order.ParseStatus(v)
		if !ok {
			writeServiceError(c, types.NewFieldError("status", "unknown status"))
			return
		}
		status = s
	}
	actor := callerActor(c)
	orders, err := h.order.ListForClient(c.Request.Context(), actor.ID, status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = present(&orders[i], actor)
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := callerActor(c)
	o, err := h.order.View(c.Request.Context(), id, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, present(o, actor))
}

type trackingResponse struct {
	OrderID          types.ID     `json:"order_id"`
	Number           string       `json:"number"`
	Status           order.Status `json:"status"`
	DistanceKm       float64      `json:"distance_km"`
	EstimatedMinutes int          `json:"estimated_minutes"`
	CourierID        *types.ID    `json:"courier_id,omitempty"`
	CourierPosition  *types.Point `json:"courier_position,omitempty"`
	Pickup           types.Point  `json:"pickup"`
	Delivery         types.Point  `json:"delivery"`
}

// Tracking is the lightweight view a client polls while waiting.
func (h *OrderHandler) Tracking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.order.View(c.Request.Context(), id, callerActor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp := trackingResponse{
		OrderID:          o.ID,
		Number:           o.Number,
		Status:           o.Status,
		DistanceKm:       o.DistanceKm,
		EstimatedMinutes: o.EstimatedMinutes,
		CourierID:        o.CourierID,
		Pickup:           o.Pickup,
		Delivery:         o.Delivery,
	}
	if o.CourierID != nil && o.Status.Active() && h.couriers != nil {
		cr, err := h.couriers.Get(c.Request.Context(), *o.CourierID)
		switch {
		case err == nil:
			resp.CourierPosition = cr.Position
		case !errors.Is(err, courier.ErrNotFound):
			writeServiceError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req transitionReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	h.transition(c, order.StatusCancelled, req)
}

// Rate stores the client's 1-5 rating of a delivered order's courier.
func (h *OrderHandler) Rate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.order.Rate(c.Request.Context(), order.RateCommand{
		OrderID: id,
		Actor:   callerActor(c),
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Transition is the generic endpoint; body {status, otp_code, reason}.
func (h *OrderHandler) Transition(c *gin.Context) {
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	target, ok := order.ParseStatus(req.Status)
	if !ok {
		writeServiceError(c, types.NewFieldError("status", "unknown status"))
		return
	}
	h.transition(c, target, req)
}

func (h *OrderHandler) transition(c *gin.Context, target order.Status, req transitionReq) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := callerActor(c)
	o, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID: id,
		Actor:   actor,
		Target:  target,
		OTPCode: req.OTPCode,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, present(o, actor))
}

// Step returns a handler that moves the order to a fixed target; the
// merchant and courier route groups use it for their action endpoints.
func (h *OrderHandler) Step(target order.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeError(c, http.StatusBadRequest, "invalid json")
				return
			}
		}
		h.transition(c, target, req)
	}
}
