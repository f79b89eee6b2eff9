// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/order"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Courier)
	api.POST("/orders", middleware.RequireRole(string(order.RoleClient)), orderHandler.Create)
	api.GET("/orders", middleware.RequireRole(string(order.RoleClient)), orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/tracking", orderHandler.Tracking)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/rating", middleware.RequireRole(string(order.RoleClient)), orderHandler.Rate)
	api.POST("/orders/:id/transition", orderHandler.Transition)

	merchant := api.Group("/merchant", middleware.RequireRole(string(order.RoleRestaurant), string(order.RoleSupermarket)))
	merchant.POST("/orders/:id/accept", orderHandler.Step(order.StatusAccepted))
	merchant.POST("/orders/:id/prepare", orderHandler.Step(order.StatusPreparing))
	merchant.POST("/orders/:id/ready", orderHandler.Step(order.StatusReady))
	merchant.POST("/orders/:id/refuse", orderHandler.Step(order.StatusRefused))

	courierHandler := handlers.NewCourierHandler(deps.Courier, deps.Location, deps.Matching, deps.Order, deps.Earnings)
	me := api.Group("/couriers/me", middleware.RequireRole(string(order.RoleCourier)))
	me.GET("", courierHandler.Me)
	me.POST("/position", courierHandler.UpdatePosition)
	me.PUT("/status", courierHandler.SetStatus)
	me.GET("/available-orders", courierHandler.AvailableOrders)
	me.POST("/orders/:id/claim", courierHandler.Claim)
	me.POST("/orders/:id/en-route", orderHandler.Step(order.StatusEnRouteToPickup))
	me.POST("/orders/:id/collected", orderHandler.Step(order.StatusCollected))
	me.POST("/orders/:id/in-delivery", orderHandler.Step(order.StatusInDelivery))
	me.POST("/orders/:id/deliver", orderHandler.Step(order.StatusDelivered))
	me.GET("/active-order", courierHandler.ActiveOrder)
	me.GET("/history", courierHandler.History)
	me.GET("/earnings", courierHandler.Earnings)

	locationHandler := handlers.NewLocationHandler(deps.Location)
	api.GET("/merchants/nearby", locationHandler.MerchantsNearby)

	return r
}
