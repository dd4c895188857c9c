// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cabdesk/internal/http/handlers"
	"cabdesk/internal/http/middleware"
)

type RouterDeps struct {
	Bookings  handlers.BookingService
	Pricing   handlers.PricingService
	Estimates handlers.EstimateService
	Nearby    handlers.NearbyLocator
	Locations handlers.LocationReporter
	Sessions  handlers.SessionFactory
	Logger    *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")

	estimateHandler := handlers.NewEstimateHandler(deps.Estimates, deps.Nearby)
	api.POST("/estimates", estimateHandler.Estimate)
	api.GET("/drivers/nearby", estimateHandler.Nearby)

	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	api.GET("/fare-config", pricingHandler.GetConfig)
	api.PUT("/fare-config", pricingHandler.SaveConfig)
	api.PUT("/fare-config/other-fees", pricingHandler.ReplaceOtherFees)
	api.GET("/flat-rates", pricingHandler.ListFlatRates)
	api.POST("/flat-rates", pricingHandler.CreateFlatRate)
	api.GET("/flat-rates/:id", pricingHandler.GetFlatRate)
	api.PUT("/flat-rates/:id", pricingHandler.UpdateFlatRate)
	api.DELETE("/flat-rates/:id", pricingHandler.DeleteFlatRate)

	bookingHandler := handlers.NewBookingHandler(deps.Bookings)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings/reassignment", bookingHandler.ListReassignment)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.PATCH("/bookings/:id", bookingHandler.Update)
	api.POST("/bookings/:id/assign", bookingHandler.Assign)
	api.POST("/bookings/:id/status", bookingHandler.ChangeStatus)

	locationHandler := handlers.NewLocationHandler(deps.Locations)
	api.PUT("/drivers/:id/location", locationHandler.Update)

	if deps.Sessions != nil {
		r.GET("/ws/estimate", handlers.NewEstimateStreamHandler(deps.Sessions, logger).Serve)
	}
	return r
}
