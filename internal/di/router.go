package di

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/pkg/middleware"
	"github.com/moshiverse/busmate/pkg/telemetry"
)

// NewRouter builds the gin engine with every route of the booking API
func NewRouter(c *Container) *gin.Engine {
	cfg := c.Config

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.RequestLogger())
	router.Use(telemetry.HTTPMiddleware(telemetry.HTTPConfig{
		ServiceName: cfg.OTel.ServiceName,
		SkipPaths:   []string{"/health", "/ready"},
	}))

	// Health check endpoints
	router.GET("/health", c.HealthHandler.Health)
	router.GET("/ready", c.HealthHandler.Ready)

	v1 := router.Group("/api/v1")
	v1.GET("/status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.App.Version,
			"service": cfg.App.Name,
			"gateway": c.Gateway.Name(),
		})
	})

	// Providers authenticate by signature, not by caller identity
	payments := v1.Group("/payments")
	payments.POST("/webhook", c.PaymentHandler.PayMongoWebhook)
	payments.POST("/webhook/stripe", c.PaymentHandler.StripeWebhook)

	authed := v1.Group("")
	authed.Use(middleware.IdentityMiddleware(&middleware.IdentityConfig{
		JWTSecret:   cfg.JWT.Secret,
		Issuer:      cfg.JWT.Issuer,
		AllowHeader: cfg.Auth.AllowHeaderIdentity,
	}))
	adminOnly := middleware.RequireRole(middleware.RoleAdmin)

	schedules := authed.Group("/schedules")
	{
		schedules.GET("/:id/seats", c.SeatHandler.ListSeats)
		schedules.POST("/:id/seats/generate", adminOnly, c.SeatHandler.GenerateSeats)
	}

	bookings := authed.Group("/bookings")
	{
		if c.Redis != nil {
			bookings.POST("", middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(c.Redis.Client())), c.BookingHandler.CreateBooking)
		} else {
			bookings.POST("", c.BookingHandler.CreateBooking)
		}
		bookings.GET("", c.BookingHandler.ListMyBookings)
		bookings.GET("/:id", c.BookingHandler.GetBooking)
		bookings.GET("/:id/ticket.png", c.BookingHandler.TicketQR)
		bookings.POST("/:id/cancel", c.BookingHandler.CancelBooking)
		bookings.POST("/:id/confirm", adminOnly, c.BookingHandler.ConfirmBooking)
	}

	intents := authed.Group("/payments/intents")
	{
		intents.POST("", c.PaymentHandler.CreateIntent)
		intents.GET("/:id", c.PaymentHandler.GetIntentStatus)
		intents.POST("/:id/verify", c.PaymentHandler.VerifyPayment)
	}

	admin := authed.Group("/admin", adminOnly)
	{
		admin.DELETE("/schedules/:id", c.AdminHandler.DeleteSchedule)
		admin.DELETE("/buses/:id", c.AdminHandler.DeleteBus)
		admin.DELETE("/routes/:id", c.AdminHandler.DeleteRoute)
		admin.GET("/bookings", c.AdminHandler.ListBookings)
		admin.POST("/holds/expire", c.AdminHandler.ExpireHolds)
		admin.GET("/holds/reclaimer", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, c.HoldReclaimer.GetStats())
		})
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", middleware.IdempotencyKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        10 * time.Minute,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}
