package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"booking/internal/api/handlers"
	"booking/internal/api/middleware"
	"booking/internal/config"
)

type Router struct {
	libraryHandler  *handlers.LibraryHandler
	rideHandler     *handlers.RideHandler
	driverHandler   *handlers.DriverHandler
	locationHandler *handlers.LocationHandler
	cfg             config.ServerConfig
	log             *zap.Logger
}

func NewRouter(
	libraryHandler *handlers.LibraryHandler,
	rideHandler *handlers.RideHandler,
	driverHandler *handlers.DriverHandler,
	locationHandler *handlers.LocationHandler,
	cfg config.ServerConfig,
	log *zap.Logger,
) *Router {
	return &Router{
		libraryHandler:  libraryHandler,
		rideHandler:     rideHandler,
		driverHandler:   driverHandler,
		locationHandler: locationHandler,
		cfg:             cfg,
		log:             log,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(gin.Recovery(), middleware.RequestLogger(r.log))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/")
	api.Use(middleware.RateLimit(r.cfg.RateLimitRPS, r.cfg.RateLimitBurst), middleware.MockAuth())
	{
		// Catalog, open to every caller
		api.GET("/books", r.libraryHandler.SearchBooks)
		api.GET("/books/:barcode", r.libraryHandler.GetBook)

		desk := api.Group("/")
		desk.Use(middleware.Require(middleware.UserTypeLibrarian))
		{
			desk.POST("/books", r.libraryHandler.RegisterBook)
			desk.DELETE("/books/:barcode", r.libraryHandler.RemoveBook)
			desk.PATCH("/books/:barcode/lost", r.libraryHandler.MarkLost)
			desk.POST("/members", r.libraryHandler.RegisterMember)
			desk.PATCH("/members/:id/block", r.libraryHandler.SetMemberStatus)
			desk.PATCH("/members/:id/unblock", r.libraryHandler.SetMemberStatus)
		}

		members := api.Group("/")
		members.Use(middleware.Require(middleware.UserTypeMember))
		{
			members.POST("/books/:barcode/checkout", r.libraryHandler.Checkout)
			members.POST("/books/:barcode/return", r.libraryHandler.Return)
			members.POST("/books/:barcode/renew", r.libraryHandler.Renew)
			members.POST("/books/:barcode/reserve", r.libraryHandler.Reserve)
			members.DELETE("/reservations/:id", r.libraryHandler.CancelReservation)
			members.GET("/members/me", r.libraryHandler.MyAccount)
			members.GET("/fines/:id", r.libraryHandler.GetFine)
			members.POST("/fines/:id/pay", r.libraryHandler.PayFine)
		}

		riders := api.Group("/")
		riders.Use(middleware.Require(middleware.UserTypeRider))
		{
			riders.POST("/riders", r.rideHandler.RegisterRider)
			riders.POST("/rides", r.rideHandler.RequestRide)
			riders.POST("/rides/:id/rematch", r.rideHandler.RematchRide)
		}

		drivers := api.Group("/")
		drivers.Use(middleware.Require(middleware.UserTypeDriver))
		{
			drivers.POST("/drivers", r.driverHandler.RegisterDriver)
			drivers.PATCH("/drivers/online", r.driverHandler.GoOnline)
			drivers.PATCH("/drivers/offline", r.driverHandler.GoOffline)
			drivers.PATCH("/location/update", r.locationHandler.UpdateLocation)
			drivers.PATCH("/rides/:id/accept", r.driverHandler.AcceptRide)
			drivers.PATCH("/rides/:id/start", r.driverHandler.StartRide)
			drivers.PATCH("/rides/:id/complete", r.driverHandler.CompleteRide)
		}

		// Both sides of a ride
		party := api.Group("/")
		party.Use(middleware.Require(middleware.UserTypeRider, middleware.UserTypeDriver))
		{
			party.GET("/rides", r.rideHandler.MyRides)
			party.GET("/rides/:id", r.rideHandler.GetRide)
			party.PATCH("/rides/:id/cancel", r.rideHandler.CancelRide)
			party.PATCH("/rides/:id/rate", r.rideHandler.RateRide)
			party.GET("/rides/:id/receipt", r.rideHandler.Receipt)
			party.GET("/drivers/nearby", r.driverHandler.NearbyDrivers)
		}
	}

	// Debug endpoints (no auth for testing)
	debug := engine.Group("/debug")
	{
		debug.GET("/location/:driver_id", r.locationHandler.GetLocation)
	}
}
