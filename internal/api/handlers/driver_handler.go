package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking/internal/api/middleware"
	"booking/internal/domain/entities"
	"booking/internal/services"
)

// DriverHandler groups the driver-facing endpoints: presence, accepting
// rides and moving them through pickup and drop-off.
type DriverHandler struct {
	rides    *services.RideService
	matching *services.MatchingService
}

func NewDriverHandler(rides *services.RideService, matching *services.MatchingService) *DriverHandler {
	return &DriverHandler{rides: rides, matching: matching}
}

type RegisterDriverRequest struct {
	RegisterPartyRequest
	Vehicle struct {
		Plate    string `json:"plate" binding:"required"`
		Model    string `json:"model"`
		Class    string `json:"class" binding:"required"`
		Capacity int    `json:"capacity" binding:"gte=0"`
	} `json:"vehicle"`
}

// RegisterDriver handles POST /drivers. New drivers start offline.
func (h *DriverHandler) RegisterDriver(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	class, err := entities.ParseVehicleClass(req.Vehicle.Class)
	if err != nil {
		respondError(c, err)
		return
	}
	vehicle := entities.Vehicle{
		Plate:    req.Vehicle.Plate,
		Model:    req.Vehicle.Model,
		Class:    class,
		Capacity: req.Vehicle.Capacity,
	}
	d, err := h.rides.RegisterDriver(c.Request.Context(), middleware.GetUserID(c), req.Name, req.Email, req.Phone, vehicle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// GoOnline handles PATCH /drivers/online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	d, err := h.rides.GoOnline(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GoOffline handles PATCH /drivers/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	d, err := h.rides.GoOffline(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// AcceptRide handles PATCH /rides/:id/accept. When several drivers accept
// the same ride only the first succeeds; the others get 409.
func (h *DriverHandler) AcceptRide(c *gin.Context) {
	ride, err := h.rides.AcceptRide(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}

// StartRide handles PATCH /rides/:id/start
func (h *DriverHandler) StartRide(c *gin.Context) {
	ride, err := h.rides.StartRide(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}

// CompleteRide handles PATCH /rides/:id/complete and returns the receipt.
func (h *DriverHandler) CompleteRide(c *gin.Context) {
	receipt, err := h.rides.CompleteRide(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type NearbyQuery struct {
	Lat      *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Long     *float64 `form:"long" binding:"required,gte=-180,lte=180"`
	RadiusKm float64  `form:"radius_km" binding:"gte=0"`
}

// NearbyDrivers handles GET /drivers/nearby?lat=&long=&radius_km=
func (h *DriverHandler) NearbyDrivers(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	near := h.matching.NearbyDrivers(c.Request.Context(), entities.NewLocation(*q.Lat, *q.Long), q.RadiusKm)
	c.JSON(http.StatusOK, gin.H{"drivers": near, "count": len(near)})
}
