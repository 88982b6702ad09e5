package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking/internal/api/middleware"
	"booking/internal/services"
)

type RideHandler struct {
	rides *services.RideService
}

func NewRideHandler(rides *services.RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

type RegisterPartyRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

// RegisterRider handles POST /riders. The rider id is the caller's.
func (h *RideHandler) RegisterRider(c *gin.Context) {
	var req RegisterPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.rides.RegisterRider(c.Request.Context(), middleware.GetUserID(c), req.Name, req.Email, req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

type RequestRideRequest struct {
	Pickup  LocationRequest `json:"pickup"`
	Dropoff LocationRequest `json:"dropoff"`
	Class   string          `json:"class" binding:"required"`
}

// RequestRide handles POST /rides. The response carries the ride and the
// driver it was offered to, if any.
func (h *RideHandler) RequestRide(c *gin.Context) {
	var req RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.rides.RequestRide(c.Request.Context(), middleware.GetUserID(c),
		req.Pickup.toEntity(), req.Dropoff.toEntity(), req.Class)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// MyRides handles GET /rides
func (h *RideHandler) MyRides(c *gin.Context) {
	ctx := c.Request.Context()
	id := middleware.GetUserID(c)
	if middleware.GetUserType(c) == middleware.UserTypeDriver {
		c.JSON(http.StatusOK, gin.H{"rides": h.rides.RidesByDriver(ctx, id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": h.rides.RidesByRider(ctx, id)})
}

// GetRide handles GET /rides/:id. Only the rider and the assigned driver
// may look at a ride.
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rides.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	caller := middleware.GetUserID(c)
	if caller != ride.RiderID && caller != ride.DriverID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a party to this ride"})
		return
	}
	c.JSON(http.StatusOK, ride)
}

// CancelRide handles PATCH /rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	ride, err := h.rides.CancelRide(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}

// RematchRide handles POST /rides/:id/rematch for a ride nobody accepted.
func (h *RideHandler) RematchRide(c *gin.Context) {
	res, err := h.rides.RematchRide(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Receipt handles GET /rides/:id/receipt
func (h *RideHandler) Receipt(c *gin.Context) {
	receipt, err := h.rides.Receipt(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type RateRequest struct {
	Score int `json:"score" binding:"required,min=1,max=5"`
}

// RateRide handles PATCH /rides/:id/rate. A rider scores the driver and a
// driver scores the rider.
func (h *RideHandler) RateRide(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := middleware.GetUserID(c)

	rate := h.rides.RateDriver
	if middleware.GetUserType(c) == middleware.UserTypeDriver {
		rate = h.rides.RateRider
	}
	ride, err := rate(ctx, c.Param("id"), id, req.Score)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}
