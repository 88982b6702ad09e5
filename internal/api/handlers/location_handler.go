package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking/internal/api/middleware"
	"booking/internal/services"
)

type LocationHandler struct {
	locations *services.LocationService
}

func NewLocationHandler(locations *services.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

// UpdateLocation handles PATCH /location/update
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	location, err := h.locations.UpdateDriverLocation(c.Request.Context(), middleware.GetUserID(c), req.toEntity())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

// GetLocation handles GET /debug/location/:driver_id
func (h *LocationHandler) GetLocation(c *gin.Context) {
	location, err := h.locations.GetDriverLocation(c.Request.Context(), c.Param("driver_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}
