package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"booking/internal/domain/entities"
)

// statusOf maps an error kind to an HTTP status. Wrapped errors are matched
// with errors.Is, so the message can carry context without losing the kind.
func statusOf(err error) int {
	switch {
	case errors.Is(err, entities.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrMemberMismatch),
		errors.Is(err, entities.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrNotCirculable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrNoDriverAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, entities.ErrDuplicateKey),
		errors.Is(err, entities.ErrLimitExceeded),
		errors.Is(err, entities.ErrReservedByOther),
		errors.Is(err, entities.ErrAlreadyBusy),
		errors.Is(err, entities.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// kindOf is the machine-readable name clients switch on.
func kindOf(err error) string {
	for _, k := range []error{
		entities.ErrInvalidArgument, entities.ErrNotFound, entities.ErrDuplicateKey,
		entities.ErrLimitExceeded, entities.ErrReservedByOther, entities.ErrNotCirculable,
		entities.ErrAlreadyBusy, entities.ErrNoDriverAvailable, entities.ErrInvalidTransition,
		entities.ErrMemberMismatch, entities.ErrAccountInactive,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal"
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusOf(err), gin.H{"error": err.Error(), "kind": kindOf(err)})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": entities.ErrInvalidArgument.Error()})
}

// LocationRequest is a coordinate pair in a request body. Pointers tell a
// missing coordinate apart from the equator or the prime meridian.
type LocationRequest struct {
	Lat  *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Long *float64 `json:"long" binding:"required,gte=-180,lte=180"`
}

func (r LocationRequest) toEntity() entities.Location {
	return entities.NewLocation(*r.Lat, *r.Long)
}
