package entities

import (
	"strings"

	"github.com/pkg/errors"
)

// VehicleClass is the ride product a vehicle can serve. A rider requests a
// class; only drivers whose vehicle has that class are matched.
type VehicleClass string

const (
	VehicleClassEconomy VehicleClass = "economy"
	VehicleClassXL      VehicleClass = "xl"
	VehicleClassBlack   VehicleClass = "black"
	VehicleClassPool    VehicleClass = "pool"
)

// VehicleClasses lists every class in display order.
var VehicleClasses = []VehicleClass{
	VehicleClassEconomy,
	VehicleClassXL,
	VehicleClassBlack,
	VehicleClassPool,
}

// ParseVehicleClass is the boundary check for class names coming from
// requests; it is the closed set of products the engine knows how to price.
func ParseVehicleClass(s string) (VehicleClass, error) {
	c := VehicleClass(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range VehicleClasses {
		if c == known {
			return c, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidArgument, "unknown vehicle class %q", s)
}

type Vehicle struct {
	Plate    string       `json:"plate" validate:"required"`
	Model    string       `json:"model,omitempty"`
	Class    VehicleClass `json:"class" validate:"required,oneof=economy xl black pool"`
	Capacity int          `json:"capacity,omitempty" validate:"gte=0"`
}
