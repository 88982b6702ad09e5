package entities

import (
	"time"

	"booking/pkg/utils"
)

// Location is a latitude/longitude pair in decimal degrees.
//
// Go Learning Note (Value Types vs Reference Types):
// Location is a small immutable data holder, so it is passed and returned
// by value. Copying 16 bytes is cheaper than chasing a pointer, and nobody
// can mutate a Location another struct is holding.
type Location struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"long" validate:"gte=-180,lte=180"`
}

// NewLocation creates a Location value from latitude and longitude.
func NewLocation(lat, long float64) Location {
	return Location{
		Latitude:  lat,
		Longitude: long,
	}
}

// DistanceTo returns the great-circle distance to other in kilometres.
func (l Location) DistanceTo(other Location) float64 {
	return utils.HaversineDistance(l.Latitude, l.Longitude, other.Latitude, other.Longitude)
}

// DriverLocation is a driver position stamped with its geohash cell, as
// stored by the spatial index.
type DriverLocation struct {
	DriverID  string    `json:"driver_id"`
	Location  Location  `json:"location"`
	Geohash   string    `json:"geohash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDriverLocation stamps a position reported at the given instant.
// The geohash parameter should be pre-computed by the geo package.
func NewDriverLocation(driverID string, loc Location, geohash string, at time.Time) DriverLocation {
	return DriverLocation{
		DriverID:  driverID,
		Location:  loc,
		Geohash:   geohash,
		UpdatedAt: at,
	}
}
