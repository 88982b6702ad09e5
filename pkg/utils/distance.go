package utils

import (
	"math"
)

const (
	EarthRadiusKm = 6371.0

	// DefaultAverageSpeedKmH is the assumed urban speed used when a trip's
	// duration has to be estimated from its distance.
	DefaultAverageSpeedKmH = 30.0
)

// HaversineDistance calculates the great-circle distance between two points
// in kilometers.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// EstimateDuration returns the travel time in minutes for distanceKm at
// averageSpeedKmH. A non-positive speed falls back to the default.
func EstimateDuration(distanceKm, averageSpeedKmH float64) float64 {
	if averageSpeedKmH <= 0 {
		averageSpeedKmH = DefaultAverageSpeedKmH
	}
	return (distanceKm / averageSpeedKmH) * 60
}

// OffsetKm moves a point north and east by the given kilometres. It is an
// equirectangular approximation, accurate to well under a percent for the
// few-kilometre offsets used when seeding drivers around a pickup.
func OffsetKm(lat, lon, northKm, eastKm float64) (float64, float64) {
	dLat := northKm / EarthRadiusKm
	dLon := eastKm / (EarthRadiusKm * math.Cos(toRadians(lat)))
	return lat + dLat*180/math.Pi, lon + dLon*180/math.Pi
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
