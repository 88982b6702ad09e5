package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"booking/internal/config"
	"booking/internal/domain/entities"
	"booking/pkg/utils"
)

// Fare is the computed price of one completed ride. The component fields
// are shown to the rider; Total is what gets charged.
type Fare struct {
	ID                string                `json:"id"`
	RideID            string                `json:"ride_id"`
	RiderID           string                `json:"rider_id"`
	Class             entities.VehicleClass `json:"class"`
	DistanceKm        float64               `json:"distance_km"`
	DurationMins      float64               `json:"duration_mins"`
	DurationEstimated bool                  `json:"duration_estimated"`
	BaseFare          decimal.Decimal       `json:"base_fare"`
	DistanceFare      decimal.Decimal       `json:"distance_fare"`
	TimeFare          decimal.Decimal       `json:"time_fare"`
	Multiplier        decimal.Decimal       `json:"multiplier"`
	Total             decimal.Decimal       `json:"total"`
	CreatedAt         time.Time             `json:"created_at"`
}

func (f Fare) Key() string { return f.ID }

// FareCalculator computes ride fares from the pricing config.
//
// Fare = (BaseFare + DistanceKm*PerKmRate + DurationMins*PerMinuteRate) * Multiplier
//
// The total is rounded to two decimals once, at the end, so rounding the
// components for display never shifts the charged amount.
type FareCalculator struct {
	base        decimal.Decimal
	perKm       decimal.Decimal
	perMinute   decimal.Decimal
	avgSpeedKmH float64
	multipliers map[entities.VehicleClass]decimal.Decimal
}

func NewFareCalculator(cfg config.PricingConfig) *FareCalculator {
	multipliers := make(map[entities.VehicleClass]decimal.Decimal, len(cfg.Multipliers))
	for class, m := range cfg.Multipliers {
		multipliers[entities.VehicleClass(class)] = decimal.NewFromFloat(m)
	}
	return &FareCalculator{
		base:        decimal.NewFromFloat(cfg.BaseFare),
		perKm:       decimal.NewFromFloat(cfg.PerKmRate),
		perMinute:   decimal.NewFromFloat(cfg.PerMinuteRate),
		avgSpeedKmH: cfg.AverageSpeedKmH,
		multipliers: multipliers,
	}
}

// Multiplier returns the class multiplier; classes without one price at 1.
func (c *FareCalculator) Multiplier(class entities.VehicleClass) decimal.Decimal {
	if m, ok := c.multipliers[class]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// Duration is the stamped trip time when both ends are known, otherwise an
// estimate from the distance at the average speed.
func (c *FareCalculator) Duration(ride entities.Ride) (mins float64, estimated bool) {
	if ride.StartedAt != nil && ride.EndedAt != nil {
		return ride.EndedAt.Sub(*ride.StartedAt).Minutes(), false
	}
	return utils.EstimateDuration(ride.DistanceKm, c.avgSpeedKmH), true
}

// Quote prices a trip that has not happened yet.
func (c *FareCalculator) Quote(distanceKm float64, class entities.VehicleClass) decimal.Decimal {
	mins := utils.EstimateDuration(distanceKm, c.avgSpeedKmH)
	return c.Calculate(distanceKm, mins, class).Total
}

// Calculate prices a trip. The result has no identity fields set.
func (c *FareCalculator) Calculate(distanceKm, durationMins float64, class entities.VehicleClass) Fare {
	distanceFare := c.perKm.Mul(decimal.NewFromFloat(distanceKm))
	timeFare := c.perMinute.Mul(decimal.NewFromFloat(durationMins))
	mult := c.Multiplier(class)

	return Fare{
		Class:        class,
		DistanceKm:   distanceKm,
		DurationMins: durationMins,
		BaseFare:     c.base.Round(2),
		DistanceFare: distanceFare.Round(2),
		TimeFare:     timeFare.Round(2),
		Multiplier:   mult,
		Total:        c.base.Add(distanceFare).Add(timeFare).Mul(mult).Round(2),
	}
}

// ForRide prices a ride from its stored distance and timestamps.
func (c *FareCalculator) ForRide(ride entities.Ride) Fare {
	mins, estimated := c.Duration(ride)
	fare := c.Calculate(ride.DistanceKm, mins, ride.Class)
	fare.RideID = ride.ID
	fare.RiderID = ride.RiderID
	fare.DurationEstimated = estimated
	return fare
}
