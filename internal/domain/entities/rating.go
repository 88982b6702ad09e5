package entities

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Reputation is the running average of the scores a rider or driver has
// received. It starts at a perfect 5.00 with no ratings; the first score
// replaces that default outright.
type Reputation struct {
	Rating       decimal.Decimal `json:"rating"`
	TotalRatings int             `json:"total_ratings"`
}

func NewReputation() Reputation {
	return Reputation{Rating: decimal.NewFromInt(MaxScore)}
}

// ValidateScore rejects scores outside 1 to 5.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return errors.Wrapf(ErrInvalidArgument, "score %d not in %d..%d", score, MinScore, MaxScore)
	}
	return nil
}

// AddRating folds score into the average: (avg*n + score) / (n+1).
func (r *Reputation) AddRating(score int) error {
	if err := ValidateScore(score); err != nil {
		return err
	}
	n := decimal.NewFromInt(int64(r.TotalRatings))
	sum := r.Rating.Mul(n).Add(decimal.NewFromInt(int64(score)))
	r.TotalRatings++
	r.Rating = sum.Div(decimal.NewFromInt(int64(r.TotalRatings))).Round(2)
	return nil
}
