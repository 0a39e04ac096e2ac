package match

import (
	"github.com/park285/Cheese-Arena/internal/store"
)

// RatingRules is the fixed-increment rating adjustment.
type RatingRules struct {
	Increment     int
	ResignPenalty int
	Min           int
	Max           int
}

func DefaultRatingRules() RatingRules {
	return RatingRules{Increment: 10, ResignPenalty: 20, Min: 100, Max: 3000}
}

func (r RatingRules) loss(byResign bool) int {
	if byResign && r.ResignPenalty > 0 {
		return r.ResignPenalty
	}
	return r.Increment
}

// Change is the adjustment handed to the reconciler; the store clamps each
// side on its own.
func (r RatingRules) Change(winnerID, loserID string, byResign bool) *store.RatingChange {
	return &store.RatingChange{
		WinnerID: winnerID,
		LoserID:  loserID,
		Gain:     r.Increment,
		Loss:     r.loss(byResign),
		Min:      r.Min,
		Max:      r.Max,
	}
}
