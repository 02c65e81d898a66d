// Package rating converts a completed doubles match into symmetric points deltas.
//
// The formula is a base award scaled by how decisive the score was and by how
// surprising the result was given the two team ratings. Pre-formed duos win a
// little less, and matches with a provisional player swing harder so new players
// converge to their level quickly.
package rating

import (
	"math"

	"github.com/match-lifecycle/internal/domain"
)

// Tunable constants of the points formula.
const (
	BasePoints        = 25.0
	LoserShare        = 0.6
	DuoWinnerDiscount = 0.85

	MarginPivot        = 4
	MarginStep         = 0.05
	MinScoreMultiplier = 0.7
	MaxScoreMultiplier = 1.5

	RatingScale         = 400.0
	RatingWeight        = 0.3
	MinRatingMultiplier = 0.6
	MaxRatingMultiplier = 1.6

	MinWinnerPoints            = 10
	MaxWinnerPoints            = 50
	MaxWinnerPointsProvisional = 80
	MinLoserPoints             = 5
	MaxLoserPoints             = 35
	MaxLoserPointsProvisional  = 60
)

// Input describes one completed match from the winner's point of view
type Input struct {
	WinnerAverage       float64
	LoserAverage        float64
	Sets                []domain.SetScore
	WinnerTeam          domain.TeamID
	WinnerWasDuo        bool
	ProvisionalInvolved bool
}

// Result carries the applied deltas and the factors that produced them
type Result struct {
	Margin           int     `json:"margin"`
	ScoreMultiplier  float64 `json:"score_multiplier"`
	RatingMultiplier float64 `json:"rating_multiplier"`
	ProvisionalBonus float64 `json:"provisional_bonus"`
	WinnerDelta      int     `json:"winner_delta"`
	LoserDelta       int     `json:"loser_delta"`
}

// Margin returns the winner's total games minus the loser's across all sets
func Margin(sets []domain.SetScore, winner domain.TeamID) int {
	a, b := 0, 0
	for _, s := range sets {
		a += s.A
		b += s.B
	}
	if winner == domain.TeamB {
		return b - a
	}
	return a - b
}

// ScoreMultiplier scales the award by how decisive the win was
func ScoreMultiplier(margin int) float64 {
	return clamp(1+float64(margin-MarginPivot)*MarginStep, MinScoreMultiplier, MaxScoreMultiplier)
}

// RatingMultiplier scales the award by the rating gap. An upset (weaker team
// winning) yields a multiplier above one for both sides.
func RatingMultiplier(winnerAverage, loserAverage float64) float64 {
	return clamp(1+((loserAverage-winnerAverage)/RatingScale)*RatingWeight, MinRatingMultiplier, MaxRatingMultiplier)
}

// ProvisionalBonus is the swing amplifier applied when a provisional player took part
func ProvisionalBonus(margin int) float64 {
	switch {
	case margin >= 7:
		return 1.8
	case margin >= 4:
		return 1.5
	default:
		return 1.3
	}
}

// Calculate computes the points deltas. WinnerDelta is always positive and LoserDelta always negative.
func Calculate(in Input) Result {
	margin := Margin(in.Sets, in.WinnerTeam)
	sm := ScoreMultiplier(margin)
	rm := RatingMultiplier(in.WinnerAverage, in.LoserAverage)

	winner := BasePoints * sm * rm
	if in.WinnerWasDuo {
		winner *= DuoWinnerDiscount
	}
	loser := BasePoints * LoserShare * sm * rm

	bonus := 1.0
	maxWinner, maxLoser := MaxWinnerPoints, MaxLoserPoints
	if in.ProvisionalInvolved {
		bonus = ProvisionalBonus(margin)
		winner *= bonus
		loser *= bonus
		maxWinner, maxLoser = MaxWinnerPointsProvisional, MaxLoserPointsProvisional
	}

	return Result{
		Margin:           margin,
		ScoreMultiplier:  sm,
		RatingMultiplier: rm,
		ProvisionalBonus: bonus,
		WinnerDelta:      clampInt(int(math.Round(winner)), MinWinnerPoints, maxWinner),
		LoserDelta:       -clampInt(int(math.Round(loser)), MinLoserPoints, maxLoser),
	}
}

// Apply adds a delta to a rating, never going below zero
func Apply(rating, delta int) int {
	return max(rating+delta, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
