// Package rank combines trust risk, social buzz, and reward size into a
// single sort/eligibility number.
//
// Polarity: the trust score here is a RISK score, higher means more
// risk-flagged. The formula inverts it so low-risk candidates rank higher.
package rank

import "math"

const (
	// neutralMidpoint substitutes for a missing trust or buzz score.
	neutralMidpoint = 50.0

	trustWeight  = 0.45
	buzzWeight   = 0.35
	rewardWeight = 2.0
)

// Compute returns the composite rank score, rounded to two decimal places.
// A nil trust or buzz score counts as the neutral midpoint; a nil reward
// counts as zero. Reward goes through log1p so whale-sized but unverified
// rewards don't dominate the ranking.
func Compute(trustScore *int, buzzScore *float64, rewardXP *float64) float64 {
	t := neutralMidpoint
	if trustScore != nil {
		t = float64(*trustScore)
	}
	b := neutralMidpoint
	if buzzScore != nil {
		b = *buzzScore
	}
	x := 0.0
	if rewardXP != nil {
		x = *rewardXP
	}

	r := (100.0-t)*trustWeight + b*buzzWeight + math.Log1p(x)*rewardWeight
	return math.Round(r*100) / 100
}

// Eligibility holds the dispatch thresholds.
type Eligibility struct {
	// Floor is the minimum rank for dispatch.
	Floor float64
	// ImmediateMinXP/ImmediateMaxXP bound the reward window that triggers
	// an immediate send regardless of rank (exclusive on both ends).
	ImmediateMinXP float64
	ImmediateMaxXP float64
}

// Immediate reports whether the reward size alone qualifies the candidate
// for an immediate send.
func (e Eligibility) Immediate(rewardXP *float64) bool {
	if rewardXP == nil {
		return false
	}
	return *rewardXP > e.ImmediateMinXP && *rewardXP < e.ImmediateMaxXP
}

// Eligible reports whether a candidate should be handed to the distribution
// engine: either its rank clears the floor or its reward falls in the
// immediate-send window.
func (e Eligibility) Eligible(rankScore float64, rewardXP *float64) bool {
	return rankScore >= e.Floor || e.Immediate(rewardXP)
}
