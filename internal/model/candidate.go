// Package model defines the records shared across the discovery pipeline.
package model

import "time"

// Verdict classifies a candidate's scam risk.
type Verdict string

const (
	VerdictClean      Verdict = "clean"
	VerdictSuspicious Verdict = "suspicious"
	VerdictScam       Verdict = "scam"
	VerdictUnknown    Verdict = "unknown"
)

// RawCandidate is what the source fetcher yields before any vetting.
// Link is the only mandatory identity; everything else is best-effort.
type RawCandidate struct {
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Description  string   `json:"description,omitempty"`
	SocialHandle string   `json:"social_handle,omitempty"`
	Contract     string   `json:"contract,omitempty"`
	RewardXP     *float64 `json:"reward_xp,omitempty"`
}

// Candidate is a vetted, scored opportunity. Link is globally unique:
// a candidate is never re-created for the same link.
type Candidate struct {
	Link         string    `json:"link"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	SocialHandle string    `json:"social_handle,omitempty"`
	RewardXP     *float64  `json:"reward_xp,omitempty"`
	TrustScore   *int      `json:"trust_score,omitempty"`
	Verdict      Verdict   `json:"verdict"`
	RankScore    float64   `json:"rank_score"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Notified     bool      `json:"notified"`
}

// SendRecord is the audit entry for one delivery round of a candidate.
type SendRecord struct {
	ID     string    `json:"id"`
	Link   string    `json:"link"`
	SentAt time.Time `json:"sent_at"`
}

// TrustResult is a cached trust-scorer outcome keyed by (link, contract).
type TrustResult struct {
	Score     *int      `json:"score,omitempty"`
	Verdict   Verdict   `json:"verdict"`
	CheckedAt time.Time `json:"checked_at"`
}
