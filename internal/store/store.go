// Package store persists candidates, the send log, recipients, the trust
// score cache, and moderation records. It is a pure store: business rules
// (dedup decisions, eligibility) live in the pipeline packages.
package store

import (
	"context"
	"time"

	"github.com/zkdrop/dropbot/internal/model"
)

// Store defines the persistence interface consumed by the pipeline.
type Store interface {
	// Candidates
	CandidateExists(ctx context.Context, link string) (bool, error)
	InsertCandidate(ctx context.Context, c *model.Candidate) error
	MarkCandidateNotified(ctx context.Context, link string) error
	TopCandidates(ctx context.Context, since time.Time, limit int) ([]model.Candidate, error)
	UnnotifiedCandidates(ctx context.Context, limit int) ([]model.Candidate, error)

	// Send log
	WasNotifiedRecently(ctx context.Context, link string, window time.Duration) (bool, error)
	LogNotified(ctx context.Context, link string) error
	SendHistory(ctx context.Context, link string, limit int) ([]model.SendRecord, error)

	// Recipients
	AddRecipient(ctx context.Context, chatID int64, username string) error
	ListActiveRecipients(ctx context.Context) ([]int64, error)
	RecipientCount(ctx context.Context) (int, error)
	BanRecipient(ctx context.Context, chatID int64) error
	MarkRecipientUnreachable(ctx context.Context, chatID int64) error

	// Trust score cache
	GetTrustCache(ctx context.Context, link, contract string) (*model.TrustResult, error)
	PutTrustCache(ctx context.Context, link, contract string, res model.TrustResult) error

	// Moderation
	CreateTicket(ctx context.Context, t *model.SupportTicket) error
	ListOpenTickets(ctx context.Context) ([]model.SupportTicket, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
