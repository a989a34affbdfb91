package model

import "time"

// Recipient is a registered chat eligible for broadcasts. Banned and
// unreachable recipients stay in the store (soft delete) but are excluded
// from the active broadcast set.
type Recipient struct {
	ChatID       int64     `json:"chat_id"`
	Username     string    `json:"username,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	Banned       bool      `json:"banned"`
	Unreachable  bool      `json:"unreachable"`
}

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketReplied TicketStatus = "replied"
	TicketClosed  TicketStatus = "closed"
)

// SupportTicket is a moderation record raised from the command layer.
// The pipeline only persists and lists these; handling lives elsewhere.
type SupportTicket struct {
	ID        string       `json:"id"`
	ChatID    int64        `json:"chat_id"`
	Category  string       `json:"category"`
	Body      string       `json:"body"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
