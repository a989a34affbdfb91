// Package compose renders candidate data into Telegram Markdown messages.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/zkdrop/dropbot/internal/buzz"
	"github.com/zkdrop/dropbot/internal/model"
)

// Alert renders the public broadcast message for one candidate.
func Alert(c *model.Candidate, rating *buzz.Rating) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚀 *New Airdrop Spotted*\n\n")
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(c.Title))
	if c.Description != "" {
		fmt.Fprintf(&b, "%s\n", escapeMarkdown(truncate(c.Description, 280)))
	}
	b.WriteString("\n")

	if c.RewardXP != nil {
		fmt.Fprintf(&b, "💰 Reward: %.0f XP\n", *c.RewardXP)
	}
	if c.TrustScore != nil {
		fmt.Fprintf(&b, "🛡 Risk: %d/100 (%s)\n", *c.TrustScore, c.Verdict)
	}
	if rating != nil {
		fmt.Fprintf(&b, "🔥 Buzz: %s (%d engagements)\n", rating.Level, rating.Raw)
	}
	fmt.Fprintf(&b, "⭐ Rank: %.2f\n\n", c.RankScore)
	fmt.Fprintf(&b, "🔗 %s", c.Link)

	return b.String()
}

// AdminReport renders the per-cycle operations summary sent to the admin chat.
func AdminReport(stats CycleSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 *Cycle Report* (%s)\n\n", stats.Kind)
	fmt.Fprintf(&b, "Fetched: %d\n", stats.Fetched)
	fmt.Fprintf(&b, "Skipped (dup/cooldown): %d\n", stats.Skipped)
	fmt.Fprintf(&b, "Flagged (scam/suspicious): %d\n", stats.Flagged)
	fmt.Fprintf(&b, "Dispatched: %d\n", stats.Dispatched)
	if stats.Errors > 0 {
		fmt.Fprintf(&b, "⚠️ Errors: %d\n", stats.Errors)
	}
	fmt.Fprintf(&b, "\nTook %s", stats.Elapsed.Round(time.Millisecond))

	return b.String()
}

// CycleSummary is the slice of cycle stats the admin report needs.
type CycleSummary struct {
	Kind       string
	Fetched    int
	Skipped    int
	Flagged    int
	Dispatched int
	Errors     int
	Elapsed    time.Duration
}

// Digest renders the daily trending leaderboard.
func Digest(top []model.Candidate) string {
	if len(top) == 0 {
		return "📅 *Daily Digest*\n\nNothing trending in the last 24h. Quiet day."
	}

	var b strings.Builder
	b.WriteString("📅 *Daily Digest — Top Drops*\n\n")
	for i, c := range top {
		fmt.Fprintf(&b, "%d. *%s* — rank %.2f\n", i+1, escapeMarkdown(c.Title), c.RankScore)
		fmt.Fprintf(&b, "   %s\n", c.Link)
	}
	return b.String()
}

// escapeMarkdown escapes the characters Telegram's legacy Markdown parser
// treats as formatting. Links are passed through untouched.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
