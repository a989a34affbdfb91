// Package buzz estimates social attention for a candidate from public
// tweet metrics.
package buzz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/resilience"
)

// Level buckets the raw engagement count for display.
type Level string

const (
	LevelViral    Level = "Viral"
	LevelTrending Level = "Trending"
	LevelActive   Level = "Active"
	LevelLow      Level = "Low Buzz"
)

// Rating is the result of one buzz lookup.
type Rating struct {
	// Score is normalized to 0-100 for ranking (nil when unavailable).
	Score *float64
	// Raw is likes + 2*retweets + replies.
	Raw   int
	Level Level
}

// Rater fetches public metrics for a tweet referenced by a candidate's
// social handle.
type Rater struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewRater creates a Rater from config.
func NewRater(cfg config.BuzzConfig) *Rater {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Rater{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.BearerToken,
	}
}

type metricsResponse struct {
	Data struct {
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// Rate looks up engagement for the tweet URL or handle. Returns an error on
// any failure; callers treat that as "no buzz signal" (neutral at ranking),
// never as fatal.
func (r *Rater) Rate(ctx context.Context, tweetURL string) (*Rating, error) {
	if r.token == "" {
		return nil, eris.New("buzz: bearer token not configured")
	}

	id := extractTweetID(tweetURL)
	if id == "" {
		return nil, eris.Errorf("buzz: no tweet id in %q", tweetURL)
	}

	url := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", r.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "buzz: build request")
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "buzz: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("buzz: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, eris.Wrap(err, "buzz: read body")
	}

	var mr metricsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, eris.Wrap(err, "buzz: decode")
	}

	m := mr.Data.PublicMetrics
	raw := m.LikeCount + 2*m.RetweetCount + m.ReplyCount
	score := float64(raw) / 20.0 // 2000 engagements = full score
	if score > 100 {
		score = 100
	}

	return &Rating{Score: &score, Raw: raw, Level: levelFor(raw)}, nil
}

func levelFor(raw int) Level {
	switch {
	case raw > 2000:
		return LevelViral
	case raw > 500:
		return LevelTrending
	case raw > 100:
		return LevelActive
	default:
		return LevelLow
	}
}

// extractTweetID pulls the numeric status id out of a tweet URL. Accepts a
// bare id too.
func extractTweetID(tweetURL string) string {
	s := strings.TrimSpace(tweetURL)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return s
}
