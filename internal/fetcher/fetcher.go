// Package fetcher pulls raw airdrop candidates from the quest catalog.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/model"
	"github.com/zkdrop/dropbot/internal/resilience"
)

// Source yields raw candidates for one discovery pass.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]model.RawCandidate, error)
}

// userAgents is rotated per request so the catalog sees browser-like
// traffic rather than one fixed client string.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// Catalog fetches communities from the quest catalog's public API.
// Safe for concurrent use.
type Catalog struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	nextUA  atomic.Int64
}

// NewCatalog builds a Catalog from config.
func NewCatalog(cfg config.SourceConfig) *Catalog {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Catalog{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

type communityPage struct {
	Communities []struct {
		Name        string `json:"name"`
		Subdomain   string `json:"subdomain"`
		Description string `json:"description"`
		Twitter     string `json:"twitter"`
		TotalXP     *int   `json:"totalXp"`
	} `json:"communities"`
}

// Fetch returns up to limit fresh candidates from the catalog, newest first.
func (c *Catalog) Fetch(ctx context.Context, limit int) ([]model.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate wait")
	}

	reqURL := fmt.Sprintf("%s/api/communities?limit=%d&sortBy=newest", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", userAgents[int(c.nextUA.Add(1)-1)%len(userAgents)])
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return nil, resilience.NewPermanentError(eris.Errorf("fetcher: catalog status %d", resp.StatusCode))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("fetcher: catalog status %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("fetcher: catalog status %d", resp.StatusCode)
	}

	var page communityPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "fetcher: decode catalog page")
	}

	out := make([]model.RawCandidate, 0, len(page.Communities))
	for _, com := range page.Communities {
		if com.Subdomain == "" {
			continue
		}
		raw := model.RawCandidate{
			Title:        com.Name,
			Link:         fmt.Sprintf("%s/c/%s", c.baseURL, com.Subdomain),
			Description:  com.Description,
			SocialHandle: com.Twitter,
		}
		if com.TotalXP != nil {
			xp := float64(*com.TotalXP)
			raw.RewardXP = &xp
		}
		out = append(out, raw)
	}
	return out, nil
}
