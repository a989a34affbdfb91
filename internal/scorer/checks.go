package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/zkdrop/dropbot/internal/resilience"
)

// Per-check penalties. Each check contributes a bounded amount; the total
// is clamped in Score.
const (
	penaltyThreatMatch     = 30 // threat lookup positive match
	penaltyPhishingPattern = 20 // offline phishing-pattern fallback hit
	penaltyYoungDomain     = 20 // domain registered < 30 days ago
	penaltyDomainUnknown   = 10 // WHOIS gave no creation date, or check failed
	penaltyUnverifiedCode  = 15 // contract source not verified
	penaltyYoungContract   = 10 // contract deployed < 30 days ago
	penaltyContractFailed  = 10 // contract check failed entirely

	youngAge = 30 * 24 * time.Hour
)

// checkOutcome is one signal's contribution to the trust score.
type checkOutcome struct {
	penalty  int
	degraded bool
}

// checkThreat queries the Safe Browsing style threat API for the link.
// On lookup failure it falls back to an offline phishing-pattern match
// instead of failing the whole score.
func (s *Scorer) checkThreat(ctx context.Context, link string) checkOutcome {
	matched, err := resilience.DoVal(ctx, resilience.SignalRetryConfig(), func(ctx context.Context) (bool, error) {
		return s.queryThreatAPI(ctx, link)
	})
	if err != nil {
		if phishingURLPattern.MatchString(strings.ToLower(link)) {
			return checkOutcome{penalty: penaltyPhishingPattern, degraded: true}
		}
		return checkOutcome{degraded: true}
	}
	if matched {
		return checkOutcome{penalty: penaltyThreatMatch}
	}
	return checkOutcome{}
}

func (s *Scorer) queryThreatAPI(ctx context.Context, link string) (bool, error) {
	payload := map[string]any{
		"client": map[string]string{"clientId": "dropbot", "clientVersion": "1.0"},
		"threatInfo": map[string]any{
			"threatTypes":      []string{"MALWARE", "SOCIAL_ENGINEERING"},
			"platformTypes":    []string{"ANY_PLATFORM"},
			"threatEntryTypes": []string{"URL"},
			"threatEntries":    []map[string]string{{"url": link}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, eris.Wrap(err, "scorer: marshal threat request")
	}

	reqURL := s.cfg.SafeBrowsingURL + "?key=" + url.QueryEscape(s.cfg.SafeBrowsingKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return false, eris.Wrap(err, "scorer: build threat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "scorer: threat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("scorer: threat api status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return false, resilience.NewTransientError(err, resp.StatusCode)
		}
		return false, err
	}

	var result struct {
		Matches []json.RawMessage `json:"matches"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(&result); err != nil {
		return false, eris.Wrap(err, "scorer: decode threat response")
	}
	return len(result.Matches) > 0, nil
}

// checkDomainAge penalizes freshly-registered domains. Scam campaigns spin
// up throwaway domains days before the "airdrop" goes live.
func (s *Scorer) checkDomainAge(ctx context.Context, link string) checkOutcome {
	domain := domainOf(link)
	if domain == "" {
		return checkOutcome{penalty: penaltyDomainUnknown, degraded: true}
	}

	created, err := resilience.DoVal(ctx, resilience.SignalRetryConfig(), func(ctx context.Context) (time.Time, error) {
		return s.queryWhois(ctx, domain)
	})
	if err != nil {
		return checkOutcome{penalty: penaltyDomainUnknown, degraded: true}
	}
	if created.IsZero() {
		return checkOutcome{penalty: penaltyDomainUnknown}
	}
	if time.Since(created) < youngAge {
		return checkOutcome{penalty: penaltyYoungDomain}
	}
	return checkOutcome{}
}

func (s *Scorer) queryWhois(ctx context.Context, domain string) (time.Time, error) {
	reqURL := fmt.Sprintf("%s?apiKey=%s&domainName=%s&outputFormat=JSON",
		s.cfg.WhoisURL, url.QueryEscape(s.cfg.WhoisKey), url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "scorer: build whois request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "scorer: whois request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("scorer: whois status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return time.Time{}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return time.Time{}, err
	}

	var result struct {
		WhoisRecord struct {
			CreatedDate string `json:"createdDate"`
		} `json:"WhoisRecord"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(&result); err != nil {
		return time.Time{}, eris.Wrap(err, "scorer: decode whois response")
	}

	raw := result.WhoisRecord.CreatedDate
	if raw == "" {
		return time.Time{}, nil
	}
	// Dates come back as RFC3339 or a bare date; keep only the day part.
	if i := strings.IndexByte(raw, 'T'); i > 0 {
		raw = raw[:i]
	}
	created, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "scorer: parse created date %q", raw)
	}
	return created, nil
}

// checkContract inspects a referenced contract: unverified source and very
// recent deployment both add risk.
func (s *Scorer) checkContract(ctx context.Context, contract string) checkOutcome {
	out, err := resilience.DoVal(ctx, resilience.SignalRetryConfig(), func(ctx context.Context) (checkOutcome, error) {
		return s.queryContract(ctx, contract)
	})
	if err != nil {
		return checkOutcome{penalty: penaltyContractFailed, degraded: true}
	}
	return out
}

func (s *Scorer) queryContract(ctx context.Context, contract string) (checkOutcome, error) {
	var out checkOutcome

	verified, err := s.contractSourceVerified(ctx, contract)
	if err != nil {
		return out, err
	}
	if !verified {
		out.penalty += penaltyUnverifiedCode
	}

	deployed, err := s.contractDeployedAt(ctx, contract)
	if err != nil {
		return out, err
	}
	if !deployed.IsZero() && time.Since(deployed) < youngAge {
		out.penalty += penaltyYoungContract
	}

	return out, nil
}

func (s *Scorer) contractSourceVerified(ctx context.Context, contract string) (bool, error) {
	reqURL := fmt.Sprintf("%s?module=contract&action=getsourcecode&address=%s&apikey=%s",
		s.cfg.EtherscanURL, url.QueryEscape(contract), url.QueryEscape(s.cfg.EtherscanKey))

	var result struct {
		Result []struct {
			SourceCode string `json:"SourceCode"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, reqURL, &result); err != nil {
		return false, err
	}
	if len(result.Result) == 0 {
		return false, nil
	}
	return result.Result[0].SourceCode != "", nil
}

func (s *Scorer) contractDeployedAt(ctx context.Context, contract string) (time.Time, error) {
	reqURL := fmt.Sprintf("%s?module=account&action=txlist&address=%s&startblock=0&endblock=99999999&page=1&offset=1&sort=asc&apikey=%s",
		s.cfg.EtherscanURL, url.QueryEscape(contract), url.QueryEscape(s.cfg.EtherscanKey))

	var result struct {
		Result []struct {
			TimeStamp string `json:"timeStamp"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, reqURL, &result); err != nil {
		return time.Time{}, err
	}
	if len(result.Result) == 0 {
		return time.Time{}, nil
	}

	secs, err := strconv.ParseInt(result.Result[0].TimeStamp, 10, 64)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "scorer: parse tx timestamp %q", result.Result[0].TimeStamp)
	}
	return time.Unix(secs, 0), nil
}

func (s *Scorer) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "scorer: build request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "scorer: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("scorer: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(out); err != nil {
		return eris.Wrap(err, "scorer: decode response")
	}
	return nil
}

// domainOf extracts the host from a URL, or "" when unparseable.
func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Host
}
