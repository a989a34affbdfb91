package scorer

import (
	"regexp"
	"strings"
)

// scamKeywords are phrases that mark a candidate as a scam outright,
// regardless of what the numeric signals say.
var scamKeywords = []string{
	"free money", "double your crypto", "click here", "urgent", "giveaway",
	"send eth", "private key", "seed phrase", "airdrop scam", "verify wallet",
	"connect wallet to claim", "uniswap clone", "1inch fake", "magic airdrop",
}

// scamDomainPatterns match URLs on known-scam domain shapes.
var scamDomainPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:http|https)://(?:www\.)?(scam|fake|airdrop\-claim|wallet\-connect)\.\w+`),
}

// phishingURLPattern is the offline fallback when the threat lookup is
// unavailable: typosquats and drainer keywords seen in the wild.
var phishingURLPattern = regexp.MustCompile(`(metaamask|uniswop|claimnow|walletconnect|drainwallet)`)

// hasScamPattern reports whether the combined candidate text trips the
// keyword or domain veto.
func hasScamPattern(content string) bool {
	text := strings.ToLower(content)

	for _, kw := range scamKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, p := range scamDomainPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
