package rendercache

import "regexp"

// FallbackMode is the policy for a dynamic path not yet present in the
// precomputed static-paths set. It may be escalated per request but
// never downgraded.
type FallbackMode int

const (
	// FallbackDisabled 404s unknown paths.
	FallbackDisabled FallbackMode = iota
	// FallbackStatic serves a prerendered skeleton, completed client-side.
	FallbackStatic
	// FallbackBlocking renders synchronously before responding.
	FallbackBlocking
)

func (m FallbackMode) String() string {
	switch m {
	case FallbackStatic:
		return "static"
	case FallbackBlocking:
		return "blocking"
	default:
		return "disabled"
	}
}

// botPattern identifies crawlers by user-agent.
var botPattern = regexp.MustCompile(`(?i)\b(?:googlebot|bingbot|yandex|baiduspider|duckduckbot|slurp|twitterbot|facebookexternalhit|linkedinbot|embedly|quora link preview|pinterest|slackbot|discordbot|whatsapp|telegrambot|applebot|petalbot|semrushbot|ahrefsbot|crawler|spider|bot)\b`)

// IsBot reports whether a user-agent belongs to a crawler.
func IsBot(userAgent string) bool {
	return botPattern.MatchString(userAgent)
}

// effectiveFallback computes the fallback mode for one request.
//
// Escalations: bots never get skeletons (static becomes blocking), and a
// manual revalidation must produce a complete synchronous render whenever
// fallback is enabled or an entry already exists for the key.
func effectiveFallback(decl FallbackDecl, declared bool, req *RenderRequest, hadEntry bool) FallbackMode {
	mode := FallbackDisabled
	switch {
	case !declared:
	case decl.Blocking:
		mode = FallbackBlocking
	case decl.Artifact != "":
		mode = FallbackStatic
	}

	if mode == FallbackStatic && req.Bot {
		mode = FallbackBlocking
	}
	if req.ManualRevalidate && (mode != FallbackDisabled || hadEntry) {
		mode = FallbackBlocking
	}
	return mode
}
