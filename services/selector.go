package services

import (
	"regexp"

	"tabkeep/models"
	"tabkeep/pkg/logger"
)

// Provider names as they appear in done frames and logs.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// ProviderSelection is the routing decision for one request.
type ProviderSelection struct {
	Provider            string
	Model               string
	UseExtendedThinking bool
}

// Queries about current events and live data route to the search-capable
// provider.
var realTimePatterns = []*regexp.Regexp{
	// Current events & news
	regexp.MustCompile(`(?i)\b(latest|current|recent|today'?s?|this week|this month|this year|2024|2025|2026)\b`),
	regexp.MustCompile(`(?i)\b(news|trending|happening|ongoing)\b`),
	// Real-time data queries
	regexp.MustCompile(`(?i)\b(price|stock|weather|score|result|standings|ranking)\b`),
	regexp.MustCompile(`(?i)\b(highest paid|richest|top \d+|best selling|most popular)\b.*\b(right now|currently|today|this year|2024|2025|2026)\b`),
	// Explicit current info requests
	regexp.MustCompile(`(?i)\b(who is|what is|find|search|look up)\b.*\b(now|currently|latest|recent)\b`),
	regexp.MustCompile(`(?i)\bwho (are|is) the (highest|best|top|most|richest)\b`),
	// Sports, entertainment current
	regexp.MustCompile(`(?i)\b(box office|chart|billboard|grammy|oscar|emmy|award)\b.*\b(winner|nominee|2024|2025|2026)\b`),
}

// NeedsRealTimeData reports whether the message asks about current or live
// information.
func NeedsRealTimeData(message string) bool {
	return matchesAny(realTimePatterns, message)
}

// SelectProvider decides which provider handles the request. The decision is
// deterministic for a given message, intent, image set, and configured
// credentials.
//
// Image attachments force Claude regardless of everything else. Real-time
// queries prefer OpenAI for its web search tool. A selection whose provider
// has no configured credentials is downgraded to the other provider.
func SelectProvider(cfg *models.Config, message string, intent Intent, hasImages bool) ProviderSelection {
	log := logger.GetLogger("selector")

	provider := ProviderClaude
	if NeedsRealTimeData(message) {
		provider = ProviderOpenAI
		log.Debug("Query needs real-time data, routing to OpenAI")
	}

	if hasImages {
		provider = ProviderClaude
	}

	if provider == ProviderOpenAI && !cfg.HasOpenAI() {
		provider = ProviderClaude
	}
	if provider == ProviderClaude && !cfg.HasAnthropic() {
		provider = ProviderOpenAI
	}

	sel := ProviderSelection{Provider: provider}
	switch provider {
	case ProviderClaude:
		// Claude requests always try extended thinking first; the
		// adapter retries on the standard variant when the provider
		// rejects it.
		sel.UseExtendedThinking = true
		sel.Model = cfg.ClaudeThinkingModel
	case ProviderOpenAI:
		sel.Model = cfg.OpenAIModel
	}

	return sel
}
