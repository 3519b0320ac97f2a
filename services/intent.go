package services

import (
	"regexp"
	"strings"

	"tabkeep/models"
)

// Chat modes. The mode picks the system prompt flavor and how much history
// travels with the request.
const (
	ModeSimple = "simple"
	ModeSearch = "search"
	ModeChat   = "chat"
	ModeDeep   = "deep"
)

// Intent is the classification of a single user message.
type Intent struct {
	Mode       string
	IsSearch   bool
	UseHistory bool
}

var (
	deepPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)explain in detail`),
		regexp.MustCompile(`(?i)comprehensive`),
		regexp.MustCompile(`(?i)thorough analysis`),
		regexp.MustCompile(`(?i)tell me everything`),
		regexp.MustCompile(`(?i)deep dive`),
	}

	buildPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(copy|clone|replicate|recreate|build|make|create)`),
		regexp.MustCompile(`(?i)like\s+\w+\.(com|io|app|net|org)`),
		regexp.MustCompile(`(?i)\.(com|io|app|net|org)`),
	}

	chatPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(yes|no|yeah|nope|ok|okay|sure)`),
		regexp.MustCompile(`(?i)^(and|but|also|what about)`),
		regexp.MustCompile(`(?i)^(can you|could you|please)`),
		regexp.MustCompile(`(?i)^(more|another|different)`),
		regexp.MustCompile(`(?i)you (said|mentioned|told)`),
		regexp.MustCompile(`(?i)earlier`),
		regexp.MustCompile(`(?i)^that`),
	}

	simpleDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^what('s|s| is) today\??$`),
		regexp.MustCompile(`(?i)^what('s|s| is) the date\??$`),
		regexp.MustCompile(`(?i)^what day is it\??$`),
		regexp.MustCompile(`(?i)^today('s|s)? date\??$`),
		regexp.MustCompile(`(?i)^date\??$`),
		regexp.MustCompile(`(?i)^current date\??$`),
	}
)

func matchesAny(patterns []*regexp.Regexp, msg string) bool {
	for _, p := range patterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// DetectIntent classifies a message into a chat mode. Classification is
// deterministic and depends only on the message text and history length.
//
// Deep-analysis phrasing wins over everything. Build/clone requests always
// restart context. First messages in a conversation default to search;
// followups stay in chat mode.
func DetectIntent(message string, historyLength int) Intent {
	msg := strings.ToLower(strings.TrimSpace(message))

	if matchesAny(deepPatterns, msg) {
		return Intent{Mode: ModeDeep, IsSearch: false, UseHistory: true}
	}

	if matchesAny(buildPatterns, msg) {
		return Intent{Mode: ModeSearch, IsSearch: true, UseHistory: false}
	}

	if historyLength > 0 && matchesAny(chatPatterns, msg) {
		return Intent{Mode: ModeChat, IsSearch: false, UseHistory: true}
	}

	if historyLength == 0 {
		return Intent{Mode: ModeSearch, IsSearch: true, UseHistory: false}
	}

	return Intent{Mode: ModeChat, IsSearch: false, UseHistory: true}
}

// TryFastPath answers trivially-computable queries without a provider call.
// Returns the full response text, or "" when no fast path applies.
func TryFastPath(message string) string {
	msg := strings.ToLower(strings.TrimSpace(message))
	if matchesAny(simpleDatePatterns, msg) {
		return SimpleDateResponse()
	}
	return ""
}

// SimpleDateResponse renders today's date as a complete answer.
func SimpleDateResponse() string {
	return "Today is " + models.CurrentDateString() + "."
}
