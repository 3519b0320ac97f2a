package models

import (
	"fmt"
	"os"
	"time"
)

// Request limits
const (
	MaxMessageLength  = 10000
	MaxHistoryForChat = 20
	MaxImagesPerChat  = 4
)

// ThinkingBudget is the hidden-token budget for Claude extended thinking.
const ThinkingBudget = 10000

// Config holds everything the chat pipeline needs. Built once in main and
// passed by reference into the components that need it.
type Config struct {
	AnthropicKey string
	OpenAIKey    string

	AnthropicBaseURL string
	OpenAIBaseURL    string

	ClaudeThinkingModel string
	ClaudeStandardModel string
	OpenAIModel         string
}

// LoadConfig reads provider settings from the environment. Missing keys are
// not an error here; main decides whether the combination is fatal.
func LoadConfig() *Config {
	cfg := &Config{
		AnthropicKey:        os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		AnthropicBaseURL:    os.Getenv("ANTHROPIC_API_BASE_URL"),
		OpenAIBaseURL:       os.Getenv("OPENAI_API_BASE_URL"),
		ClaudeThinkingModel: os.Getenv("CLAUDE_THINKING_MODEL"),
		ClaudeStandardModel: os.Getenv("CLAUDE_STANDARD_MODEL"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
	}

	if cfg.AnthropicBaseURL == "" {
		cfg.AnthropicBaseURL = "https://api.anthropic.com"
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com"
	}
	if cfg.ClaudeThinkingModel == "" {
		cfg.ClaudeThinkingModel = "claude-sonnet-4-5-20250929"
	}
	if cfg.ClaudeStandardModel == "" {
		cfg.ClaudeStandardModel = "claude-sonnet-4-20250514"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-5-2025-08-07"
	}

	return cfg
}

// HasAnthropic reports whether the Claude credential is configured.
func (c *Config) HasAnthropic() bool { return c.AnthropicKey != "" }

// HasOpenAI reports whether the OpenAI credential is configured.
func (c *Config) HasOpenAI() bool { return c.OpenAIKey != "" }

const baseSystemPrompt = `You are TabKeep, a highly intelligent AI assistant with deep reasoning capabilities.

TODAY'S DATE: %s

CRITICAL: UNDERSTAND USER INTENT
Before responding, deeply analyze what the user ACTUALLY wants:
- "copy time.is" = User wants you to CREATE/CODE a clone of that website, not explain what it does
- "make X like Y" = User wants you to BUILD something similar to Y
- "clone/copy/replicate [website]" = User wants CODE to recreate that site's functionality
- If a user mentions a website/app, they likely want you to BUILD something similar

RESPONSE APPROACH:
1. First, internally reason about what the user truly wants
2. If they're asking about a website/app, assume they want you to CREATE something similar unless they explicitly say otherwise
3. When building/coding, provide complete, working code
4. Be concise but thorough when coding

CODING GUIDELINES (when building):
- Provide complete, runnable code
- Use modern best practices
- Include necessary HTML, CSS, and JavaScript
- Make it functional and visually similar to the reference

GENERAL RULES:
- Be direct and helpful
- Don't over-explain unless asked
- If uncertain about intent, lean toward the more useful interpretation
- Today's date is %s - use this for any time-related queries`

var modeInstructions = map[string]string{
	"search": `

MODE: SEARCH/BUILD
Treat this as a fresh request. If the user mentions a website or app, they likely want you to BUILD something similar.`,

	"chat": `

MODE: CONVERSATION
Continue the conversation naturally. Reference previous context when relevant.`,

	"deep": `

MODE: DEEP ANALYSIS
Provide detailed, comprehensive responses with thorough explanations.`,
}

// BuildSystemPrompt assembles the system prompt for one request. The memory
// context is injected with instructions to apply it silently.
func BuildSystemPrompt(currentDate, mode, memoryContext string) string {
	prompt := fmt.Sprintf(baseSystemPrompt, currentDate, currentDate)

	if instructions, ok := modeInstructions[mode]; ok {
		prompt += instructions
	} else {
		prompt += modeInstructions["search"]
	}

	if memoryContext != "" {
		prompt += fmt.Sprintf(`

USER CONTEXT (apply silently - never mention you have stored memories):
%s

IMPORTANT: Use this context naturally. Address the user by name when appropriate. Adapt your communication style based on their preferences. Reference known facts when relevant. Never reveal that you're reading from stored memories.`, memoryContext)
	}

	return prompt
}

// CurrentDateString formats today's date for prompts and fast-path answers.
func CurrentDateString() string {
	return time.Now().UTC().Format("Monday, January 2, 2006")
}
