package services

import (
	"context"
	"strings"

	"tabkeep/models"
	"tabkeep/pkg/logger"
)

// serviceUnavailableMessage is the terminal error sent when every provider
// attempt failed without producing content.
const serviceUnavailableMessage = "AI service temporarily unavailable. Please try again."

// SendFunc writes one frame to the client. A non-nil error means the client
// is gone and streaming must stop.
type SendFunc func(models.Response) error

// RunFunc is the orchestrator entry point, kept as a type so handlers can
// substitute it in tests.
type RunFunc func(ctx context.Context, sel ProviderSelection, history []models.ChatMessage, message string, images []string, systemPrompt string, send SendFunc) StreamResult

// StreamResult summarizes a finished (or abandoned) provider run.
type StreamResult struct {
	Text        string
	HadThinking bool
	Model       string
}

// Orchestrator runs the provider fallback chain for one request. Exactly one
// goroutine writes to the client; provider switches only ever happen before
// the first content byte has been relayed.
type Orchestrator struct {
	cfg    *models.Config
	claude StreamFunc
	openai StreamFunc
	log    *logger.Logger
}

// NewOrchestrator wires the orchestrator to the real provider adapters.
func NewOrchestrator(cfg *models.Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		claude: NewClaudeProvider(cfg).Stream,
		openai: NewOpenAIProvider(cfg).Stream,
		log:    logger.GetLogger("orchestrator"),
	}
}

// streamState tracks what has crossed the wire so far. Once accumulated text
// is non-empty the provider decision is committed for good.
type streamState struct {
	text        strings.Builder
	hadThinking bool
	model       string
}

// Run executes the selected provider and, when allowed, the fallback chain:
//
//   - Claude selected, fails before any content: retry once on OpenAI.
//   - OpenAI selected, fails before any content: retry once on standard
//     Claude without extended thinking.
//   - Any failure after content has been relayed: report an error frame and
//     stop. The partial response stands; no second provider ever continues
//     someone else's answer.
//
// Run never writes the done frame; that stays with the caller so there is
// exactly one per request.
func (o *Orchestrator) Run(ctx context.Context, sel ProviderSelection, history []models.ChatMessage, message string, images []string, systemPrompt string, send SendFunc) StreamResult {
	state := streamState{model: sel.Provider}

	emit := func(d Delta) error {
		switch d.Type {
		case DeltaText:
			state.text.WriteString(d.Text)
			return send(models.ContentFrame(d.Text))
		case DeltaThinkingStart:
			state.hadThinking = true
			return nil
		case DeltaError:
			return send(models.ErrorFrame(d.Message))
		}
		return nil
	}

	claudeFailed := false
	openaiFailed := false

	if sel.Provider == ProviderClaude {
		err := o.claude(ctx, StreamRequest{
			History:      history,
			Message:      message,
			Images:       images,
			SystemPrompt: systemPrompt,
			Extended:     sel.UseExtendedThinking,
		}, emit)
		if err != nil {
			if state.text.Len() == 0 {
				o.log.Warn("Claude failed before content, will try OpenAI: " + err.Error())
				claudeFailed = true
				state.hadThinking = false
			} else {
				o.log.Error("Claude stream died mid-response", err)
				_ = send(models.ErrorFrame(serviceUnavailableMessage))
				return state.result()
			}
		}
	}

	if (sel.Provider == ProviderOpenAI || claudeFailed) && o.cfg.HasOpenAI() {
		state.model = ProviderOpenAI
		err := o.openai(ctx, StreamRequest{
			History:      history,
			Message:      message,
			SystemPrompt: systemPrompt,
		}, emit)
		if err != nil {
			if state.text.Len() == 0 {
				o.log.Warn("OpenAI failed before content: " + err.Error())
				openaiFailed = true
				state.model = sel.Provider
			} else {
				o.log.Error("OpenAI stream died mid-response", err)
				_ = send(models.ErrorFrame(serviceUnavailableMessage))
				return state.result()
			}
		}
	}

	// OpenAI was the first choice and produced nothing; standard Claude
	// gets one shot. Requests that already burned a Claude attempt skip
	// this.
	if openaiFailed && !claudeFailed && sel.Provider == ProviderOpenAI && o.cfg.HasAnthropic() {
		o.log.Warn("OpenAI failed, falling back to Claude")
		state.model = ProviderClaude
		err := o.claude(ctx, StreamRequest{
			History:      history,
			Message:      message,
			SystemPrompt: systemPrompt,
		}, emit)
		if err != nil {
			o.log.Error("Claude fallback also failed", err)
			_ = send(models.ErrorFrame(serviceUnavailableMessage))
		}
		return state.result()
	}

	if (claudeFailed || openaiFailed) && state.text.Len() == 0 {
		_ = send(models.ErrorFrame(serviceUnavailableMessage))
	}

	return state.result()
}

func (s *streamState) result() StreamResult {
	return StreamResult{
		Text:        s.text.String(),
		HadThinking: s.hadThinking,
		Model:       s.model,
	}
}
