package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"tabkeep/models"
	"tabkeep/pkg/logger"
)

const (
	anthropicVersion      = "2023-06-01"
	anthropicThinkingBeta = "interleaved-thinking-2025-05-14"

	extendedMaxTokens = 16000
	standardMaxTokens = 8192
)

// ClaudeProvider streams completions from the Anthropic Messages API.
type ClaudeProvider struct {
	cfg *models.Config
	log *logger.Logger
}

// NewClaudeProvider creates a Claude adapter bound to the given config.
func NewClaudeProvider(cfg *models.Config) *ClaudeProvider {
	return &ClaudeProvider{
		cfg: cfg,
		log: logger.GetLogger("claude"),
	}
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicImageBlock struct {
	Type   string               `json:"type"`
	Source anthropicImageSource `json:"source"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicStreamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type string `json:"type"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var dataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// buildMessages assembles the Messages API payload from history plus the
// current turn. Images attach to the final user turn as base64 blocks,
// capped at four per request.
func buildClaudeMessages(req StreamRequest) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	if len(req.Images) == 0 {
		return append(messages, anthropicMessage{Role: "user", Content: req.Message})
	}

	images := req.Images
	if len(images) > models.MaxImagesPerChat {
		images = images[:models.MaxImagesPerChat]
	}

	content := make([]interface{}, 0, len(images)+1)
	for _, imageData := range images {
		mediaType := "image/jpeg"
		base64Data := imageData
		if strings.HasPrefix(imageData, "data:") {
			if match := dataURIPattern.FindStringSubmatch(imageData); match != nil {
				mediaType = match[1]
				base64Data = match[2]
			}
		}
		content = append(content, anthropicImageBlock{
			Type: "image",
			Source: anthropicImageSource{
				Type:      "base64",
				MediaType: mediaType,
				Data:      base64Data,
			},
		})
	}
	content = append(content, anthropicTextBlock{Type: "text", Text: req.Message})

	return append(messages, anthropicMessage{Role: "user", Content: content})
}

// open sends one Messages API request and returns the streaming response
// body. Non-2xx responses are drained and returned as errors.
func (p *ClaudeProvider) open(ctx context.Context, body anthropicRequest, extended bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.cfg.AnthropicBaseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.AnthropicKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if extended {
		httpReq.Header.Set("anthropic-beta", anthropicThinkingBeta)
	}

	resp, err := getStreamClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errorText)))
	}

	return resp, nil
}

// Stream opens a Messages API stream and relays it through emit.
//
// When extended thinking is requested the adapter tries the thinking model
// first and silently retries on the standard model if the provider rejects
// the opening request. Only when both variants fail to open does Stream
// return an error.
func (p *ClaudeProvider) Stream(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
	messages := buildClaudeMessages(req)

	var resp *http.Response
	extended := req.Extended

	if extended {
		r, err := p.open(ctx, anthropicRequest{
			Model:     p.cfg.ClaudeThinkingModel,
			MaxTokens: extendedMaxTokens,
			Thinking: &anthropicThinking{
				Type:         "enabled",
				BudgetTokens: models.ThinkingBudget,
			},
			System:   req.SystemPrompt,
			Messages: messages,
			Stream:   true,
		}, true)
		if err != nil {
			p.log.Warn("Extended thinking failed, retrying standard variant: " + err.Error())
			extended = false
		} else {
			resp = r
		}
	}

	if resp == nil {
		r, err := p.open(ctx, anthropicRequest{
			Model:     p.cfg.ClaudeStandardModel,
			MaxTokens: standardMaxTokens,
			System:    req.SystemPrompt,
			Messages:  messages,
			Stream:    true,
		}, false)
		if err != nil {
			return err
		}
		resp = r
	}
	defer resp.Body.Close()

	if extended {
		if err := emit(Delta{Type: DeltaThinkingStart}); err != nil {
			return err
		}
	}

	return p.relay(ctx, resp.Body, emit)
}

// relay parses the SSE stream and forwards normalized deltas.
func (p *ClaudeProvider) relay(ctx context.Context, body io.Reader, emit func(Delta) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := line[6:]
		if data == "[DONE]" {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "thinking" {
				if err := emit(Delta{Type: DeltaThinkingStart}); err != nil {
					return err
				}
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				if err := emit(Delta{Type: DeltaText, Text: event.Delta.Text}); err != nil {
					return err
				}
			}
		case "error":
			message := "Stream error"
			if event.Error != nil && event.Error.Message != "" {
				message = event.Error.Message
			}
			p.log.Warn("Provider stream error: " + message)
			if err := emit(Delta{Type: DeltaError, Message: message}); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}

	return nil
}
