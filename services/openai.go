package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tabkeep/models"
	"tabkeep/pkg/logger"
)

// OpenAIProvider streams completions from the OpenAI Responses API with the
// web search tool enabled.
type OpenAIProvider struct {
	cfg *models.Config
	log *logger.Logger
}

// NewOpenAIProvider creates an OpenAI adapter bound to the given config.
func NewOpenAIProvider(cfg *models.Config) *OpenAIProvider {
	return &OpenAIProvider{
		cfg: cfg,
		log: logger.GetLogger("openai"),
	}
}

type openaiInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiTool struct {
	Type string `json:"type"`
}

type openaiRequest struct {
	Model        string               `json:"model"`
	Instructions string               `json:"instructions"`
	Input        []openaiInputMessage `json:"input"`
	Tools        []openaiTool         `json:"tools"`
	Stream       bool                 `json:"stream"`
}

type openaiStreamEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream opens a Responses API stream and relays output text deltas through
// emit. The system prompt travels as instructions; images are not supported
// on this path.
func (p *OpenAIProvider) Stream(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
	input := make([]openaiInputMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		input = append(input, openaiInputMessage{Role: m.Role, Content: m.Content})
	}
	input = append(input, openaiInputMessage{Role: "user", Content: req.Message})

	payload, err := json.Marshal(openaiRequest{
		Model:        p.cfg.OpenAIModel,
		Instructions: req.SystemPrompt,
		Input:        input,
		Tools:        []openaiTool{{Type: "web_search_preview"}},
		Stream:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.cfg.OpenAIBaseURL + "/v1/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.OpenAIKey)

	resp, err := getStreamClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errorText)))
	}

	scanner := bufio.NewScanner(resp.Body)
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

		var event openaiStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" {
				if err := emit(Delta{Type: DeltaText, Text: event.Delta}); err != nil {
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
