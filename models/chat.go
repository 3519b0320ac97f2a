package models

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string        `json:"message"`
	History  []ChatMessage `json:"history,omitempty"`
	UserID   string        `json:"userId,omitempty"`
	ChatID   string        `json:"chatId,omitempty"`
	AnchorID string        `json:"anchorId,omitempty"`
	Images   []string      `json:"images,omitempty"` // base64 or data URIs, first 4 used
}

// Response is a single SSE frame. Type is "content", "error" or "done".
type Response struct {
	Type             string `json:"type"`
	Content          string `json:"content,omitempty"`
	Message          string `json:"message,omitempty"`
	IntelligenceCost *int   `json:"intelligenceCost,omitempty"`
	Mode             string `json:"mode,omitempty"`
	HadThinking      *bool  `json:"hadThinking,omitempty"`
	Model            string `json:"model,omitempty"`
}

// ContentFrame builds a content delta frame.
func ContentFrame(text string) Response {
	return Response{Type: "content", Content: text}
}

// ErrorFrame builds a non-fatal error frame.
func ErrorFrame(message string) Response {
	return Response{Type: "error", Message: message}
}

// DoneFrame builds the terminal frame. Emitted exactly once per request.
func DoneFrame(cost int, mode string, hadThinking bool, model string) Response {
	return Response{
		Type:             "done",
		IntelligenceCost: &cost,
		Mode:             mode,
		HadThinking:      &hadThinking,
		Model:            model,
	}
}

// FormatSSEMessage formats the response as an SSE message.
func FormatSSEMessage(response Response) (string, error) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("error marshaling response: %v", err)
	}

	return fmt.Sprintf("data: %s\n\n", jsonData), nil
}

// SanitizeHistory keeps only well-formed {role, content} turns. Roles other
// than "assistant" collapse to "user"; content is capped at maxLen bytes.
func SanitizeHistory(history []ChatMessage, maxLen int) []ChatMessage {
	sanitized := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		content := msg.Content
		if len(content) > maxLen {
			// Back off to a rune boundary so the cap never ships a
			// split multi-byte character.
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		sanitized = append(sanitized, ChatMessage{Role: role, Content: content})
	}
	return sanitized
}
