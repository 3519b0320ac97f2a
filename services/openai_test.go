package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tabkeep/models"
)

func TestOpenAIStream_RelaysOutputTextDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Missing bearer token")
		}
		if r.URL.Path != "/v1/responses" {
			t.Errorf("Expected /v1/responses, got %s", r.URL.Path)
		}

		var req openaiRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("Expected streaming request")
		}
		if len(req.Tools) != 1 || req.Tools[0].Type != "web_search_preview" {
			t.Errorf("Expected web search tool, got %+v", req.Tools)
		}
		if req.Instructions != "system prompt" {
			t.Errorf("Expected system prompt as instructions, got %q", req.Instructions)
		}
		if len(req.Input) != 3 || req.Input[2].Content != "latest news" {
			t.Errorf("Expected history + current turn in input, got %+v", req.Input)
		}

		sseWrite(w,
			`{"type":"response.created"}`,
			`{"type":"response.output_text.delta","delta":"The "}`,
			`{"type":"response.output_text.delta","delta":"news"}`,
			`{"type":"response.completed"}`,
		)
	}))
	defer server.Close()

	cfg := testConfig(false, true)
	cfg.OpenAIBaseURL = server.URL

	var text string
	err := NewOpenAIProvider(cfg).Stream(context.Background(), StreamRequest{
		History: []models.ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		Message:      "latest news",
		SystemPrompt: "system prompt",
	}, func(d Delta) error {
		if d.Type == DeltaText {
			text += d.Text
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if text != "The news" {
		t.Errorf("Expected relayed text, got %q", text)
	}
}

func TestOpenAIStream_ClientDisconnectStopsPulling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", `{"type":"response.output_text.delta","delta":"first"}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := testConfig(false, true)
	cfg.OpenAIBaseURL = server.URL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas := 0
	done := make(chan error, 1)
	go func() {
		done <- NewOpenAIProvider(cfg).Stream(ctx, StreamRequest{Message: "hi"}, func(d Delta) error {
			deltas++
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected an error after the client disconnected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream kept pulling after the client disconnected")
	}

	if deltas != 1 {
		t.Errorf("Expected exactly one delta before disconnect, got %d", deltas)
	}
}

func TestOpenAIStream_FailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig(false, true)
	cfg.OpenAIBaseURL = server.URL

	err := NewOpenAIProvider(cfg).Stream(context.Background(), StreamRequest{Message: "hi"}, func(d Delta) error {
		t.Errorf("Unexpected delta %+v", d)
		return nil
	})
	if err == nil {
		t.Fatal("Expected error on non-2xx response")
	}
}
