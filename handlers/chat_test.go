package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tabkeep/aws"
	"tabkeep/config"
	"tabkeep/middleware"
	"tabkeep/models"
	"tabkeep/services"
)

func testChatHandler(run services.RunFunc) *ChatHandler {
	return &ChatHandler{
		Config: &models.Config{
			AnthropicKey:        "sk-ant-test",
			OpenAIKey:           "sk-test",
			ClaudeThinkingModel: "claude-thinking-test",
			ClaudeStandardModel: "claude-standard-test",
			OpenAIModel:         "gpt-test",
		},
		Run: run,
		CheckLimits: func(ctx context.Context, userID string) aws.LimitCheck {
			return aws.LimitCheck{CanProceed: true, Plan: config.PlanFree, SkipTracking: true}
		},
		MemoryContext: func(ctx context.Context, userID, anchorID, plan string) string { return "" },
		UpdateUsage:   func(ctx context.Context, userID string, cost int) {},
	}
}

func echoRun(text string) services.RunFunc {
	return func(ctx context.Context, sel services.ProviderSelection, history []models.ChatMessage, message string, images []string, systemPrompt string, send services.SendFunc) services.StreamResult {
		_ = send(models.ContentFrame(text))
		return services.StreamResult{Text: text, Model: sel.Provider}
	}
}

func postChat(h *ChatHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func parseFrames(t *testing.T, body string) []models.Response {
	t.Helper()
	var frames []models.Response
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("Malformed SSE chunk: %q", chunk)
		}
		var frame models.Response
		if err := json.Unmarshal([]byte(chunk[6:]), &frame); err != nil {
			t.Fatalf("Bad frame JSON %q: %v", chunk, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	h := testChatHandler(echoRun("x"))
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestChatHandler_Options(t *testing.T) {
	h := testChatHandler(echoRun("x"))
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
}

func TestChatHandler_MissingMessage(t *testing.T) {
	h := testChatHandler(echoRun("x"))

	for _, body := range []string{`{}`, `{"message":"   "}`, `{"message":123}`, `not json`} {
		rr := postChat(h, body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for body %q, got %d", body, rr.Code)
		}
	}
}

func TestChatHandler_MessageLengthBoundary(t *testing.T) {
	h := testChatHandler(echoRun("ok"))

	atLimit := strings.Repeat("a", models.MaxMessageLength)
	body, _ := json.Marshal(map[string]string{"message": atLimit})
	rr := postChat(h, string(body))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected message at the limit to pass, got %d", rr.Code)
	}

	overLimit := strings.Repeat("a", models.MaxMessageLength+1)
	body, _ = json.Marshal(map[string]string{"message": overLimit})
	rr = postChat(h, string(body))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 over the limit, got %d", rr.Code)
	}
}

func TestChatHandler_LimitReached(t *testing.T) {
	h := testChatHandler(echoRun("x"))
	h.CheckLimits = func(ctx context.Context, userID string) aws.LimitCheck {
		return aws.LimitCheck{
			CanProceed: false,
			Error:      "limit_reached",
			Message:    "Taking a breather. Resets in 3 hours.",
			ResetAt:    time.Now().Add(3 * time.Hour).Format(time.RFC3339),
			Plan:       config.PlanPro,
		}
	}

	rr := postChat(h, `{"message":"hello","userId":"user-1"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad 429 body: %v", err)
	}
	if resp["error"] != "limit_reached" {
		t.Errorf("Expected limit_reached error, got %v", resp["error"])
	}
	if resp["resetAt"] == "" {
		t.Error("Expected resetAt in 429 body")
	}
}

func TestChatHandler_FastPathSkipsProviders(t *testing.T) {
	runCalled := false
	h := testChatHandler(func(ctx context.Context, sel services.ProviderSelection, history []models.ChatMessage, message string, images []string, systemPrompt string, send services.SendFunc) services.StreamResult {
		runCalled = true
		return services.StreamResult{}
	})

	rr := postChat(h, `{"message":"what day is it?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if runCalled {
		t.Error("Fast path must not call a provider")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected SSE content type, got %q", ct)
	}

	frames := parseFrames(t, rr.Body.String())
	if len(frames) != 2 {
		t.Fatalf("Expected content + done, got %d frames", len(frames))
	}
	if frames[0].Type != "content" || !strings.HasPrefix(frames[0].Content, "Today is ") {
		t.Errorf("Unexpected content frame: %+v", frames[0])
	}
	done := frames[1]
	if done.Type != "done" || done.Mode != services.ModeSimple {
		t.Errorf("Unexpected done frame: %+v", done)
	}
	if done.IntelligenceCost == nil || *done.IntelligenceCost != 0 {
		t.Errorf("Fast path must cost 0, got %+v", done.IntelligenceCost)
	}
}

func TestChatHandler_StreamEndsWithSingleDone(t *testing.T) {
	h := testChatHandler(echoRun("streamed answer"))

	rr := postChat(h, `{"message":"explain how compilers work"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	frames := parseFrames(t, rr.Body.String())
	doneCount := 0
	for _, frame := range frames {
		if frame.Type == "done" {
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Fatalf("Expected exactly one done frame, got %d", doneCount)
	}

	last := frames[len(frames)-1]
	if last.Type != "done" {
		t.Errorf("Done frame must be terminal, got %+v", last)
	}
	if last.IntelligenceCost == nil || *last.IntelligenceCost < 1 {
		t.Errorf("Expected positive cost, got %+v", last.IntelligenceCost)
	}
	if last.Model != services.ProviderClaude {
		t.Errorf("Expected claude model in done frame, got %q", last.Model)
	}
}

func TestChatHandler_UsageRecordedAsync(t *testing.T) {
	recorded := make(chan int, 1)
	h := testChatHandler(echoRun("answer"))
	h.CheckLimits = func(ctx context.Context, userID string) aws.LimitCheck {
		return aws.LimitCheck{CanProceed: true, Plan: config.PlanFree, Used: 10, Limit: 100}
	}
	h.UpdateUsage = func(ctx context.Context, userID string, cost int) {
		recorded <- cost
	}

	rr := postChat(h, `{"message":"hello there","userId":"user-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	select {
	case cost := <-recorded:
		if cost < 1 {
			t.Errorf("Expected positive cost, got %d", cost)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Usage write never happened")
	}
}

func TestChatHandler_SkipTrackingSkipsUsage(t *testing.T) {
	h := testChatHandler(echoRun("answer"))
	h.UpdateUsage = func(ctx context.Context, userID string, cost int) {
		t.Error("Usage must not be recorded when tracking is skipped")
	}

	rr := postChat(h, `{"message":"hello there","userId":"user-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	time.Sleep(50 * time.Millisecond)
}

func TestChatHandler_PanicAfterBytesSentEmitsErrorFrame(t *testing.T) {
	h := testChatHandler(func(ctx context.Context, sel services.ProviderSelection, history []models.ChatMessage, message string, images []string, systemPrompt string, send services.SendFunc) services.StreamResult {
		_ = send(models.ContentFrame("partial "))
		panic("provider state corrupted")
	})

	rr := postChat(h, `{"message":"explain how compilers work"}`)

	frames := parseFrames(t, rr.Body.String())
	if len(frames) != 2 {
		t.Fatalf("Expected content + error frames, got %d: %+v", len(frames), frames)
	}
	if frames[0].Type != "content" || frames[0].Content != "partial " {
		t.Errorf("Unexpected first frame: %+v", frames[0])
	}
	last := frames[1]
	if last.Type != "error" || last.Message != "Stream error" {
		t.Errorf("Expected terminal error frame after in-stream panic, got %+v", last)
	}
}

func TestChatHandler_PanicBeforeBytesSentIs500(t *testing.T) {
	h := testChatHandler(echoRun("x"))
	h.CheckLimits = func(ctx context.Context, userID string) aws.LimitCheck {
		panic("store client misconfigured")
	}

	rr := postChat(h, `{"message":"hello"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad 500 body: %v", err)
	}
	if resp["type"] != "internal_error" {
		t.Errorf("Expected internal_error type, got %v", resp["type"])
	}
}

func TestChatHandler_AuthenticatedUserOverridesBody(t *testing.T) {
	var checkedUser string
	h := testChatHandler(echoRun("answer"))
	h.CheckLimits = func(ctx context.Context, userID string) aws.LimitCheck {
		checkedUser = userID
		return aws.LimitCheck{CanProceed: true, Plan: config.PlanFree, SkipTracking: true}
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","userId":"spoofed"}`))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDContextKey, "verified-uid"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if checkedUser != "verified-uid" {
		t.Errorf("Expected verified UID to win, got %q", checkedUser)
	}
}
