package services

import (
	"context"
	"errors"
	"testing"

	"tabkeep/models"
	"tabkeep/pkg/logger"
)

func newTestOrchestrator(cfg *models.Config, claude, openai StreamFunc) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		claude: claude,
		openai: openai,
		log:    logger.GetLogger("orchestrator-test"),
	}
}

func collectFrames(frames *[]models.Response) SendFunc {
	return func(r models.Response) error {
		*frames = append(*frames, r)
		return nil
	}
}

func textDeltas(texts ...string) StreamFunc {
	return func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
		for _, text := range texts {
			if err := emit(Delta{Type: DeltaText, Text: text}); err != nil {
				return err
			}
		}
		return nil
	}
}

func failBeforeContent(err error) StreamFunc {
	return func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
		return err
	}
}

func claudeSelection() ProviderSelection {
	return ProviderSelection{Provider: ProviderClaude, UseExtendedThinking: true}
}

func openaiSelection() ProviderSelection {
	return ProviderSelection{Provider: ProviderOpenAI}
}

func TestRun_RelaysContentInOrder(t *testing.T) {
	cfg := testConfig(true, true)
	o := newTestOrchestrator(cfg, textDeltas("Hello", ", ", "world"), nil)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if result.Text != "Hello, world" {
		t.Errorf("Expected accumulated text, got %q", result.Text)
	}
	if result.Model != ProviderClaude {
		t.Errorf("Expected claude model, got %q", result.Model)
	}

	want := []string{"Hello", ", ", "world"}
	if len(frames) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(frames))
	}
	for i, frame := range frames {
		if frame.Type != "content" || frame.Content != want[i] {
			t.Errorf("Frame %d: expected content %q, got %+v", i, want[i], frame)
		}
	}
}

func TestRun_ClaudeFailsBeforeContent_FallsBackToOpenAI(t *testing.T) {
	cfg := testConfig(true, true)
	o := newTestOrchestrator(cfg,
		failBeforeContent(errors.New("connection refused")),
		textDeltas("fallback answer"),
	)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if result.Text != "fallback answer" {
		t.Errorf("Expected fallback content, got %q", result.Text)
	}
	if result.Model != ProviderOpenAI {
		t.Errorf("Expected model openai after fallback, got %q", result.Model)
	}
	for _, frame := range frames {
		if frame.Type == "error" {
			t.Errorf("Expected clean fallback with no error frame, got %+v", frame)
		}
	}
	if result.HadThinking {
		t.Error("Expected thinking flag cleared after Claude failure")
	}
}

func TestRun_OpenAIFailsBeforeContent_FallsBackToClaude(t *testing.T) {
	cfg := testConfig(true, true)
	claudeCalls := 0
	o := newTestOrchestrator(cfg,
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			claudeCalls++
			if req.Extended {
				t.Error("Expected fallback Claude call without extended thinking")
			}
			return emit(Delta{Type: DeltaText, Text: "claude fallback"})
		},
		failBeforeContent(errors.New("502 bad gateway")),
	)

	var frames []models.Response
	result := o.Run(context.Background(), openaiSelection(), nil, "latest news", nil, "prompt", collectFrames(&frames))

	if claudeCalls != 1 {
		t.Fatalf("Expected exactly one Claude fallback call, got %d", claudeCalls)
	}
	if result.Text != "claude fallback" {
		t.Errorf("Expected fallback content, got %q", result.Text)
	}
	if result.Model != ProviderClaude {
		t.Errorf("Expected model claude after fallback, got %q", result.Model)
	}
}

func TestRun_NoFallbackAfterContentRelayed(t *testing.T) {
	cfg := testConfig(true, true)
	openaiCalled := false
	o := newTestOrchestrator(cfg,
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			_ = emit(Delta{Type: DeltaText, Text: "partial "})
			_ = emit(Delta{Type: DeltaText, Text: "answer"})
			return errors.New("stream read failed: connection reset")
		},
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			openaiCalled = true
			return nil
		},
	)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if openaiCalled {
		t.Error("Expected no provider switch after content was relayed")
	}
	if result.Text != "partial answer" {
		t.Errorf("Expected partial content preserved, got %q", result.Text)
	}

	last := frames[len(frames)-1]
	if last.Type != "error" {
		t.Errorf("Expected terminal error frame after mid-stream death, got %+v", last)
	}
}

func TestRun_ProviderErrorEventDoesNotAbortStream(t *testing.T) {
	// An error event inside a healthy stream is relayed and the stream
	// continues to completion with no fallback.
	cfg := testConfig(true, true)
	openaiCalled := false
	o := newTestOrchestrator(cfg,
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			_ = emit(Delta{Type: DeltaText, Text: "one "})
			_ = emit(Delta{Type: DeltaText, Text: "two "})
			_ = emit(Delta{Type: DeltaText, Text: "three"})
			_ = emit(Delta{Type: DeltaError, Message: "overloaded_error"})
			return nil
		},
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			openaiCalled = true
			return nil
		},
	)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if openaiCalled {
		t.Error("Expected no fallback for an in-stream error event")
	}
	if result.Text != "one two three" {
		t.Errorf("Expected all content kept, got %q", result.Text)
	}

	var contents, errs int
	for _, frame := range frames {
		switch frame.Type {
		case "content":
			contents++
		case "error":
			errs++
		}
	}
	if contents != 3 || errs != 1 {
		t.Errorf("Expected 3 content + 1 error frames, got %d + %d", contents, errs)
	}
}

func TestRun_BothProvidersFail_SingleErrorFrame(t *testing.T) {
	cfg := testConfig(true, true)
	o := newTestOrchestrator(cfg,
		failBeforeContent(errors.New("anthropic down")),
		failBeforeContent(errors.New("openai down")),
	)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if result.Text != "" {
		t.Errorf("Expected no content, got %q", result.Text)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected exactly one error frame, got %d frames", len(frames))
	}
	if frames[0].Type != "error" || frames[0].Message != serviceUnavailableMessage {
		t.Errorf("Unexpected terminal frame: %+v", frames[0])
	}
}

func TestRun_ClaudeMidStreamErrorNeverRetriedOnClaude(t *testing.T) {
	// The openai-selected path falls back to Claude only when OpenAI
	// produced nothing; a Claude-selected failure never loops back.
	cfg := testConfig(true, true)
	claudeCalls := 0
	o := newTestOrchestrator(cfg,
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			claudeCalls++
			return errors.New("anthropic down")
		},
		failBeforeContent(errors.New("openai down")),
	)

	var frames []models.Response
	o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if claudeCalls != 1 {
		t.Errorf("Expected one Claude attempt, got %d", claudeCalls)
	}
}

func TestRun_NeverEmitsDoneFrame(t *testing.T) {
	cfg := testConfig(true, true)
	o := newTestOrchestrator(cfg, textDeltas("x"), nil)

	var frames []models.Response
	o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	for _, frame := range frames {
		if frame.Type == "done" {
			t.Errorf("Done frame must come from the handler, got %+v", frame)
		}
	}
}

func TestRun_ThinkingFlagSurvivesSuccess(t *testing.T) {
	cfg := testConfig(true, true)
	o := newTestOrchestrator(cfg,
		func(ctx context.Context, req StreamRequest, emit func(Delta) error) error {
			_ = emit(Delta{Type: DeltaThinkingStart})
			return emit(Delta{Type: DeltaText, Text: "answer"})
		},
		nil,
	)

	var frames []models.Response
	result := o.Run(context.Background(), claudeSelection(), nil, "hi", nil, "prompt", collectFrames(&frames))

	if !result.HadThinking {
		t.Error("Expected thinking flag set")
	}
	for _, frame := range frames {
		if frame.Type != "content" {
			t.Errorf("Thinking start must not produce a frame, got %+v", frame)
		}
	}
}
