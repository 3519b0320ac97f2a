package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"tabkeep/aws"
	"tabkeep/middleware"
	"tabkeep/models"
	"tabkeep/pkg/logger"
	"tabkeep/services"
)

// Global metrics for monitoring
var (
	activeStreams int64
	totalRequests int64
	totalErrors   int64
)

// GetMetrics returns current performance metrics.
func GetMetrics() map[string]interface{} {
	requests := atomic.LoadInt64(&totalRequests)
	errors := atomic.LoadInt64(&totalErrors)
	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(errors) / float64(requests)
	}
	return map[string]interface{}{
		"active_streams": atomic.LoadInt64(&activeStreams),
		"total_requests": requests,
		"total_errors":   errors,
		"error_rate":     errorRate,
	}
}

// MetricsHandler exposes the counters as JSON.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}

// ChatHandler serves POST /chat: classify, route, stream, account. The
// storage and provider seams are function fields so tests can swap them.
type ChatHandler struct {
	Config *models.Config

	Run           services.RunFunc
	CheckLimits   func(ctx context.Context, userID string) aws.LimitCheck
	MemoryContext func(ctx context.Context, userID, anchorID, plan string) string
	UpdateUsage   func(ctx context.Context, userID string, cost int)
}

// NewChatHandler wires the handler to the real orchestrator and stores.
func NewChatHandler(cfg *models.Config) *ChatHandler {
	return &ChatHandler{
		Config:        cfg,
		Run:           services.NewOrchestrator(cfg).Run,
		CheckLimits:   aws.CheckUserLimits,
		MemoryContext: aws.MemoryContext,
		UpdateUsage:   aws.UpdateUsage,
	}
}

func writeJSONError(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	requestID := logger.GenerateRequestID()
	ctx := logger.WithRequestID(r.Context(), requestID)
	log := logger.GetLogger("chat")

	atomic.AddInt64(&totalRequests, 1)
	atomic.AddInt64(&activeStreams, 1)
	defer atomic.AddInt64(&activeStreams, -1)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"error": "Method not allowed",
		})
		return
	}

	// SSE headers go out only after validation; failures before the first
	// frame stay plain HTTP errors.
	streamStarted := false
	defer func() {
		if rec := recover(); rec != nil {
			atomic.AddInt64(&totalErrors, 1)
			log.ErrorCtx(ctx, "Panic in chat handler", fmt.Errorf("%v", rec))
			if !streamStarted {
				writeJSONError(w, http.StatusInternalServerError, map[string]interface{}{
					"error": "Internal server error",
					"type":  "internal_error",
				})
				return
			}
			// Bytes already went out; close the stream with a visible
			// error frame instead of going silent. Best effort.
			if msg, err := models.FormatSSEMessage(models.ErrorFrame("Stream error")); err == nil {
				fmt.Fprint(w, msg)
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}()

	var reqBody models.ChatRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
	if err != nil {
		atomic.AddInt64(&totalErrors, 1)
		writeJSONError(w, http.StatusBadRequest, map[string]interface{}{"error": "Error reading request body"})
		return
	}
	if err := json.Unmarshal(body, &reqBody); err != nil {
		atomic.AddInt64(&totalErrors, 1)
		writeJSONError(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return
	}

	message := reqBody.Message
	if strings.TrimSpace(message) == "" {
		atomic.AddInt64(&totalErrors, 1)
		writeJSONError(w, http.StatusBadRequest, map[string]interface{}{"error": "Message is required"})
		return
	}
	if len(message) > models.MaxMessageLength {
		atomic.AddInt64(&totalErrors, 1)
		writeJSONError(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("Message too long (max %d characters)", models.MaxMessageLength),
		})
		return
	}

	// A verified token wins over whatever user ID the client claims.
	userID := reqBody.UserID
	if uid, ok := middleware.GetAuthenticatedUserID(ctx); ok {
		userID = uid
	}

	limitCheck := h.CheckLimits(ctx, userID)
	if !limitCheck.CanProceed {
		writeJSONError(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       limitCheck.Error,
			"message":     limitCheck.Message,
			"resetAt":     limitCheck.ResetAt,
			"showUpgrade": limitCheck.ShowUpgrade,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		atomic.AddInt64(&totalErrors, 1)
		writeJSONError(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "Streaming unsupported",
			"type":  "internal_error",
		})
		return
	}

	startStream := func() {
		if streamStarted {
			return
		}
		streamStarted = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-transform")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	}

	send := func(frame models.Response) error {
		msg, err := models.FormatSSEMessage(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprint(w, msg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// Trivial queries skip the providers entirely and cost nothing.
	if answer := services.TryFastPath(message); answer != "" {
		startStream()
		_ = send(models.ContentFrame(answer))
		_ = send(models.DoneFrame(0, services.ModeSimple, false, ""))
		return
	}

	sanitizedHistory := models.SanitizeHistory(reqBody.History, models.MaxMessageLength)
	intent := services.DetectIntent(message, len(sanitizedHistory))

	var contextHistory []models.ChatMessage
	if intent.UseHistory && len(sanitizedHistory) > 0 {
		maxHistory := 10
		if intent.Mode == services.ModeDeep {
			maxHistory = models.MaxHistoryForChat
		}
		if len(sanitizedHistory) > maxHistory {
			contextHistory = sanitizedHistory[len(sanitizedHistory)-maxHistory:]
		} else {
			contextHistory = sanitizedHistory
		}
	}

	memoryContext := ""
	if limitCheck.CrossChatMemory && userID != "" {
		memoryContext = h.MemoryContext(ctx, userID, reqBody.AnchorID, limitCheck.Plan)
	}

	systemPrompt := models.BuildSystemPrompt(models.CurrentDateString(), intent.Mode, memoryContext)

	hasImages := len(reqBody.Images) > 0
	sel := services.SelectProvider(h.Config, message, intent, hasImages)

	log.InfoWithFieldsCtx(ctx, "Routing chat request", map[string]interface{}{
		"provider":    sel.Provider,
		"mode":        intent.Mode,
		"has_images":  hasImages,
		"history_len": len(contextHistory),
		"plan":        limitCheck.Plan,
	})

	startStream()

	result := h.Run(ctx, sel, contextHistory, message, reqBody.Images, systemPrompt, send)

	cost := services.ComputeIntelligenceCost(message, len(result.Text), result.HadThinking)

	if !limitCheck.SkipTracking && userID != "" {
		// The request context dies with the response; usage writes get
		// their own.
		go h.UpdateUsage(context.Background(), userID, cost)
	}

	_ = send(models.DoneFrame(cost, intent.Mode, result.HadThinking, result.Model))

	log.InfoWithFieldsCtx(ctx, "Chat request completed", map[string]interface{}{
		"provider":    result.Model,
		"cost":        cost,
		"response_ms": time.Since(startTime).Milliseconds(),
		"chars":       len(result.Text),
	})
}
