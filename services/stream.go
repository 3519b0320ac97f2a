package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tabkeep/models"
)

// DeltaType discriminates the events a provider stream yields.
type DeltaType int

const (
	// DeltaText is one incremental fragment of visible model output.
	DeltaText DeltaType = iota
	// DeltaError is a provider-reported error event inside an open stream.
	// Non-fatal: the stream keeps draining.
	DeltaError
	// DeltaThinkingStart signals that the provider activated extended
	// thinking. Carries no content.
	DeltaThinkingStart
)

// Delta is one normalized event from a provider stream.
type Delta struct {
	Type    DeltaType
	Text    string
	Message string
}

// StreamRequest describes one logical completion request to a provider.
type StreamRequest struct {
	History      []models.ChatMessage
	Message      string
	Images       []string
	SystemPrompt string
	Extended     bool // request extended thinking (Claude only)
}

// StreamFunc opens a streaming completion and pushes deltas through emit as
// they arrive. A non-nil return means the stream could not be opened or died
// on the transport; provider-reported error events arrive as DeltaError
// instead and do not fail the call.
type StreamFunc func(ctx context.Context, req StreamRequest, emit func(Delta) error) error

// Global optimized HTTP client shared by the provider adapters.
var (
	streamClient *http.Client
	streamOnce   sync.Once
)

// getStreamClient initializes the streaming HTTP client on first use.
func getStreamClient() *http.Client {
	streamOnce.Do(func() {
		streamClient = &http.Client{
			Timeout: 0, // No timeout for streaming
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     10,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,

				// Streaming optimizations
				DisableKeepAlives:  false,
				DisableCompression: true,
				WriteBufferSize:    32 * 1024,
				ReadBufferSize:     32 * 1024,

				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	})

	return streamClient
}
