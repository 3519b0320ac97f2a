package aws

import (
	"time"
)

// Profile represents the profiles table. Intelligence counters drive the
// per-plan usage limits checked before every chat request.
type Profile struct {
	UserID            string     `json:"user_id" dynamodbav:"user_id"` // Primary key
	CreatedAt         time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" dynamodbav:"updated_at"`
	Plan              string     `json:"plan" dynamodbav:"plan"` // 'free', 'pro', 'max'
	IntelligenceUsed  int        `json:"intelligence_used" dynamodbav:"intelligence_used"`
	IntelligenceLimit int        `json:"intelligence_limit" dynamodbav:"intelligence_limit"` // 0 means plan default
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty" dynamodbav:"cooldown_until,omitempty"`
	DisplayName       string     `json:"display_name" dynamodbav:"display_name"`
	Email             string     `json:"email" dynamodbav:"email"`
}

// MemoryAnchor represents the memory_anchors table. Anchors group memories
// and are addressed by a short human-readable anchor_id from the client.
type MemoryAnchor struct {
	ID        string    `json:"id" dynamodbav:"id"`               // Primary key (uuid)
	AnchorID  string    `json:"anchor_id" dynamodbav:"anchor_id"` // GSI key
	UserID    string    `json:"user_id" dynamodbav:"user_id"`     // GSI key
	Name      string    `json:"name" dynamodbav:"name"`
	IsDefault bool      `json:"is_default" dynamodbav:"is_default"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Memory represents the user_memory table.
type Memory struct {
	ID           string    `json:"id" dynamodbav:"id"`               // Primary key
	AnchorID     string    `json:"anchor_id" dynamodbav:"anchor_id"` // GSI key (anchor uuid)
	MemoryType   string    `json:"memory_type" dynamodbav:"memory_type"` // 'fact', 'preference', 'style'
	Content      string    `json:"content" dynamodbav:"content"`
	Importance   int       `json:"importance" dynamodbav:"importance"`
	MemorySource string    `json:"memory_source" dynamodbav:"memory_source"` // 'explicit' or 'implicit'
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Table names constants
const (
	ProfilesTableName      = "profiles"
	MemoryAnchorsTableName = "memory_anchors"
	UserMemoryTableName    = "user_memory"
)

// GSI names constants
const (
	AnchorsUserIDGSI   = "user_id-gsi"
	AnchorsAnchorIDGSI = "anchor_id-gsi"
	MemoryAnchorGSI    = "anchor_id-gsi"
)
