package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Plan names
const (
	PlanFree = "free"
	PlanPro  = "pro"
	PlanMax  = "max"
)

// PlanConfig holds the limits for one subscription plan.
type PlanConfig struct {
	IntelligenceLimit int  `yaml:"intelligence_limit"` // -1 means unlimited
	CooldownHours     int  `yaml:"cooldown_hours"`     // 0 means hard stop, no cooldown
	CrossChatMemory   bool `yaml:"cross_chat_memory"`
	MemoryLimit       int  `yaml:"memory_limit"`
}

// PlansConfig holds all plan configurations.
type PlansConfig struct {
	Free PlanConfig `yaml:"free"`
	Pro  PlanConfig `yaml:"pro"`
	Max  PlanConfig `yaml:"max"`
}

var defaultPlansConfig = PlansConfig{
	Free: PlanConfig{
		IntelligenceLimit: 100,
		CooldownHours:     0,
		CrossChatMemory:   true,
		MemoryLimit:       15,
	},
	Pro: PlanConfig{
		IntelligenceLimit: 500,
		CooldownHours:     3,
		CrossChatMemory:   true,
		MemoryLimit:       25,
	},
	Max: PlanConfig{
		IntelligenceLimit: -1,
		CooldownHours:     0,
		CrossChatMemory:   true,
		MemoryLimit:       50,
	},
}

// Global config instance
var plansConfig *PlansConfig

// LoadPlansConfig loads plan limits from PLANS_CONFIG_FILE or uses defaults.
func LoadPlansConfig() *PlansConfig {
	if plansConfig != nil {
		return plansConfig
	}

	configFile := os.Getenv("PLANS_CONFIG_FILE")
	if configFile != "" {
		if config, err := loadPlansFromFile(configFile); err == nil {
			plansConfig = config
			return plansConfig
		}
	}

	plansConfig = &defaultPlansConfig
	return plansConfig
}

// loadPlansFromFile loads plan configuration from a YAML file.
func loadPlansFromFile(filename string) (*PlansConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans config: %w", err)
	}

	var config PlansConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse plans config: %w", err)
	}

	return &config, nil
}

// GetPlanConfig returns the limits for a plan, defaulting to free for
// unknown plan names.
func GetPlanConfig(plan string) PlanConfig {
	config := LoadPlansConfig()

	switch plan {
	case PlanMax:
		return config.Max
	case PlanPro:
		return config.Pro
	default:
		return config.Free
	}
}

// IsUnlimited checks if a limit is unlimited (-1).
func IsUnlimited(limit int) bool {
	return limit == -1
}
