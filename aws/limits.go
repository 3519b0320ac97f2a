package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabkeep/config"
	"tabkeep/pkg/logger"
)

// LimitCheck is the result of the pre-flight quota check for one request.
type LimitCheck struct {
	CanProceed      bool   `json:"canProceed"`
	Error           string `json:"error,omitempty"`
	Message         string `json:"message,omitempty"`
	ResetAt         string `json:"resetAt,omitempty"`
	ShowUpgrade     bool   `json:"showUpgrade,omitempty"`
	Plan            string `json:"plan"`
	Used            int    `json:"used,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Unlimited       bool   `json:"unlimited,omitempty"`
	CrossChatMemory bool   `json:"crossChatMemory,omitempty"`
	SkipTracking    bool   `json:"skipTracking,omitempty"`
}

// anonymousLimitCheck is used when there is no authenticated user or the
// profile store is unreachable. The request proceeds without tracking.
func anonymousLimitCheck() LimitCheck {
	return LimitCheck{CanProceed: true, Plan: config.PlanFree, SkipTracking: true}
}

// CheckUserLimits consults the profile store before any provider call.
// Storage failures fail open: the request proceeds untracked rather than
// blocking chat on a DynamoDB outage.
func CheckUserLimits(ctx context.Context, userID string) LimitCheck {
	log := logger.GetLogger("limits")

	client := GetDynamoDBClient(ctx)
	if client == nil || userID == "" {
		return anonymousLimitCheck()
	}

	profile, err := GetProfile(ctx, client, userID)
	if errors.Is(err, ErrProfileNotFound) {
		// First request from this user: provision a free profile so usage
		// tracking starts immediately.
		profile, err = CreateProfile(ctx, client, Profile{UserID: userID, Plan: config.PlanFree})
	}
	if err != nil {
		log.WarnWithFields("Limit check failed open", map[string]interface{}{
			"user_id": userID,
			"reason":  err.Error(),
		})
		return anonymousLimitCheck()
	}

	plan := profile.Plan
	if plan == "" {
		plan = config.PlanFree
	}
	planConfig := config.GetPlanConfig(plan)
	now := time.Now()

	if plan == config.PlanMax {
		return LimitCheck{
			CanProceed:      true,
			Plan:            config.PlanMax,
			Unlimited:       true,
			CrossChatMemory: true,
		}
	}

	// Pro accounts cool down instead of hard-stopping.
	if plan == config.PlanPro && profile.CooldownUntil != nil {
		cooldownEnd := *profile.CooldownUntil
		if now.Before(cooldownEnd) {
			minutesLeft := int(time.Until(cooldownEnd).Minutes()) + 1
			message := fmt.Sprintf("Your thinking limit resets in %d minutes", minutesLeft)
			if minutesLeft > 60 {
				message = fmt.Sprintf("Your thinking limit resets in %d hours", (minutesLeft+59)/60)
			}
			return LimitCheck{
				CanProceed: false,
				Error:      "limit_reached",
				Message:    message,
				ResetAt:    cooldownEnd.Format(time.RFC3339),
				Plan:       config.PlanPro,
			}
		}

		if err := resetProfileUsage(ctx, client, userID); err != nil {
			log.Error("Failed to clear expired cooldown", err)
		}
		profile.IntelligenceUsed = 0
	}

	limit := profile.IntelligenceLimit
	if limit <= 0 {
		limit = planConfig.IntelligenceLimit
	}

	if !config.IsUnlimited(limit) && profile.IntelligenceUsed >= limit {
		if plan == config.PlanPro {
			cooldownEnd := now.Add(time.Duration(planConfig.CooldownHours) * time.Hour)
			if err := setProfileCooldown(ctx, client, userID, cooldownEnd); err != nil {
				log.Error("Failed to set cooldown", err)
			}

			return LimitCheck{
				CanProceed: false,
				Error:      "limit_reached",
				Message:    fmt.Sprintf("Taking a breather. Resets in %d hours.", planConfig.CooldownHours),
				ResetAt:    cooldownEnd.Format(time.RFC3339),
				Plan:       config.PlanPro,
			}
		}

		return LimitCheck{
			CanProceed:  false,
			Error:       "limit_reached",
			Message:     "You've reached your free limit. Upgrade to continue.",
			ShowUpgrade: true,
			Plan:        config.PlanFree,
		}
	}

	return LimitCheck{
		CanProceed:      true,
		Plan:            plan,
		Used:            profile.IntelligenceUsed,
		Limit:           limit,
		CrossChatMemory: planConfig.CrossChatMemory,
	}
}

// UpdateUsage charges the intelligence cost against the user's profile.
// Fire-and-forget: failures are logged, never surfaced to the client.
func UpdateUsage(ctx context.Context, userID string, cost int) {
	if userID == "" || cost <= 0 {
		return
	}

	client := GetDynamoDBClient(ctx)
	if client == nil {
		return
	}

	if err := addProfileUsage(ctx, client, userID, cost); err != nil {
		logger.GetLogger("usage").ErrorWithFields("Failed to update usage", map[string]interface{}{
			"user_id": userID,
			"cost":    cost,
		}, err)
	}
}
