package services

import "strings"

// Cost bounds. Every billed request costs at least one unit; no single
// request costs more than twenty.
const (
	minIntelligenceCost = 1
	maxIntelligenceCost = 20
)

// ComputeIntelligenceCost prices one completed request in intelligence
// units. The price grows with prompt length and response length, and
// extended thinking adds a flat surcharge.
func ComputeIntelligenceCost(message string, responseLength int, hadThinking bool) int {
	cost := 1
	cost += len(strings.Fields(message)) / 20
	cost += responseLength / 500
	if hadThinking {
		cost += 2
	}

	if cost < minIntelligenceCost {
		return minIntelligenceCost
	}
	if cost > maxIntelligenceCost {
		return maxIntelligenceCost
	}
	return cost
}
