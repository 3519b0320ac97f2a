package aws

import (
	"strings"
)

// BuildMemoryContext renders memories and profile identity into the text
// block injected into the system prompt. Pure function; no I/O.
func BuildMemoryContext(memories []Memory, anchorID string, profile *Profile) string {
	var context strings.Builder

	if profile != nil {
		context.WriteString("User Profile:")
		if profile.DisplayName != "" {
			context.WriteString("\n- Name: " + profile.DisplayName)
		}
		if profile.Email != "" {
			context.WriteString("\n- Email: " + profile.Email)
		}
		context.WriteString("\n")
	}

	if len(memories) == 0 {
		return strings.TrimSpace(context.String())
	}

	if anchorID != "" {
		context.WriteString("\nMemory Anchor: " + anchorID)
	}
	context.WriteString("\nKnown User Context:")

	var explicit, implicit []Memory
	for _, m := range memories {
		if m.MemorySource == "explicit" {
			explicit = append(explicit, m)
		} else {
			implicit = append(implicit, m)
		}
	}

	if len(explicit) > 0 {
		context.WriteString("\n\nUser-provided facts:")
		for _, m := range explicit {
			context.WriteString("\n- " + m.Content)
		}
	}

	if len(implicit) > 0 {
		var facts, preferences, style []Memory
		for _, m := range implicit {
			switch m.MemoryType {
			case "preference":
				preferences = append(preferences, m)
			case "style":
				style = append(style, m)
			default:
				facts = append(facts, m)
			}
		}

		if len(facts) > 0 {
			context.WriteString("\n\nLearned facts:")
			for _, m := range facts {
				context.WriteString("\n- " + m.Content)
			}
		}

		if len(preferences) > 0 {
			context.WriteString("\n\nLearned preferences:")
			for _, m := range preferences {
				context.WriteString("\n- " + m.Content)
			}
		}

		if len(style) > 0 {
			context.WriteString("\n\nCommunication style:")
			for _, m := range style {
				context.WriteString("\n- " + m.Content)
			}
		}
	}

	return strings.TrimSpace(context.String())
}
