package traits

import (
	"fmt"
	"strings"

	"github.com/kapu/phantom-panel/internal/domain"
)

// Narrative describes the activated traits for the persona prompt. The primary
// trait supplies the dominant emotional narrative; the rest are listed as
// secondary influences.
func Narrative(a domain.TraitActivation) string {
	if a.Primary == nil {
		return "Nothing in this stimulus strikes a particular nerve. React from your general disposition."
	}

	var sb strings.Builder
	p := a.Primary.Trait
	fmt.Fprintf(&sb, "Dominant reaction: %s.", p.Name)
	if p.EmotionalNarrative != "" {
		sb.WriteString(" ")
		sb.WriteString(p.EmotionalNarrative)
	} else if p.Description != "" {
		sb.WriteString(" ")
		sb.WriteString(p.Description)
	}
	if p.BehaviorPattern != "" {
		fmt.Fprintf(&sb, "\nThis tends to show up as: %s", p.BehaviorPattern)
	}

	if len(a.Secondary) > 0 {
		sb.WriteString("\nSecondary influences:")
		for _, s := range a.Secondary {
			fmt.Fprintf(&sb, "\n- %s", s.Trait.Name)
			if s.Trait.Description != "" {
				fmt.Fprintf(&sb, ": %s", s.Trait.Description)
			}
		}
	}
	return sb.String()
}
