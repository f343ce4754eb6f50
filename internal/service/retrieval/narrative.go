package retrieval

import (
	"fmt"
	"strings"

	"github.com/kapu/phantom-panel/internal/domain"
)

// Narrative renders retrieved memories as a prompt fragment. Fallback samples
// are framed as vague background so they do not dominate the reaction.
func Narrative(r *Result) string {
	if r == nil || len(r.Memories) == 0 {
		return "You have no particular past experience with products like this."
	}

	var sb strings.Builder
	if r.FallbackUsed {
		sb.WriteString("Loosely related things you half remember (background only, do not lean on them heavily):")
	} else {
		sb.WriteString("This stimulus reminds you of past experiences:")
	}
	for _, m := range r.Memories {
		sb.WriteString("\n- ")
		sb.WriteString(describe(m))
	}
	return sb.String()
}

func describe(m domain.ScoredMemory) string {
	mem := m.Memory
	text := mem.Experience
	if mem.Title != "" {
		text = fmt.Sprintf("%s: %s", mem.Title, mem.Experience)
	}
	if mem.BrandMentioned != "" {
		text += fmt.Sprintf(" (brand: %s)", mem.BrandMentioned)
	}
	switch mem.EmotionalResidue {
	case domain.ResidueNegative:
		text += " It still leaves a bad taste."
	case domain.ResiduePositive:
		text += " You remember it fondly."
	case domain.ResidueMixed:
		text += " Your feelings about it are mixed."
	}
	return text
}
