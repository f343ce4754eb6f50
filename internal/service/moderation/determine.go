package moderation

import (
	"sort"
	"strings"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
)

type FollowUpType string

const (
	FollowUpClarification    FollowUpType = "clarification"
	FollowUpProbeEmotional   FollowUpType = "probe_emotional"
	FollowUpProbeSpecific    FollowUpType = "probe_specific"
	FollowUpProbeDeeper      FollowUpType = "probe_deeper"
	FollowUpProbeImprovement FollowUpType = "probe_improvement"
	FollowUpAcknowledge      FollowUpType = "acknowledge"
)

// selectionPriority orders follow-ups when the per-round cap forces a choice.
// Acknowledgements are never selected.
var selectionPriority = []FollowUpType{
	FollowUpClarification,
	FollowUpProbeEmotional,
	FollowUpProbeSpecific,
	FollowUpProbeDeeper,
	FollowUpProbeImprovement,
}

// Priority is the position in the selection order; lower wins.
func (t FollowUpType) Priority() int {
	for i, p := range selectionPriority {
		if p == t {
			return i
		}
	}
	return len(selectionPriority)
}

func (t FollowUpType) IsProbe() bool {
	switch t {
	case FollowUpProbeEmotional, FollowUpProbeSpecific, FollowUpProbeDeeper, FollowUpProbeImprovement:
		return true
	default:
		return false
	}
}

// RedFlagMatchRatio is the share of a pattern's significant words that must
// appear in a response for the red flag to fire.
const RedFlagMatchRatio = 0.4

// DrawOutWordCount is the length below which a response is treated as too
// thin to take at face value.
const DrawOutWordCount = 8

var (
	literalMisreadingMarkers = []string{
		"contradiction", "contradicts", "contradictory", "mixed message", "mixed messages",
		"hypocritical", "doesn't make sense", "makes no sense", "false advertising",
		"misleading", "so which is it", "confusing",
	}
	vagueMarkers = []string{
		"not sure", "maybe", "i guess", "i don't know", "hard to say", "kind of",
		"sort of", "whatever", "i suppose",
	}
	affectMarkers = []string{
		"hate", "love", "cringe", "cringey", "offensive", "disgusting", "insulting",
		"annoying", "furious", "obsessed", "amazing", "gross",
	}
	vagueCriticismMarkers = []string{
		"feels off", "something about it", "not quite", "can't put my finger",
		"rubs me the wrong way", "weird vibe", "seems off",
	}
	improvementMarkers = []string{
		"would be better if", "if only", "should have", "they should", "wish it",
		"needs more", "what if", "would prefer",
	}
)

type DetermineInput struct {
	PersonaID        string
	ResponseText     string
	Brief            *domain.BriefAnalysis
	AlreadyClarified bool
	// TurnNumber counts this persona's own turns, the initial response being 1.
	// The conversation runs a single moderated round, where it is always 1,
	// so the turn limit only bounds later rounds and direct callers.
	TurnNumber int
}

type Determination struct {
	PersonaID string
	Type      FollowUpType
	Reason    string
	// MatchedFlag is set for clarifications triggered by a brief red flag.
	MatchedFlag *domain.RedFlag
	// DrawOut marks a deeper probe triggered by a very short response.
	DrawOut bool
}

// TurnType is the transcript turn the moderator line is recorded as.
func (d Determination) TurnType() domain.TurnType {
	switch {
	case d.Type == FollowUpClarification:
		return domain.TurnClarification
	case d.DrawOut:
		return domain.TurnDrawOut
	case d.Type.IsProbe():
		return domain.TurnProbe
	default:
		return domain.TurnFollowUp
	}
}

type rule struct {
	kind  FollowUpType
	match func(in DetermineInput, text *responseText) (Determination, bool)
}

// determinationRules are evaluated in order; the first match wins.
var determinationRules = []rule{
	{kind: FollowUpClarification, match: matchClarification},
	{kind: FollowUpProbeDeeper, match: matchDeeper},
	{kind: FollowUpProbeEmotional, match: markerRule(FollowUpProbeEmotional, affectMarkers)},
	{kind: FollowUpProbeSpecific, match: markerRule(FollowUpProbeSpecific, vagueCriticismMarkers)},
	{kind: FollowUpProbeImprovement, match: markerRule(FollowUpProbeImprovement, improvementMarkers)},
}

// Determine classifies one response without calling a model. Once a persona
// has spoken more than ModerationTurnLimit times every response is
// acknowledged.
func Determine(in DetermineInput) Determination {
	if in.TurnNumber > constants.PanelDefaults.ModerationTurnLimit {
		return Determination{PersonaID: in.PersonaID, Type: FollowUpAcknowledge, Reason: "turn limit reached"}
	}

	text := newResponseText(in.ResponseText)
	for _, r := range determinationRules {
		if d, ok := r.match(in, text); ok {
			d.PersonaID = in.PersonaID
			d.Type = r.kind
			return d
		}
	}
	return Determination{PersonaID: in.PersonaID, Type: FollowUpAcknowledge}
}

func matchClarification(in DetermineInput, text *responseText) (Determination, bool) {
	if in.AlreadyClarified || in.Brief == nil || !in.Brief.ModerationNeeded {
		return Determination{}, false
	}
	for i := range in.Brief.RedFlags {
		flag := in.Brief.RedFlags[i]
		if text.matchesPattern(flag.Pattern) {
			return Determination{Reason: "red flag: " + flag.Pattern, MatchedFlag: &flag}, true
		}
	}
	if marker, ok := text.firstMarker(literalMisreadingMarkers); ok {
		return Determination{Reason: "literal misreading: " + marker}, true
	}
	return Determination{}, false
}

func matchDeeper(_ DetermineInput, text *responseText) (Determination, bool) {
	if marker, ok := text.firstMarker(vagueMarkers); ok {
		return Determination{Reason: "vague: " + marker}, true
	}
	if text.wordCount > 0 && text.wordCount < DrawOutWordCount {
		return Determination{Reason: "response too short", DrawOut: true}, true
	}
	return Determination{}, false
}

func markerRule(kind FollowUpType, markers []string) func(DetermineInput, *responseText) (Determination, bool) {
	return func(_ DetermineInput, text *responseText) (Determination, bool) {
		if marker, ok := text.firstMarker(markers); ok {
			return Determination{Reason: string(kind) + ": " + marker}, true
		}
		return Determination{}, false
	}
}

// Select applies the per-round cap. Higher-priority follow-ups win; ties keep
// input order.
func Select(determinations []Determination, maxFollowUps int) []Determination {
	if maxFollowUps <= 0 {
		return nil
	}
	candidates := make([]Determination, 0, len(determinations))
	for _, d := range determinations {
		if d.Type == FollowUpAcknowledge || d.Type == "" {
			continue
		}
		candidates = append(candidates, d)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Type.Priority() < candidates[j].Type.Priority()
	})
	if len(candidates) > maxFollowUps {
		candidates = candidates[:maxFollowUps]
	}
	return candidates
}

type responseText struct {
	padded    string
	words     map[string]struct{}
	stems     map[string]struct{}
	wordCount int
}

func newResponseText(raw string) *responseText {
	tokens := stimulus.Tokenize(raw)
	rt := &responseText{
		padded:    " " + strings.Join(tokens, " ") + " ",
		words:     make(map[string]struct{}, len(tokens)),
		stems:     make(map[string]struct{}, len(tokens)),
		wordCount: len(strings.Fields(raw)),
	}
	for _, tok := range tokens {
		rt.words[tok] = struct{}{}
		rt.stems[stimulus.Stem(tok)] = struct{}{}
	}
	return rt
}

func (rt *responseText) firstMarker(markers []string) (string, bool) {
	for _, m := range markers {
		phrase := strings.Join(stimulus.Tokenize(m), " ")
		if phrase != "" && strings.Contains(rt.padded, " "+phrase+" ") {
			return m, true
		}
	}
	return "", false
}

// matchesPattern reports whether enough of the pattern's significant words
// appear, exactly or by stem.
func (rt *responseText) matchesPattern(pattern string) bool {
	words := uniqueWords(stimulus.SignificantWords(pattern))
	if len(words) == 0 {
		return false
	}
	present := 0
	for _, w := range words {
		if _, ok := rt.words[w]; ok {
			present++
			continue
		}
		if _, ok := rt.stems[stimulus.Stem(w)]; ok {
			present++
		}
	}
	return float64(present)/float64(len(words)) >= RedFlagMatchRatio
}

func uniqueWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := words[:0:0]
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
