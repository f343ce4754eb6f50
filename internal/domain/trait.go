package domain

type TraitCategory string

const (
	TraitBehavioral TraitCategory = "behavioral"
	TraitEmotional  TraitCategory = "emotional"
)

// PhantomTrait is a scripted reflex that may fire for a stimulus.
type PhantomTrait struct {
	ID                  string        `json:"id"`
	ArchetypeID         string        `json:"archetype_id"`
	Name                string        `json:"name"`
	Category            TraitCategory `json:"category"`
	Description         string        `json:"description"`
	TriggerWords        []string      `json:"trigger_words"`
	TriggerClaims       []string      `json:"trigger_claims"`
	EmotionalContexts   []string      `json:"emotional_contexts"`
	Weight              float64       `json:"weight"`
	ActivationThreshold float64       `json:"activation_threshold"`
	BehaviorPattern     string        `json:"behavior_pattern,omitempty"`
	EmotionalNarrative  string        `json:"emotional_narrative,omitempty"`
}

type ActivatedTrait struct {
	Trait          PhantomTrait `json:"trait"`
	Score          float64      `json:"score"`
	WordMatches    []string     `json:"word_matches,omitempty"`
	ClaimMatches   []string     `json:"claim_matches,omitempty"`
	EmotionalBoost bool         `json:"emotional_boost"`
}

// TraitActivation is the ranked outcome of scoring all candidate traits.
type TraitActivation struct {
	Primary   *ActivatedTrait  `json:"primary,omitempty"`
	Secondary []ActivatedTrait `json:"secondary,omitempty"`
	Evaluated int              `json:"evaluated"`
}

func (ta *TraitActivation) All() []ActivatedTrait {
	if ta == nil || ta.Primary == nil {
		return nil
	}
	out := make([]ActivatedTrait, 0, 1+len(ta.Secondary))
	out = append(out, *ta.Primary)
	out = append(out, ta.Secondary...)
	return out
}

func (ta *TraitActivation) Count() int {
	return len(ta.All())
}
