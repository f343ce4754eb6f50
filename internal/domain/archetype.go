package domain

import (
	"github.com/kapu/phantom-panel/internal/util"
)

type SkepticismLevel string

const (
	SkepticismLow     SkepticismLevel = "low"
	SkepticismMedium  SkepticismLevel = "medium"
	SkepticismHigh    SkepticismLevel = "high"
	SkepticismExtreme SkepticismLevel = "extreme"
)

func (l SkepticismLevel) String() string {
	return string(l)
}

func (l SkepticismLevel) IsValid() bool {
	switch l {
	case SkepticismLow, SkepticismMedium, SkepticismHigh, SkepticismExtreme:
		return true
	default:
		return false
	}
}

// NormalizeSkepticismLevel maps free-form input onto a known level, defaulting to medium.
func NormalizeSkepticismLevel(raw string) SkepticismLevel {
	level := SkepticismLevel(util.Normalize(raw))
	if level.IsValid() {
		return level
	}
	return SkepticismMedium
}

type Demographics struct {
	AgeMin        int    `json:"age_min"`
	AgeMax        int    `json:"age_max"`
	Gender        string `json:"gender,omitempty"`
	IncomeBracket string `json:"income_bracket,omitempty"`
	Education     string `json:"education,omitempty"`
	Occupation    string `json:"occupation,omitempty"`
	LocationType  string `json:"location_type,omitempty"` // urban, suburban, rural
	NamePool      string `json:"name_pool,omitempty"`
}

type Psychographics struct {
	Values       []string `json:"values,omitempty"`
	Motivations  []string `json:"motivations,omitempty"`
	PainPoints   []string `json:"pain_points,omitempty"`
	MediaHabits  []string `json:"media_habits,omitempty"`
	BuyingStyle  string   `json:"buying_style,omitempty"`
	Aspirations  []string `json:"aspirations,omitempty"`
}

type VoiceTraits struct {
	Tone       string   `json:"tone,omitempty"`
	Vocabulary string   `json:"vocabulary,omitempty"`
	Quirks     []string `json:"quirks,omitempty"`
}

// PersonaArchetype is an immutable consumer segment template.
type PersonaArchetype struct {
	ID                 string          `json:"id"`
	Slug               string          `json:"slug"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Demographics       Demographics    `json:"demographics"`
	Psychographics     Psychographics  `json:"psychographics"`
	BaselineSkepticism SkepticismLevel `json:"baseline_skepticism"`
	Voice              VoiceTraits     `json:"voice_traits"`
}

// AgeRange returns a sane (min, max) pair even when the template is incomplete.
func (a *PersonaArchetype) AgeRange() (int, int) {
	lo, hi := a.Demographics.AgeMin, a.Demographics.AgeMax
	if lo <= 0 {
		lo = 25
	}
	if hi < lo {
		hi = lo + 10
	}
	return lo, hi
}
