package domain

import (
	"math"
	"strings"

	"github.com/kapu/phantom-panel/pkg/errors"
)

type EmotionalResponse string

const (
	EmotionExcited     EmotionalResponse = "excited"
	EmotionInterested  EmotionalResponse = "interested"
	EmotionNeutral     EmotionalResponse = "neutral"
	EmotionSkeptical   EmotionalResponse = "skeptical"
	EmotionConfused    EmotionalResponse = "confused"
	EmotionAnnoyed     EmotionalResponse = "annoyed"
	EmotionIndifferent EmotionalResponse = "indifferent"
)

func (e EmotionalResponse) IsValid() bool {
	switch e {
	case EmotionExcited, EmotionInterested, EmotionNeutral, EmotionSkeptical,
		EmotionConfused, EmotionAnnoyed, EmotionIndifferent:
		return true
	default:
		return false
	}
}

const (
	MinRating = 1
	MaxRating = 10
)

// PersonaResponse is the validated structured output of one persona turn.
type PersonaResponse struct {
	GutReaction       string            `json:"gut_reaction"`
	ConsideredView    string            `json:"considered_view"`
	SocialResponse    string            `json:"social_response"`
	PrivateThought    string            `json:"private_thought"`
	PurchaseIntent    int               `json:"purchase_intent"`
	CredibilityRating int               `json:"credibility_rating"`
	EmotionalResponse EmotionalResponse `json:"emotional_response"`
	KeyConcerns       []string          `json:"key_concerns"`
	WhatWouldConvince string            `json:"what_would_convince"`
}

// Text flattens the free-text parts of a response for heuristic classification.
func (r *PersonaResponse) Text() string {
	if r == nil {
		return ""
	}
	parts := []string{r.GutReaction, r.ConsideredView, r.PrivateThought}
	parts = append(parts, r.KeyConcerns...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// PersonaResponsePayload is the raw wire shape returned by the model. Pointer
// fields let validation distinguish missing values from zero values.
type PersonaResponsePayload struct {
	GutReaction       *string  `json:"gut_reaction"`
	ConsideredView    *string  `json:"considered_view"`
	SocialResponse    *string  `json:"social_response"`
	PrivateThought    *string  `json:"private_thought"`
	PurchaseIntent    *float64 `json:"purchase_intent"`
	CredibilityRating *float64 `json:"credibility_rating"`
	EmotionalResponse *string  `json:"emotional_response"`
	KeyConcerns       []string `json:"key_concerns"`
	WhatWouldConvince *string  `json:"what_would_convince"`
}

// ValidatePersonaResponse checks the payload against the response contract.
func ValidatePersonaResponse(p *PersonaResponsePayload) (*PersonaResponse, error) {
	if p == nil {
		return nil, errors.NewValidationError("persona response is empty", "", nil)
	}

	gut, err := requiredString("gut_reaction", p.GutReaction)
	if err != nil {
		return nil, err
	}
	considered, err := requiredString("considered_view", p.ConsideredView)
	if err != nil {
		return nil, err
	}
	intent, err := requiredRating("purchase_intent", p.PurchaseIntent)
	if err != nil {
		return nil, err
	}
	credibility, err := requiredRating("credibility_rating", p.CredibilityRating)
	if err != nil {
		return nil, err
	}
	emotionRaw, err := requiredString("emotional_response", p.EmotionalResponse)
	if err != nil {
		return nil, err
	}
	emotion := EmotionalResponse(strings.ToLower(emotionRaw))
	if !emotion.IsValid() {
		return nil, errors.NewValidationError("unknown emotional_response", "emotional_response", emotionRaw)
	}
	if p.KeyConcerns == nil {
		return nil, errors.NewValidationError("missing required field", "key_concerns", nil)
	}

	return &PersonaResponse{
		GutReaction:       gut,
		ConsideredView:    considered,
		SocialResponse:    optionalString(p.SocialResponse),
		PrivateThought:    optionalString(p.PrivateThought),
		PurchaseIntent:    intent,
		CredibilityRating: credibility,
		EmotionalResponse: emotion,
		KeyConcerns:       p.KeyConcerns,
		WhatWouldConvince: optionalString(p.WhatWouldConvince),
	}, nil
}

func requiredString(field string, v *string) (string, error) {
	if v == nil {
		return "", errors.NewValidationError("missing required field", field, nil)
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return "", errors.NewValidationError("required field is empty", field, *v)
	}
	return s, nil
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func requiredRating(field string, v *float64) (int, error) {
	if v == nil {
		return 0, errors.NewValidationError("missing required field", field, nil)
	}
	n := *v
	if n < MinRating || n > MaxRating {
		return 0, errors.NewValidationError("rating out of range 1-10", field, n)
	}
	if n != math.Trunc(n) {
		return 0, errors.NewValidationError("rating must be an integer", field, n)
	}
	return int(n), nil
}
