package synthesis

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/ai/aitest"
	apperrors "github.com/kapu/phantom-panel/pkg/errors"
)

func responseJSON(intent, credibility int) map[string]any {
	return map[string]any{
		"gut_reaction":        "Huh, bold claim.",
		"considered_view":     "I'd want to see proof first.",
		"social_response":     "It's interesting.",
		"private_thought":     "Sounds like hype.",
		"purchase_intent":     intent,
		"credibility_rating":  credibility,
		"emotional_response":  "skeptical",
		"key_concerns":        []string{"proof"},
		"what_would_convince": "A dentist I trust",
	}
}

func testPersona() *domain.PersonaContext {
	return &domain.PersonaContext{
		ID:         "p1",
		Identity:   domain.PersonaIdentity{Name: "Dana Reed"},
		Narratives: domain.PersonaNarratives{SystemPrompt: "You are Dana Reed."},
	}
}

var whitening = StimulusInput{Text: "Whiter teeth in 3 days", Type: domain.StimulusTagline}

func TestGenerateUsesPersonaSystemPrompt(t *testing.T) {
	inv := aitest.New().OnJSON("React honestly as yourself", responseJSON(4, 3))
	g := NewResponseGenerator(inv, nil, nil)

	reply, err := g.Generate(context.Background(), testPersona(), whitening, "Welcome, everyone.")
	require.NoError(t, err)
	require.NotNil(t, reply.Response)
	assert.Equal(t, 4, reply.Response.PurchaseIntent)
	assert.Equal(t, domain.EmotionSkeptical, reply.Response.EmotionalResponse)
	require.NotNil(t, reply.Meta)

	calls := inv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are Dana Reed.", calls[0].System)
	assert.Equal(t, ai.PresetCreative, calls[0].Preset)
	assert.Contains(t, calls[0].Prompt, "Welcome, everyone.")
	assert.Contains(t, calls[0].Prompt, "Whiter teeth in 3 days")
}

func TestGenerateRejectsOutOfRangeRating(t *testing.T) {
	inv := aitest.New().OnJSON("React honestly as yourself", responseJSON(11, 3))
	g := NewResponseGenerator(inv, nil, nil)

	reply, err := g.Generate(context.Background(), testPersona(), whitening, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Nil(t, reply.Response)
	assert.NotNil(t, reply.Meta, "usage is still reported")
}

func TestReviseQuotesOriginalAndClarification(t *testing.T) {
	inv := aitest.New().OnJSON("The moderator now clarifies", responseJSON(6, 5))
	g := NewResponseGenerator(inv, nil, nil)
	original := &domain.PersonaResponse{GutReaction: "Nonsense.", ConsideredView: "Can't be true.", PurchaseIntent: 2, CredibilityRating: 1}

	reply, err := g.Revise(context.Background(), testPersona(), whitening, original, "It's about gradual whitening.")
	require.NoError(t, err)
	assert.Equal(t, 6, reply.Response.PurchaseIntent)

	prompt := inv.Calls()[0].Prompt
	assert.Contains(t, prompt, "Nonsense. Can't be true.")
	assert.Contains(t, prompt, "purchase intent 2/10")
	assert.Contains(t, prompt, "It's about gradual whitening.")
}

func TestFollowUpReturnsTrimmedText(t *testing.T) {
	inv := aitest.New().OnText("The moderator asks you", "\n Mostly the price, honestly. \n")
	g := NewResponseGenerator(inv, nil, nil)

	text, meta, err := g.FollowUp(context.Background(), testPersona(), whitening, &domain.PersonaResponse{GutReaction: "Meh."}, "What bothers you?")
	require.NoError(t, err)
	assert.Equal(t, "Mostly the price, honestly.", text)
	assert.NotNil(t, meta)
}

func analysisJSON() map[string]any {
	return map[string]any{
		"pressure_score":               140,
		"gut_attraction_index":         61.6,
		"credibility_score":            -3,
		"purchase_intent_avg":          9.9,
		"purchase_intent_distribution": map[string]int{"10": 3},
		"key_strengths":                []string{"memorable"},
		"key_weaknesses":               []string{"unbelievable"},
		"credibility_gaps":             []string{"3 days"},
		"recommendations": []map[string]any{
			{"priority": 2, "action": "Soften the timeline"},
			{"priority": 1, "action": "Add dentist endorsement", "rationale": "trust"},
		},
		"verdict":        "Rework before launch.",
		"should_proceed": false,
	}
}

func TestAggregateRecomputesIntentLocally(t *testing.T) {
	inv := aitest.New().OnJSON("PANEL RESPONSES", analysisJSON())
	a := NewAggregator(inv, nil, nil)

	got, meta, err := a.Aggregate(context.Background(), AggregateInput{
		Stimulus: whitening,
		Responses: []PanelEntry{
			{PersonaName: "Dana", Archetype: "Skeptic", Response: &domain.PersonaResponse{PurchaseIntent: 2, CredibilityRating: 3}},
			{PersonaName: "Maria", Archetype: "Enthusiast", Response: &domain.PersonaResponse{PurchaseIntent: 7, CredibilityRating: 6}},
			{PersonaName: "Chris", Archetype: "Skeptic", Response: &domain.PersonaResponse{PurchaseIntent: 2, CredibilityRating: 2}},
			{PersonaName: "Ghost", Archetype: "Skeptic"},
		},
		GroupDynamics: "One clarification given.",
	})
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, 3.67, got.PurchaseIntentAvg)
	if diff := cmp.Diff(map[int]int{2: 2, 7: 1}, got.PurchaseIntentDistribution); diff != "" {
		t.Errorf("distribution mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 100, got.PressureScore)
	assert.Equal(t, 62, got.GutAttractionIndex)
	assert.Equal(t, 0, got.CredibilityScore)
	require.Len(t, got.Recommendations, 2)
	assert.Equal(t, "Add dentist endorsement", got.Recommendations[0].Action)

	prompt := inv.Calls()[0].Prompt
	assert.Contains(t, prompt, "PANEL RESPONSES (3)")
	assert.Contains(t, prompt, "One clarification given.")
	assert.NotContains(t, prompt, "Ghost")
}

func TestAggregateMissingVerdictFails(t *testing.T) {
	payload := analysisJSON()
	delete(payload, "verdict")
	a := NewAggregator(aitest.New().OnJSON("PANEL RESPONSES", payload), nil, nil)

	_, _, err := a.Aggregate(context.Background(), AggregateInput{
		Stimulus:  whitening,
		Responses: []PanelEntry{{PersonaName: "Dana", Response: &domain.PersonaResponse{PurchaseIntent: 5}}},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAggregateWithoutResponses(t *testing.T) {
	inv := aitest.New()
	_, _, err := NewAggregator(inv, nil, nil).Aggregate(context.Background(), AggregateInput{Stimulus: whitening})
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, inv.Calls())
}

func TestIntentStats(t *testing.T) {
	avg, dist := IntentStats([]*domain.PersonaResponse{{PurchaseIntent: 5}, {PurchaseIntent: 6}, nil})
	assert.Equal(t, 5.5, avg)
	assert.Equal(t, map[int]int{5: 1, 6: 1}, dist)

	avg, dist = IntentStats(nil)
	assert.Zero(t, avg)
	assert.Empty(t, dist)
}
