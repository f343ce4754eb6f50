package brief

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/ai/aitest"
	apperrors "github.com/kapu/phantom-panel/pkg/errors"
)

const analysePrompt = "Analyse the following"

func validBrief() map[string]any {
	return map[string]any{
		"primary_tone":            "ironic",
		"secondary_tone":          "warm",
		"creative_devices":        []string{"hyperbole"},
		"intended_interpretation": "So gentle it feels like nothing at all.",
		"literal_interpretation":  "The product does nothing.",
		"red_flags": []map[string]string{
			{"pattern": "does nothing at all", "clarification": "The line means it is so gentle you barely notice it."},
		},
		"moderation_needed":   true,
		"moderation_priority": "HIGH",
	}
}

func TestAnalyzeReturnsValidatedBrief(t *testing.T) {
	inv := aitest.New().OnJSON(analysePrompt, validBrief())
	a := NewAnalyzer(inv, nil, nil)

	got, meta, err := a.Analyze(context.Background(), Input{
		Stimulus:      "The toothpaste that does absolutely nothing.",
		CreativeBrief: "Deadpan humour about gentleness.",
		StimulusType:  domain.StimulusTagline,
	})
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, "ironic", got.PrimaryTone)
	assert.True(t, got.ModerationNeeded)
	assert.Equal(t, domain.ModerationPriorityHigh, got.ModerationPriority)
	require.Len(t, got.RedFlags, 1)
	assert.Equal(t, "does nothing at all", got.RedFlags[0].Pattern)

	calls := inv.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].JSON)
	assert.Equal(t, ai.PresetPrecise, calls[0].Preset)
	assert.Contains(t, calls[0].Prompt, "Deadpan humour")
	assert.Contains(t, calls[0].Prompt, "tagline")
	assert.Contains(t, calls[0].System, "creative strategist")
}

func TestAnalyzeMissingFieldIsHardFailure(t *testing.T) {
	payload := validBrief()
	delete(payload, "moderation_needed")
	a := NewAnalyzer(aitest.New().OnJSON(analysePrompt, payload), nil, nil)

	got, meta, err := a.Analyze(context.Background(), Input{Stimulus: "x"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.NotNil(t, meta)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAnalyzeMalformedJSON(t *testing.T) {
	a := NewAnalyzer(aitest.New().OnText(analysePrompt, "{not json"), nil, nil)

	_, _, err := a.Analyze(context.Background(), Input{Stimulus: "x"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAnalyzeRejectsEmptyStimulus(t *testing.T) {
	inv := aitest.New()
	a := NewAnalyzer(inv, nil, nil)

	_, _, err := a.Analyze(context.Background(), Input{Stimulus: "   "})
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, inv.Calls())
}

func TestAnalyzeRedFlagWithoutClarification(t *testing.T) {
	payload := validBrief()
	payload["red_flags"] = []map[string]string{{"pattern": "does nothing"}}
	a := NewAnalyzer(aitest.New().OnJSON(analysePrompt, payload), nil, nil)

	_, _, err := a.Analyze(context.Background(), Input{Stimulus: "x"})
	assert.True(t, apperrors.IsValidation(err))
}
