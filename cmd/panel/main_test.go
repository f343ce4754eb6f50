package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/pkg/errors"
)

func TestParseTrust(t *testing.T) {
	got, err := parseTrust(" -2, -3,1 ")
	require.NoError(t, err)
	assert.Equal(t, []int{-2, -3, 1}, got)

	got, err = parseTrust("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseTrust("-2,x")
	assert.ErrorContains(t, err, `invalid trust modifier "x"`)
}

func TestSkepticismCommandComputesFromFlags(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"skepticism", "--baseline", "high", "--calibration", "medium", "--trust", "-2"})
	require.NoError(t, rootCmd.Execute())

	var result domain.SkepticismResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 9, result.Level)
	assert.Equal(t, 2, result.MemoryModifier)
}

func TestSummarize(t *testing.T) {
	s := summarize(&domain.TestResult{
		TestID:    "t1",
		Status:    domain.TestStatusPartial,
		Turns:     make([]domain.ConversationTurn, 7),
		Responses: make([]domain.PersonaResponseRecord, 3),
		Failures:  []domain.PersonaFailure{{PersonaID: "p4"}},
		Usage:     domain.UsageSummary{Cost: domain.CostEstimate{TotalCost: 0.01, Currency: "USD"}},
	})
	assert.Equal(t, 7, s.Turns)
	assert.Equal(t, 3, s.Responses)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 0.01, s.Cost.TotalCost)
}

func TestWriteResultFormats(t *testing.T) {
	result := &domain.TestResult{TestID: "t1", Status: domain.TestStatusCompleted}

	var text bytes.Buffer
	require.NoError(t, writeResult(&text, "text", result))
	assert.Contains(t, text.String(), "Test t1: COMPLETED")

	var summary bytes.Buffer
	require.NoError(t, writeResult(&summary, "json", result))
	assert.Contains(t, summary.String(), `"status": "completed"`)

	assert.Error(t, writeResult(&bytes.Buffer{}, "yaml", result))
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "validation", err: errors.NewValidationError("bad", "status", nil), want: 2},
		{name: "not found", err: errors.NewNotFoundError("test", "t1"), want: 3},
		{name: "wrapped small panel", err: fmt.Errorf("test t1 failed: %w", errors.NewInsufficientPanelError(1, 3)), want: 4},
		{name: "cancelled", err: fmt.Errorf("test t1 cancelled: %w", context.Canceled), want: 130},
		{name: "other", err: fmt.Errorf("boom"), want: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestNewTestConfig(t *testing.T) {
	cfg, err := newTestConfig(draftInput{
		Stimulus:         "<p>Whiter teeth <b>in 3 days</b></p>",
		StimulusType:     "tagline",
		Archetypes:       " skeptical-switcher, ,loyal-parent ",
		Calibration:      "high",
		Category:         "oral_care",
		EmotionalContext: "hopeful",
		Moderation:       true,
		MaxFollowUps:     2,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, "Whiter teeth in 3 days", cfg.StimulusText)
	assert.Equal(t, cfg.StimulusText, cfg.Name)
	assert.Equal(t, []string{"skeptical-switcher", "loyal-parent"}, cfg.ArchetypeRefs)
	assert.Equal(t, []string{"hopeful"}, cfg.EmotionalContext)
	assert.Equal(t, domain.SkepticismHigh, cfg.Calibration)
	assert.Equal(t, domain.TestStatusDraft, cfg.Status)
}

func TestNewTestConfigRejectsBadInput(t *testing.T) {
	valid := draftInput{Stimulus: "Whiter teeth", StimulusType: "tagline", Archetypes: "a", Calibration: "medium"}

	for _, tc := range []struct {
		name  string
		edit  func(in *draftInput)
		field string
	}{
		{name: "blank stimulus", edit: func(in *draftInput) { in.Stimulus = "  " }, field: "stimulus_text"},
		{name: "unknown type", edit: func(in *draftInput) { in.StimulusType = "jingle" }, field: "stimulus_type"},
		{name: "unknown calibration", edit: func(in *draftInput) { in.Calibration = "paranoid" }, field: "calibration"},
		{name: "no archetypes", edit: func(in *draftInput) { in.Archetypes = " , " }, field: "archetypes"},
		{name: "negative follow-ups", edit: func(in *draftInput) { in.MaxFollowUps = -1 }, field: "max_follow_ups"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.edit(&in)
			_, err := newTestConfig(in)
			var vErr *errors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestWriteArchetypes(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeArchetypes(&out, []*domain.PersonaArchetype{{
		Slug:               "skeptical-switcher",
		Name:               "Skeptical Switcher",
		BaselineSkepticism: domain.SkepticismHigh,
		Demographics:       domain.Demographics{AgeMin: 34, AgeMax: 48},
	}}))

	assert.Contains(t, out.String(), "SLUG")
	assert.Regexp(t, `skeptical-switcher\s+Skeptical Switcher\s+high\s+34-48`, out.String())
}
