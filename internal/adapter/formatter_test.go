package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kapu/phantom-panel/internal/domain"
)

func sampleResult() *domain.TestResult {
	return &domain.TestResult{
		TestID: "t1",
		Status: domain.TestStatusCompleted,
		Analysis: &domain.AggregatedAnalysis{
			PressureScore: 72, GutAttractionIndex: 40, CredibilityScore: 35, PurchaseIntentAvg: 3.67,
			KeyStrengths: []string{"memorable", "short"},
			Recommendations: []domain.Recommendation{
				{Priority: 1, Action: "Soften the timeline", Rationale: "3 days reads as hype"},
				{Priority: 2, Action: "Add a dentist endorsement"},
			},
			Verdict: "Rework before launch.",
		},
		Moderation: domain.ModerationImpact{
			PersonasClarified: 2, PersonasSalvaged: 1, SalvageRate: 50,
			ViewShifts: []domain.ViewShift{
				{PersonaName: "Ava", Metric: "purchase_intent", Before: 2, After: 5},
				{PersonaName: "Ben", Metric: "credibility_rating", Before: 6, After: 4},
			},
		},
		Responses:  make([]domain.PersonaResponseRecord, 3),
		Usage: domain.UsageSummary{
			Total: domain.TokenUsage{InputTokens: 900, OutputTokens: 450},
			Cost:  domain.CostEstimate{TotalCost: 0.0125, Currency: "USD"},
		},
		Turns: []domain.ConversationTurn{
			{TurnNumber: 1, Speaker: domain.SpeakerModerator, Type: domain.TurnIntroduction, Content: "Welcome, everyone."},
			{TurnNumber: 2, Speaker: domain.SpeakerPersona, PersonaName: "Ava", Type: domain.TurnInitialResponse, Content: "Three days? Come on."},
			{TurnNumber: 3, Speaker: domain.SpeakerModerator, Type: domain.TurnClarification, Content: "It means visibly whiter."},
			{TurnNumber: 4, Speaker: domain.SpeakerPersona, PersonaName: "Ava", Type: domain.TurnRevisedResponse, Content: "Fair enough.", ReferencesTurn: 3},
		},
	}
}

func TestFormatSummary(t *testing.T) {
	out := NewReportFormatter(0).FormatSummary(sampleResult())

	assert.True(t, strings.HasPrefix(out, "Test t1: COMPLETED"), out)
	assert.Contains(t, out, "Panel: 3 responded, 0 failed")
	assert.Contains(t, out, "Pressure 72/100 | Gut attraction 40/100 | Credibility 35/100")
	assert.Contains(t, out, "Purchase intent avg 3.67/10")
	assert.Contains(t, out, "Verdict: Rework before launch. (do not proceed)")
	assert.Contains(t, out, "Strengths: memorable; short")
	assert.Contains(t, out, "1. Soften the timeline (3 days reads as hype)")
	assert.Contains(t, out, "2. Add a dentist endorsement")
	assert.Contains(t, out, "Moderation: 1 interventions, 2 clarified, 1 salvaged (50.00%)")
	assert.Contains(t, out, "  Ava purchase_intent 2 -> 5 (+3)")
	assert.Contains(t, out, "  Ben credibility_rating 6 -> 4 (-2)")
	assert.Contains(t, out, "Tokens: 900 in / 450 out, 0.0125 USD")
}

func TestFormatSummaryWithoutAnalysis(t *testing.T) {
	r := sampleResult()
	r.Status = domain.TestStatusFailed
	r.Analysis = nil
	r.Moderation = domain.ModerationImpact{}

	out := NewReportFormatter(0).FormatSummary(r)
	assert.Contains(t, out, "Test t1: FAILED")
	assert.NotContains(t, out, "Verdict")
	assert.NotContains(t, out, "Moderation")
}

func TestFormatTranscript(t *testing.T) {
	out := NewReportFormatter(12).FormatTranscript(sampleResult().Turns)

	assert.Contains(t, out, "[1] moderator (introduction)\n    Welcome, eve...")
	assert.Contains(t, out, "[2] persona Ava (initial_response)")
	assert.Contains(t, out, "[3] moderator (clarification)")
	assert.Contains(t, out, "[4] persona Ava (revised_response) re #3\n    Fair enough.")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestFormatEmpty(t *testing.T) {
	f := NewReportFormatter(0)
	assert.Equal(t, "No conversation turns.", f.FormatTranscript(nil))
	assert.Equal(t, "No result.", f.FormatReport(nil))
}
