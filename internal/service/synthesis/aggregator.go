package synthesis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/util"
	"github.com/kapu/phantom-panel/pkg/errors"
)

// PanelEntry is one persona's final position going into synthesis.
type PanelEntry struct {
	PersonaName string
	Archetype   string
	Response    *domain.PersonaResponse
}

type AggregateInput struct {
	Stimulus      StimulusInput
	CreativeBrief string
	Responses     []PanelEntry
	GroupDynamics string
}

// Aggregator turns the panel's responses into one scored analysis.
type Aggregator struct {
	invoker ai.Invoker
	prompts *prompt.PromptBuilder
	logger  *zap.Logger
}

func NewAggregator(invoker ai.Invoker, prompts *prompt.PromptBuilder, logger *zap.Logger) *Aggregator {
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{invoker: invoker, prompts: prompts, logger: logger}
}

// Aggregate makes the synthesis call. The purchase intent average and
// distribution are always recomputed from the raw responses and overwrite
// whatever the model reported.
func (a *Aggregator) Aggregate(ctx context.Context, in AggregateInput) (*domain.AggregatedAnalysis, *ai.GenerateMetadata, error) {
	entries := make([]PanelEntry, 0, len(in.Responses))
	for _, e := range in.Responses {
		if e.Response != nil {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, nil, errors.NewValidationError("no responses to aggregate", "responses", 0)
	}

	data := prompt.SynthesisData{
		Stimulus:      in.Stimulus.Text,
		StimulusType:  humanType(in.Stimulus.Type),
		CreativeBrief: in.CreativeBrief,
		GroupDynamics: in.GroupDynamics,
		Responses:     make([]prompt.SynthesisResponse, 0, len(entries)),
	}
	responses := make([]*domain.PersonaResponse, 0, len(entries))
	for _, e := range entries {
		r := e.Response
		responses = append(responses, r)
		data.Responses = append(data.Responses, prompt.SynthesisResponse{
			PersonaName:       e.PersonaName,
			Archetype:         e.Archetype,
			GutReaction:       r.GutReaction,
			ConsideredView:    r.ConsideredView,
			PurchaseIntent:    r.PurchaseIntent,
			CredibilityRating: r.CredibilityRating,
			EmotionalResponse: string(r.EmotionalResponse),
			KeyConcerns:       r.KeyConcerns,
			WhatWouldConvince: r.WhatWouldConvince,
		})
	}

	rendered, err := a.prompts.Render(prompt.TemplateSynthesis, data)
	if err != nil {
		return nil, nil, fmt.Errorf("render synthesis prompt: %w", err)
	}
	preset, opts := ai.PromptCall(rendered, "")

	var payload domain.AggregatedAnalysisPayload
	meta, err := a.invoker.GenerateJSON(ctx, rendered.User, preset, &payload, opts)
	if err != nil {
		return nil, meta, err
	}
	analysis, err := domain.ValidateAggregatedAnalysis(&payload)
	if err != nil {
		a.logger.Warn("Synthesis rejected", zap.Error(err))
		return nil, meta, err
	}

	modelAvg := analysis.PurchaseIntentAvg
	analysis.PurchaseIntentAvg, analysis.PurchaseIntentDistribution = IntentStats(responses)
	if modelAvg != analysis.PurchaseIntentAvg {
		a.logger.Debug("Overrode model purchase intent average",
			zap.Float64("model", modelAvg),
			zap.Float64("computed", analysis.PurchaseIntentAvg),
		)
	}

	a.logger.Info("Panel synthesised",
		zap.Int("responses", len(responses)),
		zap.Int("pressure", analysis.PressureScore),
		zap.Int("gut_attraction", analysis.GutAttractionIndex),
		zap.Int("credibility", analysis.CredibilityScore),
		zap.Bool("should_proceed", analysis.ShouldProceed),
	)
	return analysis, meta, nil
}

// IntentStats returns the mean purchase intent (two decimals) and a count of
// responses per intent value.
func IntentStats(responses []*domain.PersonaResponse) (float64, map[int]int) {
	dist := make(map[int]int)
	values := make([]int, 0, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		values = append(values, r.PurchaseIntent)
		dist[r.PurchaseIntent]++
	}
	if len(values) == 0 {
		return 0, dist
	}
	return util.RoundTo(util.MeanInt(values), 2), dist
}
