package brief

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/pkg/errors"
)

type Input struct {
	Stimulus      string
	CreativeBrief string
	StimulusType  domain.StimulusType
}

// Analyzer asks the model how a stimulus is meant to be read and how it could
// be misread, before any persona sees it.
type Analyzer struct {
	invoker ai.Invoker
	prompts *prompt.PromptBuilder
	logger  *zap.Logger
}

func NewAnalyzer(invoker ai.Invoker, prompts *prompt.PromptBuilder, logger *zap.Logger) *Analyzer {
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{invoker: invoker, prompts: prompts, logger: logger}
}

// Analyze makes a single structured call. Output that breaks the brief
// contract is returned as a ValidationError; metadata is still returned when
// the call itself went through so usage can be counted.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*domain.BriefAnalysis, *ai.GenerateMetadata, error) {
	if strings.TrimSpace(in.Stimulus) == "" {
		return nil, nil, errors.NewValidationError("stimulus is empty", "stimulus", in.Stimulus)
	}
	stimulusType := in.StimulusType
	if !stimulusType.IsValid() {
		stimulusType = domain.StimulusConcept
	}

	rendered, err := a.prompts.Render(prompt.TemplateBriefAnalysis, prompt.BriefAnalysisData{
		Stimulus:      in.Stimulus,
		StimulusType:  humanType(stimulusType),
		CreativeBrief: strings.TrimSpace(in.CreativeBrief),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("render brief prompt: %w", err)
	}

	preset, opts := ai.PromptCall(rendered, "")
	var payload domain.BriefAnalysisPayload
	meta, err := a.invoker.GenerateJSON(ctx, rendered.User, preset, &payload, opts)
	if err != nil {
		return nil, meta, err
	}

	analysis, err := domain.ValidateBriefAnalysis(&payload)
	if err != nil {
		a.logger.Warn("Brief analysis rejected", zap.Error(err))
		return nil, meta, err
	}

	a.logger.Info("Brief analysed",
		zap.String("tone", analysis.PrimaryTone),
		zap.Int("red_flags", len(analysis.RedFlags)),
		zap.Bool("moderation_needed", analysis.ModerationNeeded),
		zap.String("priority", string(analysis.ModerationPriority)),
	)
	return analysis, meta, nil
}

func humanType(t domain.StimulusType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
