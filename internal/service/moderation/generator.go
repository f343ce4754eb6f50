package moderation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/util"
)

var probeGuidance = map[FollowUpType]string{
	FollowUpProbeEmotional:   "Explore what made them feel that strongly, without agreeing or disagreeing.",
	FollowUpProbeSpecific:    "Ask which exact word, image or claim gave them that impression.",
	FollowUpProbeDeeper:      "Invite them to say more about what they are unsure of.",
	FollowUpProbeImprovement: "Ask what specifically would need to change for them to feel differently.",
}

const drawOutGuidance = "They said very little. Warmly invite them to expand on their first reaction."

// Line is one moderator utterance. Meta is nil when no model call was made.
type Line struct {
	Text     string
	Meta     *ai.GenerateMetadata
	Fallback bool
}

// Generator writes moderator lines. Only probes and the session bookends call
// the model; clarifications are taken verbatim from the brief.
type Generator struct {
	invoker ai.Invoker
	prompts *prompt.PromptBuilder
	logger  *zap.Logger
}

func NewGenerator(invoker ai.Invoker, prompts *prompt.PromptBuilder, logger *zap.Logger) *Generator {
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{invoker: invoker, prompts: prompts, logger: logger}
}

// Generate produces the moderator's line for a determination. responseText is
// what the persona said; brief supplies clarification context.
func (g *Generator) Generate(ctx context.Context, persona *domain.PersonaContext, d Determination, responseText string, brief *domain.BriefAnalysis) (Line, error) {
	switch {
	case d.Type == FollowUpClarification:
		return Line{Text: ClarificationText(d, brief)}, nil
	case d.Type == FollowUpAcknowledge:
		return Line{Text: fmt.Sprintf("Thank you, %s.", firstName(persona.DisplayName()))}, nil
	case d.Type.IsProbe():
		return g.probe(ctx, persona, d, responseText)
	default:
		return Line{}, fmt.Errorf("unknown follow-up type %q", d.Type)
	}
}

// ClarificationText is the matched red flag's clarification, or the brief's
// intended interpretation when the trigger was a generic misreading marker.
func ClarificationText(d Determination, brief *domain.BriefAnalysis) string {
	if d.MatchedFlag != nil && d.MatchedFlag.Clarification != "" {
		return d.MatchedFlag.Clarification
	}
	if brief != nil {
		return brief.IntendedInterpretation
	}
	return ""
}

func (g *Generator) probe(ctx context.Context, persona *domain.PersonaContext, d Determination, responseText string) (Line, error) {
	guidance := probeGuidance[d.Type]
	if d.DrawOut {
		guidance = drawOutGuidance
	}
	name := firstName(persona.DisplayName())

	rendered, err := g.prompts.Render(prompt.TemplateModeratorProbe, prompt.ModeratorProbeData{
		PersonaName:  name,
		ResponseText: util.TruncateString(responseText, 600),
		ProbeType:    strings.ReplaceAll(string(d.Type), "_", " "),
		Guidance:     guidance,
	})
	if err != nil {
		return Line{}, fmt.Errorf("render probe prompt: %w", err)
	}

	preset, opts := ai.PromptCall(rendered, "")
	completion, err := g.invoker.Generate(ctx, rendered.User, preset, opts)
	if err != nil {
		return Line{}, err
	}
	meta := completion.GenerateMetadata
	return Line{Text: strings.TrimSpace(completion.Text), Meta: &meta}, nil
}

// Introduction opens the session. A failed call falls back to a fixed line.
func (g *Generator) Introduction(ctx context.Context, stimulus string, stimulusType domain.StimulusType, panelSize int) Line {
	rendered, err := g.prompts.Render(prompt.TemplateModeratorIntro, prompt.ModeratorIntroData{
		Stimulus:     stimulus,
		StimulusType: strings.ReplaceAll(string(stimulusType), "_", " "),
		PanelSize:    panelSize,
	})
	if err != nil {
		g.logger.Warn("Introduction prompt failed", zap.Error(err))
		return Line{Text: defaultIntroduction, Fallback: true}
	}
	return g.freeText(ctx, rendered, defaultIntroduction)
}

// Closing ends the session. A failed call falls back to a fixed line.
func (g *Generator) Closing(ctx context.Context, panelSize, responseCount, clarified int) Line {
	rendered, err := g.prompts.Render(prompt.TemplateModeratorClosing, prompt.ModeratorClosingData{
		PanelSize:     panelSize,
		Clarified:     clarified,
		ResponseCount: responseCount,
	})
	if err != nil {
		g.logger.Warn("Closing prompt failed", zap.Error(err))
		return Line{Text: defaultClosing, Fallback: true}
	}
	return g.freeText(ctx, rendered, defaultClosing)
}

const (
	defaultIntroduction = "Thanks for joining today. I'm going to show you something and I'd like your honest first reaction. There are no wrong answers."
	defaultClosing      = "That's everything for today. Thank you all for your time and your honesty."
)

func (g *Generator) freeText(ctx context.Context, rendered prompt.Rendered, fallback string) Line {
	preset, opts := ai.PromptCall(rendered, "")
	completion, err := g.invoker.Generate(ctx, rendered.User, preset, opts)
	if err != nil {
		g.logger.Warn("Moderator line generation failed, using fallback", zap.Error(err))
		return Line{Text: fallback, Fallback: true}
	}
	text := strings.TrimSpace(completion.Text)
	meta := completion.GenerateMetadata
	if text == "" {
		return Line{Text: fallback, Meta: &meta, Fallback: true}
	}
	return Line{Text: text, Meta: &meta}
}

func firstName(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}
