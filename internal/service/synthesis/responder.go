package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
)

// StimulusInput is what every persona call needs to know about the stimulus.
type StimulusInput struct {
	Text string
	Type domain.StimulusType
}

// Reply is a validated structured persona response plus call metadata.
type Reply struct {
	Response *domain.PersonaResponse
	Meta     *ai.GenerateMetadata
}

// ResponseGenerator speaks as a persona. Every call carries the persona's
// system prompt.
type ResponseGenerator struct {
	invoker ai.Invoker
	prompts *prompt.PromptBuilder
	logger  *zap.Logger
}

func NewResponseGenerator(invoker ai.Invoker, prompts *prompt.PromptBuilder, logger *zap.Logger) *ResponseGenerator {
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseGenerator{invoker: invoker, prompts: prompts, logger: logger}
}

// Generate produces the persona's initial reaction.
func (g *ResponseGenerator) Generate(ctx context.Context, persona *domain.PersonaContext, stimulus StimulusInput, introduction string) (Reply, error) {
	rendered, err := g.prompts.Render(prompt.TemplatePersonaResponse, prompt.PersonaResponseData{
		Stimulus:     stimulus.Text,
		StimulusType: humanType(stimulus.Type),
		Introduction: introduction,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("render persona prompt: %w", err)
	}
	return g.structured(ctx, persona, rendered)
}

// Revise asks the persona to reconsider after a clarification.
func (g *ResponseGenerator) Revise(ctx context.Context, persona *domain.PersonaContext, stimulus StimulusInput, original *domain.PersonaResponse, clarification string) (Reply, error) {
	if original == nil {
		return Reply{}, fmt.Errorf("revise %s: no original response", persona.DisplayName())
	}
	rendered, err := g.prompts.Render(prompt.TemplatePersonaRevised, prompt.PersonaRevisedData{
		Stimulus:          stimulus.Text,
		OriginalResponse:  Summary(original),
		PurchaseIntent:    original.PurchaseIntent,
		CredibilityRating: original.CredibilityRating,
		Clarification:     clarification,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("render revision prompt: %w", err)
	}
	return g.structured(ctx, persona, rendered)
}

// FollowUp answers a moderator probe in free text.
func (g *ResponseGenerator) FollowUp(ctx context.Context, persona *domain.PersonaContext, stimulus StimulusInput, original *domain.PersonaResponse, question string) (string, *ai.GenerateMetadata, error) {
	rendered, err := g.prompts.Render(prompt.TemplatePersonaFollowUp, prompt.PersonaFollowUpData{
		Stimulus:         stimulus.Text,
		OriginalResponse: Summary(original),
		Question:         question,
	})
	if err != nil {
		return "", nil, fmt.Errorf("render follow-up prompt: %w", err)
	}

	preset, opts := ai.PromptCall(rendered, persona.Narratives.SystemPrompt)
	completion, err := g.invoker.Generate(ctx, rendered.User, preset, opts)
	if err != nil {
		return "", nil, err
	}
	meta := completion.GenerateMetadata
	return strings.TrimSpace(completion.Text), &meta, nil
}

func (g *ResponseGenerator) structured(ctx context.Context, persona *domain.PersonaContext, rendered prompt.Rendered) (Reply, error) {
	preset, opts := ai.PromptCall(rendered, persona.Narratives.SystemPrompt)

	var payload domain.PersonaResponsePayload
	meta, err := g.invoker.GenerateJSON(ctx, rendered.User, preset, &payload, opts)
	if err != nil {
		return Reply{Meta: meta}, err
	}
	resp, err := domain.ValidatePersonaResponse(&payload)
	if err != nil {
		g.logger.Warn("Persona response rejected",
			zap.String("persona", persona.DisplayName()),
			zap.Error(err),
		)
		return Reply{Meta: meta}, err
	}
	return Reply{Response: resp, Meta: meta}, nil
}

// Summary is the one-paragraph version of a response quoted back in later prompts.
func Summary(r *domain.PersonaResponse) string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if r.GutReaction != "" {
		parts = append(parts, r.GutReaction)
	}
	if r.ConsideredView != "" {
		parts = append(parts, r.ConsideredView)
	}
	return strings.Join(parts, " ")
}

func humanType(t domain.StimulusType) string {
	if t == "" {
		t = domain.StimulusConcept
	}
	return strings.ReplaceAll(string(t), "_", " ")
}
