package persona

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/retrieval"
	"github.com/kapu/phantom-panel/internal/service/skepticism"
	"github.com/kapu/phantom-panel/internal/service/traits"
	"github.com/kapu/phantom-panel/pkg/errors"
)

type ArchetypeStore interface {
	GetArchetypeByID(ctx context.Context, id string) (*domain.PersonaArchetype, error)
	GetArchetypeBySlug(ctx context.Context, slug string) (*domain.PersonaArchetype, error)
}

type TraitStore interface {
	ListTraits(ctx context.Context, archetypeID string) ([]domain.PhantomTrait, error)
}

type MemoryRetriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

type BuildRequest struct {
	ArchetypeRef     string
	Stimulus         string
	Category         string
	Calibration      domain.SkepticismLevel
	EmotionalContext []string
	MemoryLimit      int
}

// BuildOutcome keeps the request index so callers can map failures back.
type BuildOutcome struct {
	Index   int
	Request BuildRequest
	Context *domain.PersonaContext
	Err     error
}

// Builder assembles a PersonaContext from archetype, memories, skepticism,
// traits and a freshly drawn identity.
type Builder struct {
	archetypes ArchetypeStore
	traitStore TraitStore
	cache      *ArchetypeCache
	retriever  MemoryRetriever
	identities *IdentityGenerator
	prompts    *prompt.PromptBuilder
	logger     *zap.Logger
}

func NewBuilder(
	archetypes ArchetypeStore,
	traitStore TraitStore,
	cache *ArchetypeCache,
	retriever MemoryRetriever,
	identities *IdentityGenerator,
	prompts *prompt.PromptBuilder,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewArchetypeCache(constants.CacheTTL.Archetype, logger)
	}
	if identities == nil {
		identities = NewIdentityGenerator(nil)
	}
	if prompts == nil {
		prompts = prompt.DefaultPromptBuilder()
	}
	return &Builder{
		archetypes: archetypes,
		traitStore: traitStore,
		cache:      cache,
		retriever:  retriever,
		identities: identities,
		prompts:    prompts,
		logger:     logger,
	}
}

// ResolveArchetype looks ref up as an id when it parses as a UUID and as a
// slug otherwise. An unknown ref is a NotFoundError; there is no default.
func (b *Builder) ResolveArchetype(ctx context.Context, ref string) (*domain.PersonaArchetype, error) {
	if ref == "" {
		return nil, errors.NewNotFoundError("archetype", ref)
	}
	return b.cache.GetOrLoad(ctx, ref, b.loadArchetype)
}

func (b *Builder) loadArchetype(ctx context.Context, ref string) (*domain.PersonaArchetype, error) {
	var (
		a   *domain.PersonaArchetype
		err error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		a, err = b.archetypes.GetArchetypeByID(ctx, ref)
	} else {
		a, err = b.archetypes.GetArchetypeBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.NewNotFoundError("archetype", ref)
	}
	return a, nil
}

func (b *Builder) Build(ctx context.Context, req BuildRequest) (*domain.PersonaContext, error) {
	archetype, err := b.ResolveArchetype(ctx, req.ArchetypeRef)
	if err != nil {
		return nil, err
	}

	limit := req.MemoryLimit
	if limit <= 0 {
		limit = constants.PanelDefaults.MemoryLimit
	}
	memories, err := b.retriever.Retrieve(ctx, retrieval.Request{
		ArchetypeID: archetype.ID,
		Stimulus:    req.Stimulus,
		Category:    req.Category,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve memories for %s: %w", archetype.Slug, err)
	}

	candidates, err := b.traitStore.ListTraits(ctx, archetype.ID)
	if err != nil {
		return nil, fmt.Errorf("list traits for %s: %w", archetype.Slug, err)
	}

	pc := &domain.PersonaContext{
		ID:                 uuid.NewString(),
		Archetype:          archetype,
		Identity:           b.identities.Generate(archetype),
		Skepticism:         skepticism.Calculate(archetype.BaselineSkepticism, req.Calibration, memories.TrustModifiers()),
		Memories:           memories.Memories,
		MemoryFallbackUsed: memories.FallbackUsed,
		Traits:             traits.Activate(candidates, req.Stimulus, memories.Claims, req.EmotionalContext),
	}
	pc.Narratives = domain.PersonaNarratives{
		Memory:     retrieval.Narrative(memories),
		Skepticism: skepticism.Narrative(pc.Skepticism),
		Traits:     traits.Narrative(pc.Traits),
	}
	if pc.Narratives.SystemPrompt, err = b.renderSystemPrompt(pc); err != nil {
		return nil, err
	}

	b.logger.Debug("Persona context built",
		zap.String("persona", pc.Identity.Name),
		zap.String("archetype", archetype.Slug),
		zap.Int("skepticism", pc.Skepticism.Level),
		zap.Int("memories", len(pc.Memories)),
		zap.Bool("memory_fallback", pc.MemoryFallbackUsed),
		zap.Int("traits", pc.Traits.Count()),
	)
	return pc, nil
}

// BuildAll builds contexts concurrently. Results keep request order and one
// persona's failure does not affect the others.
func (b *Builder) BuildAll(ctx context.Context, reqs []BuildRequest, concurrency int) []BuildOutcome {
	if concurrency <= 0 {
		concurrency = constants.PanelDefaults.ContextConcurrency
	}

	outcomes := make([]BuildOutcome, len(reqs))
	p := pool.New().WithMaxGoroutines(concurrency)
	for idx, req := range reqs {
		p.Go(func() {
			pc, err := b.Build(ctx, req)
			outcomes[idx] = BuildOutcome{Index: idx, Request: req, Context: pc, Err: err}
		})
	}
	p.Wait()
	return outcomes
}

func (b *Builder) renderSystemPrompt(pc *domain.PersonaContext) (string, error) {
	a := pc.Archetype
	rendered, err := b.prompts.Render(prompt.TemplatePersonaSystem, prompt.PersonaSystemData{
		Name:            pc.Identity.Name,
		Age:             pc.Identity.Age,
		Location:        pc.Identity.Location,
		ArchetypeName:   a.Name,
		Description:     a.Description,
		Occupation:      a.Demographics.Occupation,
		IncomeBracket:   a.Demographics.IncomeBracket,
		Education:       a.Demographics.Education,
		Values:          a.Psychographics.Values,
		PainPoints:      a.Psychographics.PainPoints,
		BuyingStyle:     a.Psychographics.BuyingStyle,
		VoiceTone:       a.Voice.Tone,
		VoiceVocabulary: a.Voice.Vocabulary,
		VoiceQuirks:     a.Voice.Quirks,
		SkepticismText:  pc.Narratives.Skepticism,
		MemoryText:      pc.Narratives.Memory,
		TraitText:       pc.Narratives.Traits,
	})
	if err != nil {
		return "", fmt.Errorf("render persona prompt: %w", err)
	}
	return rendered.User, nil
}
