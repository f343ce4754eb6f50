package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/brief"
	"github.com/kapu/phantom-panel/internal/service/moderation"
	"github.com/kapu/phantom-panel/internal/service/persona"
	"github.com/kapu/phantom-panel/internal/service/synthesis"
	"github.com/kapu/phantom-panel/pkg/errors"
)

type BriefAnalyzer interface {
	Analyze(ctx context.Context, in brief.Input) (*domain.BriefAnalysis, *ai.GenerateMetadata, error)
}

type ContextBuilder interface {
	BuildAll(ctx context.Context, reqs []persona.BuildRequest, concurrency int) []persona.BuildOutcome
}

type Responder interface {
	Generate(ctx context.Context, p *domain.PersonaContext, stimulus synthesis.StimulusInput, introduction string) (synthesis.Reply, error)
	Revise(ctx context.Context, p *domain.PersonaContext, stimulus synthesis.StimulusInput, original *domain.PersonaResponse, clarification string) (synthesis.Reply, error)
	FollowUp(ctx context.Context, p *domain.PersonaContext, stimulus synthesis.StimulusInput, original *domain.PersonaResponse, question string) (string, *ai.GenerateMetadata, error)
}

type Moderator interface {
	Introduction(ctx context.Context, stimulus string, stimulusType domain.StimulusType, panelSize int) moderation.Line
	Generate(ctx context.Context, p *domain.PersonaContext, d moderation.Determination, responseText string, b *domain.BriefAnalysis) (moderation.Line, error)
	Closing(ctx context.Context, panelSize, responseCount, clarified int) moderation.Line
}

type Options struct {
	BatchSize          int
	ContextConcurrency int
	MinViableResponses int
	// MaxFollowUps applies when the test does not set its own cap.
	MaxFollowUps int
	MemoryLimit  int
}

func DefaultOptions() Options {
	return Options{
		BatchSize:          constants.PanelDefaults.BatchSize,
		ContextConcurrency: constants.PanelDefaults.ContextConcurrency,
		MinViableResponses: constants.PanelDefaults.MinViableResponses,
		MaxFollowUps:       constants.PanelDefaults.MaxFollowUps,
		MemoryLimit:        constants.PanelDefaults.MemoryLimit,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.ContextConcurrency <= 0 {
		o.ContextConcurrency = d.ContextConcurrency
	}
	if o.MinViableResponses <= 0 {
		o.MinViableResponses = d.MinViableResponses
	}
	if o.MaxFollowUps <= 0 {
		o.MaxFollowUps = d.MaxFollowUps
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = d.MemoryLimit
	}
	return o
}

// Member is one persona seated on the panel.
type Member struct {
	Request   persona.BuildRequest
	Persona   *domain.PersonaContext
	Initial   *domain.PersonaResponse
	Revised   *domain.PersonaResponse
	Clarified bool
	// Turns counts the persona's own turns.
	Turns int
}

// Final is the revised response when there is one.
func (m *Member) Final() *domain.PersonaResponse {
	if m.Revised != nil {
		return m.Revised
	}
	return m.Initial
}

// Session is the full state of one run. It is returned even when the run
// fails so callers can persist what happened.
type Session struct {
	TestID     string
	Phase      Phase
	Brief      *domain.BriefAnalysis
	Members    []*Member
	Turns      []domain.ConversationTurn
	Failures   []domain.PersonaFailure
	Moderation domain.ModerationImpact
	Usage      *UsageTracker
	StartedAt  time.Time
	FinishedAt time.Time

	shifts []domain.ViewShift
}

// Responded lists members with a valid initial response, in panel order.
func (s *Session) Responded() []*Member {
	out := make([]*Member, 0, len(s.Members))
	for _, m := range s.Members {
		if m.Initial != nil {
			out = append(out, m)
		}
	}
	return out
}

// Orchestrator drives one focus-group conversation through its phases.
type Orchestrator struct {
	analyzer  BriefAnalyzer
	builder   ContextBuilder
	responder Responder
	moderator Moderator
	observer  Observer
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrchestrator(
	analyzer BriefAnalyzer,
	builder ContextBuilder,
	responder Responder,
	moderator Moderator,
	observer Observer,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NewLogObserver(logger)
	}
	return &Orchestrator{
		analyzer:  analyzer,
		builder:   builder,
		responder: responder,
		moderator: moderator,
		observer:  observer,
		opts:      opts.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// run carries per-call state so the Orchestrator itself stays shareable.
type run struct {
	o        *Orchestrator
	cfg      *domain.TestConfig
	session  *Session
	machine  phaseMachine
	stimulus synthesis.StimulusInput
	mu       sync.Mutex
}

// Run executes every phase in order. A brief analysis failure or too few
// initial responses aborts the run; individual persona failures do not.
func (o *Orchestrator) Run(ctx context.Context, cfg *domain.TestConfig) (*Session, error) {
	r := &run{
		o:   o,
		cfg: cfg,
		session: &Session{
			TestID:    cfg.ID,
			Usage:     NewUsageTracker(),
			StartedAt: o.now(),
			Turns:     []domain.ConversationTurn{},
		},
		stimulus: synthesis.StimulusInput{Text: cfg.StimulusText, Type: cfg.StimulusType},
	}
	err := r.execute(ctx)
	r.session.FinishedAt = o.now()
	return r.session, err
}

func (r *run) execute(ctx context.Context) error {
	steps := []struct {
		phase Phase
		fn    func(context.Context) (string, error)
	}{
		{PhaseBriefAnalysis, r.analyzeBrief},
		{PhaseContextAssembly, r.assembleContexts},
		{PhaseIntroduction, r.introduce},
		{PhaseInitialResponses, r.collectInitialResponses},
		{PhaseModeratedFollowUps, r.moderate},
		{PhaseClosing, r.close},
		{PhaseImpactComputation, r.computeImpact},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.enter(ctx, step.phase); err != nil {
			return err
		}
		summary, err := step.fn(ctx)
		if err != nil {
			return err
		}
		r.emit(ctx, Event{Kind: EventPhaseCompleted, Phase: step.phase, Message: summary})
	}
	return r.enter(ctx, PhaseDone)
}

func (r *run) enter(ctx context.Context, phase Phase) error {
	if err := r.machine.advance(phase); err != nil {
		return err
	}
	r.session.Phase = phase
	if phase != PhaseDone {
		r.emit(ctx, Event{Kind: EventPhaseStarted, Phase: phase})
	}
	return nil
}

func (r *run) analyzeBrief(ctx context.Context) (string, error) {
	analysis, meta, err := r.o.analyzer.Analyze(ctx, brief.Input{
		Stimulus:      r.cfg.StimulusText,
		CreativeBrief: r.cfg.CreativeBrief,
		StimulusType:  r.cfg.StimulusType,
	})
	r.session.Usage.Record(PhaseBriefAnalysis, meta)
	if err != nil {
		return "", fmt.Errorf("brief analysis: %w", err)
	}
	r.session.Brief = analysis
	return fmt.Sprintf("%d red flags, moderation needed: %t", len(analysis.RedFlags), analysis.ModerationNeeded), nil
}

func (r *run) assembleContexts(ctx context.Context) (string, error) {
	reqs := make([]persona.BuildRequest, 0, len(r.cfg.ArchetypeRefs))
	for _, ref := range r.cfg.ArchetypeRefs {
		reqs = append(reqs, persona.BuildRequest{
			ArchetypeRef:     ref,
			Stimulus:         r.cfg.StimulusText,
			Category:         r.cfg.ProductCategory,
			Calibration:      r.cfg.Calibration,
			EmotionalContext: r.cfg.EmotionalContext,
			MemoryLimit:      r.o.opts.MemoryLimit,
		})
	}

	for _, out := range r.o.builder.BuildAll(ctx, reqs, r.o.opts.ContextConcurrency) {
		if out.Err != nil {
			r.fail(ctx, domain.PersonaFailure{
				ArchetypeRef: out.Request.ArchetypeRef,
				Phase:        string(PhaseContextAssembly),
				Error:        out.Err.Error(),
			})
			continue
		}
		r.session.Members = append(r.session.Members, &Member{Request: out.Request, Persona: out.Context})
	}
	return fmt.Sprintf("%d of %d personas assembled", len(r.session.Members), len(reqs)), nil
}

func (r *run) introduce(ctx context.Context) (string, error) {
	line := r.o.moderator.Introduction(ctx, r.cfg.StimulusText, r.cfg.StimulusType, len(r.session.Members))
	r.session.Usage.Record(PhaseIntroduction, line.Meta)
	r.appendTurn(ctx, domain.ConversationTurn{
		Speaker: domain.SpeakerModerator,
		Type:    domain.TurnIntroduction,
		Content: line.Text,
	})
	return "", nil
}

type initialReply struct {
	reply synthesis.Reply
	err   error
}

// collectInitialResponses runs fixed-size batches one after another; members
// inside a batch run concurrently. Turns are appended in panel order once a
// batch finishes so numbering does not depend on scheduling.
func (r *run) collectInitialResponses(ctx context.Context) (string, error) {
	introduction := ""
	if len(r.session.Turns) > 0 {
		introduction = r.session.Turns[0].Content
	}

	members := r.session.Members
	size := r.o.opts.BatchSize
	for start := 0; start < len(members); start += size {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		batch := members[start:min(start+size, len(members))]
		replies := make([]initialReply, len(batch))

		p := pool.New().WithMaxGoroutines(len(batch))
		for idx, m := range batch {
			p.Go(func() {
				reply, err := r.o.responder.Generate(ctx, m.Persona, r.stimulus, introduction)
				replies[idx] = initialReply{reply: reply, err: err}
			})
		}
		p.Wait()

		for idx, m := range batch {
			res := replies[idx]
			r.session.Usage.Record(PhaseInitialResponses, res.reply.Meta)
			if res.err != nil {
				r.failMember(ctx, m, PhaseInitialResponses, res.err)
				continue
			}
			m.Initial = res.reply.Response
			m.Turns++
			r.appendTurn(ctx, personaTurn(m, domain.TurnInitialResponse, synthesis.Summary(m.Initial), m.Initial, 0))
		}
	}

	// a cancelled run must not be reported as an undersized panel
	if err := ctx.Err(); err != nil {
		return "", err
	}
	responded := len(r.session.Responded())
	if responded < r.o.opts.MinViableResponses {
		return "", errors.NewInsufficientPanelError(responded, r.o.opts.MinViableResponses)
	}
	return fmt.Sprintf("%d of %d personas responded", responded, len(members)), nil
}

func (r *run) moderate(ctx context.Context) (string, error) {
	if !r.cfg.EnableModeration || r.session.Brief == nil || !r.session.Brief.ModerationNeeded {
		return "skipped", nil
	}

	limit := r.cfg.MaxFollowUps
	if limit <= 0 {
		limit = r.o.opts.MaxFollowUps
	}

	responded := r.session.Responded()
	byID := make(map[string]*Member, len(responded))
	determinations := make([]moderation.Determination, 0, len(responded))
	for _, m := range responded {
		byID[m.Persona.ID] = m
		determinations = append(determinations, moderation.Determine(moderation.DetermineInput{
			PersonaID:        m.Persona.ID,
			ResponseText:     m.Initial.Text(),
			Brief:            r.session.Brief,
			AlreadyClarified: m.Clarified,
			TurnNumber:       m.Turns,
		}))
	}

	selected := moderation.Select(determinations, limit)
	for _, d := range selected {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r.followUp(ctx, byID[d.PersonaID], d)
	}
	return fmt.Sprintf("%d follow-ups", len(selected)), nil
}

// followUp runs one moderator intervention. Failures only affect this persona.
func (r *run) followUp(ctx context.Context, m *Member, d moderation.Determination) {
	line, err := r.o.moderator.Generate(ctx, m.Persona, d, m.Initial.Text(), r.session.Brief)
	r.session.Usage.Record(PhaseModeratedFollowUps, line.Meta)
	if err != nil {
		r.failMember(ctx, m, PhaseModeratedFollowUps, err)
		return
	}

	modTurn := r.appendTurn(ctx, domain.ConversationTurn{
		Speaker:     domain.SpeakerModerator,
		PersonaID:   m.Persona.ID,
		PersonaName: m.Persona.DisplayName(),
		Type:        d.TurnType(),
		Content:     line.Text,
	})

	if d.Type == moderation.FollowUpClarification {
		m.Clarified = true
		reply, err := r.o.responder.Revise(ctx, m.Persona, r.stimulus, m.Initial, line.Text)
		r.session.Usage.Record(PhaseModeratedFollowUps, reply.Meta)
		if err != nil {
			r.failMember(ctx, m, PhaseModeratedFollowUps, err)
			return
		}
		m.Revised = reply.Response
		m.Turns++
		r.appendTurn(ctx, personaTurn(m, domain.TurnRevisedResponse, synthesis.Summary(m.Revised), m.Revised, modTurn.TurnNumber))
		r.session.shifts = append(r.session.shifts, ViewShifts(m.Persona, m.Initial, m.Revised)...)
		return
	}

	answer, meta, err := r.o.responder.FollowUp(ctx, m.Persona, r.stimulus, m.Initial, line.Text)
	r.session.Usage.Record(PhaseModeratedFollowUps, meta)
	if err != nil {
		r.failMember(ctx, m, PhaseModeratedFollowUps, err)
		return
	}
	m.Turns++
	r.appendTurn(ctx, personaTurn(m, domain.TurnFollowUp, answer, nil, modTurn.TurnNumber))
}

func (r *run) close(ctx context.Context) (string, error) {
	clarified := 0
	for _, m := range r.session.Members {
		if m.Clarified {
			clarified++
		}
	}
	line := r.o.moderator.Closing(ctx, len(r.session.Members), len(r.session.Responded()), clarified)
	r.session.Usage.Record(PhaseClosing, line.Meta)
	r.appendTurn(ctx, domain.ConversationTurn{
		Speaker: domain.SpeakerModerator,
		Type:    domain.TurnClosing,
		Content: line.Text,
	})
	return "", nil
}

func (r *run) computeImpact(_ context.Context) (string, error) {
	var clarified []string
	for _, m := range r.session.Members {
		if m.Clarified {
			clarified = append(clarified, m.Persona.ID)
		}
	}
	r.session.Moderation = ComputeImpact(clarified, r.session.shifts)
	return fmt.Sprintf("clarified %d, salvage rate %.2f%%", r.session.Moderation.PersonasClarified, r.session.Moderation.SalvageRate), nil
}

// appendTurn numbers and records a turn. The log is append-only.
func (r *run) appendTurn(ctx context.Context, turn domain.ConversationTurn) domain.ConversationTurn {
	r.mu.Lock()
	turn.ID = uuid.NewString()
	turn.TestID = r.session.TestID
	turn.TurnNumber = len(r.session.Turns) + 1
	turn.CreatedAt = r.o.now()
	r.session.Turns = append(r.session.Turns, turn)
	r.mu.Unlock()

	r.emit(ctx, Event{Kind: EventTurnAppended, Phase: r.session.Phase, Turn: &turn})
	return turn
}

func (r *run) failMember(ctx context.Context, m *Member, phase Phase, err error) {
	r.fail(ctx, domain.PersonaFailure{
		ArchetypeRef: m.Request.ArchetypeRef,
		PersonaID:    m.Persona.ID,
		Phase:        string(phase),
		Error:        err.Error(),
	})
}

func (r *run) fail(ctx context.Context, f domain.PersonaFailure) {
	r.mu.Lock()
	r.session.Failures = append(r.session.Failures, f)
	r.mu.Unlock()
	r.emit(ctx, Event{Kind: EventPersonaFailed, Phase: r.session.Phase, Failure: &f})
}

func (r *run) emit(ctx context.Context, e Event) {
	e.TestID = r.session.TestID
	e.At = r.o.now()
	r.o.observer.OnEvent(ctx, e)
}

func personaTurn(m *Member, kind domain.TurnType, content string, resp *domain.PersonaResponse, ref int) domain.ConversationTurn {
	return domain.ConversationTurn{
		Speaker:        domain.SpeakerPersona,
		PersonaID:      m.Persona.ID,
		PersonaName:    m.Persona.DisplayName(),
		Type:           kind,
		Content:        content,
		Response:       resp,
		ReferencesTurn: ref,
	}
}
