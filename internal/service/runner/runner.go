// Package runner owns the lifecycle of a panel test: status transitions,
// the conversation run, synthesis and persistence of everything produced.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/conversation"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
	"github.com/kapu/phantom-panel/internal/service/synthesis"
	"github.com/kapu/phantom-panel/pkg/errors"
)

const phaseSynthesis = "synthesis"

type TestStore interface {
	GetTest(ctx context.Context, id string) (*domain.TestConfig, error)
	TransitionStatus(ctx context.Context, id string, from []domain.TestStatus, to domain.TestStatus) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.TestStatus, message string) error
}

type ResultStore interface {
	ReplaceTurns(ctx context.Context, testID string, turns []domain.ConversationTurn) error
	SaveResponses(ctx context.Context, records []domain.PersonaResponseRecord) error
	SaveResult(ctx context.Context, result *domain.TestResult) error
}

type Conversation interface {
	Run(ctx context.Context, cfg *domain.TestConfig) (*conversation.Session, error)
}

type Synthesizer interface {
	Aggregate(ctx context.Context, in synthesis.AggregateInput) (*domain.AggregatedAnalysis, *ai.GenerateMetadata, error)
}

type RunOptions struct {
	// Retry allows re-running a test that previously failed.
	Retry bool
}

// Runner is safe for concurrent use across different tests.
type Runner struct {
	tests        TestStore
	results      ResultStore
	conversation Conversation
	synthesizer  Synthesizer
	pricing      conversation.Pricing
	logger       *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewRunner(
	tests TestStore,
	results ResultStore,
	conv Conversation,
	synthesizer Synthesizer,
	pricing conversation.Pricing,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		tests:        tests,
		results:      results,
		conversation: conv,
		synthesizer:  synthesizer,
		pricing:      pricing,
		logger:       logger,
		active:       make(map[string]context.CancelFunc),
	}
}

// Run executes one test end to end. The returned result reflects what was
// persisted; it is non-nil whenever the test reached the running state.
func (r *Runner) Run(ctx context.Context, testID string, opts RunOptions) (*domain.TestResult, error) {
	cfg, err := r.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test: %w", err)
	}
	if cfg == nil {
		return nil, errors.NewNotFoundError("test", testID)
	}

	// Pasted landing-page or email markup is reduced to its visible text.
	text, err := stimulus.Normalize(cfg.StimulusText)
	if err != nil {
		return nil, errors.NewValidationError(err.Error(), "stimulus_text", nil)
	}
	if text == "" {
		return nil, errors.NewValidationError("stimulus text is empty", "stimulus_text", nil)
	}
	cfg.StimulusText = text

	from := []domain.TestStatus{domain.TestStatusDraft}
	if opts.Retry {
		from = append(from, domain.TestStatusFailed)
	}
	ok, err := r.tests.TransitionStatus(ctx, testID, from, domain.TestStatusRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewValidationError(
			fmt.Sprintf("test %s cannot be started from status %s", testID, cfg.Status), "status", cfg.Status)
	}
	cfg.Status = domain.TestStatusRunning

	runCtx, cancel := context.WithCancel(ctx)
	r.track(testID, cancel)
	defer r.untrack(testID)
	defer cancel()

	r.logger.Info("Test started",
		zap.String("test_id", testID),
		zap.Int("panel_size", len(cfg.ArchetypeRefs)),
		zap.Bool("moderation", cfg.EnableModeration),
	)

	session, runErr := r.conversation.Run(runCtx, cfg)
	if session == nil {
		session = &conversation.Session{TestID: testID, Usage: conversation.NewUsageTracker()}
	}

	var analysis *domain.AggregatedAnalysis
	if runErr == nil {
		analysis, runErr = r.aggregate(runCtx, cfg, session)
	}

	status, message := outcome(session, runErr)
	// Persist with a context that survives cancellation of the run.
	persistCtx := context.WithoutCancel(ctx)
	result := r.buildResult(session, status, analysis)

	if err := r.persist(persistCtx, result); err != nil {
		r.logger.Error("Failed to persist test result", zap.String("test_id", testID), zap.Error(err))
		if uerr := r.tests.UpdateStatus(persistCtx, testID, domain.TestStatusFailed, err.Error()); uerr != nil {
			r.logger.Error("Failed to mark test failed", zap.String("test_id", testID), zap.Error(uerr))
		}
		result.Status = domain.TestStatusFailed
		return result, err
	}
	if err := r.tests.UpdateStatus(persistCtx, testID, status, message); err != nil {
		return result, err
	}

	r.logger.Info("Test finished",
		zap.String("test_id", testID),
		zap.String("status", string(status)),
		zap.Int("turns", len(result.Turns)),
		zap.Int("failures", len(result.Failures)),
		zap.Float64("cost", result.Usage.Cost.TotalCost),
	)
	return result, runErr
}

// Cancel stops a test running in this process, or marks a test that is not
// running as cancelled.
func (r *Runner) Cancel(ctx context.Context, testID string) error {
	r.mu.Lock()
	cancel, running := r.active[testID]
	r.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	ok, err := r.tests.TransitionStatus(ctx, testID,
		[]domain.TestStatus{domain.TestStatusDraft, domain.TestStatusFailed}, domain.TestStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return r.explainCancel(ctx, testID)
	}
	r.logger.Info("Test cancelled", zap.String("test_id", testID))
	return nil
}

func (r *Runner) explainCancel(ctx context.Context, testID string) error {
	cfg, err := r.tests.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.NewNotFoundError("test", testID)
	}
	if cfg.Status.IsTerminal() {
		return errors.NewValidationError(
			fmt.Sprintf("test %s is already %s", testID, cfg.Status), "status", cfg.Status)
	}
	return errors.NewValidationError(
		fmt.Sprintf("test %s is %s in another process", testID, cfg.Status), "status", cfg.Status)
}

func (r *Runner) track(testID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[testID] = cancel
}

func (r *Runner) untrack(testID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, testID)
}

func (r *Runner) aggregate(ctx context.Context, cfg *domain.TestConfig, session *conversation.Session) (*domain.AggregatedAnalysis, error) {
	responded := session.Responded()
	entries := make([]synthesis.PanelEntry, 0, len(responded))
	for _, m := range responded {
		archetype := ""
		if m.Persona.Archetype != nil {
			archetype = m.Persona.Archetype.Name
		}
		entries = append(entries, synthesis.PanelEntry{
			PersonaName: m.Persona.DisplayName(),
			Archetype:   archetype,
			Response:    m.Final(),
		})
	}

	analysis, meta, err := r.synthesizer.Aggregate(ctx, synthesis.AggregateInput{
		Stimulus:      synthesis.StimulusInput{Text: cfg.StimulusText, Type: cfg.StimulusType},
		CreativeBrief: cfg.CreativeBrief,
		Responses:     entries,
		GroupDynamics: GroupDynamics(session),
	})
	if meta != nil {
		session.Usage.Add(phaseSynthesis, meta.Usage)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate responses: %w", err)
	}
	return analysis, nil
}

// GroupDynamics summarises the moderated discussion for the synthesis prompt.
func GroupDynamics(session *conversation.Session) string {
	m := session.Moderation
	if m.PersonasClarified == 0 {
		return fmt.Sprintf("%d personas responded. No clarifications were needed.", len(session.Responded()))
	}
	return fmt.Sprintf("%d personas responded. %d received a clarification and %d improved their view (%.2f%% salvage rate).",
		len(session.Responded()), m.PersonasClarified, m.PersonasSalvaged, m.SalvageRate)
}

func outcome(session *conversation.Session, err error) (domain.TestStatus, string) {
	switch {
	case err == nil && len(session.Failures) > 0:
		return domain.TestStatusPartial, ""
	case err == nil:
		return domain.TestStatusCompleted, ""
	case stderrors.Is(err, context.Canceled):
		return domain.TestStatusCancelled, "run cancelled"
	default:
		return domain.TestStatusFailed, err.Error()
	}
}

func (r *Runner) buildResult(session *conversation.Session, status domain.TestStatus, analysis *domain.AggregatedAnalysis) *domain.TestResult {
	return &domain.TestResult{
		TestID:     session.TestID,
		Status:     status,
		Brief:      session.Brief,
		Analysis:   analysis,
		Moderation: session.Moderation,
		Turns:      session.Turns,
		Responses:  ResponseRecords(session),
		Failures:   session.Failures,
		Usage:      session.Usage.Summary(r.pricing),
		StartedAt:  session.StartedAt,
		FinishedAt: session.FinishedAt,
	}
}

func (r *Runner) persist(ctx context.Context, result *domain.TestResult) error {
	if err := r.results.ReplaceTurns(ctx, result.TestID, result.Turns); err != nil {
		return err
	}
	if len(result.Responses) > 0 {
		if err := r.results.SaveResponses(ctx, result.Responses); err != nil {
			return err
		}
	}
	return r.results.SaveResult(ctx, result)
}

// ResponseRecords flattens each responding member into its stored form.
func ResponseRecords(session *conversation.Session) []domain.PersonaResponseRecord {
	responded := session.Responded()
	records := make([]domain.PersonaResponseRecord, 0, len(responded))
	for _, m := range responded {
		p := m.Persona
		memories := make([]string, 0, len(p.Memories))
		for _, sm := range p.Memories {
			memories = append(memories, sm.Memory.Title)
		}

		records = append(records, domain.PersonaResponseRecord{
			TestID:          session.TestID,
			PersonaID:       p.ID,
			ArchetypeID:     p.ArchetypeID(),
			PersonaName:     p.DisplayName(),
			Age:             p.Identity.Age,
			Location:        p.Identity.Location,
			SkepticismLevel: p.Skepticism.Level,
			Skepticism:      p.Skepticism,
			InitialResponse: *m.Initial,
			RevisedResponse: m.Revised,
			MemoriesUsed:    memories,
			ActivatedTraits: p.TraitNames(),
		})
	}
	return records
}
