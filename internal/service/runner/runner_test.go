package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/ai/aitest"
	"github.com/kapu/phantom-panel/internal/service/brief"
	"github.com/kapu/phantom-panel/internal/service/conversation"
	"github.com/kapu/phantom-panel/internal/service/moderation"
	"github.com/kapu/phantom-panel/internal/service/persona"
	"github.com/kapu/phantom-panel/internal/service/synthesis"
	"github.com/kapu/phantom-panel/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryStore struct {
	mu        sync.Mutex
	tests     map[string]*domain.TestConfig
	messages  map[string]string
	history   []domain.TestStatus
	turns     map[string][]domain.ConversationTurn
	responses []domain.PersonaResponseRecord
	results   map[string]*domain.TestResult
}

func newMemoryStore(cfgs ...*domain.TestConfig) *memoryStore {
	s := &memoryStore{
		tests:    make(map[string]*domain.TestConfig),
		messages: make(map[string]string),
		turns:    make(map[string][]domain.ConversationTurn),
		results:  make(map[string]*domain.TestResult),
	}
	for _, c := range cfgs {
		s.tests[c.ID] = c
	}
	return s
}

func (s *memoryStore) GetTest(_ context.Context, id string) (*domain.TestConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.tests[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) TransitionStatus(_ context.Context, id string, from []domain.TestStatus, to domain.TestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.tests[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			s.history = append(s.history, to)
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, status domain.TestStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[id].Status = status
	s.messages[id] = message
	s.history = append(s.history, status)
	return nil
}

func (s *memoryStore) status(id string) domain.TestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tests[id].Status
}

func (s *memoryStore) ReplaceTurns(_ context.Context, testID string, turns []domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[testID] = turns
	return nil
}

func (s *memoryStore) SaveResponses(_ context.Context, records []domain.PersonaResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, records...)
	return nil
}

func (s *memoryStore) SaveResult(_ context.Context, result *domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.TestID] = result
	return nil
}

type conversationFunc func(ctx context.Context, cfg *domain.TestConfig) (*conversation.Session, error)

func (f conversationFunc) Run(ctx context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
	return f(ctx, cfg)
}

type fakeSynthesizer struct {
	calls int
	input synthesis.AggregateInput
	err   error
}

func (f *fakeSynthesizer) Aggregate(_ context.Context, in synthesis.AggregateInput) (*domain.AggregatedAnalysis, *ai.GenerateMetadata, error) {
	f.calls++
	f.input = in
	meta := &ai.GenerateMetadata{Usage: domain.TokenUsage{InputTokens: 1000, OutputTokens: 200}}
	if f.err != nil {
		return nil, meta, f.err
	}
	avg, dist := synthesis.IntentStats(finalResponses(in.Responses))
	return &domain.AggregatedAnalysis{
		PressureScore: 60, GutAttractionIndex: 50, CredibilityScore: 40,
		PurchaseIntentAvg: avg, PurchaseIntentDistribution: dist, Verdict: "Promising.",
	}, meta, nil
}

func finalResponses(entries []synthesis.PanelEntry) []*domain.PersonaResponse {
	out := make([]*domain.PersonaResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Response)
	}
	return out
}

func draftTest(id string) *domain.TestConfig {
	return &domain.TestConfig{
		ID:               id,
		Name:             "Whitening tagline",
		StimulusText:     "Whiter teeth in 3 days",
		StimulusType:     domain.StimulusTagline,
		ArchetypeRefs:    []string{"skeptic", "enthusiast", "pragmatist"},
		Calibration:      domain.SkepticismMedium,
		ProductCategory:  "oral_care",
		EnableModeration: true,
		Status:           domain.TestStatusDraft,
	}
}

func member(id, name string, intent int) *conversation.Member {
	return &conversation.Member{
		Persona: &domain.PersonaContext{
			ID:         id,
			Archetype:  &domain.PersonaArchetype{ID: "arch-" + id, Name: "Archetype " + id},
			Identity:   domain.PersonaIdentity{Name: name, Age: 40, Location: "Leeds"},
			Skepticism: domain.SkepticismResult{Level: 6, Label: "Skeptical"},
			Memories:   []domain.ScoredMemory{{Memory: domain.PhantomMemory{Title: "Sensitive gums"}}},
			Traits: domain.TraitActivation{
				Primary: &domain.ActivatedTrait{Trait: domain.PhantomTrait{Name: "Science Skeptic"}},
			},
		},
		Initial: &domain.PersonaResponse{PurchaseIntent: intent, CredibilityRating: 4},
	}
}

func session(testID string, members ...*conversation.Member) *conversation.Session {
	usage := conversation.NewUsageTracker()
	usage.Add("initial_responses", domain.TokenUsage{InputTokens: 3000, OutputTokens: 900})
	return &conversation.Session{
		TestID:  testID,
		Phase:   conversation.PhaseDone,
		Members: members,
		Turns: []domain.ConversationTurn{
			{TestID: testID, TurnNumber: 1, Speaker: domain.SpeakerModerator, Type: domain.TurnIntroduction},
		},
		Usage:     usage,
		StartedAt: time.Now(),
	}
}

func TestRunCompletes(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	synth := &fakeSynthesizer{}
	var seenStatus domain.TestStatus
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		seenStatus = store.status(cfg.ID)
		return session(cfg.ID, member("a", "Ava", 4), member("b", "Ben", 6), member("c", "Cal", 8)), nil
	})
	r := NewRunner(store, store, conv, synth, conversation.DefaultPricing(), nil)

	result, err := r.Run(context.Background(), "t1", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TestStatusRunning, seenStatus, "running is persisted before work starts")
	assert.Equal(t, domain.TestStatusCompleted, result.Status)
	assert.Equal(t, domain.TestStatusCompleted, store.status("t1"))
	assert.Equal(t, []domain.TestStatus{domain.TestStatusRunning, domain.TestStatusCompleted}, store.history)

	require.NotNil(t, result.Analysis)
	assert.Equal(t, 6.0, result.Analysis.PurchaseIntentAvg)
	assert.Len(t, synth.input.Responses, 3)
	assert.Contains(t, synth.input.GroupDynamics, "3 personas responded")

	assert.Equal(t, 4000, result.Usage.Total.InputTokens)
	assert.Equal(t, domain.TokenUsage{InputTokens: 1000, OutputTokens: 200}, result.Usage.ByPhase["synthesis"])

	require.Len(t, store.responses, 3)
	rec := store.responses[0]
	assert.Equal(t, "Ava", rec.PersonaName)
	assert.Equal(t, "arch-a", rec.ArchetypeID)
	assert.Equal(t, 6, rec.SkepticismLevel)
	assert.Equal(t, []string{"Sensitive gums"}, rec.MemoriesUsed)
	assert.Equal(t, []string{"Science Skeptic"}, rec.ActivatedTraits)
	assert.Len(t, store.turns["t1"], 1)
	assert.Same(t, result, store.results["t1"])
}

func TestRunPartialWhenSomePersonasFail(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		s := session(cfg.ID, member("a", "Ava", 4), member("b", "Ben", 6), member("c", "Cal", 8),
			&conversation.Member{Persona: &domain.PersonaContext{ID: "d"}})
		s.Failures = []domain.PersonaFailure{{ArchetypeRef: "late", PersonaID: "d", Phase: "initial_responses", Error: "timeout"}}
		return s, nil
	})
	r := NewRunner(store, store, conv, &fakeSynthesizer{}, conversation.DefaultPricing(), nil)

	result, err := r.Run(context.Background(), "t1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.TestStatusPartial, result.Status)
	assert.Equal(t, domain.TestStatusPartial, store.status("t1"))
	assert.Len(t, result.Responses, 3, "members without a response are not stored")
	assert.Len(t, store.results["t1"].Failures, 1)
}

func TestRunInsufficientPanelFails(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	synth := &fakeSynthesizer{}
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		s := session(cfg.ID, member("a", "Ava", 4),
			&conversation.Member{Persona: &domain.PersonaContext{ID: "b"}},
			&conversation.Member{Persona: &domain.PersonaContext{ID: "c"}})
		s.Failures = []domain.PersonaFailure{{PersonaID: "b"}, {PersonaID: "c"}}
		return s, errors.NewInsufficientPanelError(1, 3)
	})
	r := NewRunner(store, store, conv, synth, conversation.DefaultPricing(), nil)

	result, err := r.Run(context.Background(), "t1", RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientPanel(err))
	assert.Zero(t, synth.calls)

	require.NotNil(t, result)
	assert.Equal(t, domain.TestStatusFailed, result.Status)
	assert.Nil(t, result.Analysis)
	assert.Equal(t, domain.TestStatusFailed, store.status("t1"))
	assert.Contains(t, store.messages["t1"], "insufficient responses")
	assert.Contains(t, store.messages["t1"], "got 1")
	assert.Len(t, store.turns["t1"], 1, "the partial transcript is still stored")
}

func TestRunSynthesisFailureFailsTest(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	synth := &fakeSynthesizer{err: errors.NewValidationError("verdict is required", "verdict", nil)}
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		return session(cfg.ID, member("a", "Ava", 4), member("b", "Ben", 6), member("c", "Cal", 8)), nil
	})
	r := NewRunner(store, store, conv, synth, conversation.DefaultPricing(), nil)

	result, err := r.Run(context.Background(), "t1", RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.TestStatusFailed, store.status("t1"))
	assert.Contains(t, store.messages["t1"], "verdict is required")
	assert.Equal(t, 1000, result.Usage.ByPhase["synthesis"].InputTokens, "usage of the failed call is kept")
}

func TestRunRefusesNonDraft(t *testing.T) {
	cfg := draftTest("t1")
	cfg.Status = domain.TestStatusCompleted
	store := newMemoryStore(cfg)
	called := false
	conv := conversationFunc(func(context.Context, *domain.TestConfig) (*conversation.Session, error) {
		called = true
		return nil, nil
	})
	r := NewRunner(store, store, conv, &fakeSynthesizer{}, conversation.DefaultPricing(), nil)

	_, err := r.Run(context.Background(), "t1", RunOptions{Retry: true})
	assert.True(t, errors.IsValidation(err))
	assert.False(t, called)
	assert.Equal(t, domain.TestStatusCompleted, store.status("t1"))
}

func TestRunRetryAllowsFailed(t *testing.T) {
	cfg := draftTest("t1")
	cfg.Status = domain.TestStatusFailed
	store := newMemoryStore(cfg)
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		return session(cfg.ID, member("a", "Ava", 4), member("b", "Ben", 6), member("c", "Cal", 8)), nil
	})
	r := NewRunner(store, store, conv, &fakeSynthesizer{}, conversation.DefaultPricing(), nil)

	_, err := r.Run(context.Background(), "t1", RunOptions{})
	assert.True(t, errors.IsValidation(err), "failed tests need an explicit retry")

	_, err = r.Run(context.Background(), "t1", RunOptions{Retry: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TestStatusCompleted, store.status("t1"))
}

func TestRunUnknownTest(t *testing.T) {
	store := newMemoryStore()
	r := NewRunner(store, store, nil, nil, conversation.DefaultPricing(), nil)
	_, err := r.Run(context.Background(), "missing", RunOptions{})
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelRunningTest(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	started := make(chan struct{})
	conv := conversationFunc(func(ctx context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		close(started)
		<-ctx.Done()
		return session(cfg.ID), ctx.Err()
	})
	r := NewRunner(store, store, conv, &fakeSynthesizer{}, conversation.DefaultPricing(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "t1", RunOptions{})
		done <- err
	}()

	<-started
	require.NoError(t, r.Cancel(context.Background(), "t1"))
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TestStatusCancelled, store.status("t1"))
}

type staticBuilder struct{}

func (staticBuilder) BuildAll(_ context.Context, reqs []persona.BuildRequest, _ int) []persona.BuildOutcome {
	out := make([]persona.BuildOutcome, len(reqs))
	for i, req := range reqs {
		out[i] = persona.BuildOutcome{Index: i, Request: req, Context: &domain.PersonaContext{
			ID:       "p-" + req.ArchetypeRef,
			Identity: domain.PersonaIdentity{Name: req.ArchetypeRef},
		}}
	}
	return out
}

func TestCancelDuringInitialResponses(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	var r *Runner
	inv := aitest.New().
		OnJSON("Analyse the following", map[string]any{
			"primary_tone":            "direct",
			"creative_devices":        []string{},
			"intended_interpretation": "Fast whitening.",
			"literal_interpretation":  "Fast whitening.",
			"red_flags":               []map[string]string{},
			"moderation_needed":       false,
			"moderation_priority":     "low",
		}).
		OnText("Open a session", "Welcome.").
		On("React honestly as yourself", func(aitest.Request) (string, error) {
			_ = r.Cancel(context.Background(), "t1")
			return "", context.Canceled
		})
	orchestrator := conversation.NewOrchestrator(
		brief.NewAnalyzer(inv, nil, nil),
		staticBuilder{},
		synthesis.NewResponseGenerator(inv, nil, nil),
		moderation.NewGenerator(inv, nil, nil),
		nil,
		conversation.Options{MinViableResponses: 3},
		nil,
	)
	synth := &fakeSynthesizer{}
	r = NewRunner(store, store, orchestrator, synth, conversation.DefaultPricing(), nil)

	result, err := r.Run(context.Background(), "t1", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsInsufficientPanel(err))
	assert.Zero(t, synth.calls)
	require.NotNil(t, result)
	assert.Equal(t, domain.TestStatusCancelled, result.Status)
	assert.Equal(t, domain.TestStatusCancelled, store.status("t1"))
	assert.NotContains(t, store.messages["t1"], "insufficient responses")
}

func TestCancelIdleTest(t *testing.T) {
	store := newMemoryStore(draftTest("t1"))
	r := NewRunner(store, store, nil, nil, conversation.DefaultPricing(), nil)

	require.NoError(t, r.Cancel(context.Background(), "t1"))
	assert.Equal(t, domain.TestStatusCancelled, store.status("t1"))

	err := r.Cancel(context.Background(), "t1")
	assert.True(t, errors.IsValidation(err), "already cancelled")
	assert.Contains(t, err.Error(), "already cancelled")
}

func TestCancelExplainsRefusal(t *testing.T) {
	elsewhere := draftTest("t2")
	elsewhere.Status = domain.TestStatusRunning
	store := newMemoryStore(elsewhere)
	r := NewRunner(store, store, nil, nil, conversation.DefaultPricing(), nil)

	err := r.Cancel(context.Background(), "t2")
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "running in another process")

	err = r.Cancel(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestGroupDynamics(t *testing.T) {
	s := session("t1", member("a", "Ava", 4), member("b", "Ben", 6))
	assert.Equal(t, "2 personas responded. No clarifications were needed.", GroupDynamics(s))

	s.Moderation = domain.ModerationImpact{PersonasClarified: 2, PersonasSalvaged: 1, SalvageRate: 50}
	assert.Equal(t, "2 personas responded. 2 received a clarification and 1 improved their view (50.00% salvage rate).", GroupDynamics(s))
}

func TestRunNormalizesMarkupStimulus(t *testing.T) {
	cfg := draftTest("t1")
	cfg.StimulusText = "<div><h1>Whiter teeth</h1><p>in 3 days</p></div>"
	store := newMemoryStore(cfg)
	var seen string
	conv := conversationFunc(func(_ context.Context, cfg *domain.TestConfig) (*conversation.Session, error) {
		seen = cfg.StimulusText
		return session(cfg.ID, member("a", "Ava", 4), member("b", "Ben", 6), member("c", "Cal", 8)), nil
	})
	r := NewRunner(store, store, conv, &fakeSynthesizer{}, conversation.DefaultPricing(), nil)

	_, err := r.Run(context.Background(), "t1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Whiter teeth in 3 days", seen)
}

func TestRunRejectsBlankStimulus(t *testing.T) {
	cfg := draftTest("t1")
	cfg.StimulusText = "  <p> </p> "
	store := newMemoryStore(cfg)
	r := NewRunner(store, store, nil, nil, conversation.DefaultPricing(), nil)

	_, err := r.Run(context.Background(), "t1", RunOptions{})
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, domain.TestStatusDraft, store.status("t1"))
}
