package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
	"github.com/kapu/phantom-panel/pkg/errors"
)

type scriptedProvider struct {
	name    string
	mu      sync.Mutex
	calls   int
	results []ProviderResult
	errs    []error
	prompts []string
	options []*GenerateOptions
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(_ context.Context, prompt string, _ ModelPreset, opts *GenerateOptions) (ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.options = append(p.options, opts)
	if i < len(p.errs) && p.errs[i] != nil {
		return ProviderResult{}, p.errs[i]
	}
	if i < len(p.results) {
		return p.results[i], nil
	}
	return ProviderResult{Text: "ok", Model: "fake"}, nil
}

func (p *scriptedProvider) Ping(context.Context) bool { return true }

func rateLimited() error {
	return errors.NewAPIError("slow down", "fake", http.StatusTooManyRequests, nil)
}

func newTestManager(primary, fallback JSONProvider) (*ModelManager, *[]time.Duration) {
	var slept []time.Duration
	mm := NewModelManagerWithProviders(primary, fallback, ManagerOptions{
		RequestsPerSecond: 1000,
		Burst:             100,
		Retry:             RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second},
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}, nil)
	return mm, &slept
}

func TestGenerateRetriesRateLimitWithBackoff(t *testing.T) {
	primary := &scriptedProvider{
		name:    "primary",
		errs:    []error{rateLimited(), rateLimited()},
		results: []ProviderResult{{}, {}, {Text: "hello", Model: "m", Usage: domain.TokenUsage{InputTokens: 10, OutputTokens: 5}}},
	}
	mm, slept := newTestManager(primary, nil)

	out, err := mm.Generate(context.Background(), "hi", PresetCreative, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 15, out.Usage.Total())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestGenerateDoesNotRetryPermanentErrors(t *testing.T) {
	primary := &scriptedProvider{
		name: "primary",
		errs: []error{errors.NewAPIError("bad request", "fake", http.StatusBadRequest, nil)},
	}
	mm, slept := newTestManager(primary, nil)

	_, err := mm.Generate(context.Background(), "hi", PresetCreative, nil)
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Empty(t, *slept)
	assert.False(t, errors.IsRetryable(err))
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	primary := &scriptedProvider{
		name: "primary",
		errs: []error{rateLimited(), rateLimited(), rateLimited(), rateLimited()},
	}
	mm, _ := newTestManager(primary, nil)

	_, err := mm.Generate(context.Background(), "hi", PresetCreative, nil)
	require.Error(t, err)
	assert.Equal(t, 3, primary.calls)
	assert.True(t, errors.IsRetryable(err))
}

func TestGenerateUsesFallback(t *testing.T) {
	primary := &scriptedProvider{name: "primary", errs: []error{fmt.Errorf("boom")}}
	fallback := &scriptedProvider{name: "fallback", results: []ProviderResult{{Text: "from fallback", Model: "fb"}}}
	mm, _ := newTestManager(primary, fallback)

	out, err := mm.Generate(context.Background(), "hi", PresetPrecise, nil)
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
	assert.Equal(t, "fallback", out.Provider)
	assert.Equal(t, "from fallback", out.Text)
}

func TestGenerateJSONStripsFencesAndForcesJSONMode(t *testing.T) {
	primary := &scriptedProvider{
		name:    "primary",
		results: []ProviderResult{{Text: "```json\n{\"score\": 7}\n```", Usage: domain.TokenUsage{InputTokens: 3, OutputTokens: 4}}},
	}
	mm, _ := newTestManager(primary, nil)

	var dest struct {
		Score int `json:"score"`
	}
	meta, err := mm.GenerateJSON(context.Background(), "rate it", PresetPrecise, &dest, &GenerateOptions{System: "sys"})
	require.NoError(t, err)
	assert.Equal(t, 7, dest.Score)
	assert.Equal(t, 7, meta.Usage.Total())
	require.Len(t, primary.options, 1)
	assert.True(t, primary.options[0].JSONMode)
	assert.Equal(t, "sys", primary.options[0].System)
}

func TestGenerateJSONMalformedIsValidationError(t *testing.T) {
	primary := &scriptedProvider{
		name:    "primary",
		results: []ProviderResult{{Text: "not json at all", Usage: domain.TokenUsage{InputTokens: 1, OutputTokens: 1}}},
	}
	mm, _ := newTestManager(primary, nil)

	var dest map[string]any
	meta, err := mm.GenerateJSON(context.Background(), "x", PresetPrecise, &dest, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.Usage.Total())
}

func TestCircuitOpensAfterServiceFailures(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.NewAPIError("unavailable", "fake", http.StatusServiceUnavailable, nil)
	}
	primary := &scriptedProvider{name: "primary", errs: errs}
	mm, _ := newTestManager(primary, nil)

	for i := 0; i < 5; i++ {
		_, err := mm.Generate(context.Background(), "hi", PresetCreative, nil)
		require.Error(t, err)
	}
	_, err := mm.Generate(context.Background(), "hi", PresetCreative, nil)
	require.Error(t, err)
	var svcErr *errors.ServiceError
	assert.True(t, stderrors.As(err, &svcErr))
	assert.Equal(t, 5, primary.calls)

	snap := mm.circuitBreaker.Snapshot()
	assert.Equal(t, util.BreakerOpen, snap.State)
	assert.Equal(t, 5, snap.Failures)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
}

func TestClassifyError(t *testing.T) {
	err := classifyError("Gemini", fmt.Errorf(`Error 429, Message: Resource has been exhausted (e.g. check quota)`))
	assert.True(t, errors.IsRetryable(err))

	err = classifyError("OpenAI", fmt.Errorf(`500 Internal Server Error`))
	assert.False(t, errors.IsRetryable(err))
	assert.True(t, isServiceFailure(err))

	err = classifyError("OpenAI", fmt.Errorf(`invalid api key`))
	assert.False(t, isServiceFailure(err))
}
