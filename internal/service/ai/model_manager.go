package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/util"
	"github.com/kapu/phantom-panel/pkg/errors"
)

// ModelManager routes generation calls to the primary provider, falling back
// to the secondary one, behind a rate limiter, retry loop and circuit breaker.
type ModelManager struct {
	primary        JSONProvider
	fallback       JSONProvider
	logger         *zap.Logger
	enableFallback bool
	circuitBreaker *util.CircuitBreaker
	limiter        *rate.Limiter
	retry          RetryPolicy
	sleep          func(ctx context.Context, d time.Duration) error
}

type ModelManagerConfig struct {
	GeminiAPIKey       string
	OpenAIAPIKey       string
	DefaultGeminiModel string
	DefaultOpenAIModel string
	EnableFallback     bool
	RequestsPerSecond  float64
	Burst              int
}

// RetryPolicy bounds retries of rate-limited calls. MaxAttempts includes the
// first call; the delay doubles per attempt up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.RetryConfig.MaxAttempts,
		BaseDelay:   constants.RetryConfig.BaseDelay,
		MaxDelay:    constants.RetryConfig.MaxDelay,
	}
}

// Delay returns the backoff before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func NewModelManager(ctx context.Context, cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = "gemini-2.5-flash"
	}
	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = "gpt-4.1-mini"
	}

	var gemini JSONProvider
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		gemini = NewGeminiProvider(client, defaultGemini, logger)
	}

	var openaiProvider JSONProvider
	if p := NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger); p != nil {
		openaiProvider = p
	}

	primary, fallback := gemini, openaiProvider
	if primary == nil {
		primary, fallback = openaiProvider, nil
	}
	if primary == nil {
		return nil, fmt.Errorf("no text-generation provider configured")
	}
	if !cfg.EnableFallback {
		fallback = nil
	}

	if fallback != nil {
		logger.Info("Fallback provider enabled", zap.String("provider", fallback.Name()), zap.String("model", defaultOpenAI))
	} else {
		logger.Info("Fallback provider disabled")
	}

	return NewModelManagerWithProviders(primary, fallback, ManagerOptions{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Retry:             DefaultRetryPolicy(),
	}, logger), nil
}

type ManagerOptions struct {
	RequestsPerSecond float64
	Burst             int
	Retry             RetryPolicy
	// Sleep replaces the backoff wait; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewModelManagerWithProviders wires already-constructed providers.
func NewModelManagerWithProviders(primary, fallback JSONProvider, opts ManagerOptions, logger *zap.Logger) *ModelManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = constants.RateLimitConfig.RequestsPerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = constants.RateLimitConfig.Burst
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	mm := &ModelManager{
		primary:        primary,
		fallback:       fallback,
		enableFallback: fallback != nil,
		logger:         logger,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		retry:          retry,
		sleep:          sleep,
	}
	mm.circuitBreaker = util.NewCircuitBreaker(util.BreakerConfig{
		Name:         "models",
		Threshold:    constants.CircuitBreakerConfig.FailureThreshold,
		Cooldown:     constants.CircuitBreakerConfig.ResetTimeout,
		HealthCheck:  mm.checkProviders,
		CheckEvery:   constants.CircuitBreakerConfig.HealthCheckInterval,
		CheckTimeout: constants.CircuitBreakerConfig.HealthCheckTimeout,
	}, logger)
	return mm
}

// Generate returns free text.
func (mm *ModelManager) Generate(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (*Completion, error) {
	if !mm.circuitBreaker.Allow() {
		snap := mm.circuitBreaker.Snapshot()
		mm.logger.Error("Model call rejected, providers suspended",
			zap.Int("failures", snap.Failures),
			zap.Time("open_until", snap.OpenUntil),
		)
		return nil, errors.NewServiceError(
			"text generation unavailable until "+snap.OpenUntil.Format(time.RFC3339), "ai", "generate", nil)
	}

	result, attempts, primaryErr := mm.invokeWithRetry(ctx, mm.primary, prompt, preset, opts)
	if primaryErr == nil {
		mm.circuitBreaker.Success()
		return &Completion{
			Text: result.Text,
			GenerateMetadata: GenerateMetadata{
				Provider: mm.primary.Name(),
				Model:    result.Model,
				Attempts: attempts,
				Usage:    result.Usage,
			},
		}, nil
	}

	if mm.enableFallback && mm.fallback != nil && ctx.Err() == nil {
		mm.logger.Warn("Primary provider failed, trying fallback",
			zap.String("primary", mm.primary.Name()),
			zap.Error(primaryErr),
		)
		fbResult, fbAttempts, fallbackErr := mm.invokeWithRetry(ctx, mm.fallback, prompt, preset, opts)
		if fallbackErr == nil {
			mm.circuitBreaker.Success()
			return &Completion{
				Text: fbResult.Text,
				GenerateMetadata: GenerateMetadata{
					Provider:     mm.fallback.Name(),
					Model:        fbResult.Model,
					UsedFallback: true,
					Attempts:     attempts + fbAttempts,
					Usage:        fbResult.Usage,
				},
			}, nil
		}
		mm.recordFailure(primaryErr)
		mm.recordFailure(fallbackErr)
		return nil, fallbackErr
	}

	mm.recordFailure(primaryErr)
	return nil, primaryErr
}

// GenerateJSON decodes the model output into dest. On malformed JSON the
// metadata is still returned alongside a ValidationError so token usage can
// be accounted for.
func (mm *ModelManager) GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error) {
	var options GenerateOptions
	if opts != nil {
		options = *opts
	}
	options.JSONMode = true

	completion, err := mm.Generate(ctx, prompt, preset, &options)
	if err != nil {
		return nil, err
	}
	metadata := completion.GenerateMetadata
	if err := DecodeJSON(completion.Text, dest); err != nil {
		mm.logger.Error("Failed to unmarshal JSON response",
			zap.String("provider", metadata.Provider),
			zap.Error(err),
			zap.String("response_preview", util.TruncateString(completion.Text, 200)),
		)
		return &metadata, err
	}
	return &metadata, nil
}

// DecodeJSON strips markdown code fences and unmarshals text into dest.
func DecodeJSON(text string, dest any) error {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return errors.NewValidationError("empty response", "response", "")
	}
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```json"))
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```"))
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}

	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		vErr := errors.NewValidationError("invalid JSON in model response", "response", util.TruncateString(cleaned, 200))
		vErr.Cause = err
		return vErr
	}
	return nil
}

func (mm *ModelManager) invokeWithRetry(ctx context.Context, provider JSONProvider, prompt string, preset ModelPreset, opts *GenerateOptions) (ProviderResult, int, error) {
	if provider == nil {
		return ProviderResult{}, 0, fmt.Errorf("model provider is not configured")
	}

	var lastErr error
	for attempt := 1; attempt <= mm.retry.MaxAttempts; attempt++ {
		if err := mm.limiter.Wait(ctx); err != nil {
			return ProviderResult{}, attempt - 1, fmt.Errorf("rate limiter wait: %w", err)
		}

		result, err := provider.Generate(ctx, prompt, preset, opts)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) || attempt == mm.retry.MaxAttempts {
			return ProviderResult{}, attempt, err
		}

		delay := mm.retry.Delay(attempt)
		mm.logger.Warn("Rate limited, retrying",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := mm.sleep(ctx, delay); err != nil {
			return ProviderResult{}, attempt, err
		}
	}
	return ProviderResult{}, mm.retry.MaxAttempts, lastErr
}

func (mm *ModelManager) recordFailure(err error) {
	if !isServiceFailure(err) {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if isRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.Failure(timeout)
}

// checkProviders is polled while the breaker is open.
func (mm *ModelManager) checkProviders(ctx context.Context) bool {
	primaryOK := mm.primary != nil && mm.primary.Ping(ctx)
	fallbackOK := mm.enableFallback && mm.fallback != nil && mm.fallback.Ping(ctx)

	mm.logger.Info("Provider health check finished",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
	)
	return primaryOK || fallbackOK
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
