package constants

import "time"

var CacheTTL = struct {
	Archetype      time.Duration
	ArchetypeRedis time.Duration
}{
	Archetype:      5 * time.Minute,  // in-process archetype cache
	ArchetypeRedis: 30 * time.Minute, // shared redis tier
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
	KeyPrefix    string
}{
	ReadyTimeout: 5 * time.Second,
	KeyPrefix:    "panel:",
}

// RetryConfig applies to generation calls. MaxAttempts includes the first call.
var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    8 * time.Second,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    5,
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    2 * time.Minute,
	HealthCheckInterval: 1 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var RateLimitConfig = struct {
	RequestsPerSecond float64
	Burst             int
}{
	RequestsPerSecond: 4,
	Burst:             4,
}

var PanelDefaults = struct {
	BatchSize           int
	MinViableResponses  int
	MaxFollowUps        int
	MemoryLimit         int
	ModerationTurnLimit int
	ContextConcurrency  int
}{
	BatchSize:           3,
	MinViableResponses:  3,
	MaxFollowUps:        3,
	MemoryLimit:         3,
	ModerationTurnLimit: 4,
	ContextConcurrency:  8,
}

// TokenBudget bounds every generation call so nothing blocks indefinitely.
var TokenBudget = struct {
	BriefAnalysis   int
	PersonaResponse int
	RevisedResponse int
	FollowUp        int
	Moderator       int
	Synthesis       int
}{
	BriefAnalysis:   1500,
	PersonaResponse: 1200,
	RevisedResponse: 1200,
	FollowUp:        400,
	Moderator:       300,
	Synthesis:       3000,
}

// Pricing is USD per one million tokens.
var Pricing = struct {
	InputPerMillion  float64
	OutputPerMillion float64
	Currency         string
}{
	InputPerMillion:  3.00,
	OutputPerMillion: 15.00,
	Currency:         "USD",
}

var AIInputLimits = struct {
	MaxStimulusLength int
	MaxBriefLength    int
}{
	MaxStimulusLength: 4000,
	MaxBriefLength:    4000,
}
