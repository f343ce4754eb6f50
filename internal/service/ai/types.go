package ai

import (
	"context"

	"github.com/kapu/phantom-panel/internal/domain"
)

// ModelPreset represents the model usage preset
type ModelPreset string

const (
	PresetCreative ModelPreset = "creative" // persona voices, moderator lines
	PresetPrecise  ModelPreset = "precise"  // structured analysis
	PresetBalanced ModelPreset = "balanced"
)

// ModelConfig holds model configuration
type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string // "application/json" or "text/plain"
}

// OpenAIConfig holds OpenAI-specific configuration
type OpenAIConfig struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// GenerateMetadata describes a finished generation call.
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
	Attempts     int
	Usage        domain.TokenUsage
}

// Completion is a free-text generation result.
type Completion struct {
	Text string
	GenerateMetadata
}

// GenerateOptions holds options for AI generation
type GenerateOptions struct {
	Model     string
	System    string
	JSONMode  bool
	Overrides *ModelConfig
}

// Invoker is the text-generation contract the engine depends on. Structured
// results carry no shape guarantee; callers validate dest themselves.
type Invoker interface {
	Generate(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (*Completion, error)
	GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error)
}

// GetPresetConfig returns the configuration for a preset
func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetCreative:
		return ModelConfig{
			Temperature:     0.8,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 1024,
		}
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.2,
			TopP:            0.9,
			TopK:            20,
			MaxOutputTokens: 2048,
		}
	case PresetBalanced:
		return ModelConfig{
			Temperature:     0.5,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	default:
		return GetPresetConfig(PresetBalanced)
	}
}

// GetOpenAIPresetConfig returns OpenAI configuration for a preset
func GetOpenAIPresetConfig(preset ModelPreset) OpenAIConfig {
	cfg := GetPresetConfig(preset)
	return OpenAIConfig{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
		TopP:        cfg.TopP,
	}
}

// resolveConfig applies per-call overrides on top of the preset.
func resolveConfig(preset ModelPreset, opts *GenerateOptions) ModelConfig {
	config := GetPresetConfig(preset)
	if opts == nil {
		return config
	}
	if o := opts.Overrides; o != nil {
		if o.Temperature > 0 {
			config.Temperature = o.Temperature
		}
		if o.TopP > 0 {
			config.TopP = o.TopP
		}
		if o.TopK > 0 {
			config.TopK = o.TopK
		}
		if o.MaxOutputTokens > 0 {
			config.MaxOutputTokens = o.MaxOutputTokens
		}
	}
	if opts.JSONMode {
		config.ResponseMimeType = "application/json"
	}
	return config
}
