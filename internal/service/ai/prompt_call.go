package ai

import (
	"github.com/kapu/phantom-panel/internal/prompt"
)

// PromptCall converts a rendered template into invocation arguments. A
// non-empty system replaces the template's own system section; persona
// prompts use this to speak as the persona.
func PromptCall(r prompt.Rendered, system string) (ModelPreset, *GenerateOptions) {
	preset := ModelPreset(r.Preset)
	switch preset {
	case PresetCreative, PresetPrecise, PresetBalanced:
	default:
		preset = PresetBalanced
	}

	opts := &GenerateOptions{System: r.System}
	if system != "" {
		opts.System = system
	}
	if r.Temperature > 0 || r.MaxTokens > 0 {
		opts.Overrides = &ModelConfig{
			Temperature:     r.Temperature,
			MaxOutputTokens: r.MaxTokens,
		}
	}
	return preset, opts
}
