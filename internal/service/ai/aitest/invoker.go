// Package aitest provides a scripted ai.Invoker for tests.
package aitest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
)

// Request is what a handler sees of one call.
type Request struct {
	Prompt string
	System string
	Preset ai.ModelPreset
	JSON   bool
}

type Handler func(req Request) (string, error)

type rule struct {
	match   string
	handler Handler
}

// Invoker answers calls by the first rule whose match string occurs in the
// prompt. Every call is recorded.
type Invoker struct {
	mu    sync.Mutex
	rules []rule
	calls []Request

	// Usage is reported for every successful call.
	Usage domain.TokenUsage
}

func New() *Invoker {
	return &Invoker{Usage: domain.TokenUsage{InputTokens: 100, OutputTokens: 50}}
}

func (f *Invoker) On(match string, h Handler) *Invoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: match, handler: h})
	return f
}

func (f *Invoker) OnText(match, text string) *Invoker {
	return f.On(match, func(Request) (string, error) { return text, nil })
}

// OnJSON answers with v marshalled to JSON.
func (f *Invoker) OnJSON(match string, v any) *Invoker {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return f.OnText(match, string(raw))
}

func (f *Invoker) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CountMatching counts recorded calls whose prompt contains substr.
func (f *Invoker) CountMatching(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}

func (f *Invoker) Generate(ctx context.Context, prompt string, preset ai.ModelPreset, opts *ai.GenerateOptions) (*ai.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := Request{Prompt: prompt, Preset: preset}
	if opts != nil {
		req.System = opts.System
		req.JSON = opts.JSONMode
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	var handler Handler
	for _, r := range f.rules {
		if strings.Contains(prompt, r.match) {
			handler = r.handler
			break
		}
	}
	usage := f.Usage
	f.mu.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("aitest: no rule for prompt %.60q", prompt)
	}
	text, err := handler(req)
	if err != nil {
		return nil, err
	}
	return &ai.Completion{
		Text: text,
		GenerateMetadata: ai.GenerateMetadata{
			Provider: "fake",
			Model:    "fake-1",
			Attempts: 1,
			Usage:    usage,
		},
	}, nil
}

func (f *Invoker) GenerateJSON(ctx context.Context, prompt string, preset ai.ModelPreset, dest any, opts *ai.GenerateOptions) (*ai.GenerateMetadata, error) {
	var options ai.GenerateOptions
	if opts != nil {
		options = *opts
	}
	options.JSONMode = true

	completion, err := f.Generate(ctx, prompt, preset, &options)
	if err != nil {
		return nil, err
	}
	meta := completion.GenerateMetadata
	if err := ai.DecodeJSON(completion.Text, dest); err != nil {
		return &meta, err
	}
	return &meta, nil
}

var _ ai.Invoker = (*Invoker)(nil)
