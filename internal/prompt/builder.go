package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type TemplateName string

const (
	TemplateBriefAnalysis    TemplateName = "brief_analysis.yaml"
	TemplatePersonaSystem    TemplateName = "persona_system.yaml"
	TemplatePersonaResponse  TemplateName = "persona_response.yaml"
	TemplatePersonaRevised   TemplateName = "persona_revised.yaml"
	TemplatePersonaFollowUp  TemplateName = "persona_follow_up.yaml"
	TemplateModeratorIntro   TemplateName = "moderator_introduction.yaml"
	TemplateModeratorProbe   TemplateName = "moderator_probe.yaml"
	TemplateModeratorClosing TemplateName = "moderator_closing.yaml"
	TemplateSynthesis        TemplateName = "synthesis.yaml"
)

// templateFile is the on-disk shape of a prompt template.
type templateFile struct {
	Preset      string  `yaml:"preset"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
}

type compiled struct {
	preset      string
	temperature float32
	maxTokens   int
	system      *template.Template
	user        *template.Template
}

// Rendered is a prompt ready to send.
type Rendered struct {
	Preset      string
	Temperature float32
	MaxTokens   int
	System      string
	User        string
}

type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*compiled
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*compiled),
	}
}

func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"add":   func(a, b int) int { return a + b },
}

func (pb *PromptBuilder) Render(name TemplateName, data any) (Rendered, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return Rendered{}, err
	}

	out := Rendered{
		Preset:      tmpl.preset,
		Temperature: tmpl.temperature,
		MaxTokens:   tmpl.maxTokens,
	}
	if out.System, err = execute(tmpl.system, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %s (system): %w", name, err)
	}
	if out.User, err = execute(tmpl.user, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %s (user): %w", name, err)
	}
	return out, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (pb *PromptBuilder) getTemplate(name TemplateName) (*compiled, error) {
	pb.mu.RLock()
	if tmpl, ok := pb.templates[name]; ok {
		pb.mu.RUnlock()
		return tmpl, nil
	}
	pb.mu.RUnlock()

	filename := filepath.ToSlash(filepath.Join("templates", string(name)))
	content, err := templateFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode prompt template %s: %w", name, err)
	}
	if strings.TrimSpace(file.User) == "" {
		return nil, fmt.Errorf("prompt template %s has no user section", name)
	}

	tmpl := &compiled{
		preset:      file.Preset,
		temperature: file.Temperature,
		maxTokens:   file.MaxTokens,
	}
	if tmpl.user, err = template.New(string(name) + ":user").Funcs(funcs).Option("missingkey=error").Parse(file.User); err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	if strings.TrimSpace(file.System) != "" {
		if tmpl.system, err = template.New(string(name) + ":system").Funcs(funcs).Option("missingkey=error").Parse(file.System); err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.templates[name] = tmpl

	return tmpl, nil
}
