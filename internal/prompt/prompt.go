// Package prompt renders the stage prompts sent to the model.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

//go:embed templates/*.md
var builtin embed.FS

// DefaultSystemPrompt is used when configuration leaves the system prompt empty.
const DefaultSystemPrompt = "你是一名专业的 GEO（生成式引擎优化）专家，擅长医美行业的语义优化与内容策略。"

// Renderer holds one parsed template per stage.
type Renderer struct {
	templates map[domain.StageTag]*template.Template
	system    string
}

// NewRenderer parses the built-in templates. Files named <tag>.md inside dir
// replace the built-in template of that stage.
func NewRenderer(dir, systemPrompt string) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[domain.StageTag]*template.Template, len(domain.Stages)),
		system:    safePrompt(systemPrompt),
	}

	for _, stage := range domain.Stages {
		text, err := loadTemplate(dir, stage.Tag)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(string(stage.Tag)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", stage.Tag, err)
		}
		r.templates[stage.Tag] = tmpl
	}

	return r, nil
}

// System returns the system prompt shared by all stages.
func (r *Renderer) System() string {
	return r.system
}

// Render fills the stage template with the formatted client card.
func (r *Renderer) Render(tag domain.StageTag, card Card) (string, error) {
	tmpl, ok := r.templates[tag]
	if !ok {
		return "", fmt.Errorf("no prompt for stage %q", tag)
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, struct{ ClientInput string }{ClientInput: card.Format()})
	if err != nil {
		return "", fmt.Errorf("render stage %s: %w", tag, err)
	}
	return sb.String(), nil
}

// Messages builds the system and user messages for a stage.
func (r *Renderer) Messages(tag domain.StageTag, card Card) ([]ports.ChatMessage, error) {
	user, err := r.Render(tag, card)
	if err != nil {
		return nil, err
	}
	return []ports.ChatMessage{
		{Role: "system", Content: r.system},
		{Role: "user", Content: user},
	}, nil
}

func loadTemplate(dir string, tag domain.StageTag) (string, error) {
	name := string(tag) + ".md"
	if dir != "" {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(raw), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}

	raw, err := builtin.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read built-in template %s: %w", name, err)
	}
	return string(raw), nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return DefaultSystemPrompt
	}
	return prompt
}
