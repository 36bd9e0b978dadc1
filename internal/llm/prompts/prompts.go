package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/quizhall/internal/grading"
	"github.com/pavelanni/quizhall/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var questionTagRegex = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)

// maxTextRunes bounds question and explanation text placed in a prompt.
const maxTextRunes = 4000

// PromptVariant selects the explanation style.
type PromptVariant string

const (
	// PromptBrief asks for two or three sentences.
	PromptBrief PromptVariant = "brief"
	// PromptDetailed also covers the wrong options and the underlying concept.
	PromptDetailed PromptVariant = "detailed"
)

var validVariants = map[PromptVariant]bool{
	PromptBrief:    true,
	PromptDetailed: true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	explainTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	QuestionText  string
	Type          model.QuestionType
	Options       []string
	Choice        bool
	CorrectAnswer string
	Existing      string
}

// Load parses the embedded prompt templates once.
func Load() error {
	loadOnce.Do(func() {
		explainTemplates, loadErr = parse(templateFS)
	})
	return loadErr
}

func parse(fsys fs.FS) (map[PromptVariant]*template.Template, error) {
	out := make(map[PromptVariant]*template.Template, len(validVariants))
	for _, v := range []PromptVariant{PromptBrief, PromptDetailed} {
		file := "templates/explain_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New("explain").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		out[v] = tmpl
	}
	return out, nil
}

// BuildExplainPrompt builds the prompt asking for an explanation of q.
func BuildExplainPrompt(variant PromptVariant, q model.Question) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := explainTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	options := make([]string, len(q.Options))
	for i, o := range q.Options {
		options[i] = sanitizeText(o)
	}
	data := ExplainData{
		QuestionText:  sanitizeText(q.Text),
		Type:          q.Type(),
		Options:       options,
		Choice:        q.Type() == model.TypeMCQ,
		CorrectAnswer: sanitizeText(grading.FormatKey(q)),
	}
	if q.Explanation != "" {
		data.Existing = sanitizeText(q.Explanation)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeText(s string) string {
	s = questionTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxTextRunes {
		runes := []rune(s)
		s = string(runes[:maxTextRunes]) + " [truncated]"
	}
	return s
}
