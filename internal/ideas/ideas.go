// Package ideas turns free-form model output into categories of AI
// assistant applications.
package ideas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"ideaforge/internal/replicate"
)

// Application is one suggested use of an AI assistant.
type Application struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Prompt      string   `json:"prompt,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	Generated   bool     `json:"generated,omitempty"`
}

// Category groups applications under a name.
type Category struct {
	Name         string        `json:"name"`
	Applications []Application `json:"applications"`
}

type rawApplication struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Prompt      *string         `json:"prompt"`
	Examples    json.RawMessage `json:"examples"`
}

type rawCategory struct {
	Name         *string           `json:"name"`
	Applications *[]rawApplication `json:"applications"`
}

// Parser assigns IDs from a monotonic batch counter, so every parse yields
// fresh identifiers. The zero value is ready to use.
type Parser struct {
	batch atomic.Uint64
}

// ParseCategories converts a prediction output into validated categories.
func (p *Parser) ParseCategories(out replicate.Output) ([]Category, error) {
	text, err := OutputText(out)
	if err != nil {
		return nil, err
	}
	return p.CategoriesFromText(text)
}

// CategoriesFromText is ParseCategories on already normalized text.
func (p *Parser) CategoriesFromText(text string) ([]Category, error) {
	payload, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var top struct {
		Categories *[]rawCategory `json:"categories"`
	}
	if err := decodeObject(payload, &top); err != nil {
		return nil, structureError(text, "%v", err)
	}
	if top.Categories == nil || len(*top.Categories) == 0 {
		return nil, structureError(text, "categories missing or empty")
	}

	batch := p.batch.Add(1)
	seq := 0
	categories := make([]Category, 0, len(*top.Categories))
	for i, rc := range *top.Categories {
		if rc.Name == nil || strings.TrimSpace(*rc.Name) == "" {
			return nil, structureError(text, "category %d has no name", i)
		}
		if rc.Applications == nil {
			return nil, structureError(text, "category %q has no applications", *rc.Name)
		}
		name := strings.TrimSpace(*rc.Name)
		// Indexes run across the whole batch so repeated names stay distinct.
		apps, err := convertApplications(text, name, *rc.Applications, func(int) string {
			seq++
			return fmt.Sprintf("%s-%d-%d", Slug(name), batch, seq-1)
		})
		if err != nil {
			return nil, err
		}
		categories = append(categories, Category{Name: name, Applications: apps})
	}
	return categories, nil
}

// ParseApplications converts a "generate more" output into applications of
// category, all marked as generated.
func (p *Parser) ParseApplications(category string, out replicate.Output) ([]Application, error) {
	text, err := OutputText(out)
	if err != nil {
		return nil, err
	}
	return p.ApplicationsFromText(category, text)
}

// ApplicationsFromText is ParseApplications on already normalized text.
func (p *Parser) ApplicationsFromText(category, text string) ([]Application, error) {
	payload, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var top struct {
		Applications *[]rawApplication `json:"applications"`
	}
	if err := decodeObject(payload, &top); err != nil {
		return nil, structureError(text, "%v", err)
	}
	if top.Applications == nil || len(*top.Applications) == 0 {
		return nil, structureError(text, "applications missing or empty")
	}

	batch := p.batch.Add(1)
	apps, err := convertApplications(text, category, *top.Applications, func(j int) string {
		return fmt.Sprintf("%s-gen-%d-%d", Slug(category), batch, j)
	})
	if err != nil {
		return nil, err
	}
	for i := range apps {
		apps[i].Generated = true
	}
	return apps, nil
}

func convertApplications(text, category string, raw []rawApplication, id func(int) string) ([]Application, error) {
	apps := make([]Application, 0, len(raw))
	for j, ra := range raw {
		if ra.Title == nil || strings.TrimSpace(*ra.Title) == "" {
			return nil, structureError(text, "application %d in %q has no title", j, category)
		}
		if ra.Description == nil || strings.TrimSpace(*ra.Description) == "" {
			return nil, structureError(text, "application %q has no description", *ra.Title)
		}
		app := Application{
			ID:          id(j),
			Title:       strings.TrimSpace(*ra.Title),
			Description: strings.TrimSpace(*ra.Description),
			Category:    category,
		}
		if ra.Prompt != nil {
			app.Prompt = *ra.Prompt
		}
		if len(ra.Examples) > 0 && !bytes.Equal(bytes.TrimSpace(ra.Examples), []byte("null")) {
			var examples []string
			if err := json.Unmarshal(ra.Examples, &examples); err != nil {
				return nil, structureError(text, "examples of %q are not a list of strings", app.Title)
			}
			if len(examples) > 0 {
				app.Examples = examples
			}
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// decodeObject requires payload to be a JSON object before decoding it.
func decodeObject(payload json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("top level is not an object")
	}
	return json.Unmarshal(trimmed, v)
}

func structureError(raw, format string, args ...any) error {
	return &ParseError{Kind: KindInvalidStructure, Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

// Slug lowercases name and joins its letters and digits with dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "category"
	}
	return b.String()
}
