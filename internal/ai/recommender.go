package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ideaforge/internal/db"
	"ideaforge/internal/ideas"
	"ideaforge/internal/prediction"
)

var (
	ErrEmptyDescription = errors.New("job description is empty")
	ErrEmptyCategory    = errors.New("category is empty")
)

const historyTimeout = 5 * time.Second

// History receives every recommendation outcome. *db.Store implements it.
type History interface {
	Save(ctx context.Context, r *db.Record) error
}

// Result is what the page renders after a search.
type Result struct {
	Description string           `json:"description"`
	Categories  []ideas.Category `json:"categories"`
	Problem     *Problem         `json:"problem,omitempty"`
	Fallback    bool             `json:"fallback"`
	Cached      bool             `json:"cached,omitempty"`
	HistoryID   string           `json:"history_id,omitempty"`
}

// MoreResult carries applications appended to one category.
type MoreResult struct {
	Category     string              `json:"category"`
	Applications []ideas.Application `json:"applications"`
	Problem      *Problem            `json:"problem,omitempty"`
	Fallback     bool                `json:"fallback"`
}

// Recommender turns a job description into AI assistant ideas.
type Recommender struct {
	provider Provider
	parser   ideas.Parser
	cache    *expirable.LRU[string, []ideas.Category]
	history  History
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithCache keeps successful results for ttl. size <= 0 disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Recommender) {
		if size <= 0 {
			r.cache = nil
			return
		}
		r.cache = expirable.NewLRU[string, []ideas.Category](size, nil, ttl)
	}
}

// WithHistory records every Recommend outcome in h.
func WithHistory(h History) Option {
	return func(r *Recommender) { r.history = h }
}

// NewRecommender creates a Recommender using provider.
func NewRecommender(provider Provider, opts ...Option) *Recommender {
	r := &Recommender{provider: provider}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend generates categories for description. Generation failures are
// reported in Result.Problem; the only error is ErrEmptyDescription.
func (r *Recommender) Recommend(ctx context.Context, description string) (Result, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Result{}, ErrEmptyDescription
	}
	res := Result{Description: description}

	key := cacheKey(description)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			res.Categories = cloneCategories(cached)
			res.Cached = true
			return res, nil
		}
	}

	req := prediction.GenerationRequest{
		SystemPrompt: recommendSystemPrompt,
		UserPrompt:   "Job description: " + description,
	}
	categories, err := r.generateCategories(ctx, req)
	if err != nil {
		log.Printf("ai: recommendation failed: %v", err)
		res.Problem = Classify(err)
		res.Categories = []ideas.Category{}
		if res.Problem.ShowFallback {
			res.Categories = ideas.FallbackCategories()
			res.Fallback = true
		}
	} else {
		res.Categories = categories
		if r.cache != nil {
			r.cache.Add(key, cloneCategories(categories))
		}
	}

	res.HistoryID = r.record(ctx, res)
	return res, nil
}

func (r *Recommender) generateCategories(ctx context.Context, req prediction.GenerationRequest) ([]ideas.Category, error) {
	out, err := r.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ai generation failed: %w", err)
	}
	categories, err := r.parser.ParseCategories(out)
	if err != nil {
		return nil, fmt.Errorf("could not parse AI response: %w", err)
	}
	return categories, nil
}

// More asks for additional applications in category. On failure the static
// fallback application is returned so the category still grows.
func (r *Recommender) More(ctx context.Context, category, description string) (MoreResult, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return MoreResult{}, ErrEmptyCategory
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return MoreResult{}, ErrEmptyDescription
	}
	res := MoreResult{Category: category}

	req := prediction.GenerationRequest{
		SystemPrompt: fmt.Sprintf(moreSystemPrompt, category),
		UserPrompt:   fmt.Sprintf("Category: %s\nJob description: %s", category, description),
	}
	apps, err := r.generateApplications(ctx, category, req)
	if err != nil {
		log.Printf("ai: generating more for %q failed: %v", category, err)
		res.Problem = Classify(err)
		res.Applications = []ideas.Application{ideas.FallbackApplication(category)}
		res.Fallback = true
		return res, nil
	}
	res.Applications = apps
	return res, nil
}

func (r *Recommender) generateApplications(ctx context.Context, category string, req prediction.GenerationRequest) ([]ideas.Application, error) {
	out, err := r.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ai generation failed: %w", err)
	}
	apps, err := r.parser.ParseApplications(category, out)
	if err != nil {
		return nil, fmt.Errorf("could not parse AI response: %w", err)
	}
	return apps, nil
}

func (r *Recommender) record(ctx context.Context, res Result) string {
	if r.history == nil {
		return ""
	}
	// Nobody is waiting for an aborted run.
	if ctx.Err() != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	rec := &db.Record{
		Description: res.Description,
		Categories:  res.Categories,
		Fallback:    res.Fallback,
	}
	if res.Problem != nil {
		rec.Problem = string(res.Problem.Code)
		rec.RawOutput = res.Problem.RawOutput
	}
	if err := r.history.Save(ctx, rec); err != nil {
		log.Printf("history: could not save record: %v", err)
		return ""
	}
	return rec.ID
}

// cacheKey folds case and whitespace so trivially different inputs share
// an entry.
func cacheKey(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

func cloneCategories(in []ideas.Category) []ideas.Category {
	out := make([]ideas.Category, len(in))
	for i, c := range in {
		out[i] = ideas.Category{Name: c.Name, Applications: append([]ideas.Application(nil), c.Applications...)}
	}
	return out
}

const recommendSystemPrompt = `You are an expert in AI solutions for business. Based on the user's job description, produce a detailed list of concrete ways an AI assistant can help.

IMPORTANT: answer ONLY with plain JSON. No comments, headings, markdown or any other text.

Return the answer in this JSON structure:
{
  "categories": [
    {
      "name": "Category name",
      "applications": [
        {
          "title": "Concrete application title (max 5 words)",
          "description": "2-3 sentences on how AI helps with this specific task",
          "prompt": "A very precise prompt ready to use (at least 200 characters)",
          "examples": ["Concrete example 1", "Example 2", "Example 3", "Example 4", "Example 5"]
        }
      ]
    }
  ]
}

CATEGORIES (pick the 4-6 that fit best):
- Process Automation - automating repetitive tasks
- Analysis and Reports - analysing data, building reports
- Content Creation - writing, editing, content marketing
- Research - market, competitor and trend research
- Communication - emails, presentations, customer communication
- Business Assistant - organisation, planning, time management
- Marketing and Sales - campaigns, lead generation, sales
- Project Management - coordination, monitoring, planning
- Customer Success - customer service, retention
- Finance and Accounting - budgets, invoices, financial analysis
- Design and Creativity - design, UX/UI, graphics
- E-commerce - online stores, sales, logistics

REQUIREMENTS:
- 2-3 applications per category
- Every prompt must be ready to copy and use
- Examples must be concrete and practical
- Tailor everything to the user's industry and role
- Every application has 5 examples`

const moreSystemPrompt = `Generate 2 additional AI applications for the category "%s" based on the user's job description.

IMPORTANT: answer ONLY with plain JSON. No comments, headings, markdown or any other text.

Return the answer in this JSON structure:
{
  "applications": [
    {
      "title": "Application title (max 5 words)",
      "description": "Detailed description of how AI helps",
      "prompt": "Prompt ready to use (at least 200 characters)",
      "examples": ["Example 1", "Example 2", "Example 3", "Example 4", "Example 5"]
    }
  ]
}

Rules:
- Examples must be very concrete
- Prompts must be ready to copy and use
- 5 examples per application
- Different from applications already generated`
