package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"ideaforge/internal/ideas"
	"ideaforge/internal/prediction"
)

var (
	// ErrStale means a newer search started while this one was running; its
	// result was discarded.
	ErrStale           = errors.New("result superseded by a newer search")
	ErrNoResult        = errors.New("no search result to extend")
	ErrUnknownCategory = errors.New("category not in current result")
	ErrBusy            = errors.New("already generating more applications")
)

// Snapshot is a copy of the session's view state.
type Snapshot struct {
	Epoch       uint64
	Description string
	Result      *Result
	Loading     bool
	Extending   string
}

// Session holds the view state of one user. Every search bumps the epoch and
// results are committed only while their epoch is current.
type Session struct {
	rec        *Recommender
	onProgress func(epoch uint64, p prediction.Progress)

	mu          sync.Mutex
	epoch       uint64
	description string
	result      *Result
	loading     bool
	extending   string
}

// NewSession creates a session. onProgress may be nil.
func NewSession(rec *Recommender, onProgress func(epoch uint64, p prediction.Progress)) *Session {
	return &Session{rec: rec, onProgress: onProgress}
}

// Search runs a recommendation and commits it unless a newer search started
// meanwhile, in which case the result is returned with ErrStale.
func (s *Session) Search(ctx context.Context, description string) (Result, uint64, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Result{}, 0, ErrEmptyDescription
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.description = description
	s.result = nil
	s.loading = true
	s.extending = ""
	s.mu.Unlock()

	res, err := s.rec.Recommend(s.withProgress(ctx, epoch), description)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		log.Printf("ai: discarding result of search %d, current is %d", epoch, s.epoch)
		return res, epoch, ErrStale
	}
	s.loading = false
	if err != nil {
		return res, epoch, err
	}
	kept := res
	kept.Categories = cloneCategories(res.Categories)
	s.result = &kept
	return res, epoch, nil
}

// More extends category of the current result.
func (s *Session) More(ctx context.Context, category string) (MoreResult, uint64, error) {
	s.mu.Lock()
	epoch := s.epoch
	if s.result == nil {
		s.mu.Unlock()
		return MoreResult{}, epoch, ErrNoResult
	}
	if s.extending != "" {
		s.mu.Unlock()
		return MoreResult{}, epoch, ErrBusy
	}
	if indexOf(s.result.Categories, category) < 0 {
		s.mu.Unlock()
		return MoreResult{}, epoch, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	s.extending = category
	description := s.description
	s.mu.Unlock()

	res, err := s.rec.More(s.withProgress(ctx, epoch), category, description)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return res, epoch, ErrStale
	}
	s.extending = ""
	if err != nil {
		return res, epoch, err
	}
	i := indexOf(s.result.Categories, category)
	s.result.Categories[i].Applications = append(s.result.Categories[i].Applications, res.Applications...)
	return res, epoch, nil
}

// Snapshot returns a copy of the current view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Epoch:       s.epoch,
		Description: s.description,
		Loading:     s.loading,
		Extending:   s.extending,
	}
	if s.result != nil {
		r := *s.result
		r.Categories = cloneCategories(s.result.Categories)
		snap.Result = &r
	}
	return snap
}

func (s *Session) withProgress(ctx context.Context, epoch uint64) context.Context {
	if s.onProgress == nil {
		return ctx
	}
	return prediction.WithProgress(ctx, func(p prediction.Progress) {
		s.onProgress(epoch, p)
	})
}

func indexOf(categories []ideas.Category, name string) int {
	for i, c := range categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}
