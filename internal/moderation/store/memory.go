package store

import (
	"context"
	"sort"
	"sync"
	"time"

	gutils "github.com/Laisky/go-utils/v6"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

// Clock returns the current UTC time. Tests can replace it for determinism.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}

// Memory is a process-local CommentStore for dry runs and tests.
type Memory struct {
	mu       sync.RWMutex
	comments map[string]*model.Comment
	clock    Clock
}

// NewMemory creates an empty in-memory store.
func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = defaultClock
	}

	return &Memory{
		comments: make(map[string]*model.Comment),
		clock:    clock,
	}
}

// Create implements CommentStore.
func (s *Memory) Create(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = gutils.UUID7()
	}
	now := s.clock()
	c.CreatedAt, c.UpdatedAt = now, now
	s.comments[c.ID] = c.Clone()
	return nil
}

// Get implements CommentStore.
func (s *Memory) Get(_ context.Context, id string) (*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, ErrCommentNotFound
	}
	return c.Clone(), nil
}

// Save implements CommentStore.
func (s *Memory) Save(_ context.Context, c *model.Comment, expected workflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.comments[c.ID]
	if !ok {
		return ErrCommentNotFound
	}
	if stored.State != expected {
		return ErrStateConflict
	}

	c.UpdatedAt = s.clock()
	s.comments[c.ID] = c.Clone()
	return nil
}

// ListByStates implements CommentStore.
func (s *Memory) ListByStates(_ context.Context, states []workflow.State, limit int) ([]*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[workflow.State]struct{}, len(states))
	for _, st := range states {
		want[st] = struct{}{}
	}

	var found []*model.Comment
	for _, c := range s.comments {
		if _, ok := want[c.State]; ok {
			found = append(found, c.Clone())
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].ID < found[j].ID
		}
		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})

	if limit = normalizeLimit(limit); len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// Delete removes a comment. Moderation never deletes; this backs admin tooling and tests.
func (s *Memory) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comments, id)
}
