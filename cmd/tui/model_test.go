package tui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

type fakeReviewer struct {
	mu       sync.Mutex
	comments []*model.Comment
	reviewed map[string]bool
	err      error
}

func (f *fakeReviewer) Pending(_ context.Context, limit int) ([]*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Comment
	for _, c := range f.comments {
		if _, ok := f.reviewed[c.ID]; ok {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeReviewer) Review(_ context.Context, id string, accept bool) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.reviewed == nil {
		f.reviewed = map[string]bool{}
	}
	f.reviewed[id] = accept

	for _, c := range f.comments {
		if c.ID == id {
			out := c.Clone()
			out.State = workflow.StateRejected
			if accept {
				out.State = workflow.StatePublished
			}
			return out, nil
		}
	}
	return nil, context.Canceled
}

type fakeInspector struct{}

func (fakeInspector) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{Pending: 2, Dead: 1}, nil
}

func (fakeInspector) DeadLetters(context.Context, int64) ([]*queue.Delivery, error) {
	return nil, nil
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T, r *fakeReviewer) Model {
	t.Helper()
	m := NewModel(r, fakeInspector{}, 0)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(Model)

	updated, _ = m.Update(m.loadPending()())
	return updated.(Model)
}

func seededReviewer() *fakeReviewer {
	return &fakeReviewer{comments: []*model.Comment{
		{ID: "c1", PostName: "go-generics", Author: "alice", Text: "nice post", State: workflow.StateReady},
		{ID: "c2", PostName: "go-generics", Author: "bob", Text: "thanks", State: workflow.StateHamReady},
	}}
}

func TestLoadPending(t *testing.T) {
	m := newTestModel(t, seededReviewer())

	require.Equal(t, ViewList, m.state)
	require.Len(t, m.pending.Items(), 2)
	require.Equal(t, queue.Stats{Pending: 2, Dead: 1}, *m.stats)
	require.Contains(t, m.View(), "alice on go-generics")
	require.Contains(t, m.View(), "1 dead")
}

func TestAcceptFromList(t *testing.T) {
	r := seededReviewer()
	m := newTestModel(t, r)

	updated, cmd := m.Update(runeKey("a"))
	m = updated.(Model)
	require.Equal(t, ViewLoading, m.state)
	require.NotNil(t, cmd)

	// run the review directly, the batched spinner tick is irrelevant here
	updated, cmd = m.Update(m.review("c1", true)())
	m = updated.(Model)
	require.NotNil(t, cmd)
	require.False(t, m.statusErr)
	require.Contains(t, m.status, "published")
	require.Equal(t, map[string]bool{"c1": true}, r.reviewed)

	updated, _ = m.Update(m.loadPending()())
	m = updated.(Model)
	require.Len(t, m.pending.Items(), 1)
	require.Equal(t, "c2", m.pending.Items()[0].(commentItem).comment.ID)
}

func TestRejectFromDetail(t *testing.T) {
	r := seededReviewer()
	m := newTestModel(t, r)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	require.Equal(t, ViewDetail, m.state)
	require.Equal(t, "c1", m.selected.ID)
	require.Contains(t, m.View(), "nice post")
	require.Contains(t, m.View(), string(workflow.StateReady))

	updated, cmd := m.Update(runeKey("r"))
	m = updated.(Model)
	require.Equal(t, ViewLoading, m.state)
	require.NotNil(t, cmd)

	updated, _ = m.Update(m.review("c1", false)())
	m = updated.(Model)
	require.Contains(t, m.status, "rejected")
	require.Equal(t, map[string]bool{"c1": false}, r.reviewed)
}

func TestDetailBack(t *testing.T) {
	m := newTestModel(t, seededReviewer())

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	require.Equal(t, ViewList, m.state)
	require.Nil(t, m.selected)
}

func TestReviewError(t *testing.T) {
	r := seededReviewer()
	r.err = context.DeadlineExceeded
	m := newTestModel(t, r)

	updated, _ := m.Update(m.review("c1", true)())
	m = updated.(Model)
	require.True(t, m.statusErr)
	require.Contains(t, m.status, "review failed")
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, seededReviewer())

	updated, cmd := m.Update(runeKey("q"))
	m = updated.(Model)
	require.True(t, m.quitting)
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "Goodbye")
}

func TestPreview(t *testing.T) {
	require.Equal(t, "a b", preview(" a\n\tb "))

	long := preview(string(make([]rune, previewRunes+10)))
	require.Len(t, []rune(long), previewRunes)
}
