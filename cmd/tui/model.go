// Package tui provides a terminal review console for comments awaiting an admin decision.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/queue"
)

const (
	defaultPendingLimit = 50
	requestTimeout      = 10 * time.Second
	previewRunes        = 72
)

// Reviewer is the part of the moderation service the console drives.
type Reviewer interface {
	Pending(ctx context.Context, limit int) ([]*model.Comment, error)
	Review(ctx context.Context, id string, accept bool) (*model.Comment, error)
}

// ViewState represents the current view state of the TUI
type ViewState int

const (
	// ViewLoading is shown while the pending list is fetched
	ViewLoading ViewState = iota
	// ViewList lists comments awaiting review
	ViewList
	// ViewDetail shows the full text of one comment
	ViewDetail
)

// commentItem adapts a comment to list.Item
type commentItem struct {
	comment *model.Comment
}

// Title returns the list title (implements list.Item)
func (i commentItem) Title() string {
	return fmt.Sprintf("%s on %s", i.comment.Author, i.comment.PostName)
}

// Description returns the list description (implements list.Item)
func (i commentItem) Description() string {
	return fmt.Sprintf("[%s] %s", i.comment.State, preview(i.comment.Text))
}

// FilterValue returns the filter value (implements list.Item)
func (i commentItem) FilterValue() string { return i.comment.Author + " " + i.comment.PostName }

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes-1]) + "…"
}

// pendingLoadedMsg carries the result of a pending-list fetch
type pendingLoadedMsg struct {
	comments []*model.Comment
	stats    *queue.Stats
	err      error
}

// reviewedMsg carries the result of an accept or reject
type reviewedMsg struct {
	comment *model.Comment
	accept  bool
	err     error
}

// Model is the main TUI model following the Bubble Tea architecture
type Model struct {
	state ViewState

	pending  list.Model
	spinner  spinner.Model
	selected *model.Comment

	reviewer  Reviewer
	inspector queue.Inspector
	limit     int

	stats     *queue.Stats
	status    string
	statusErr bool

	width  int
	height int

	quitting bool
}

// keyMap defines the key bindings for the TUI
type keyMap struct {
	Enter   key.Binding
	Back    key.Binding
	Accept  key.Binding
	Reject  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Accept: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "accept"),
	),
	Reject: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reject"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("R", "f5"),
		key.WithHelp("R", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a review console. inspector may be nil, limit <= 0 uses the default.
func NewModel(reviewer Reviewer, inspector queue.Inspector, limit int) Model {
	if limit <= 0 {
		limit = defaultPendingLimit
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(primaryColor).
		BorderForeground(primaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(secondaryColor)

	pending := list.New(nil, delegate, 0, 0)
	pending.Title = "Comments awaiting review"
	pending.SetShowStatusBar(true)
	pending.SetFilteringEnabled(false)
	pending.KeyMap.Quit.SetEnabled(false)
	pending.Styles.Title = titleStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		state:     ViewLoading,
		pending:   pending,
		spinner:   sp,
		reviewer:  reviewer,
		inspector: inspector,
		limit:     limit,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadPending(),
	)
}

func (m Model) loadPending() tea.Cmd {
	reviewer, inspector, limit := m.reviewer, m.inspector, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		comments, err := reviewer.Pending(ctx, limit)
		if err != nil {
			return pendingLoadedMsg{err: errors.Wrap(err, "list pending comments")}
		}

		msg := pendingLoadedMsg{comments: comments}
		if inspector != nil {
			if stats, err := inspector.Stats(ctx); err == nil {
				msg.stats = &stats
			}
		}

		return msg
	}
}

func (m Model) review(id string, accept bool) tea.Cmd {
	reviewer := m.reviewer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		c, err := reviewer.Review(ctx, id, accept)
		return reviewedMsg{comment: c, accept: accept, err: err}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pending.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

		switch m.state {
		case ViewList:
			return m.handleList(msg)
		case ViewDetail:
			return m.handleDetail(msg)
		case ViewLoading:
			return m, nil
		}

	case spinner.TickMsg:
		if m.state == ViewLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case pendingLoadedMsg:
		m.state = ViewList
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}

		items := make([]list.Item, 0, len(msg.comments))
		for _, c := range msg.comments {
			items = append(items, commentItem{comment: c})
		}
		cmd = m.pending.SetItems(items)
		m.stats = msg.stats
		return m, cmd

	case reviewedMsg:
		m.state = ViewList
		m.selected = nil
		if msg.err != nil {
			m.setStatus("review failed: "+msg.err.Error(), true)
			return m, m.loadPending()
		}

		m.setStatus(fmt.Sprintf("comment %s is now %s", msg.comment.ID, msg.comment.State), false)
		m.state = ViewLoading
		return m, tea.Batch(m.spinner.Tick, m.loadPending())
	}

	if m.state == ViewList {
		m.pending, cmd = m.pending.Update(msg)
	}

	return m, cmd
}

func (m *Model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

func (m Model) current() *model.Comment {
	if m.state == ViewDetail {
		return m.selected
	}
	if item, ok := m.pending.SelectedItem().(commentItem); ok {
		return item.comment
	}
	return nil
}

// handleList handles key events in the pending list
func (m Model) handleList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Refresh):
		m.state = ViewLoading
		return m, tea.Batch(m.spinner.Tick, m.loadPending())

	case key.Matches(msg, keys.Enter):
		if c := m.current(); c != nil {
			m.selected = c
			m.state = ViewDetail
		}
		return m, nil

	case key.Matches(msg, keys.Accept), key.Matches(msg, keys.Reject):
		return m.decide(key.Matches(msg, keys.Accept))
	}

	var cmd tea.Cmd
	m.pending, cmd = m.pending.Update(msg)
	return m, cmd
}

// handleDetail handles key events in the detail view
func (m Model) handleDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.state = ViewList
		m.selected = nil
		return m, nil

	case key.Matches(msg, keys.Accept), key.Matches(msg, keys.Reject):
		return m.decide(key.Matches(msg, keys.Accept))
	}

	return m, nil
}

func (m Model) decide(accept bool) (tea.Model, tea.Cmd) {
	c := m.current()
	if c == nil {
		return m, nil
	}

	m.state = ViewLoading
	return m, tea.Batch(m.spinner.Tick, m.review(c.ID, accept))
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return mutedStyle.Render("Goodbye! 👋\n")
	}

	switch m.state {
	case ViewLoading:
		return m.renderLoading()
	case ViewList:
		return m.renderList()
	case ViewDetail:
		return m.renderDetail()
	default:
		return "Unknown state"
	}
}

func (m Model) renderStatus() string {
	var parts []string
	if m.stats != nil {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf(
			"queue: %d pending • %d processing • %d dead",
			m.stats.Pending, m.stats.Processing, m.stats.Dead)))
	}
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = failStyle
		}
		parts = append(parts, style.Render(m.status))
	}
	return strings.Join(parts, "\n")
}

func (m Model) renderLoading() string {
	return detailBoxStyle.Render(
		lipgloss.JoinVertical(lipgloss.Center,
			m.spinner.View()+" Loading...",
			mutedStyle.Render("Please wait..."),
		),
	)
}

func (m Model) renderList() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.pending.View(),
		m.renderStatus(),
		helpStyle.Render("↑/↓ navigate • enter open • a accept • r reject • R refresh • q quit"),
	)
}

func (m Model) renderDetail() string {
	c := m.selected
	if c == nil {
		return "No comment selected"
	}

	score := "unscored"
	if c.SpamScore != nil {
		score = fmt.Sprintf("score %d", *c.SpamScore)
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s on %s", c.Author, c.PostName)) + "\n")
	sb.WriteString(stateStyle(c.State).Render(string(c.State)) + " " +
		mutedStyle.Render(fmt.Sprintf("• %s • %s", score, c.CreatedAt.Format(time.RFC3339))) + "\n\n")
	sb.WriteString(c.Text + "\n")
	if c.AuthorContext.UserIP != "" {
		sb.WriteString("\n" + mutedStyle.Render("from "+c.AuthorContext.UserIP) + "\n")
	}
	sb.WriteString(helpStyle.Render("a accept • r reject • esc back • q quit"))

	return detailBoxStyle.Render(sb.String())
}
