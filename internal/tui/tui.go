// Package tui provides the terminal dashboard for ChainGuard
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard/internal/dashboard"
	"chainguard/internal/rules"
	"chainguard/internal/tui/scenes"
	"chainguard/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// DefaultPollInterval is how often a source without change notifications
// is re-read.
const DefaultPollInterval = time.Second

const requestTimeout = 5 * time.Second

// Source is what the TUI reads state from and sends intents to. It is
// satisfied by the in-process dashboard engine and by the HTTP client.
type Source interface {
	Snapshot(ctx context.Context) (dashboard.Snapshot, error)
	Select(ctx context.Context, id uuid.UUID) error
	Analyze(ctx context.Context, id uuid.UUID) error
	ToggleRule(ctx context.Context, id string) (rules.Rule, error)
	ToggleWallet(ctx context.Context) (bool, error)
}

// Notifier is implemented by sources that push change notifications. The
// TUI re-reads on each notification instead of polling.
type Notifier interface {
	Subscribe() (<-chan struct{}, func())
}

// Scene represents the current view
type Scene int

const (
	SceneDashboard Scene = iota
	SceneTraffic
)

const sceneCount = 2

type (
	tickMsg    time.Time
	changedMsg struct{}
	intentMsg  struct{ err error }
)

// Model is the main TUI model
type Model struct {
	source       Source
	updates      <-chan struct{}
	unsubscribe  func()
	pollInterval time.Duration
	label        string

	scene     Scene
	dashboard *scenes.DashboardScene
	traffic   *scenes.TrafficScene

	// status is the last intent failure, shown in the footer.
	status string

	width    int
	height   int
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithPollInterval sets the refresh period used when the source cannot
// push notifications.
func WithPollInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithLabel sets the connection label shown in the header.
func WithLabel(label string) Option {
	return func(m *Model) { m.label = label }
}

// New creates a new TUI model over src.
func New(src Source, opts ...Option) *Model {
	m := &Model{
		source:       src,
		pollInterval: DefaultPollInterval,
		label:        "local",
		scene:        SceneDashboard,
		dashboard:    scenes.NewDashboardScene(),
		traffic:      scenes.NewTrafficScene(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if n, ok := src.(Notifier); ok {
		m.updates, m.unsubscribe = n.Subscribe()
	}
	return m
}

// Close drops the change subscription, if any.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init fetches the first snapshot and arms the refresh trigger
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.next())
}

// next waits for the source's next change, or schedules a poll tick when
// the source cannot notify.
func (m *Model) next() tea.Cmd {
	if m.updates != nil {
		updates := m.updates
		return func() tea.Msg {
			if _, ok := <-updates; !ok {
				return nil
			}
			return changedMsg{}
		}
	}
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) fetch() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := src.Snapshot(ctx)
		return scenes.SnapshotMsg{Snapshot: snap, Err: err}
	}
}

func (m *Model) intent(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return intentMsg{err: fn(ctx)}
	}
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard, _ = m.dashboard.Update(msg)
		m.traffic, _ = m.traffic.Update(msg)
		return m, nil

	case scenes.SnapshotMsg:
		// Both scenes keep the latest state so a scene switch renders
		// immediately.
		m.dashboard, _ = m.dashboard.Update(msg)
		m.traffic, _ = m.traffic.Update(msg)
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.fetch(), m.next())

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.next())

	case intentMsg:
		m.status = ""
		if msg.err != nil && !errors.Is(msg.err, rules.ErrRuleNotFound) {
			m.status = msg.err.Error()
		}
		return m, m.fetch()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	src := m.source

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.Close()
		return m, tea.Quit

	case "1":
		m.scene = SceneDashboard
		return m, nil

	case "2":
		m.scene = SceneTraffic
		return m, nil

	case "tab":
		m.scene = (m.scene + 1) % sceneCount
		return m, nil

	case "w":
		return m, m.intent(func(ctx context.Context) error {
			_, err := src.ToggleWallet(ctx)
			return err
		})
	}

	switch m.scene {
	case SceneDashboard:
		if msg.String() == "t" {
			rule, ok := m.dashboard.CursorRule()
			if !ok {
				return m, nil
			}
			return m, m.intent(func(ctx context.Context) error {
				_, err := src.ToggleRule(ctx, rule.ID)
				return err
			})
		}
		m.dashboard, _ = m.dashboard.Update(msg)

	case SceneTraffic:
		switch msg.String() {
		case " ", "space":
			rec, ok := m.traffic.CursorRecord()
			if !ok {
				return m, nil
			}
			return m, m.intent(func(ctx context.Context) error {
				return src.Select(ctx, rec.ID)
			})
		case "enter", "a":
			rec, ok := m.traffic.CursorRecord()
			if !ok {
				return m, nil
			}
			return m, m.intent(func(ctx context.Context) error {
				return src.Analyze(ctx, rec.ID)
			})
		}
		m.traffic, _ = m.traffic.Update(msg)
	}
	return m, nil
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.scene {
	case SceneDashboard:
		b.WriteString(m.dashboard.View())
	case SceneTraffic:
		b.WriteString(m.traffic.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		key   string
		scene Scene
	}{
		{"Dashboard", "1", SceneDashboard},
		{"Traffic", "2", SceneTraffic},
	}

	var tabViews []string
	for _, tab := range tabs {
		label := fmt.Sprintf(" %s %s ", tab.key, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}
	tabViews = append(tabViews, styles.Muted.Render("  "+m.label))

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabViews...)

	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(tabBar)
}

func (m *Model) renderFooter() string {
	var help string
	switch m.scene {
	case SceneDashboard:
		help = " [1-2/Tab] Scene  [jk] Rule  [t] Toggle rule  [w] Wallet  [q] Quit "
	default:
		help = " [1-2/Tab] Scene  [jk] Move  [space] Select  [enter/a] Analyze  [w] Wallet  [q] Quit "
	}
	footer := styles.Help.Render(help)
	if m.status != "" {
		footer = styles.StatusError.Render(" "+m.status) + "\n" + footer
	}
	return footer
}

// Run starts the TUI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, src Source, opts ...Option) error {
	m := New(src, opts...)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	_, err := p.Run()
	return err
}
