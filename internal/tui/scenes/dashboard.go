// Package scenes provides the TUI scenes for ChainGuard
package scenes

import (
	"fmt"
	"strings"
	"time"

	"chainguard/internal/dashboard"
	"chainguard/internal/history"
	"chainguard/internal/rules"
	"chainguard/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SnapshotMsg carries a fresh state snapshot to the scenes.
type SnapshotMsg struct {
	Snapshot dashboard.Snapshot
	Err      error
}

// DashboardScene displays the overview: stat cards, block status, the
// traffic trend and the rules panel.
type DashboardScene struct {
	snap       *dashboard.Snapshot
	err        error
	width      int
	height     int
	ruleCursor int
	lastUpdate time.Time
}

// NewDashboardScene creates a new dashboard scene
func NewDashboardScene() *DashboardScene {
	return &DashboardScene{}
}

// Update handles messages for the dashboard
func (d *DashboardScene) Update(msg tea.Msg) (*DashboardScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case SnapshotMsg:
		d.err = msg.Err
		if msg.Err == nil {
			snap := msg.Snapshot
			d.snap = &snap
			d.lastUpdate = time.Now()
			if d.ruleCursor >= len(snap.Rules) {
				d.ruleCursor = max(0, len(snap.Rules)-1)
			}
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if d.ruleCursor > 0 {
				d.ruleCursor--
			}
		case "down", "j":
			if d.snap != nil && d.ruleCursor < len(d.snap.Rules)-1 {
				d.ruleCursor++
			}
		}
	}
	return d, nil
}

// CursorRule returns the rule under the rules-panel cursor.
func (d *DashboardScene) CursorRule() (rules.Rule, bool) {
	if d.snap == nil || d.ruleCursor >= len(d.snap.Rules) {
		return rules.Rule{}, false
	}
	return d.snap.Rules[d.ruleCursor], true
}

// View renders the dashboard
func (d *DashboardScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  ChainGuard Firewall"))
	b.WriteString("\n")

	if d.snap == nil {
		if d.err != nil {
			b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", d.err)))
			return b.String()
		}
		b.WriteString(styles.Muted.Render("  Loading..."))
		return b.String()
	}
	if d.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", d.err)))
		b.WriteString("\n")
	}

	s := d.snap
	cards := []string{
		renderMetricCard("Total Packets", formatNumber(s.Totals.Synthesized)),
		renderMetricCard("Threats Blocked", formatNumber(s.Totals.Threats())),
		renderMetricCard("Active Rules", fmt.Sprintf("%d/%d", s.ActiveRules(), len(s.Rules))),
		renderMetricCard("Block Height", fmt.Sprintf("#%d", s.BlockHeight)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	b.WriteString(d.renderBlockStatus())
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  Traffic Trend"))
	b.WriteString("\n")
	b.WriteString(renderTrend(s.Buckets))
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  Smart Contract Rules"))
	b.WriteString("\n")
	b.WriteString(d.renderRules())
	b.WriteString("\n")

	if !d.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  Last updated: %s", d.lastUpdate.Format("15:04:05"))))
	}
	return b.String()
}

func (d *DashboardScene) renderBlockStatus() string {
	s := d.snap
	chain := fmt.Sprintf("%s Synced to block #%d",
		styles.StatusOK.Render("●"), s.BlockHeight)

	wallet := styles.Muted.Render("○ Wallet not connected")
	if s.WalletConnected {
		wallet = styles.StatusOK.Render("●") + " Wallet " + s.WalletAddress
	}

	auditor := styles.StatusWarning.Render("○") + " AI auditor offline (no API key)"
	if s.AnalysisAvailable {
		auditor = styles.StatusOK.Render("●") + " AI auditor online"
	}
	return fmt.Sprintf("  %s\n  %s\n  %s", chain, wallet, auditor)
}

// renderTrend draws one column per bucket; each bucket holds a single
// unit in exactly one counter.
func renderTrend(buckets []history.Bucket) string {
	if len(buckets) == 0 {
		return styles.Muted.Render("  No traffic yet.")
	}

	var allowed, blocked strings.Builder
	for _, bk := range buckets {
		allowed.WriteString(bar(bk.Allowed))
		blocked.WriteString(bar(bk.Blocked))
	}

	rows := []string{
		fmt.Sprintf("  %-8s %s", "Allowed", styles.StatusOK.Render(allowed.String())),
		fmt.Sprintf("  %-8s %s", "Blocked", styles.StatusError.Render(blocked.String())),
		styles.Muted.Render(fmt.Sprintf("  %-8s %s .. %s", "", buckets[0].Time, buckets[len(buckets)-1].Time)),
	}
	return strings.Join(rows, "\n")
}

func bar(n int) string {
	if n > 0 {
		return "█"
	}
	return "·"
}

func (d *DashboardScene) renderRules() string {
	var rows []string
	for i, r := range d.snap.Rules {
		marker := "  "
		if i == d.ruleCursor {
			marker = "> "
		}

		state := styles.Muted.Render("○ off")
		if r.Active {
			state = styles.StatusOK.Render("● on ")
		}

		action := styles.StatusOK
		if r.Action == rules.ActionBlock {
			action = styles.StatusError
		}

		row := fmt.Sprintf("%s%s %s %s %-30s %s gas %.3f",
			marker,
			state,
			action.Render(fmt.Sprintf("%-5s", r.Action)),
			fmt.Sprintf("%-7s", r.ID),
			truncate(r.Condition, 30),
			styles.Muted.Render(r.ContractAddress),
			r.GasCost,
		)
		rows = append(rows, "  "+row)
	}
	return strings.Join(rows, "\n")
}

func renderMetricCard(label, value string) string {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 2).
		Width(20).
		Align(lipgloss.Center)

	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)
	return card.Render(content)
}

func formatNumber(n uint64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
