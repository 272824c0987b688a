package scenes

import (
	"fmt"
	"strings"

	"chainguard/internal/analysis"
	"chainguard/internal/dashboard"
	"chainguard/internal/traffic"
	"chainguard/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// TrafficScene shows the live packet log and the analysis panel for the
// selected record.
type TrafficScene struct {
	snap *dashboard.Snapshot
	err  error

	// cursorID keeps the cursor on the same record while new ones are
	// prepended above it.
	cursor   int
	cursorID uuid.UUID
	offset   int
	maxRows  int

	width  int
	height int
}

// NewTrafficScene creates a new traffic scene
func NewTrafficScene() *TrafficScene {
	return &TrafficScene{maxRows: 12}
}

// Update handles messages for the traffic scene
func (t *TrafficScene) Update(msg tea.Msg) (*TrafficScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.height = msg.Height
		t.maxRows = max(5, t.height-22)
		t.clampOffset()

	case SnapshotMsg:
		t.err = msg.Err
		if msg.Err == nil {
			snap := msg.Snapshot
			t.snap = &snap
			t.follow()
		}

	case tea.KeyMsg:
		n := t.count()
		switch msg.String() {
		case "up", "k":
			if t.cursor > 0 {
				t.cursor--
			}
		case "down", "j":
			if t.cursor < n-1 {
				t.cursor++
			}
		case "pgup":
			t.cursor = max(0, t.cursor-t.maxRows)
		case "pgdown":
			t.cursor = max(0, min(n-1, t.cursor+t.maxRows))
		case "home", "g":
			t.cursor = 0
		}
		t.remember()
		t.clampOffset()
	}
	return t, nil
}

func (t *TrafficScene) count() int {
	if t.snap == nil {
		return 0
	}
	return len(t.snap.Records)
}

// follow re-locates the cursor record in a fresh snapshot, falling back to
// the nearest index once it has been evicted.
func (t *TrafficScene) follow() {
	if t.cursorID != uuid.Nil {
		for i, rec := range t.snap.Records {
			if rec.ID == t.cursorID {
				t.cursor = i
				t.clampOffset()
				return
			}
		}
	}
	if t.cursor >= len(t.snap.Records) {
		t.cursor = max(0, len(t.snap.Records)-1)
	}
	t.remember()
	t.clampOffset()
}

func (t *TrafficScene) remember() {
	if t.snap != nil && t.cursor < len(t.snap.Records) {
		t.cursorID = t.snap.Records[t.cursor].ID
	}
}

func (t *TrafficScene) clampOffset() {
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+t.maxRows {
		t.offset = t.cursor - t.maxRows + 1
	}
	t.offset = max(0, min(t.offset, max(0, t.count()-t.maxRows)))
}

// CursorRecord returns the record under the log cursor.
func (t *TrafficScene) CursorRecord() (traffic.Record, bool) {
	if t.cursor >= t.count() {
		return traffic.Record{}, false
	}
	return t.snap.Records[t.cursor], true
}

// View renders the traffic log and the analysis panel
func (t *TrafficScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Live Traffic"))
	b.WriteString("\n")

	if t.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", t.err)))
		b.WriteString("\n")
	}
	if t.snap == nil {
		b.WriteString(styles.Muted.Render("  Loading packets..."))
		return b.String()
	}
	if len(t.snap.Records) == 0 {
		b.WriteString(styles.Muted.Render("  Waiting for the first packet..."))
		return b.String()
	}

	header := fmt.Sprintf("  %-9s %-15s %-11s %-5s %-6s %-5s %s",
		"Time", "Source", "Dest", "Proto", "Port", "Size", "Status")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	end := min(t.offset+t.maxRows, len(t.snap.Records))
	for i := t.offset; i < end; i++ {
		rec := t.snap.Records[i]
		b.WriteString(t.renderRow(rec, i == t.cursor))
		b.WriteString("\n")
	}
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  %d-%d of %d", t.offset+1, end, len(t.snap.Records))))
	b.WriteString("\n\n")

	b.WriteString(styles.Panel.Render(t.renderAnalysis()))
	return b.String()
}

func (t *TrafficScene) renderRow(rec traffic.Record, cursor bool) string {
	pin := " "
	if t.snap.IsSelected(rec) {
		pin = "●"
	}
	row := fmt.Sprintf("%s %-9s %-15s %-11s %-5s %-6d %-5d ",
		pin,
		rec.Timestamp.Format("15:04:05"),
		rec.SourceIP,
		rec.DestIP,
		rec.Protocol,
		rec.Port,
		rec.Size,
	)

	if cursor {
		return " " + styles.TableRowSelected.Render(row+string(rec.Status))
	}
	return " " + row + statusStyle(rec.Status).Render(string(rec.Status))
}

func (t *TrafficScene) renderAnalysis() string {
	s := t.snap
	if s.Selected == nil {
		return styles.Muted.Render("Select a packet to inspect it.  [space] select  [enter] analyze")
	}

	rec := s.Selected
	var b strings.Builder
	b.WriteString(styles.Subtitle.Render("Packet " + rec.ID.String()))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s:%d -> %s  %s  %d bytes  %s\n",
		rec.SourceIP, rec.Port, rec.DestIP, rec.Protocol, rec.Size,
		statusStyle(rec.Status).Render(string(rec.Status))))
	b.WriteString(styles.Muted.Render("payload " + truncate(rec.PayloadHash, 24) + "  sig " + truncate(rec.Signature, 24)))
	if rec.BlockNumber != nil {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  block #%d", *rec.BlockNumber)))
	}
	b.WriteString("\n\n")

	switch {
	case s.Pending:
		b.WriteString(styles.StatusWarning.Render("Analyzing with AI auditor..."))
	case s.Analysis != nil:
		b.WriteString(renderResult(*s.Analysis))
	default:
		b.WriteString(styles.Muted.Render("[enter] Run AI analysis"))
	}
	return b.String()
}

func renderResult(res analysis.Result) string {
	var b strings.Builder
	risk := styles.Risk(res.RiskScore)
	b.WriteString(risk.Render(fmt.Sprintf("Risk %d/100  %s", res.RiskScore, res.Level())))
	if res.ThreatType != "" {
		b.WriteString("  " + res.ThreatType)
	}
	b.WriteString("\n")
	b.WriteString(res.Analysis)
	b.WriteString("\n")
	b.WriteString(styles.Muted.Render("Recommendation: ") + res.Recommendation)
	if res.BanRecommended() {
		b.WriteString("\n\n")
		b.WriteString(styles.BanButton.Render("Execute Smart Contract Ban"))
	}
	return b.String()
}

func statusStyle(s traffic.Status) lipgloss.Style {
	switch s {
	case traffic.StatusBlocked:
		return styles.StatusError
	case traffic.StatusSuspicious:
		return styles.StatusWarning
	default:
		return styles.StatusOK
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
