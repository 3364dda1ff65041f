// Package tui provides a terminal dashboard for a running ransomwatchd
// instance, polling its status API instead of linking against the
// daemon directly.
package tui

import (
	"fmt"
	"strings"
	"time"

	"ransomwatch/internal/tui/api"
	"ransomwatch/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 2 * time.Second

// Model is the dashboard's bubbletea model. It polls /health and
// /api/threats on a fixed interval and re-renders on every tick.
type Model struct {
	client *api.Client

	stats   *api.Stats
	threats []api.Threat
	err     error

	width      int
	height     int
	lastUpdate time.Time
	loading    bool
	quitting   bool
}

// New creates a dashboard model pointed at a ransomwatchd status API.
func New(baseURL string) *Model {
	return &Model{
		client:  api.NewClient(baseURL),
		loading: true,
		stats:   &api.Stats{HealthStatus: "unknown"},
	}
}

type dataMsg struct {
	stats   *api.Stats
	threats []api.Threat
	err     error
}

type tickMsg time.Time

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.client.GetStats()
		if err != nil {
			return dataMsg{stats: stats, err: err}
		}
		threatsResp, err := m.client.GetThreats()
		var threats []api.Threat
		if threatsResp != nil {
			threats = threatsResp.Threats
		}
		return dataMsg{stats: stats, threats: threats, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tickCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataMsg:
		m.loading = false
		m.stats = msg.stats
		m.threats = msg.threats
		m.err = msg.err
		m.lastUpdate = time.Now()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), tickCmd())
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("  ransomwatch"))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(styles.Muted.Render("  connecting..."))
		return b.String()
	}
	if m.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  error: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n\n")
	b.WriteString(m.renderCards())
	b.WriteString("\n\n")
	b.WriteString(styles.Subtitle.Render("  Recent threats"))
	b.WriteString("\n")
	b.WriteString(m.renderThreats())
	b.WriteString("\n")

	if !m.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  updated %s", m.lastUpdate.Format("15:04:05"))))
	}
	b.WriteString("\n")
	b.WriteString(styles.Help.Render("  [r] refresh  [q] quit"))
	return b.String()
}

func (m *Model) renderStatusLine() string {
	if m.stats.Triggered {
		return fmt.Sprintf("  %s  level=%s", styles.StatusError.Render("● TRIGGERED"), m.stats.Level)
	}
	if m.stats.Healthy {
		return fmt.Sprintf("  %s  level=%s", styles.StatusOK.Render("● MONITORING"), m.stats.Level)
	}
	return fmt.Sprintf("  %s  %s", styles.StatusWarning.Render("● UNREACHABLE"), m.stats.StatusReason)
}

func (m *Model) renderCards() string {
	card := func(label, value string) string {
		return styles.MetricCard.Render(fmt.Sprintf("%s\n%s",
			styles.MetricValue.Render(value),
			styles.MetricLabel.Render(label),
		))
	}
	cards := []string{
		card("Threats", fmt.Sprintf("%d", m.stats.ThreatCount)),
		card("Level", m.stats.Level),
		card("Uptime", m.stats.Uptime),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m *Model) renderThreats() string {
	if len(m.threats) == 0 {
		return styles.Muted.Render("  none recorded")
	}

	n := len(m.threats)
	start := 0
	if n > 8 {
		start = n - 8
	}

	var rows []string
	for _, t := range m.threats[start:] {
		row := fmt.Sprintf("  %s  %-10s  %-10s  %s",
			t.Timestamp.Format("15:04:05"),
			levelLabel(t.Level),
			t.DetectorName,
			t.Description,
		)
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func levelLabel(level int) string {
	names := []string{"None", "Low", "Medium", "High", "Critical"}
	if level < 0 || level >= len(names) {
		return "Unknown"
	}
	switch names[level] {
	case "Critical", "High":
		return styles.StatusError.Render(names[level])
	case "Medium":
		return styles.StatusWarning.Render(names[level])
	default:
		return names[level]
	}
}

// Run starts the dashboard against a ransomwatchd listening at baseURL.
func Run(baseURL string) error {
	p := tea.NewProgram(New(baseURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
