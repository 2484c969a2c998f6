// Package monitor provides the REST client and terminal dashboard used by
// theoctl.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/theodore/internal/discovery"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	fetchTimeout    = 5 * time.Second
)

// Snapshot is one poll of the server.
type Snapshot struct {
	Status    string
	Version   string
	Companies int
	Backends  []discovery.BackendStatus
	Latency   time.Duration
}

// Healthy counts healthy backends.
func (s Snapshot) Healthy() int {
	n := 0
	for _, b := range s.Backends {
		if b.Healthy {
			n++
		}
	}
	return n
}

// Model is the bubbletea dashboard model.
type Model struct {
	client     *Client
	interval   time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool
	recovered  []string
	now        func() time.Time

	healthyHistory []float64
	latencyHistory []float64
	healthBar      progress.Model
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling client every interval.
func NewModel(client *Client, interval time.Duration) Model {
	return Model{
		client:   client,
		interval: interval,
		now:      time.Now,
		healthBar: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		healthyHistory: make([]float64, 0, historySize),
		latencyHistory: make([]float64, 0, historySize),
	}
}

// statusBadge summarises backend health.
func statusBadge(s Snapshot) string {
	total, healthy := len(s.Backends), s.Healthy()
	switch {
	case total == 0:
		return warningStyle.Render("⚠ NO BACKENDS")
	case healthy == total:
		return healthyStyle.Render("✓ HEALTHY")
	case healthy > 0:
		return warningStyle.Render("⚠ DEGRADED")
	default:
		return errorStyle.Render("✗ DOWN")
	}
}

func backendBadge(b discovery.BackendStatus) string {
	if b.Healthy {
		return healthyStyle.Render("[✓]")
	}
	return errorStyle.Render("[✗]")
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	spark.PushAll(data)
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg struct{ err error }
type checkedMsg []string

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetchSnapshot(m.client))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls status and backends.
func fetchSnapshot(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		start := time.Now()
		status, err := client.Status(ctx)
		if err != nil {
			return errMsg{err}
		}
		latency := time.Since(start)

		backends, err := client.Backends(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(Snapshot{
			Status:    status.Status,
			Version:   status.Version,
			Companies: status.Companies,
			Backends:  backends.Backends,
			Latency:   latency,
		})
	}
}

// checkBackends re-probes unhealthy backends, then refreshes.
func checkBackends(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		resp, err := client.CheckBackends(ctx)
		if err != nil {
			return errMsg{err}
		}
		return checkedMsg(resp.Recovered)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.client)
		case "c":
			return m, checkBackends(m.client)
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetchSnapshot(m.client))

	case snapshotMsg:
		s := Snapshot(msg)
		m.snapshot = s
		m.healthyHistory = appendToHistory(m.healthyHistory, float64(s.Healthy()))
		m.latencyHistory = appendToHistory(m.latencyHistory, float64(s.Latency.Milliseconds()))
		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case checkedMsg:
		m.recovered = append([]string{}, msg...)
		return m, fetchSnapshot(m.client)

	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("theodore Monitor") + "\n\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach theodore") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.client.BaseURL()) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start the server with: theodore serve") + "\n\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry"))
	return containerStyle.Render(b.String())
}

func (m Model) renderDashboard() string {
	s := m.snapshot
	var b strings.Builder

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" theodore Monitor ") + "\n")
	fmt.Fprintf(&b, "%s   %s %s   %s\n",
		statusBadge(s),
		dimStyle.Render("Version:"),
		valueStyle.Render(s.Version),
		dimStyle.Render(lastUpdate))

	// Backends
	b.WriteString("\n" + sectionStyle.Render("┃ Search Backends") + "\n")
	ratio := 0.0
	if len(s.Backends) > 0 {
		ratio = float64(s.Healthy()) / float64(len(s.Backends))
	}
	b.WriteString(labelStyle.Render("  Healthy: ") +
		valueStyle.Render(fmt.Sprintf("%d/%d", s.Healthy(), len(s.Backends))) +
		"   " + createSparkline(m.healthyHistory) + "\n")
	b.WriteString(labelStyle.Render("  Ratio: ") +
		m.healthBar.ViewAs(ratio) + " " +
		dimStyle.Render(FormatPercentage(ratio)) + "\n")

	now := m.now()
	for _, backend := range s.Backends {
		line := fmt.Sprintf("  %s %-18s %s", backendBadge(backend), backend.Name,
			dimStyle.Render("changed "+FormatAge(backend.ChangedAt, now)+" ago"))
		if backend.LastError != "" {
			line += "  " + errorStyle.Render(truncate(backend.LastError, 60))
		}
		b.WriteString(line + "\n")
	}
	if m.recovered != nil {
		recovered := "none"
		if len(m.recovered) > 0 {
			recovered = strings.Join(m.recovered, ", ")
		}
		b.WriteString(dimStyle.Render("  Last check recovered: ") + healthyStyle.Render(recovered) + "\n")
	}

	// Store and API
	b.WriteString("\n" + sectionStyle.Render("┃ Company Database") + "\n")
	b.WriteString(labelStyle.Render("  Companies: ") + valueStyle.Render(FormatCount(s.Companies)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ API") + "\n")
	b.WriteString(labelStyle.Render("  Status latency: ") +
		valueStyle.Render(FormatLatency(s.Latency.Seconds())) +
		"   " + createSparkline(m.latencyHistory) + "\n")

	b.WriteString("\n" +
		footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerKeyStyle.Render("[c]") + footerStyle.Render(" check  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval)))

	return containerStyle.Render(b.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
