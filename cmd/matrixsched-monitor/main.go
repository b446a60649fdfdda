// Command matrixsched-monitor is an operator dashboard that polls a
// running scheduler's /stats endpoint and renders it as a live TUI,
// adapted from the teacher's load-test dashboard (internal/tui/dashboard.go).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bdrail/matrixsched/internal/tui"
	"github.com/bdrail/matrixsched/pkg/models"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const asciiLogo = `⚡ matrixsched monitor`

type statsMsg struct {
	stats models.Stats
	err   error
}

type tickMsg time.Time

type model struct {
	baseURL  string
	client   *http.Client
	last     models.Stats
	lastErr  error
	progress progress.Model
	polls    int
}

func newModel(baseURL string) model {
	return model{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		progress: progress.New(progress.WithScaledGradient("#00FFFF", "#00FF88"), progress.WithoutPercentage()),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), tickCmd())
}

func (m model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.baseURL + "/stats")
		if err != nil {
			return statsMsg{err: err}
		}
		defer resp.Body.Close()

		var s models.Stats
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return statsMsg{err: err}
		}
		return statsMsg{stats: s}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" || msg.String() == "esc" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.pollCmd(), tickCmd())
	case statsMsg:
		m.polls++
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
			m.last = msg.stats
		}
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(tui.HeaderStyle.Render(asciiLogo))
	s.WriteString("\n")
	s.WriteString(tui.SubtleStyle.Render("  " + m.baseURL))
	s.WriteString("\n\n")

	if m.lastErr != nil {
		s.WriteString(tui.WarnStyle.Render(fmt.Sprintf("poll failed: %v", m.lastErr)))
		s.WriteString("\n")
	}

	body := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n%s %s\n",
		"Queued:            ", tui.MetricStyle.Render(fmt.Sprint(m.last.Queued)),
		"Processing:        ", tui.MetricStyle.Render(fmt.Sprint(m.last.Processing)),
		"Avg processing (s):", tui.MetricStyle.Render(fmt.Sprintf("%.2f", m.last.AvgProcessingTime)),
		"Recent abandonments:", tui.MetricStyle.Render(fmt.Sprint(m.last.RecentAbandonments)),
		"Queue size:        ", tui.MetricStyle.Render(fmt.Sprint(m.last.QueueSize)),
	)
	s.WriteString(tui.BorderStyle.Render(body))
	s.WriteString("\n\n")

	live := m.last.Queued + m.last.Processing
	ratio := 0.0
	if live > 0 {
		ratio = float64(m.last.Processing) / float64(live)
	}
	s.WriteString(tui.SubtleStyle.Render("  dispatched share of live requests"))
	s.WriteString("\n  ")
	s.WriteString(m.progress.ViewAs(ratio))
	s.WriteString("\n\n")
	s.WriteString(tui.SubtleStyle.Render(fmt.Sprintf("polls: %d · press q to quit", m.polls)))
	return s.String()
}

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of a running matrixsched server")
	flag.Parse()

	p := tea.NewProgram(newModel(baseURL))
	if _, err := p.Run(); err != nil {
		fmt.Printf("error running monitor: %v\n", err)
	}
}
