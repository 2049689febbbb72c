package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	pbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcut/runtime-bridge/bridge"
	"github.com/marcut/runtime-bridge/pipeline"
	"github.com/marcut/runtime-bridge/progress"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type redactState int

const (
	stateRunning redactState = iota
	stateCancelling
	stateDone
)

type progressMsg progress.Event

type streamDoneMsg struct{}

type outcomeMsg bridge.RunOutcome

type redactModel struct {
	b      *bridge.Bridge
	req    pipeline.Request
	events <-chan progress.Event
	handle *bridge.Handle

	state   redactState
	started time.Time

	spinner spinner.Model
	stage   pbar.Model
	overall pbar.Model

	phaseName     string
	stageFrac     float64
	overallFrac   float64
	chunk         int
	totalChunks   int
	remainingSecs float64
	status        string

	outcome *bridge.RunOutcome
}

func newRedactModel(b *bridge.Bridge, req pipeline.Request, events <-chan progress.Event, handle *bridge.Handle) redactModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = phaseStyle
	return redactModel{
		b:             b,
		req:           req,
		events:        events,
		handle:        handle,
		started:       time.Now(),
		spinner:       sp,
		stage:         pbar.New(pbar.WithDefaultGradient()),
		overall:       pbar.New(pbar.WithDefaultGradient()),
		stageFrac:     math.NaN(),
		overallFrac:   math.NaN(),
		remainingSecs: math.NaN(),
	}
}

func (m redactModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// waitForEvent pulls the next progress update off the stream. The
// command re-arms itself from Update after every delivery.
func waitForEvent(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamDoneMsg{}
		}
		return progressMsg(ev)
	}
}

func awaitOutcome(handle *bridge.Handle) tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg(handle.Wait())
	}
}

func (m redactModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.state == stateDone {
				return m, tea.Quit
			}
			if m.state == stateRunning {
				m.state = stateCancelling
				m.b.Cancel()
			}
			return m, nil
		case "enter":
			if m.state == stateDone {
				return m, tea.Quit
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		width := msg.Width - 14
		if width > 60 {
			width = 60
		}
		if width > 0 {
			m.stage.Width = width
			m.overall.Width = width
		}
		return m, nil

	case progressMsg:
		ev := progress.Event(msg)
		if ev.Phase != "" || ev.PhaseName != "" {
			m.phaseName = ev.PhaseName
		}
		if ev.HasPhaseProgress() {
			m.stageFrac = ev.PhaseProgress
		}
		if ev.HasOverallProgress() {
			m.overallFrac = ev.OverallProgress
		}
		if ev.HasChunks() {
			m.chunk, m.totalChunks = ev.Chunk, ev.TotalChunks
		}
		if !math.IsNaN(ev.EstimatedRemaining) {
			m.remainingSecs = ev.EstimatedRemaining
		}
		if ev.Message != "" {
			m.status = ev.Message
		}
		return m, waitForEvent(m.events)

	case streamDoneMsg:
		return m, awaitOutcome(m.handle)

	case outcomeMsg:
		out := bridge.RunOutcome(msg)
		m.outcome = &out
		m.state = stateDone
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m redactModel) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Marcut Redaction"))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s -> %s\n\n",
		filepath.Base(m.req.InputPath), filepath.Base(m.req.OutputPath)))

	switch m.state {
	case stateDone:
		s.WriteString(m.outcomeView())
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("q: quit"))

	default:
		phase := m.phaseName
		if phase == "" {
			phase = "Starting"
		}
		if m.state == stateCancelling {
			s.WriteString(warnStyle.Render("Cancelling, waiting for the pipeline to stop..."))
			s.WriteString("\n\n")
		}
		s.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), phaseStyle.Render(phase)))

		if !math.IsNaN(m.stageFrac) {
			s.WriteString(fmt.Sprintf("  Stage    %s\n", m.stage.ViewAs(m.stageFrac)))
		}
		if !math.IsNaN(m.overallFrac) {
			s.WriteString(fmt.Sprintf("  Overall  %s\n", m.overall.ViewAs(m.overallFrac)))
		}
		if m.totalChunks > 0 {
			s.WriteString(fmt.Sprintf("  Chunk %d/%d\n", m.chunk, m.totalChunks))
		}

		s.WriteString(fmt.Sprintf("\n  Elapsed %s", time.Since(m.started).Round(time.Second)))
		if !math.IsNaN(m.remainingSecs) {
			s.WriteString(fmt.Sprintf(", about %.0fs remaining", m.remainingSecs))
		}
		s.WriteString("\n")

		if m.status != "" {
			s.WriteString("\n")
			s.WriteString(statusStyle.Render(m.status))
			s.WriteString("\n")
		}

		s.WriteString("\n")
		s.WriteString(helpStyle.Render("q: cancel"))
	}

	s.WriteString("\n")
	return s.String()
}

func (m redactModel) outcomeView() string {
	switch m.outcome.Status {
	case bridge.StatusSuccess:
		return successStyle.Render(
			fmt.Sprintf("Redaction completed in %s", time.Since(m.started).Round(time.Second)))
	case bridge.StatusCancelled:
		return warnStyle.Render("Cancelled")
	default:
		return errorStyle.Render("Failed: " + m.outcome.Reason())
	}
}

// runInteractive drives one redaction job through the TUI and reprints
// the outcome on the normal screen once the alternate screen is gone.
func runInteractive(b *bridge.Bridge, req pipeline.Request, timing bool) int {
	stream, handle := b.SubmitRedaction(req, nil)

	final, err := tea.NewProgram(
		newRedactModel(b, req, stream.Chan(), handle),
		tea.WithAltScreen(),
	).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		b.Cancel()
		handle.Wait()
		return 1
	}

	m := final.(redactModel)
	outcome := m.outcome
	if outcome == nil {
		// The program was torn down mid-job. Cancel and wait so the
		// runtime is quiet before Close.
		b.Cancel()
		out := handle.Wait()
		outcome = &out
	}

	switch outcome.Status {
	case bridge.StatusSuccess:
		fmt.Printf("Redaction completed\n")
		fmt.Printf("  Output: %s\n", req.OutputPath)
		if req.ReportPath != "" {
			fmt.Printf("  Report: %s\n", req.ReportPath)
		}
		if timing && len(outcome.Timings) > 0 {
			printTimings(outcome.Timings)
		}
		return 0
	case bridge.StatusCancelled:
		fmt.Fprintln(os.Stderr, "Operation cancelled by user")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Redaction failed: %s\n", outcome.Reason())
		if outcome.Code != 0 {
			return outcome.Code
		}
		return 1
	}
}
