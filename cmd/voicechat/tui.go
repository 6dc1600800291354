package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/transport"
)

const maxTranscriptLines = 12

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stateStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("0"))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	botStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	stateColors = map[string]lipgloss.Color{
		"idle":            lipgloss.Color("250"),
		"local_speaking":  lipgloss.Color("39"),
		"remote_speaking": lipgloss.Color("150"),
		"interrupting":    lipgloss.Color("214"),
	}
)

type sessionEventMsg struct{ event events.Event }

type sessionDoneMsg struct{ err error }

type transcriptLine struct {
	speaker string
	text    string
}

type statusModel struct {
	spinner    spinner.Model
	state      string
	lines      []transcriptLine
	latency    time.Duration
	average    time.Duration
	interrupts int
	width      int
	err        error
	stopping   bool

	cancel context.CancelFunc
}

func newStatusModel(cancel context.CancelFunc) statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return statusModel{spinner: s, state: "idle", width: 80, cancel: cancel}
}

func (m statusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case sessionEventMsg:
		m.apply(msg.event)
		return m, nil

	case sessionDoneMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *statusModel) apply(event events.Event) {
	switch e := event.(type) {
	case events.TurnStateChanged:
		m.state = e.To
	case events.UserTranscript:
		if !e.Partial && e.Transcript != "" {
			m.appendLine("you", e.Transcript)
		}
	case events.AssistantSentenceStarted:
		if e.Text != "" {
			m.appendLine("bot", e.Text)
		}
	case events.TurnResponseLatency:
		m.latency, m.average = e.Latency, e.Average
	case events.TurnInterruptRequested:
		m.interrupts++
	}
}

func (m *statusModel) appendLine(speaker, text string) {
	m.lines = append(m.lines, transcriptLine{speaker: speaker, text: text})
	if len(m.lines) > maxTranscriptLines {
		m.lines = m.lines[len(m.lines)-maxTranscriptLines:]
	}
}

func (m statusModel) View() string {
	var b strings.Builder

	color, ok := stateColors[m.state]
	if !ok {
		color = stateColors["idle"]
	}
	fmt.Fprintf(&b, "%s %s %s\n\n",
		m.spinner.View(),
		titleStyle.Render("voicechat"),
		stateStyle.Background(color).Render(strings.ReplaceAll(m.state, "_", " ")),
	)

	wrap := m.width - 6
	if wrap < 20 {
		wrap = 20
	}
	for _, line := range m.lines {
		style := botStyle
		if line.speaker == "you" {
			style = userStyle
		}
		text := wordwrap.String(line.text, wrap)
		text = strings.ReplaceAll(text, "\n", "\n     ")
		fmt.Fprintf(&b, "%s %s\n", style.Render(fmt.Sprintf("%-4s", line.speaker)), text)
	}

	fmt.Fprintf(&b, "\nlatency %s (avg %s)  interrupts %d\n",
		m.latency.Round(time.Millisecond), m.average.Round(time.Millisecond), m.interrupts)
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	if m.stopping {
		b.WriteString(hintStyle.Render("stopping...") + "\n")
	} else {
		b.WriteString(hintStyle.Render("q to quit") + "\n")
	}
	return b.String()
}

// runWithTUI runs the session under a bubbletea program. Events are handed
// over through a buffered channel so the session never waits on rendering.
func runWithTUI(ctx context.Context, conn transport.Transport, opts []orchestration.SessionOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan events.Event, 256)
	opts = append(opts, orchestration.WithEventHandler(func(event events.Event) {
		select {
		case updates <- event:
		default:
		}
	}))

	session, err := orchestration.NewSession(conn, opts...)
	if err != nil {
		_ = conn.Close()
		return err
	}

	program := tea.NewProgram(newStatusModel(cancel), tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-updates:
				program.Send(sessionEventMsg{event: event})
			}
		}
	}()

	sessionErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		sessionErr <- err
		program.Send(sessionDoneMsg{err: err})
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-sessionErr
		return fmt.Errorf("status view failed: %w", err)
	}
	cancel()
	return <-sessionErr
}
