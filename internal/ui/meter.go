package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/jivescope/internal/audio"
	"github.com/linuxmatters/jivescope/internal/config"
)

// Scope is the part of audio.Engine the live meter drives
type Scope interface {
	FrequencyData() audio.FrequencyBands
	State() audio.State
	Position() time.Duration
	Buffer() *audio.PCMBuffer
	UseMicrophone(ctx context.Context) error
	PlayFile()
	PauseFile()
	Stop()
}

// RecordingStats reports how much has been recorded so far
type RecordingStats interface {
	Frames() int64
}

type meterTickMsg time.Time

// micResultMsg carries the outcome of an asynchronous UseMicrophone
type micResultMsg struct{ err error }

// MeterModel renders live bass/mid/high levels polled from a Scope
type MeterModel struct {
	scope    Scope
	ctx      context.Context
	interval time.Duration
	source   string

	bass, mid, high progress.Model
	position        progress.Model

	bands    audio.FrequencyBands
	state    audio.State
	pos      time.Duration
	duration time.Duration
	err      error

	recorder   RecordingStats
	recordPath string

	width    int
	quitting bool
}

// NewMeterModel creates a meter over scope. source labels the input shown in
// the header. Blocking engine calls made from key presses use ctx.
func NewMeterModel(ctx context.Context, scope Scope, source string) *MeterModel {
	bar := func(from, to lipgloss.Color) progress.Model {
		return progress.New(
			progress.WithGradient(string(from), string(to)),
			progress.WithWidth(config.MeterWidth),
			progress.WithoutPercentage(),
		)
	}

	return &MeterModel{
		scope:    scope,
		ctx:      ctx,
		interval: time.Second / config.MeterFPS,
		source:   source,
		bass:     bar(emberGlow, fireCrimson),
		mid:      bar(fireCrimson, fireOrange),
		high:     bar(fireOrange, fireYellow),
		position: bar(emberGlow, fireYellow),
	}
}

// WithRecording shows the running frame count of a recorder writing to path
func (m *MeterModel) WithRecording(path string, rec RecordingStats) *MeterModel {
	m.recordPath = path
	m.recorder = rec
	return m
}

// Err is the last microphone error, if any
func (m *MeterModel) Err() error {
	return m.err
}

func (m *MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return meterTickMsg(t)
	})
}

// Init starts polling
func (m *MeterModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles messages
func (m *MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := max(10, min(msg.Width-20, config.MeterWidth))
		m.bass.Width, m.mid.Width, m.high.Width, m.position.Width = w, w, w, w
		return m, nil

	case meterTickMsg:
		m.poll()
		if m.quitting {
			return m, nil
		}
		return m, m.tick()

	case micResultMsg:
		m.err = msg.err
		m.poll()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *MeterModel) poll() {
	m.bands = m.scope.FrequencyData()
	m.state = m.scope.State()
	m.pos = m.scope.Position()
	m.duration = 0
	if buf := m.scope.Buffer(); buf != nil {
		m.duration = buf.Duration()
	}
}

func (m *MeterModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case " ":
		switch m.scope.State() {
		case audio.StatePlaying:
			m.scope.PauseFile()
		case audio.StatePaused, audio.StateLoaded:
			m.scope.PlayFile()
		}

	case "f":
		m.scope.PlayFile()

	case "s":
		m.scope.Stop()

	case "m":
		// Opening a device can block on a permission prompt
		scope, ctx := m.scope, m.ctx
		m.err = nil
		return m, func() tea.Msg {
			return micResultMsg{err: scope.UseMicrophone(ctx)}
		}
	}

	m.poll()
	return m, nil
}

// View renders the meter
func (m *MeterModel) View() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(fireYellow).Render("Jivescope 🔥"))
	s.WriteString("  ")
	s.WriteString(lipgloss.NewStyle().Foreground(fireOrange).Render(m.source))
	s.WriteString("  ")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render("[" + m.state.String() + "]"))
	s.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().Foreground(warmGray)
	for _, b := range []struct {
		name  string
		bar   progress.Model
		value float64
	}{
		{"Bass", m.bass, m.bands.Bass},
		{"Mid ", m.mid, m.bands.Mid},
		{"High", m.high, m.bands.High},
	} {
		s.WriteString(labelStyle.Render(b.name))
		s.WriteString(" ")
		s.WriteString(b.bar.ViewAs(b.value / 255))
		s.WriteString(fmt.Sprintf(" %3.0f\n", b.value))
	}

	if m.duration > 0 {
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Pos "))
		s.WriteString(" ")
		s.WriteString(m.position.ViewAs(float64(m.pos) / float64(m.duration)))
		s.WriteString(fmt.Sprintf(" %s / %s\n", formatClock(m.pos), formatClock(m.duration)))
	}

	if m.recorder != nil {
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Recording "))
		s.WriteString(m.recordPath)
		s.WriteString(fmt.Sprintf("  %d frames\n", m.recorder.Frames()))
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(fireRed).Bold(true).Render("✗ " + m.err.Error()))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render("space play/pause  f play  m mic  s stop  q quit"))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(fireRed).
		Padding(1, 2).
		Render(s.String())
}

// formatClock renders a duration as m:ss
func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
