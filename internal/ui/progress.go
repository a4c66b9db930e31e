package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/jivescope/internal/audio"
)

// Fire colour palette 🔥
var (
	fireYellow  = lipgloss.Color("#FFD700") // Bright yellow
	fireOrange  = lipgloss.Color("#FF8C00") // Deep orange
	fireRed     = lipgloss.Color("#FF4500") // Orange-red
	fireCrimson = lipgloss.Color("#DC143C") // Deep crimson
	emberGlow   = lipgloss.Color("#8B0000") // Dark ember red

	warmGray = lipgloss.Color("#B8860B") // Dark goldenrod for subtle text
)

// historyLength is how many recent frames the band history strip shows
const historyLength = 64

// BandsProgress reports one analysed frame of the offline band pass
type BandsProgress struct {
	Frame       int
	TotalFrames int
	Bands       audio.FrequencyBands
	RMS         float64
	Elapsed     time.Duration
}

// BandsComplete signals the end of the offline band pass
type BandsComplete struct {
	Profile *audio.BandProfile
	Err     error
	Elapsed time.Duration
}

// progressQuitMsg is sent when it's time to quit after showing completion
type progressQuitMsg struct{}

// BandsModel shows progress of AnalyzeBands over a decoded file
type BandsModel struct {
	progressBar progress.Model
	source      string

	last     BandsProgress
	history  []float64
	complete *BandsComplete

	width           int
	completionDelay time.Duration
}

// NewBandsModel creates the progress model. source names the file being
// analysed.
func NewBandsModel(source string) *BandsModel {
	// Fire gradient: deep red → orange → yellow
	p := progress.New(
		progress.WithGradient(string(fireCrimson), string(fireYellow)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &BandsModel{
		progressBar:     p,
		source:          source,
		history:         make([]float64, 0, historyLength),
		completionDelay: 500 * time.Millisecond,
	}
}

// Init initializes the model
func (m *BandsModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *BandsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(10, min(msg.Width-30, 50))
		return m, nil

	case BandsProgress:
		m.last = msg
		if len(m.history) == historyLength {
			m.history = append(m.history[:0], m.history[1:]...)
		}
		m.history = append(m.history, msg.Bands.Max())
		return m, nil

	case BandsComplete:
		m.complete = &msg
		return m, tea.Tick(m.completionDelay, func(time.Time) tea.Msg {
			return progressQuitMsg{}
		})

	case progressQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil {
			return m, tea.Quit
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// Done reports whether the pass finished, successfully or not
func (m *BandsModel) Done() bool {
	return m.complete != nil
}

// View renders the UI
func (m *BandsModel) View() string {
	var s strings.Builder

	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(fireYellow).Render("Jivescope 🔥"))
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(fireOrange).Render("Analysing " + m.source))
	s.WriteString("\n\n")

	m.renderProgress(&s)
	s.WriteString("\n")
	m.renderBands(&s)

	if len(m.history) > 0 {
		s.WriteString("\n\n")
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Loudest band:"))
		s.WriteString("\n")
		s.WriteString(renderSpectrum(m.history, historyLength))
	}

	border := fireRed
	if m.complete != nil {
		border = fireOrange
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2).
		Render(s.String())
}

func (m *BandsModel) renderProgress(s *strings.Builder) {
	percent := 0.0
	switch {
	case m.complete != nil && m.complete.Err == nil:
		percent = 1
	case m.last.TotalFrames > 0:
		percent = float64(m.last.Frame) / float64(m.last.TotalFrames)
	case m.last.Frame == 0:
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Starting analysis..."))
		s.WriteString("\n")
		return
	}

	s.WriteString("Progress: ")
	s.WriteString(m.progressBar.ViewAs(percent))
	s.WriteString(fmt.Sprintf("  %d%%", int(percent*100)))
	s.WriteString("\n")

	elapsed := m.last.Elapsed
	if m.complete != nil {
		elapsed = m.complete.Elapsed
	}
	status := fmt.Sprintf("Frame %d of %d  │  Elapsed: %s", m.last.Frame, m.last.TotalFrames, formatDuration(elapsed))
	if m.complete != nil && m.complete.Err != nil {
		status = "Failed: " + m.complete.Err.Error()
	}
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(status))
	s.WriteString("\n")
}

func (m *BandsModel) renderBands(s *strings.Builder) {
	labelStyle := lipgloss.NewStyle().Foreground(warmGray)
	bands := m.last.Bands
	for _, b := range []struct {
		name  string
		value float64
	}{
		{"Bass", bands.Bass},
		{"Mid ", bands.Mid},
		{"High", bands.High},
	} {
		s.WriteString(labelStyle.Render(b.name))
		s.WriteString(" ")
		s.WriteString(makeGradientBar(b.value/255, 32))
		s.WriteString(fmt.Sprintf(" %5.1f\n", b.value))
	}
	s.WriteString(labelStyle.Render("RMS "))
	s.WriteString(fmt.Sprintf(" %.4f", m.last.RMS))
}

// Helper functions

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// makeGradientBar creates a subtle gradient progress bar similar to the main progress bar
func makeGradientBar(ratio float64, width int) string {
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	var result strings.Builder

	// Gradient colours from left to right (subtle fire gradient)
	gradientColors := []lipgloss.Color{
		lipgloss.Color("#8B0000"), // Dark red
		lipgloss.Color("#A52A2A"), // Brown-red
		lipgloss.Color("#CD5C5C"), // Indian red
		lipgloss.Color("#DC143C"), // Crimson
		lipgloss.Color("#FF6347"), // Tomato
		lipgloss.Color("#FF7F50"), // Coral
		lipgloss.Color("#FFA07A"), // Light salmon
		lipgloss.Color("#FFD700"), // Gold
	}

	for i := 0; i < width; i++ {
		if i < filled {
			// Interpolate colour based on position within the filled portion
			pos := float64(i) / float64(width)
			colorIdx := int(pos * float64(len(gradientColors)-1))
			if colorIdx >= len(gradientColors) {
				colorIdx = len(gradientColors) - 1
			}
			styledBlock := lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render("█")
			result.WriteString(styledBlock)
		} else {
			// Empty portion - subtle dark background
			styledBlock := lipgloss.NewStyle().Foreground(lipgloss.Color("#2A2A2A")).Render("░")
			result.WriteString(styledBlock)
		}
	}

	return result.String()
}

// renderSpectrum creates a fire-coloured ASCII visualisation of bar heights
// Now renders 2 rows tall for better visibility
func renderSpectrum(barHeights []float64, width int) string {
	if len(barHeights) == 0 || width == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	// Fire gradient colours from low to high intensity
	fireColors := []lipgloss.Color{
		lipgloss.Color("#8B0000"), // Dark red (ember)
		lipgloss.Color("#B22222"), // Firebrick
		lipgloss.Color("#DC143C"), // Crimson
		lipgloss.Color("#FF4500"), // Orange-red
		lipgloss.Color("#FF6347"), // Tomato
		lipgloss.Color("#FF8C00"), // Dark orange
		lipgloss.Color("#FFA500"), // Orange
		lipgloss.Color("#FFD700"), // Gold/Yellow
	}

	// Sample bars to fit width
	stride := len(barHeights) / width
	if stride == 0 {
		stride = 1
	}

	// Find max height for normalisation
	maxHeight := 0.0
	for _, h := range barHeights {
		if h > maxHeight {
			maxHeight = h
		}
	}

	if maxHeight == 0 {
		maxHeight = 1.0 // Avoid division by zero
	}

	// Collect normalised heights for all bars we'll display
	displayHeights := make([]float64, 0, width)
	for i := 0; i < len(barHeights) && len(displayHeights) < width; i += stride {
		displayHeights = append(displayHeights, barHeights[i]/maxHeight)
	}

	var result strings.Builder

	// Render top row (upper half of bars, only shows if height > 0.5)
	for _, normalised := range displayHeights {
		// Top row: shows the portion above 0.5
		if normalised > 0.5 {
			// Map 0.5-1.0 to block index 0-7
			topPortion := (normalised - 0.5) * 2.0 // 0.0 to 1.0
			blockIdx := int(topPortion * float64(len(blocks)-1))
			if blockIdx >= len(blocks) {
				blockIdx = len(blocks) - 1
			}

			// Colour based on overall height (hotter = higher)
			colorIdx := int(normalised * float64(len(fireColors)-1))
			if colorIdx >= len(fireColors) {
				colorIdx = len(fireColors) - 1
			}

			styledBlock := lipgloss.NewStyle().
				Foreground(fireColors[colorIdx]).
				Render(string(blocks[blockIdx]))
			result.WriteString(styledBlock)
		} else {
			// Empty space for bars that don't reach this row
			result.WriteString(" ")
		}
	}

	result.WriteString("\n")

	// Render bottom row (lower half of bars)
	for _, normalised := range displayHeights {
		var blockIdx int
		if normalised >= 0.5 {
			// Full block for bottom row if bar extends to top row
			blockIdx = len(blocks) - 1
		} else {
			// Map 0.0-0.5 to block index 0-7
			blockIdx = int(normalised * 2.0 * float64(len(blocks)-1))
			if blockIdx >= len(blocks) {
				blockIdx = len(blocks) - 1
			}
		}

		// Colour based on overall height
		colorIdx := int(normalised * float64(len(fireColors)-1))
		if colorIdx >= len(fireColors) {
			colorIdx = len(fireColors) - 1
		}
		if colorIdx < 0 {
			colorIdx = 0
		}

		styledBlock := lipgloss.NewStyle().
			Foreground(fireColors[colorIdx]).
			Render(string(blocks[blockIdx]))
		result.WriteString(styledBlock)
	}

	return result.String()
}
