package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor   = lipgloss.Color("#A40000") // Jivescope red
	accentColor    = lipgloss.Color("#FFA500") // Orange/gold
	successColor   = lipgloss.Color("#00AA00") // Green
	mutedColor     = lipgloss.Color("#888888") // Gray
	highlightColor = lipgloss.Color("#FFFF00") // Yellow
	textColor      = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	// Title style - bold red with fire emoji
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Subtitle style - muted gray
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Section header style
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginTop(1).
			MarginBottom(1)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Highlight style for important values
	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Box style for framed content
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// Tagline describes the application in banners and help
const Tagline = "Watch the bass, mid and high of your microphone or an audio file move in real time."

// PrintBanner prints the application banner
func PrintBanner() {
	banner := TitleStyle.Render("Jivescope 🔥")
	subtitle := SubtitleStyle.Render(Tagline)
	fmt.Println(banner)
	fmt.Println(subtitle)
	fmt.Println()
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("Jivescope 🔥"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintInfo prints an informational message
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Println(HeaderStyle.Render(title))
}

// FormatDuration formats a duration nicely
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// PrintBox prints content in a styled box
func PrintBox(content string) {
	fmt.Println(BoxStyle.Render(content))
}

// PrintRecordingSummary prints a finished recording in a box
func PrintRecordingSummary(path string, frames int64, sampleRate int, size int64) {
	var b strings.Builder

	b.WriteString(SuccessStyle.Render("✓ Recording saved!"))
	b.WriteString("\n\n")

	b.WriteString(KeyStyle.Render("File:      "))
	b.WriteString(ValueStyle.Render(path))
	b.WriteString("\n")

	duration := time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
	b.WriteString(KeyStyle.Render("Duration:  "))
	b.WriteString(ValueStyle.Render(FormatDuration(duration)))
	b.WriteString("\n")

	b.WriteString(KeyStyle.Render("File Size: "))
	b.WriteString(ValueStyle.Render(FormatBytes(size)))

	PrintBox(b.String())
}

// PrintBandHeader writes the column header for a band table
func PrintBandHeader(w io.Writer) {
	fmt.Fprintf(w, "%s\n", KeyStyle.Render(fmt.Sprintf("%9s %7s %7s %7s %8s", "time", "bass", "mid", "high", "rms")))
}

// PrintBandRow writes one row of a band table. Rows stay unstyled so the
// output can be piped into other tools.
func PrintBandRow(w io.Writer, at time.Duration, bass, mid, high, rms float64) {
	fmt.Fprintf(w, "%9.3f %7.1f %7.1f %7.1f %8.5f\n", at.Seconds(), bass, mid, high, rms)
}

// PrintBandsSummary prints per-band peaks and means in a box
func PrintBandsSummary(frames int, duration time.Duration, peak, mean [3]float64) {
	var b strings.Builder

	b.WriteString(SuccessStyle.Render("✓ Analysis Complete!"))
	b.WriteString("\n\n")

	b.WriteString(KeyStyle.Render("Duration: "))
	b.WriteString(ValueStyle.Render(FormatDuration(duration)))
	b.WriteString(KeyStyle.Render("  Frames: "))
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%d", frames)))
	b.WriteString("\n\n")

	names := [3]string{"Bass", "Mid", "High"}
	for i, name := range names {
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-5s", name)))
		b.WriteString(" peak ")
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%5.1f", peak[i])))
		b.WriteString("  mean ")
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%5.1f", mean[i])))
		if i < len(names)-1 {
			b.WriteString("\n")
		}
	}

	PrintBox(b.String())
}
