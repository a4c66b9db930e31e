package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

type testCLI struct {
	LogLevel string `help:"Log level" default:"info"`

	Play struct {
		File   string `arg:"" help:"Audio file to play"`
		Record string `help:"Record to a WAV file" placeholder:"PATH"`
	} `cmd:"" help:"Play an audio file"`

	Mic struct{} `cmd:"" help:"Analyse the microphone"`

	Secret struct{} `cmd:"" hidden:""`
}

func renderHelp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	var cli testCLI
	parser, err := kong.New(&cli,
		kong.Name("jivescope"),
		kong.Help(StyledHelpPrinter(kong.HelpOptions{})),
		kong.Writers(&out, &out),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		t.Fatalf("kong.New failed: %v", err)
	}
	_, _ = parser.Parse(args)
	return out.String()
}

func TestStyledHelpPrinter_TopLevel(t *testing.T) {
	out := renderHelp(t, "--help")

	for _, want := range []string{"Jivescope", "jivescope <command> [flags]", "play", "mic", "--log-level", "-h, --help"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
	if strings.Contains(out, "secret") {
		t.Error("hidden command listed in help")
	}
	t.Logf("help:\n%s", out)
}

func TestStyledHelpPrinter_Command(t *testing.T) {
	out := renderHelp(t, "play", "--help")

	for _, want := range []string{"jivescope play <file> [flags]", "Audio file to play", "--record=PATH", "--log-level"} {
		if !strings.Contains(out, want) {
			t.Errorf("play help missing %q", want)
		}
	}
	if strings.Contains(out, "Commands:") {
		t.Error("command help lists subcommands")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "90.0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
