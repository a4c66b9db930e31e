package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/jivescope/internal/audio"
)

type fakeScope struct {
	mu     sync.Mutex
	bands  audio.FrequencyBands
	state  audio.State
	pos    time.Duration
	buf    *audio.PCMBuffer
	micErr error
	calls  []string
}

func (f *fakeScope) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeScope) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeScope) FrequencyData() audio.FrequencyBands { return f.bands }
func (f *fakeScope) State() audio.State                  { return f.state }
func (f *fakeScope) Position() time.Duration             { return f.pos }
func (f *fakeScope) Buffer() *audio.PCMBuffer            { return f.buf }

func (f *fakeScope) UseMicrophone(context.Context) error {
	f.record("mic")
	if f.micErr == nil {
		f.state = audio.StateCapturing
	}
	return f.micErr
}

func (f *fakeScope) PlayFile() {
	f.record("play")
	f.state = audio.StatePlaying
}

func (f *fakeScope) PauseFile() {
	f.record("pause")
	f.state = audio.StatePaused
}

func (f *fakeScope) Stop() {
	f.record("stop")
	f.state = audio.StateLoaded
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMeterModel_TickPollsScope(t *testing.T) {
	scope := &fakeScope{
		bands: audio.FrequencyBands{Bass: 200, Mid: 100, High: 10},
		state: audio.StatePlaying,
		pos:   3 * time.Second,
		buf:   audio.NewPCMBuffer(make([]float64, 44100*10), 44100, 1, audio.FormatWAV),
	}
	m := NewMeterModel(context.Background(), scope, "song.wav")

	_, cmd := m.Update(meterTickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick did not schedule the next tick")
	}

	view := m.View()
	for _, want := range []string{"song.wav", "playing", "200", "0:03 / 0:10"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestMeterModel_Keys(t *testing.T) {
	tests := []struct {
		name      string
		state     audio.State
		key       string
		wantCall  string
		wantState audio.State
	}{
		{"space pauses playback", audio.StatePlaying, " ", "pause", audio.StatePaused},
		{"space resumes pause", audio.StatePaused, " ", "play", audio.StatePlaying},
		{"space starts loaded file", audio.StateLoaded, " ", "play", audio.StatePlaying},
		{"f plays", audio.StateCapturing, "f", "play", audio.StatePlaying},
		{"s stops", audio.StatePlaying, "s", "stop", audio.StateLoaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := &fakeScope{state: tt.state}
			m := NewMeterModel(context.Background(), scope, "test")

			m.Update(key(tt.key))

			calls := scope.Calls()
			if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", calls, tt.wantCall)
			}
			if m.state != tt.wantState {
				t.Errorf("state = %v, want %v", m.state, tt.wantState)
			}
		})
	}
}

func TestMeterModel_SpaceWhileCapturingDoesNothing(t *testing.T) {
	scope := &fakeScope{state: audio.StateCapturing}
	m := NewMeterModel(context.Background(), scope, "mic")

	m.Update(key(" "))

	if calls := scope.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestMeterModel_MicrophoneRunsAsCommand(t *testing.T) {
	scope := &fakeScope{micErr: &audio.CaptureError{Kind: audio.PermissionDenied, Err: errors.New("denied")}}
	m := NewMeterModel(context.Background(), scope, "mic")

	_, cmd := m.Update(key("m"))
	if cmd == nil {
		t.Fatal("m did not return a command")
	}
	if calls := scope.Calls(); len(calls) != 0 {
		t.Errorf("microphone opened inside Update: %v", calls)
	}

	m.Update(cmd())

	var capErr *audio.CaptureError
	if !errors.As(m.Err(), &capErr) || capErr.Kind != audio.PermissionDenied {
		t.Errorf("Err = %v, want permission denied capture error", m.Err())
	}
	if !strings.Contains(m.View(), "denied") {
		t.Error("view does not show the microphone error")
	}
}

func TestMeterModel_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		m := NewMeterModel(context.Background(), &fakeScope{}, "test")

		var msg tea.KeyMsg
		if k == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = key(k)
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("%s returned no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s did not quit", k)
		}

		// No further ticks after quitting
		if _, cmd := m.Update(meterTickMsg(time.Now())); cmd != nil {
			t.Errorf("%s: tick rescheduled after quit", k)
		}
	}
}

type fixedFrames int64

func (f fixedFrames) Frames() int64 { return int64(f) }

func TestMeterModel_ShowsRecording(t *testing.T) {
	m := NewMeterModel(context.Background(), &fakeScope{}, "mic").
		WithRecording("take.wav", fixedFrames(4410))

	view := m.View()
	if !strings.Contains(view, "take.wav") || !strings.Contains(view, "4410 frames") {
		t.Errorf("view missing recording line:\n%s", view)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61*time.Second + 600*time.Millisecond, "1:02"},
		{10 * time.Minute, "10:00"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
