package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// tenSeconds is long enough that wall-clock playback never ends mid-test
func tenSeconds() *PCMBuffer {
	return NewPCMBuffer(sineWave(440, 0.5, 44100, 10*44100), 44100, 1, FormatWAV)
}

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = newManualClock()
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func connectedSource(e *Engine) SourceKind {
	e.mu.Lock()
	actx := e.actx
	e.mu.Unlock()
	if actx == nil {
		return SourceNone
	}
	return actx.ConnectedSource()
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"fft not power of two", func(o *Options) { o.FFTSize = 1000 }},
		{"fft too small for bands", func(o *Options) { o.FFTSize = 256 }},
		{"smoothing out of range", func(o *Options) { o.Smoothing = 2 }},
		{"inverted decibels", func(o *Options) { o.MinDecibels, o.MaxDecibels = -10, -90 }},
		{"negative sample rate", func(o *Options) { o.SampleRate = -1 }},
		{"negative quantum", func(o *Options) { o.Quantum = -128 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if _, err := NewEngine(opts); err == nil {
				t.Error("NewEngine succeeded, want error")
			}
		})
	}
}

func TestEngine_BeforeInit(t *testing.T) {
	e := newTestEngine(t, nil)

	if got := e.FrequencyData(); !got.IsZero() {
		t.Errorf("FrequencyData before init = %+v, want zeros", got)
	}
	if e.OutputStream() != nil {
		t.Error("OutputStream before init is not nil")
	}
	if got := e.State(); got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestEngine_InitContextIsIdempotent(t *testing.T) {
	e := newTestEngine(t, nil)

	e.InitContext()
	first := e.OutputStream()
	e.InitContext()

	if first == nil {
		t.Fatal("OutputStream nil after InitContext")
	}
	if e.OutputStream() != first {
		t.Error("second InitContext replaced the graph")
	}
	if got := e.FrequencyData(); !got.IsZero() {
		t.Errorf("FrequencyData with no source = %+v, want zeros", got)
	}
}

func TestEngine_SingleSourceAtATime(t *testing.T) {
	capture := &fakeCapture{}
	e := newTestEngine(t, func(o *Options) {
		o.Capture = capture
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.UseMicrophone(context.Background()); err != nil {
		t.Fatalf("UseMicrophone failed: %v", err)
	}
	mic := capture.lastStream()
	if got := connectedSource(e); got != SourceMicrophone {
		t.Fatalf("connected = %v, want microphone", got)
	}

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	// Loading alone leaves the microphone connected
	if got := connectedSource(e); got != SourceMicrophone {
		t.Errorf("connected after load = %v, want microphone", got)
	}

	e.PlayFile()
	if got := connectedSource(e); got != SourceFile {
		t.Errorf("connected after PlayFile = %v, want file", got)
	}
	if !mic.IsClosed() {
		t.Error("microphone stream still open after switching to file")
	}

	if err := e.UseMicrophone(context.Background()); err != nil {
		t.Fatalf("UseMicrophone failed: %v", err)
	}
	if got := connectedSource(e); got != SourceMicrophone {
		t.Errorf("connected after switching back = %v, want microphone", got)
	}
	if got := e.State(); got != StateCapturing {
		t.Errorf("State = %v, want capturing", got)
	}

	e.Stop()
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected after Stop = %v, want none", got)
	}
	if !capture.lastStream().IsClosed() {
		t.Error("microphone stream still open after Stop")
	}
}

func TestEngine_MicrophoneIsNeverAudible(t *testing.T) {
	capture := &fakeCapture{}
	dest := &recordingDestination{}
	e := newTestEngine(t, func(o *Options) {
		o.Capture = capture
		o.Destination = dest
	})

	if err := e.UseMicrophone(context.Background()); err != nil {
		t.Fatalf("UseMicrophone failed: %v", err)
	}
	stream := capture.lastStream()
	out := e.OutputStream()

	tone := sineWave(1000, 0.5, 44100, 4410)
	block := make([]float32, len(tone))
	for i, v := range tone {
		block[i] = float32(v)
	}
	for range 10 {
		stream.samples <- block
	}

	if !waitFor(t, 2*time.Second, func() bool { return out.TotalSamples() > 0 }) {
		t.Fatal("microphone samples never reached the output stream")
	}
	if !waitFor(t, 2*time.Second, func() bool { return !e.FrequencyData().IsZero() }) {
		t.Error("analyser never saw the microphone")
	}
	if got := dest.Samples(); got != 0 {
		t.Errorf("audible destination received %d microphone samples, want 0", got)
	}
}

func TestEngine_FileIsAudible(t *testing.T) {
	dest := &recordingDestination{}
	e := newTestEngine(t, func(o *Options) {
		o.Decoder = stubDecoder{buf: tenSeconds()}
		o.Destination = dest
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()

	if !waitFor(t, 2*time.Second, func() bool { return dest.Samples() > 0 }) {
		t.Fatal("file playback never reached the audible destination")
	}
	if got := e.State(); got != StatePlaying {
		t.Errorf("State = %v, want playing", got)
	}
}

func TestEngine_PauseResumeOffset(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, func(o *Options) {
		o.Clock = clock
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	e.PlayFile()
	clock.Advance(2 * time.Second)
	if got := e.Position(); got != 2*time.Second {
		t.Errorf("Position while playing = %v, want 2s", got)
	}

	e.PauseFile()
	clock.Advance(5 * time.Second) // Time paused does not count
	if got := e.Position(); got != 2*time.Second {
		t.Errorf("Position after pause = %v, want 2s", got)
	}
	if got := e.State(); got != StatePaused {
		t.Errorf("State = %v, want paused", got)
	}
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected while paused = %v, want none", got)
	}

	e.PlayFile()
	clock.Advance(1500 * time.Millisecond)
	e.PauseFile()
	if got := e.Position(); got != 3500*time.Millisecond {
		t.Errorf("Position after second pause = %v, want 3.5s", got)
	}

	// Pausing twice changes nothing
	e.PauseFile()
	if got := e.Position(); got != 3500*time.Millisecond {
		t.Errorf("Position after redundant pause = %v, want 3.5s", got)
	}
}

func TestEngine_StopKeepsOffset(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, func(o *Options) {
		o.Clock = clock
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()
	clock.Advance(4 * time.Second)
	e.PauseFile()
	e.Stop()

	if got := e.State(); got != StateLoaded {
		t.Errorf("State after stop = %v, want loaded", got)
	}

	e.PlayFile()
	if got := e.Position(); got != 4*time.Second {
		t.Errorf("Position after stop and play = %v, want 4s", got)
	}
}

func TestEngine_OffsetPastEndRestarts(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, func(o *Options) {
		o.Clock = clock
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()
	clock.Advance(12 * time.Second)
	if got := e.Position(); got != 10*time.Second {
		t.Errorf("Position = %v, want clamped to 10s", got)
	}
	e.PauseFile()

	e.PlayFile()
	if got := e.Position(); got != 0 {
		t.Errorf("Position after replay = %v, want 0", got)
	}
}

func TestEngine_PlayWithoutBufferIsNoop(t *testing.T) {
	e := newTestEngine(t, nil)

	e.PlayFile()
	e.PauseFile()

	if got := e.State(); got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected = %v, want none", got)
	}
}

func TestEngine_StopCancelsPendingMicrophone(t *testing.T) {
	capture := &fakeCapture{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newTestEngine(t, func(o *Options) { o.Capture = capture })

	errc := make(chan error, 1)
	go func() { errc <- e.UseMicrophone(context.Background()) }()

	<-capture.entered
	e.Stop()
	close(capture.gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("UseMicrophone = %v, want ErrSuperseded", err)
	}
	if !capture.lastStream().IsClosed() {
		t.Error("late microphone stream was not closed")
	}
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected = %v, want none", got)
	}
	if got := e.State(); got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestEngine_LatestSourceWins(t *testing.T) {
	capture := &fakeCapture{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newTestEngine(t, func(o *Options) {
		o.Capture = capture
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- e.UseMicrophone(context.Background()) }()

	<-capture.entered
	e.PlayFile()
	close(capture.gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("UseMicrophone = %v, want ErrSuperseded", err)
	}
	if got := connectedSource(e); got != SourceFile {
		t.Errorf("connected = %v, want file", got)
	}
	if got := e.State(); got != StatePlaying {
		t.Errorf("State = %v, want playing", got)
	}
}

func TestEngine_MicrophoneFailure(t *testing.T) {
	tests := []struct {
		name     string
		capture  CaptureDevice
		wantKind CaptureErrorKind
		wantIs   error
	}{
		{"no device configured", nil, DeviceUnavailable, ErrNoCaptureDevice},
		{"permission denied", &fakeCapture{err: fmt.Errorf("open input: %w", ErrPermissionDenied)}, PermissionDenied, ErrPermissionDenied},
		{"device busy", &fakeCapture{err: errors.New("device busy")}, DeviceUnavailable, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, func(o *Options) { o.Capture = tt.capture })

			err := e.UseMicrophone(context.Background())

			var cerr *CaptureError
			if !errors.As(err, &cerr) {
				t.Fatalf("UseMicrophone = %v, want *CaptureError", err)
			}
			if cerr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", cerr.Kind, tt.wantKind)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error %v does not wrap %v", err, tt.wantIs)
			}
			if got := e.State(); got != StateIdle {
				t.Errorf("State = %v, want idle", got)
			}
		})
	}
}

func TestEngine_LoadFileFailureKeepsBuffer(t *testing.T) {
	good := tenSeconds()
	e := newTestEngine(t, func(o *Options) { o.Decoder = stubDecoder{buf: good} })

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	e.mu.Lock()
	e.opts.Decoder = FormatDecoder{}
	e.mu.Unlock()

	err := e.LoadFile(context.Background(), []byte("not audio"))
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("LoadFile = %v, want *DecodeError", err)
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error %v does not wrap ErrUnsupportedFormat", err)
	}
	if e.Buffer() != good {
		t.Error("failed load replaced the loaded buffer")
	}
}

func TestEngine_LoadWhilePlayingKeepsPlaying(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, func(o *Options) {
		o.Clock = clock
		o.Decoder = stubDecoder{buf: tenSeconds()}
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()
	clock.Advance(3 * time.Second)

	if err := e.LoadFile(context.Background(), []byte("y")); err != nil {
		t.Fatalf("second LoadFile failed: %v", err)
	}
	if got := e.State(); got != StatePlaying {
		t.Errorf("State after reload = %v, want playing", got)
	}
	if got := e.Position(); got != 3*time.Second {
		t.Errorf("Position after reload = %v, want 3s", got)
	}

	// Once stopped, a fresh load rewinds
	e.PauseFile()
	if err := e.LoadFile(context.Background(), []byte("z")); err != nil {
		t.Fatalf("third LoadFile failed: %v", err)
	}
	if got := e.Position(); got != 0 {
		t.Errorf("Position after load while paused = %v, want 0", got)
	}
	if got := e.State(); got != StateLoaded {
		t.Errorf("State = %v, want loaded", got)
	}
}

func TestEngine_LatestLoadWins(t *testing.T) {
	gate := make(chan struct{})
	slow := NewPCMBuffer(make([]float64, 100), 44100, 1, FormatWAV)
	fast := tenSeconds()

	e := newTestEngine(t, func(o *Options) { o.Decoder = stubDecoder{buf: slow, gate: gate} })

	errc := make(chan error, 1)
	go func() { errc <- e.LoadFile(context.Background(), []byte("slow")) }()

	// Wait for the slow load to take its generation
	if !waitFor(t, time.Second, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.loadGen == 1
	}) {
		t.Fatal("slow load never started")
	}

	e.mu.Lock()
	e.opts.Decoder = stubDecoder{buf: fast}
	e.mu.Unlock()
	if err := e.LoadFile(context.Background(), []byte("fast")); err != nil {
		t.Fatalf("fast LoadFile failed: %v", err)
	}

	close(gate)
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("slow LoadFile = %v, want ErrSuperseded", err)
	}
	if e.Buffer() != fast {
		t.Error("stale decode replaced the newer buffer")
	}
}

func TestEngine_FailedNewerLoadKeepsOlderResult(t *testing.T) {
	gate := make(chan struct{})
	good := tenSeconds()

	e := newTestEngine(t, func(o *Options) { o.Decoder = stubDecoder{buf: good, gate: gate} })

	errc := make(chan error, 1)
	go func() { errc <- e.LoadFile(context.Background(), []byte("good")) }()

	if !waitFor(t, time.Second, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.loadGen == 1
	}) {
		t.Fatal("first load never started")
	}

	// A newer load that cannot be decoded
	e.mu.Lock()
	e.opts.Decoder = FormatDecoder{}
	e.mu.Unlock()
	err := e.LoadFile(context.Background(), []byte("not audio"))
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("malformed LoadFile = %v, want *DecodeError", err)
	}

	close(gate)
	if err := <-errc; err != nil {
		t.Errorf("valid LoadFile = %v, want success", err)
	}
	if e.Buffer() != good {
		t.Error("valid decode was not installed")
	}
	if got := e.State(); got != StateLoaded {
		t.Errorf("State = %v, want loaded", got)
	}
}

func TestEngine_EndedReturnsToLoaded(t *testing.T) {
	ended := make(chan struct{}, 1)
	short := NewPCMBuffer(sineWave(440, 0.5, 44100, 2205), 44100, 1, FormatWAV)
	e := newTestEngine(t, func(o *Options) {
		o.Decoder = stubDecoder{buf: short}
		o.OnEnded = func() { ended <- struct{}{} }
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnded was not called")
	}

	if got := e.State(); got != StateLoaded {
		t.Errorf("State after natural end = %v, want loaded", got)
	}
	if got := e.Position(); got != 0 {
		t.Errorf("Position after natural end = %v, want 0", got)
	}
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected after natural end = %v, want none", got)
	}
}

func TestEngine_LoopRestarts(t *testing.T) {
	var endedCalls atomic.Int32
	short := NewPCMBuffer(sineWave(440, 0.5, 44100, 2205), 44100, 1, FormatWAV)
	dest := &recordingDestination{}
	e := newTestEngine(t, func(o *Options) {
		o.Decoder = stubDecoder{buf: short}
		o.Destination = dest
		o.Loop = true
		o.OnEnded = func() { endedCalls.Add(1) }
	})

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()

	// Three passes of a 50ms buffer
	if !waitFor(t, 2*time.Second, func() bool { return dest.Samples() > 3*2205 }) {
		t.Fatalf("loop produced only %d samples", dest.Samples())
	}
	if got := e.State(); got != StatePlaying {
		t.Errorf("State while looping = %v, want playing", got)
	}
	if got := endedCalls.Load(); got != 0 {
		t.Errorf("OnEnded called %d times while looping, want 0", got)
	}
}

func TestEngine_Close(t *testing.T) {
	capture := &fakeCapture{}
	e := newTestEngine(t, func(o *Options) { o.Capture = capture })

	if err := e.UseMicrophone(context.Background()); err != nil {
		t.Fatalf("UseMicrophone failed: %v", err)
	}
	out := e.OutputStream()

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if !out.IsClosed() {
		t.Error("output stream still open after Close")
	}
	if !capture.lastStream().IsClosed() {
		t.Error("microphone still open after Close")
	}
	if err := e.UseMicrophone(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("UseMicrophone after Close = %v, want ErrEngineClosed", err)
	}
	if err := e.LoadFile(context.Background(), nil); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("LoadFile after Close = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_ReaderAttachedBeforePlayCapturesFirstSample(t *testing.T) {
	buf := tenSeconds()
	e := newTestEngine(t, func(o *Options) {
		o.SampleRate = 44100
		o.Decoder = stubDecoder{buf: buf}
	})
	e.InitContext()

	if err := e.LoadFile(context.Background(), []byte("x")); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	reader := e.OutputStream().NewReader()
	defer reader.Close()
	e.PlayFile()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := reader.ReadFull(ctx, 256)
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	for i, v := range got {
		if diff := v - buf.Samples()[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("sample %d = %v, want %v", i, v, buf.Samples()[i])
		}
	}
}

// TestEngine_ThreeToneFile plays a real WAV holding one tone per band, waits
// for every band to register, then pauses and stops.
func TestEngine_ThreeToneFile(t *testing.T) {
	const sampleRate = 44100
	// 200 Hz lands in bin 2, 2 kHz in bin 23 and 12 kHz in bin 139
	raw := encodeWAV(t, mixTones(0.3, sampleRate, 2*sampleRate, 200, 2000, 12000), sampleRate, 1)

	dest := &recordingDestination{}
	e := newTestEngine(t, func(o *Options) { o.Destination = dest })
	e.InitContext()

	if err := e.LoadFile(context.Background(), raw); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	e.PlayFile()

	var bands FrequencyBands
	ok := waitFor(t, 3*time.Second, func() bool {
		bands = e.FrequencyData()
		return bands.Bass > 0 && bands.Mid > 0 && bands.High > 0
	})

	t.Logf("Bands: bass %.1f mid %.1f high %.1f", bands.Bass, bands.Mid, bands.High)

	if !ok {
		t.Fatalf("not every band registered: %+v", bands)
	}
	if dest.Samples() == 0 {
		t.Error("file playback never reached the audible destination")
	}

	// Paused bands hold their last value however often they are polled
	e.PauseFile()
	paused := e.FrequencyData()
	for i := range 32 {
		if got := e.FrequencyData(); got != paused {
			t.Fatalf("poll %d while paused = %+v, want %+v", i, got, paused)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := e.FrequencyData(); got != paused {
		t.Errorf("bands drifted while paused: %+v, want %+v", got, paused)
	}
	if got := e.State(); got != StatePaused {
		t.Errorf("State after pause = %v, want paused", got)
	}

	e.Stop()
	if got := connectedSource(e); got != SourceNone {
		t.Errorf("connected source after Stop = %v, want none", got)
	}
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if playing {
		t.Error("still playing after Stop")
	}
	if got := e.State(); got != StateLoaded {
		t.Errorf("State after Stop = %v, want loaded", got)
	}
}
