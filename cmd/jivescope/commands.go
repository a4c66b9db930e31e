package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/jivescope/internal/audio"
	"github.com/linuxmatters/jivescope/internal/cli"
	"github.com/linuxmatters/jivescope/internal/device"
	"github.com/linuxmatters/jivescope/internal/renderer"
	"github.com/linuxmatters/jivescope/internal/ui"
)

type playCmd struct {
	File   string `arg:"" help:"Audio file: WAV, AIFF, MP3, FLAC or Ogg Vorbis" type:"existingfile"`
	Record string `help:"Also record the analysed signal to a WAV file" placeholder:"PATH"`
	Loop   bool   `help:"Restart playback when the file ends"`
	Mute   bool   `help:"Analyse without sending audio to the speaker"`
}

func (c *playCmd) Run(a *app) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	engine, closeEngine, err := a.openEngine(c.Loop, c.Mute)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := engine.LoadFile(a.ctx, data); err != nil {
		return fmt.Errorf("load %s: %w", c.File, err)
	}
	printFileSummary(c.File, engine.Buffer())

	// The recorder attaches before playback so the first quantum is captured
	rec, err := a.startRecording(engine, c.Record)
	if err != nil {
		return err
	}
	defer rec.finish()

	engine.PlayFile()
	return a.runMeter(engine, filepath.Base(c.File), rec)
}

type micCmd struct {
	File   string `help:"Preload a file to switch to with f" type:"existingfile" placeholder:"PATH"`
	Record string `help:"Also record the analysed signal to a WAV file" placeholder:"PATH"`
	Mute   bool   `help:"Keep a preloaded file off the speaker"`
}

func (c *micCmd) Run(a *app) error {
	engine, closeEngine, err := a.openEngine(false, c.Mute)
	if err != nil {
		return err
	}
	defer closeEngine()

	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if err := engine.LoadFile(a.ctx, data); err != nil {
			return fmt.Errorf("load %s: %w", c.File, err)
		}
		printFileSummary(c.File, engine.Buffer())
	}

	rec, err := a.startRecording(engine, c.Record)
	if err != nil {
		return err
	}
	defer rec.finish()

	if err := engine.UseMicrophone(a.ctx); err != nil {
		var capErr *audio.CaptureError
		if errors.As(err, &capErr) && capErr.Kind == audio.PermissionDenied {
			cli.PrintWarning("microphone access was refused; check your system privacy settings")
		}
		return err
	}

	return a.runMeter(engine, "microphone", rec)
}

// openEngine builds an initialised engine wired to the default input and,
// unless muted, the default output device
func (a *app) openEngine(loop, mute bool) (*audio.Engine, func(), error) {
	opts := a.engineOptions()
	opts.Loop = opts.Loop || loop
	opts.Capture = &device.PortAudioCapture{
		SampleRate: opts.SampleRate,
		Logger:     a.logger,
	}

	var speaker *device.Speaker
	if !mute {
		var err error
		speaker, err = device.NewSpeaker(opts.SampleRate)
		if err != nil {
			return nil, nil, err
		}
		opts.Destination = speaker
	}

	engine, err := audio.NewEngine(opts)
	if err != nil {
		if speaker != nil {
			speaker.Close()
		}
		return nil, nil, err
	}
	engine.InitContext()

	return engine, func() {
		if err := engine.Close(); err != nil {
			a.logger.Warn("close engine", slog.Any("error", err))
		}
		if speaker != nil {
			if err := speaker.Close(); err != nil {
				a.logger.Warn("close speaker", slog.Any("error", err))
			}
		}
	}, nil
}

// printFileSummary describes a loaded file before the meter takes over the
// screen
func printFileSummary(path string, buf *audio.PCMBuffer) {
	if buf == nil {
		return
	}
	cli.PrintBanner()
	cli.PrintSection("Input")
	cli.PrintInfo("File", filepath.Base(path))
	cli.PrintInfo("Format", buf.Format())
	cli.PrintInfo("Duration", cli.FormatDuration(buf.Duration()))
	cli.PrintInfo("Sample rate", fmt.Sprintf("%d Hz", buf.SampleRate()))
	cli.PrintInfo("Channels", fmt.Sprintf("%d", buf.NumChannels()))
	fmt.Println()
}

// recording is an optional session recording; the zero value records nothing
type recording struct {
	path string
	rec  *audio.Recorder
	stop func()
}

// startRecording attaches a recorder to the engine's output stream and starts
// draining it. It must run before any source is connected.
func (a *app) startRecording(engine *audio.Engine, path string) (*recording, error) {
	if path == "" {
		return &recording{}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	rec := audio.NewRecorder(f, engine.OutputStream())

	ctx, cancel := context.WithCancel(a.ctx)
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	return &recording{
		path: path,
		rec:  rec,
		stop: func() {
			cancel()
			if err := <-done; err != nil {
				cli.PrintError(fmt.Sprintf("recording: %v", err))
			}
			if err := f.Close(); err != nil {
				cli.PrintError(fmt.Sprintf("close recording: %v", err))
				return
			}
			var size int64
			if info, err := os.Stat(path); err == nil {
				size = info.Size()
			}
			cli.PrintRecordingSummary(path, rec.Frames(), engine.OutputStream().SampleRate(), size)
		},
	}, nil
}

// finish stops the recorder, closes the file and prints its summary
func (r *recording) finish() {
	if r.stop != nil {
		r.stop()
	}
}

// runMeter shows the live meter until the user quits
func (a *app) runMeter(engine *audio.Engine, label string, rec *recording) error {
	model := ui.NewMeterModel(a.ctx, engine, label)
	if rec.rec != nil {
		model.WithRecording(rec.path, rec.rec)
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(a.ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

type bandsCmd struct {
	File        string `arg:"" help:"Audio file: WAV, AIFF, MP3, FLAC or Ogg Vorbis" type:"existingfile"`
	FPS         int    `help:"Rows per second of audio" default:"${bands_fps}"`
	PNG         string `help:"Also draw the bands over time as a PNG chart" placeholder:"PATH"`
	SummaryOnly bool   `help:"Print only the per-band peaks and means"`
	Quiet       bool   `help:"Skip the progress display"`
}

func (c *bandsCmd) Run(a *app) error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	buf, err := audio.FormatDecoder{}.Decode(a.ctx, data)
	if err != nil {
		var decErr *audio.DecodeError
		if errors.As(err, &decErr) {
			a.metrics.DecodeFailed(decErr.Format)
		}
		return fmt.Errorf("decode %s: %w", c.File, err)
	}
	a.metrics.FileDecoded(buf.Format(), buf.Duration())

	profile, err := a.analyse(buf, c)
	if err != nil {
		return fmt.Errorf("analyse %s: %w", c.File, err)
	}

	if !c.SummaryOnly {
		cli.PrintBandHeader(os.Stdout)
		for _, f := range profile.Frames {
			cli.PrintBandRow(os.Stdout, f.Time, f.Bands.Bass, f.Bands.Mid, f.Bands.High, f.RMS)
		}
	}

	if c.PNG != "" {
		if err := renderer.SaveBandChart(c.PNG, profile, filepath.Base(c.File)); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		a.logger.Debug("chart written", slog.String("path", c.PNG))
		cli.PrintSuccess("Chart written to " + c.PNG)
	}

	cli.PrintBandsSummary(profile.NumFrames, profile.Duration,
		[3]float64{profile.Peak.Bass, profile.Peak.Mid, profile.Peak.High},
		[3]float64{profile.Mean.Bass, profile.Mean.Mid, profile.Mean.High})
	return nil
}

// analyse runs AnalyzeBands, driving the progress model on stderr unless
// quiet
func (a *app) analyse(buf *audio.PCMBuffer, c *bandsCmd) (*audio.BandProfile, error) {
	if c.Quiet {
		return audio.AnalyzeBands(a.ctx, buf, c.FPS, a.analyserOptions(), nil)
	}

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	model := ui.NewBandsModel(filepath.Base(c.File))
	p := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	var profile *audio.BandProfile
	var analysisErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		start := time.Now()
		profile, analysisErr = audio.AnalyzeBands(ctx, buf, c.FPS, a.analyserOptions(),
			func(frame, totalFrames int, bands audio.FrequencyBands, rms float64, elapsed time.Duration) {
				p.Send(ui.BandsProgress{
					Frame:       frame,
					TotalFrames: totalFrames,
					Bands:       bands,
					RMS:         rms,
					Elapsed:     elapsed,
				})
			})
		p.Send(ui.BandsComplete{Profile: profile, Err: analysisErr, Elapsed: time.Since(start)})
	}()

	_, runErr := p.Run()
	if !model.Done() {
		// The user quit early
		cancel()
	}
	<-done

	if analysisErr != nil {
		return nil, analysisErr
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("running UI: %w", runErr)
	}
	return profile, nil
}

type versionCmd struct{}

func (versionCmd) Run() error {
	cli.PrintVersion(version)
	return nil
}
