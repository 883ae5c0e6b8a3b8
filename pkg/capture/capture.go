// Package capture owns the microphone input path. A Source acquires the
// input device and pushes fixed-size float frames; the Engine fans each
// frame out to the registered consumer and a live amplitude tap.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/voicewire/voicewire/pkg/dsp"
)

// Fixed capture geometry. Frames are always FrameSize mono float32
// samples at SampleRate.
const (
	SampleRate = 48000
	FrameSize  = 2048
)

// Acquisition failures. Both are fatal to a session start attempt.
var (
	// ErrPermissionDenied indicates the platform refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrDeviceUnavailable indicates no usable input device could be opened.
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")
)

// Source acquires an exclusive input stream and pushes frames of exactly
// FrameSize samples to the deliver callback at the device's natural
// cadence. Implementations: PortAudioSource, MockSource.
type Source interface {
	// Start acquires the device and begins delivery. Fails with
	// ErrPermissionDenied or ErrDeviceUnavailable when the platform
	// denies or cannot provide the device.
	Start(ctx context.Context, deliver func(frame []float32)) error

	// Stop releases the device and halts delivery. Safe to call when
	// never started or already stopped.
	Stop() error

	// Name returns the backend name (e.g. "portaudio", "mock").
	Name() string
}

// Engine drives a Source and exposes the live input amplitude. One Engine
// instance supports repeated Start/Stop cycles.
type Engine struct {
	source   Source
	analyzer *dsp.Analyzer
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	starting bool
	onFrame  func(frame []float32)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine over the given source.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		analyzer: dsp.NewAnalyzer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "capture", "backend", source.Name())
	return e
}

// OnFrame registers the consumer for captured frames. Frames are pushed
// at the device cadence; the callback must be short and non-blocking or
// frames will be dropped at the device.
func (e *Engine) OnFrame(fn func(frame []float32)) {
	e.mu.Lock()
	e.onFrame = fn
	e.mu.Unlock()
}

// Start acquires the device and begins frame delivery. The engine is not
// marked running until the source has actually been acquired, so a
// concurrent Stop can never release a device that is still being opened.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running || e.starting {
		e.mu.Unlock()
		return nil
	}
	e.starting = true
	e.mu.Unlock()

	if err := e.source.Start(ctx, e.deliver); err != nil {
		e.mu.Lock()
		e.starting = false
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.starting = false
	e.running = true
	e.mu.Unlock()

	e.logger.Info("capture started", "sample_rate", SampleRate, "frame_size", FrameSize)
	return nil
}

func (e *Engine) deliver(frame []float32) {
	e.mu.Lock()
	running := e.running
	fn := e.onFrame
	e.mu.Unlock()

	// Frames arriving after Stop are dropped, not forwarded.
	if !running {
		return
	}

	e.analyzer.WriteFloat32(frame)
	if fn != nil {
		fn(frame)
	}
}

// Stop releases the device and stops delivery. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	err := e.source.Stop()
	e.analyzer.Reset()
	e.logger.Info("capture stopped")
	return err
}

// Running reports whether capture is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Levels returns the current input frequency-magnitude snapshot.
// All zeros while capture is inactive.
func (e *Engine) Levels() []byte {
	return e.analyzer.Snapshot()
}
