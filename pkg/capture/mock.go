package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockSource is a capture source for tests and audio-less runs. It can
// generate frames on a ticker at the real device cadence (sine wave or
// silence), and tests can push frames synchronously with Emit.
type MockSource struct {
	frequency float64
	amplitude float64
	ticker    bool
	failWith  error

	mu      sync.Mutex
	running bool
	deliver func(frame []float32)
	stopCh  chan struct{}
	phase   float64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithSineWave makes ticker-driven frames carry a sine wave instead of
// silence.
func WithSineWave(frequency, amplitude float64) MockOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithTicker enables self-clocked frame generation at the device cadence.
func WithTicker() MockOption {
	return func(m *MockSource) {
		m.ticker = true
	}
}

// WithStartError makes Start fail with the given error, simulating a
// denied or missing device.
func WithStartError(err error) MockOption {
	return func(m *MockSource) {
		m.failWith = err
	}
}

// NewMockSource creates a mock capture source.
func NewMockSource(opts ...MockOption) *MockSource {
	m := &MockSource{amplitude: 0.5}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins delivery. With WithTicker, frames are generated every
// FrameSize/SampleRate seconds; otherwise frames only arrive via Emit.
func (m *MockSource) Start(ctx context.Context, deliver func(frame []float32)) error {
	if m.failWith != nil {
		return m.failWith
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true
	m.deliver = deliver
	m.stopCh = make(chan struct{})

	if m.ticker {
		go m.generateLoop(ctx, m.stopCh)
	}
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh chan struct{}) {
	period := time.Duration(float64(FrameSize) / float64(SampleRate) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Emit(m.generateFrame())
		}
	}
}

func (m *MockSource) generateFrame() []float32 {
	frame := make([]float32, FrameSize)
	if m.frequency <= 0 {
		return frame
	}
	m.mu.Lock()
	phase := m.phase
	m.mu.Unlock()
	for i := range frame {
		frame[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*phase/SampleRate))
		phase++
	}
	m.mu.Lock()
	m.phase = phase
	m.mu.Unlock()
	return frame
}

// Emit pushes one frame through the source as if the device produced it.
// No-op when the source is not running.
func (m *MockSource) Emit(frame []float32) {
	m.mu.Lock()
	deliver := m.deliver
	running := m.running
	m.mu.Unlock()

	if running && deliver != nil {
		deliver(frame)
	}
}

// Stop halts delivery. Idempotent.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.deliver = nil
	return nil
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

var _ Source = (*MockSource)(nil)
