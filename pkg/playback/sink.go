package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/voicewire/voicewire/pkg/audio"
)

// portAudioBufferSize is the output buffer in frames. Writes block until
// the device consumes them, which keeps chunks gapless without any timer
// arithmetic beyond the scheduler's play-head.
const portAudioBufferSize = 2048

// PortAudioSink plays PCM16 samples on the default output device.
type PortAudioSink struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	open   bool
}

// NewPortAudioSink returns an unstarted PortAudio output sink.
func NewPortAudioSink() *PortAudioSink {
	return &PortAudioSink{}
}

// Start initializes PortAudio and opens the default mono output stream at
// the pipeline sample rate.
func (s *PortAudioSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("playback: initialize: %w", err)
	}

	s.buf = make([]int16, portAudioBufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(audio.SampleRate), portAudioBufferSize, s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("playback: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("playback: start output stream: %w", err)
	}

	s.stream = stream
	s.open = true
	return nil
}

// Write plays the samples, blocking until the device has consumed them.
// The scheduled start is ignored; the scheduler has already paced the
// call and blocking writes keep successive chunks contiguous.
func (s *PortAudioSink) Write(_ time.Time, samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotRunning
	}

	for offset := 0; offset < len(samples); offset += portAudioBufferSize {
		end := offset + portAudioBufferSize
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(s.buf, samples[offset:end])
		for i := n; i < portAudioBufferSize; i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				continue
			}
			return fmt.Errorf("playback: write: %w", err)
		}
	}
	return nil
}

// Stop closes the stream and releases PortAudio. Idempotent.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false

	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	s.stream = nil
	return err
}

// Close releases the sink. Equivalent to Stop for PortAudio.
func (s *PortAudioSink) Close() error {
	return s.Stop()
}

// Name returns "portaudio".
func (s *PortAudioSink) Name() string {
	return "portaudio"
}

var _ Sink = (*PortAudioSink)(nil)

// RecordedChunk is one Write observed by a MockSink.
type RecordedChunk struct {
	Start   time.Time
	Samples []int16
}

// MockSink records scheduled writes for tests and audio-less runs.
type MockSink struct {
	mu      sync.Mutex
	open    bool
	chunks  []RecordedChunk
	failErr error
}

// NewMockSink creates an empty recording sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// FailWith makes subsequent writes return err.
func (m *MockSink) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Start marks the sink open.
func (m *MockSink) Start() error {
	m.mu.Lock()
	m.open = true
	m.mu.Unlock()
	return nil
}

// Write records the chunk with its scheduled start.
func (m *MockSink) Write(start time.Time, samples []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotRunning
	}
	if m.failErr != nil {
		return m.failErr
	}
	recorded := make([]int16, len(samples))
	copy(recorded, samples)
	m.chunks = append(m.chunks, RecordedChunk{Start: start, Samples: recorded})
	return nil
}

// Chunks returns the recorded writes in order.
func (m *MockSink) Chunks() []RecordedChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedChunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Stop marks the sink closed.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
	return nil
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	return m.Stop()
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

var _ Sink = (*MockSink)(nil)
