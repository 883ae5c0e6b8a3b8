package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures microphone audio through PortAudio.
type PortAudioSource struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewPortAudioSource returns an unstarted PortAudio microphone source.
func NewPortAudioSource() *PortAudioSource {
	return &PortAudioSource{}
}

// Start initializes PortAudio, opens the default mono input stream at
// SampleRate with FrameSize frames per buffer, and begins pushing frames
// to deliver from a reader goroutine.
func (s *PortAudioSource) Start(ctx context.Context, deliver func(frame []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return classifyDeviceError(err)
	}

	buf := make([]float32, FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), FrameSize, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return classifyDeviceError(err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classifyDeviceError(err)
	}

	s.stream = stream
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.readLoop(ctx, buf, deliver)
	return nil
}

func (s *PortAudioSource) readLoop(ctx context.Context, buf []float32, deliver func(frame []float32)) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			// Overflows drop a frame but capture continues; anything
			// else means the device is gone.
			if err == portaudio.InputOverflowed {
				continue
			}
			return
		}

		frame := make([]float32, FrameSize)
		copy(frame, buf)
		deliver(frame)
	}
}

// Stop releases the stream and PortAudio. Idempotent.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	close(s.stopCh)
	<-s.done

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

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return "portaudio"
}

// classifyDeviceError maps PortAudio failures onto the capture error
// taxonomy. PortAudio reports OS permission refusals as host errors with
// free-form text, so the match is on message content.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

var _ Source = (*PortAudioSource)(nil)
