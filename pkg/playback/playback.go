// Package playback schedules arriving agent audio chunks for gapless
// sequential playback against a monotonically advancing play-head.
//
// Chunks arrive as raw PCM16 bytes of arbitrary length and at arbitrary
// times. Each one is wrapped in a synthetic WAV header, decoded, and
// scheduled to start at max(playHead, now); the play-head then advances by
// the decoded duration. A single scheduler goroutine serializes decode and
// play-head math, so chunks can never be scheduled at overlapping times
// regardless of when they arrive.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/dsp"
)

// ErrNotRunning is returned by Enqueue when the scheduler is stopped.
var ErrNotRunning = errors.New("playback: scheduler not running")

// Sink plays decoded samples on an output device. The scheduler writes
// chunks strictly in scheduled order; start is the time the chunk is due
// to begin, which recording sinks keep for inspection and real-time sinks
// may ignore since writes are already paced.
type Sink interface {
	Start() error
	Write(start time.Time, samples []int16) error
	Stop() error
	Close() error
	Name() string
}

// queueDepth bounds chunks awaiting decode. At 48 kHz the agent would
// have to be minutes ahead of real time to fill it.
const queueDepth = 256

// Scheduler accepts chunks in arrival order and plays them back to back.
// One instance supports repeated Start/Stop cycles; Stop resets the
// play-head to the not-yet-initialized state.
type Scheduler struct {
	sink     Sink
	analyzer *dsp.Analyzer
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(d time.Duration)

	mu          sync.Mutex
	running     bool
	queue       chan []byte
	stop        chan struct{}
	done        chan struct{}
	playHead    time.Time
	initialized bool
	onError     func(err error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock overrides the wall clock and the pacing sleep. Used by tests
// to drive scheduling deterministically.
func WithClock(now func() time.Time, sleep func(d time.Duration)) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// NewScheduler creates a scheduler over the given sink. Call Start before
// the first Enqueue.
func NewScheduler(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:     sink,
		analyzer: dsp.NewAnalyzer(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "playback", "backend", sink.Name())
	return s
}

// OnError registers the handler for dropped-chunk and sink errors.
func (s *Scheduler) OnError(fn func(err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start acquires the output device and launches the scheduling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := s.sink.Start(); err != nil {
		return err
	}

	s.running = true
	s.queue = make(chan []byte, queueDepth)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.queue, s.stop, s.done)
	return nil
}

// Enqueue hands a raw PCM16 chunk to the scheduler and returns
// immediately; decoding and play-head advancement happen on the
// scheduling goroutine. A malformed chunk is dropped and reported without
// touching the play-head.
func (s *Scheduler) Enqueue(raw []byte) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	// The send stays under the lock so Stop cannot close the queue
	// between the running check and the send.
	var err error
	select {
	case s.queue <- raw:
	default:
		err = errors.New("playback: queue full, chunk dropped")
	}
	s.mu.Unlock()

	if err != nil {
		s.emitError(err)
	}
	return err
}

func (s *Scheduler) run(queue chan []byte, stop chan struct{}, done chan struct{}) {
	defer close(done)

	for raw := range queue {
		// Once Stop is in progress the remaining backlog is discarded,
		// not played; Stop must not block for the scheduled duration.
		select {
		case <-stop:
			continue
		default:
		}

		samples, err := audio.DecodePCM(audio.WrapPCM(raw))
		if err != nil {
			s.logger.Warn("dropping undecodable chunk", "size", len(raw), "error", err)
			s.emitError(err)
			continue
		}

		duration := time.Duration(audio.Duration(len(samples)) * float64(time.Second))

		now := s.now()
		s.mu.Lock()
		if !s.initialized {
			s.playHead = now
			s.initialized = true
		}
		start := s.playHead
		if now.After(start) {
			start = now
		}
		s.playHead = start.Add(duration)
		s.mu.Unlock()

		if wait := start.Sub(s.now()); wait > 0 {
			if !s.pace(wait, stop) {
				continue
			}
		}

		s.analyzer.WriteInt16(samples)
		if err := s.sink.Write(start, samples); err != nil {
			s.logger.Warn("sink write failed", "error", err)
			s.emitError(err)
		}
	}
}

// pace waits until the chunk's scheduled start. It returns false when
// Stop interrupts the wait, in which case the chunk is discarded.
func (s *Scheduler) pace(wait time.Duration, stop chan struct{}) bool {
	if s.sleep != nil {
		s.sleep(wait)
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// PlayHead returns the current play-head and whether it has been
// initialized by an enqueue since the last Start.
func (s *Scheduler) PlayHead() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playHead, s.initialized
}

// Levels returns the frequency-magnitude snapshot of whatever most
// recently played. All zeros while nothing has played.
func (s *Scheduler) Levels() []byte {
	return s.analyzer.Snapshot()
}

// Stop halts the scheduling loop, discarding any queued backlog rather
// than playing it out, releases the output device, and resets the
// play-head to the not-yet-initialized state. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	queue := s.queue
	stop := s.stop
	done := s.done
	s.queue = nil
	s.mu.Unlock()

	// Signal first so the loop abandons any pacing wait and discards the
	// backlog instead of playing it out.
	close(stop)
	close(queue)
	<-done

	s.mu.Lock()
	s.playHead = time.Time{}
	s.initialized = false
	s.mu.Unlock()

	s.analyzer.Reset()
	return s.sink.Stop()
}

// Close stops the scheduler and releases the sink for good.
func (s *Scheduler) Close() error {
	err := s.Stop()
	if cerr := s.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Scheduler) emitError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
