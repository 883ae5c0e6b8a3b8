package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

// fakeClock serializes scheduling time for tests: now() reads a manual
// clock and the scheduler's pacing sleep advances it instead of waiting.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func pcmChunk(samples int) []byte {
	return make([]byte, samples*2)
}

func chunkDuration(samples int) time.Duration {
	return time.Duration(audio.Duration(samples) * float64(time.Second))
}

func newTestScheduler(t *testing.T) (*Scheduler, *MockSink, *fakeClock) {
	t.Helper()
	sink := NewMockSink()
	clock := newFakeClock()
	s := NewScheduler(sink, WithClock(clock.now, clock.sleep))
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return s, sink, clock
}

// waitChunks blocks until the sink has recorded n chunks. Stop discards
// anything still queued, so tests let the loop finish playing first.
func waitChunks(t *testing.T, sink *MockSink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.Chunks()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d chunks, have %d", n, len(sink.Chunks()))
}

func TestEnqueueBeforeStart(t *testing.T) {
	s := NewScheduler(NewMockSink())
	if err := s.Enqueue(pcmChunk(100)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestFirstEnqueueInitializesPlayHead(t *testing.T) {
	s, sink, clock := newTestScheduler(t)

	if _, ok := s.PlayHead(); ok {
		t.Error("play-head should be uninitialized before first enqueue")
	}

	base := clock.now()
	if err := s.Enqueue(pcmChunk(4800)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	waitChunks(t, sink, 1)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Start.Equal(base) {
		t.Errorf("first chunk start = %v, want %v", chunks[0].Start, base)
	}
}

func TestPlayHeadMonotonicity(t *testing.T) {
	s, sink, _ := newTestScheduler(t)

	sizes := []int{4800, 960, 9600, 2048, 480}
	for _, n := range sizes {
		if err := s.Enqueue(pcmChunk(n)); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	waitChunks(t, sink, len(sizes))
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != len(sizes) {
		t.Fatalf("expected %d chunks, got %d", len(sizes), len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].Start.Add(chunkDuration(len(chunks[i-1].Samples)))
		if chunks[i].Start.Before(chunks[i-1].Start) {
			t.Errorf("chunk %d start %v before chunk %d start %v",
				i, chunks[i].Start, i-1, chunks[i-1].Start)
		}
		if chunks[i].Start.Before(prevEnd) {
			t.Errorf("chunk %d start %v overlaps previous end %v", i, chunks[i].Start, prevEnd)
		}
	}
}

func TestDecodeFailureIsolation(t *testing.T) {
	s, sink, _ := newTestScheduler(t)

	var dropped []error
	var mu sync.Mutex
	s.OnError(func(err error) {
		mu.Lock()
		dropped = append(dropped, err)
		mu.Unlock()
	})

	_ = s.Enqueue(pcmChunk(4800))
	_ = s.Enqueue(make([]byte, 101)) // odd length, undecodable
	_ = s.Enqueue(pcmChunk(4800))
	waitChunks(t, sink, 2)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 played chunks, got %d", len(chunks))
	}

	// The bad chunk must not disturb spacing between the valid ones.
	wantStart := chunks[0].Start.Add(chunkDuration(len(chunks[0].Samples)))
	if !chunks[1].Start.Equal(wantStart) {
		t.Errorf("second valid chunk start = %v, want %v", chunks[1].Start, wantStart)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 {
		t.Errorf("expected 1 reported decode error, got %d", len(dropped))
	}
}

func TestStopResetsPlayHead(t *testing.T) {
	s, sink, clock := newTestScheduler(t)

	_ = s.Enqueue(pcmChunk(4800))
	waitChunks(t, sink, 1)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if _, ok := s.PlayHead(); ok {
		t.Error("play-head should reset to uninitialized after stop")
	}

	// Restart: the next first enqueue re-initializes from the clock.
	if err := s.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	clock.sleep(30 * time.Second)
	base := clock.now()

	_ = s.Enqueue(pcmChunk(960))
	waitChunks(t, sink, 2)
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	chunks := sink.Chunks()
	last := chunks[len(chunks)-1]
	if !last.Start.Equal(base) {
		t.Errorf("post-restart chunk start = %v, want %v", last.Start, base)
	}
}

func TestStopIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	if err := s.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second stop errored: %v", err)
	}

	// Stop without ever starting.
	fresh := NewScheduler(NewMockSink())
	if err := fresh.Stop(); err != nil {
		t.Errorf("stop on fresh scheduler errored: %v", err)
	}
}

func TestStopDiscardsBacklog(t *testing.T) {
	// Real pacing clock: a queued backlog must be discarded on Stop, not
	// played out, and Stop must return without waiting for it.
	sink := NewMockSink()
	s := NewScheduler(sink)
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Half a second of audio per chunk; the second and third chunks are
	// scheduled entirely in the future.
	for i := 0; i < 3; i++ {
		if err := s.Enqueue(pcmChunk(24000)); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	// Let the first chunk reach the sink.
	deadline := time.Now().Add(time.Second)
	for len(sink.Chunks()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if len(sink.Chunks()) == 0 {
		t.Fatal("first chunk never played")
	}

	begin := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 300*time.Millisecond {
		t.Errorf("stop blocked %v waiting for the backlog", elapsed)
	}
	if got := len(sink.Chunks()); got >= 3 {
		t.Errorf("chunks played = %d, backlog was not discarded", got)
	}
}

func TestSinkErrorReported(t *testing.T) {
	s, sink, _ := newTestScheduler(t)

	wantErr := errors.New("device gone")
	sink.FailWith(wantErr)

	var got error
	var mu sync.Mutex
	s.OnError(func(err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})

	_ = s.Enqueue(pcmChunk(480))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		reported := got != nil
		mu.Unlock()
		if reported {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_ = s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(got, wantErr) {
		t.Errorf("expected sink error reported, got %v", got)
	}
}

func TestLevelsReflectPlayback(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	for _, v := range s.Levels() {
		if v != 0 {
			t.Fatal("levels should be silent before playback")
		}
	}

	// A loud square-ish signal.
	samples := make([]int16, 4800)
	for i := range samples {
		if i%16 < 8 {
			samples[i] = 20000
		} else {
			samples[i] = -20000
		}
	}
	_ = s.Enqueue(audio.SamplesToBytes(samples))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		total := 0
		for _, v := range s.Levels() {
			total += int(v)
		}
		if total > 0 {
			_ = s.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected non-zero output levels after playback")
}
