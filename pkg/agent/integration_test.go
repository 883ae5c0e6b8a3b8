//go:build integration

package agent

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/voicewire/voicewire/pkg/capture"
	"github.com/voicewire/voicewire/pkg/eventlog"
	"github.com/voicewire/voicewire/pkg/playback"
)

// These tests connect to the real voice-agent service.
// Run with: go test -tags=integration -v ./pkg/agent/...

func TestLiveSession(t *testing.T) {
	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey == "" {
		t.Skip("DEEPGRAM_API_KEY required")
	}

	source := capture.NewMockSource(capture.WithTicker(), capture.WithSineWave(440, 0.1))
	engine := capture.NewEngine(source)
	scheduler := playback.NewScheduler(playback.NewMockSink())
	defer scheduler.Close()

	c := New(engine, scheduler,
		WithAPIKey(apiKey),
		WithHandshakeTimeout(10*time.Second),
		WithReadyTimeout(15*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	defer c.Stop()

	// The service should acknowledge the settings within the ready window.
	deadline := time.Now().Add(15 * time.Second)
	ready := false
	for time.Now().Before(deadline) {
		for _, entry := range c.Logs() {
			if entry.Category == eventlog.CategorySystem && entry.Message == "ready, start speaking" {
				ready = true
			}
		}
		if ready {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("no ready acknowledgment from the service")
	}

	if !c.Active() {
		t.Error("should be active after ready")
	}

	if err := c.Stop(); err != nil {
		t.Errorf("failed to stop: %v", err)
	}
	if c.Active() {
		t.Error("should not be active after stop")
	}
}
