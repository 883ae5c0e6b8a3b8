// Command voicewire streams microphone audio to a hosted conversational
// agent and plays the agent's replies, with a local web dashboard for
// control, live transcript, and amplitude visualization.
//
// Usage:
//
//	go run ./cmd/voicewire                         # defaults, portaudio backend
//	go run ./cmd/voicewire --backend mock          # no audio hardware needed
//	go run ./cmd/voicewire --config voicewire.yaml # file-based configuration
//	go run ./cmd/voicewire --start                 # open the session immediately
//
// Environment variables:
//
//	DEEPGRAM_API_KEY - API key for the voice-agent service (overrides the file)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/log"
	"github.com/voicewire/voicewire/internal/web"
	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/capture"
	"github.com/voicewire/voicewire/pkg/playback"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	backend := flag.String("backend", "", "Audio backend: portaudio, mock (overrides config)")
	addr := flag.String("addr", "", "Dashboard listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	autoStart := flag.Bool("start", false, "Start the voice session immediately")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *addr != "" {
		cfg.DashboardAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	logger := log.With("component", "main")

	var source capture.Source
	var sink playback.Sink
	switch cfg.Backend {
	case "mock":
		source = capture.NewMockSource(
			capture.WithTicker(),
			capture.WithSineWave(440, 0.2),
		)
		sink = playback.NewMockSink()
	default:
		source = capture.NewPortAudioSource()
		sink = playback.NewPortAudioSink()
	}

	engine := capture.NewEngine(source, capture.WithLogger(log.L()))
	scheduler := playback.NewScheduler(sink, playback.WithLogger(log.L()))
	defer scheduler.Close()

	agentOpts := []agent.Option{
		agent.WithAPIKey(cfg.APIKey),
		agent.WithLogger(log.L()),
	}
	if cfg.ServerURL != "" {
		agentOpts = append(agentOpts, agent.WithServerURL(cfg.ServerURL))
	}
	controller := agent.New(engine, scheduler, agentOpts...)
	if err := controller.UpdateConfig(configUpdate(cfg.Agent)); err != nil {
		logger.Error("apply agent config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *autoStart {
		if err := controller.Start(ctx); err != nil {
			logger.Error("start session", "error", err)
			os.Exit(1)
		}
	}

	server := web.NewServer(cfg.DashboardAddr, controller)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("voicewire running",
		"dashboard", cfg.DashboardAddr,
		"backend", cfg.Backend,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("dashboard server failed", "error", err)
		}
	}

	controller.Stop()
	if err := server.Shutdown(); err != nil {
		logger.Warn("dashboard shutdown", "error", err)
	}
}

// configUpdate converts the file-level agent section into a full update.
func configUpdate(cfg agent.Config) agent.ConfigUpdate {
	return agent.ConfigUpdate{
		STTModel:      &cfg.STTModel,
		LLMModel:      &cfg.LLMModel,
		TTSModel:      &cfg.TTSModel,
		BehaviorGuide: &cfg.BehaviorGuide,
		ScriptGuide:   &cfg.ScriptGuide,
	}
}
