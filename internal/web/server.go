// Package web provides the local control dashboard: a small HTTP API
// over the session controller plus a websocket event stream for live
// transcript and amplitude updates.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/eventlog"
	"github.com/voicewire/voicewire/pkg/hub"
)

// streamInterval paces the websocket push of new log entries, status
// changes, and amplitude snapshots.
const streamInterval = 50 * time.Millisecond

// Session is the slice of the controller the dashboard drives.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	Status() agent.Status
	Config() agent.Config
	UpdateConfig(update agent.ConfigUpdate) error
	Logs() []eventlog.Entry
	ClearLogs()
	AudioData() agent.AudioData
}

// Server is the dashboard server.
type Server struct {
	app     *fiber.App
	addr    string
	session Session
	logger  *slog.Logger

	events *hub.Hub
	stop   chan struct{}
}

// NewServer creates a dashboard server over the given session.
func NewServer(addr string, session Session) *Server {
	s := &Server{
		addr:    addr,
		session: session,
		logger:  slog.Default().With("component", "web"),
		events:  hub.New("events"),
		stop:    make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicewire dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handleUpdateConfig)
	api.Get("/logs", s.handleGetLogs)
	api.Delete("/logs", s.handleClearLogs)
	api.Get("/audio", s.handleAudio)
	api.Post("/session/start", s.handleStartSession)
	api.Post("/session/stop", s.handleStopSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start runs the event broadcaster and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	go s.events.Run()
	go s.streamLoop()

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the broadcaster and the HTTP listener.
func (s *Server) Shutdown() error {
	close(s.stop)
	s.events.Stop()
	return s.app.Shutdown()
}

// streamEvent is the envelope pushed over /ws/events.
type streamEvent struct {
	Type   string           `json:"type"`
	Status string           `json:"status,omitempty"`
	Entry  *eventlog.Entry  `json:"entry,omitempty"`
	Audio  *agent.AudioData `json:"audio,omitempty"`
}

// streamLoop polls the session and pushes deltas to connected clients:
// every new log entry, every status change, and a fresh amplitude
// snapshot each tick while a session is active.
func (s *Server) streamLoop() {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastStatus agent.Status
	seen := 0

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if s.events.ClientCount() == 0 {
			// No one listening; keep the cursor current so a new client
			// is not flooded with history it already got from the
			// backlog replay.
			seen = len(s.session.Logs())
			lastStatus = s.session.Status()
			continue
		}

		if status := s.session.Status(); status != lastStatus {
			lastStatus = status
			s.events.BroadcastJSON(streamEvent{Type: "status", Status: status.String()})
		}

		logs := s.session.Logs()
		if len(logs) < seen {
			// Log was cleared.
			seen = 0
		}
		for _, entry := range logs[seen:] {
			e := entry
			s.events.BroadcastJSON(streamEvent{Type: "log", Entry: &e})
		}
		seen = len(logs)

		if lastStatus != agent.StatusDisconnected {
			audio := s.session.AudioData()
			s.events.BroadcastJSON(streamEvent{Type: "audio", Audio: &audio})
		}
	}
}

// handleEventsWS replays the current log and status to the new client,
// then hands it to the hub for live updates.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)

	if data, err := json.Marshal(streamEvent{
		Type:   "status",
		Status: s.session.Status().String(),
	}); err == nil {
		client.Send(data)
	}
	for _, entry := range s.session.Logs() {
		e := entry
		if data, err := json.Marshal(streamEvent{Type: "log", Entry: &e}); err == nil {
			client.Send(data)
		}
	}

	client.Run()
}
