// Package agent owns the session protocol state machine: it drives the
// connect/configure/stream/teardown lifecycle over a single websocket,
// classifies inbound traffic into control messages and audio chunks, and
// dispatches to the capture engine, the playback scheduler, and the event
// log.
//
// Exactly one session exists per connect-to-disconnect cycle. Start while
// a session is active is rejected with ErrAlreadyActive rather than
// leaking a second device and connection.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/capture"
	"github.com/voicewire/voicewire/pkg/eventlog"
	"github.com/voicewire/voicewire/pkg/playback"
)

// Sentinel errors for the agent package.
var (
	// ErrMissingAPIKey indicates no API key was configured.
	ErrMissingAPIKey = errors.New("agent: API key is required")

	// ErrAlreadyActive indicates Start was called while a session exists.
	ErrAlreadyActive = errors.New("agent: session already active")

	// ErrSessionActive indicates a config change was attempted while a
	// session is active.
	ErrSessionActive = errors.New("agent: config is locked while a session is active")
)

// Status is the session lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusListening
	StatusSpeaking
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusListening:
		return "listening"
	case StatusSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// AudioData is a pull snapshot of the input and output frequency
// magnitudes for visualization.
type AudioData struct {
	InputLevels  []byte `json:"input_levels"`
	OutputLevels []byte `json:"output_levels"`
}

type options struct {
	apiKey           string
	serverURL        string
	dialer           Dialer
	customDialer     bool
	logger           *slog.Logger
	handshakeTimeout time.Duration
	readyTimeout     time.Duration
}

// Option configures a Controller.
type Option func(*options)

// WithAPIKey sets the service API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithServerURL overrides the voice-agent endpoint.
func WithServerURL(url string) Option {
	return func(o *options) { o.serverURL = url }
}

// WithDialer substitutes the transport dialer. Tests use this to inject
// fake transports.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
		o.customDialer = true
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHandshakeTimeout bounds the websocket dial. Zero (the default)
// leaves the dial governed by the Start context alone.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithReadyTimeout bounds the wait for the server's ready acknowledgment
// after Settings are sent. Zero (the default) waits indefinitely.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) { o.readyTimeout = d }
}

// Controller is the session state machine. It owns the transport handle
// for the active session; the capture engine and playback scheduler are
// injected and restarted per session.
type Controller struct {
	opts     options
	logger   *slog.Logger
	events   *eventlog.Log
	capture  *capture.Engine
	playback *playback.Scheduler

	mu       sync.Mutex
	status   Status
	conn     Transport
	cfg      Config
	welcomed bool
	// gen invalidates callbacks from a torn-down session: frame sends and
	// read-loop events compare their generation before acting.
	gen int
}

// New creates a Controller over the given capture engine and playback
// scheduler.
func New(cap *capture.Engine, play *playback.Scheduler, opts ...Option) *Controller {
	o := options{
		serverURL: DefaultServerURL,
		dialer:    DialWebSocket,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		opts:     o,
		logger:   o.logger.With("component", "agent"),
		events:   eventlog.New(),
		capture:  cap,
		playback: play,
		cfg:      DefaultConfig(),
	}

	// Dropped playback chunks and sink failures surface in the event log;
	// they never terminate the session.
	play.OnError(func(err error) {
		c.logEvent(eventlog.CategoryError, "playback: "+err.Error())
	})

	return c
}

// logEvent records an entry and mirrors it to the structured logger.
func (c *Controller) logEvent(category eventlog.Category, message string) {
	c.events.Append(category, message)
	if category == eventlog.CategoryError {
		c.logger.Error(message)
	} else {
		c.logger.Info(message, "category", string(category))
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Active reports whether a session exists in any state.
func (c *Controller) Active() bool {
	return c.Status() != StatusDisconnected
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig applies a partial configuration change. Rejected with
// ErrSessionActive while a session exists; an in-flight session always
// keeps the snapshot it was configured with.
func (c *Controller) UpdateConfig(update ConfigUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusDisconnected {
		return ErrSessionActive
	}
	c.cfg = c.cfg.apply(update)
	return nil
}

// Logs returns an ordered snapshot of the event log.
func (c *Controller) Logs() []eventlog.Entry {
	return c.events.Snapshot()
}

// ClearLogs empties the event log.
func (c *Controller) ClearLogs() {
	c.events.Clear()
}

// AudioData returns the current input and output amplitude snapshots.
func (c *Controller) AudioData() AudioData {
	return AudioData{
		InputLevels:  c.capture.Levels(),
		OutputLevels: c.playback.Levels(),
	}
}

// Start acquires the microphone, opens the transport, sends the Settings
// message, and begins streaming capture frames. The microphone comes
// first: if the platform denies it, the attempt fails without ever
// dialing and the state returns to Disconnected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	if c.opts.apiKey == "" && !c.opts.customDialer {
		c.mu.Unlock()
		c.logEvent(eventlog.CategoryError, "an API key is required to start a session")
		return ErrMissingAPIKey
	}
	c.status = StatusConnecting
	c.welcomed = false
	cfg := c.cfg
	gen := c.gen
	c.mu.Unlock()

	c.logEvent(eventlog.CategorySystem, "requesting microphone access")
	if err := c.capture.Start(ctx); err != nil {
		c.logEvent(eventlog.CategoryError, "microphone: "+err.Error())
		c.abortStart(gen)
		return err
	}
	c.logEvent(eventlog.CategorySystem, "microphone access granted")

	c.logEvent(eventlog.CategorySystem, "connecting")
	dialCtx := ctx
	if c.opts.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.handshakeTimeout)
		defer cancel()
	}
	conn, err := c.opts.dialer(dialCtx, c.opts.serverURL, c.opts.apiKey)
	if err != nil {
		c.logEvent(eventlog.CategoryError, "connect: "+err.Error())
		_ = c.capture.Stop()
		c.abortStart(gen)
		return err
	}

	// A Stop while the dial was in flight already tore the session down;
	// bail out before acquiring the playback output.
	if c.stale(gen) {
		closeTransport(conn)
		_ = c.capture.Stop()
		return nil
	}

	if err := c.playback.Start(); err != nil {
		c.logEvent(eventlog.CategoryError, "audio output: "+err.Error())
		closeTransport(conn)
		_ = c.capture.Stop()
		c.abortStart(gen)
		return err
	}

	settings, err := json.Marshal(newSettings(cfg))
	if err != nil {
		closeTransport(conn)
		_ = c.capture.Stop()
		_ = c.playback.Stop()
		c.abortStart(gen)
		return fmt.Errorf("agent: marshal settings: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, settings); err != nil {
		c.logEvent(eventlog.CategoryError, "send settings: "+err.Error())
		closeTransport(conn)
		_ = c.capture.Stop()
		_ = c.playback.Stop()
		c.abortStart(gen)
		return fmt.Errorf("agent: send settings: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Stop arrived mid-start. Its teardown could not see the
		// resources this goroutine acquired after the dial, so they are
		// released here.
		c.mu.Unlock()
		closeTransport(conn)
		_ = c.capture.Stop()
		_ = c.playback.Stop()
		return nil
	}
	c.conn = conn
	c.status = StatusListening
	c.mu.Unlock()

	c.logEvent(eventlog.CategorySystem, "connected, settings sent")

	c.capture.OnFrame(func(frame []float32) {
		c.sendFrame(gen, frame)
	})

	go c.readLoop(conn, gen)
	if c.opts.readyTimeout > 0 {
		go c.watchReady(gen)
	}
	return nil
}

// abortStart unwinds a failed Start back to Disconnected, unless a
// concurrent Stop already moved the generation on.
func (c *Controller) abortStart(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.status == StatusConnecting {
		c.status = StatusDisconnected
	}
}

// sendFrame encodes one capture frame and sends it as a single binary
// message. Frames are produced sequentially by the capture path, so the
// transport sees them in strict capture order. Send failures are logged
// and do not end the session; only a transport close does.
func (c *Controller) sendFrame(gen int, frame []float32) {
	c.mu.Lock()
	conn := c.conn
	valid := c.gen == gen && conn != nil
	c.mu.Unlock()

	if !valid {
		return
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFrame(frame)); err != nil {
		c.logEvent(eventlog.CategoryError, "send audio: "+err.Error())
	}
}

func (c *Controller) readLoop(conn Transport, gen int) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.stale(gen) {
				return
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.logEvent(eventlog.CategorySystem,
					fmt.Sprintf("disconnected (%d)", closeErr.Code))
			} else {
				c.logEvent(eventlog.CategoryError, "transport: "+err.Error())
				c.logEvent(eventlog.CategorySystem, "disconnected")
			}
			c.teardown(gen)
			return
		}

		if c.stale(gen) {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			// Raw PCM16 playback fragment; enqueue errors are reported
			// through the scheduler's error handler.
			_ = c.playback.Enqueue(data)
		case websocket.TextMessage:
			c.handleControl(data)
		}
	}
}

// handleControl interprets one inbound JSON control message. Malformed
// payloads and unknown types never terminate the session.
func (c *Controller) handleControl(data []byte) {
	msg, err := parseInbound(data)
	if err != nil {
		c.logger.Warn("ignoring malformed control message", "error", err)
		return
	}

	switch msg.Type {
	case TypeWelcome:
		c.mu.Lock()
		c.welcomed = true
		c.mu.Unlock()
		c.logEvent(eventlog.CategorySystem, "ready, start speaking")

	case TypeConversationText:
		switch msg.Role {
		case "user":
			c.logEvent(eventlog.CategoryUser, msg.Content)
		case "assistant":
			c.logEvent(eventlog.CategoryAssistant, msg.Content)
		}

	case TypeUserStartedSpeaking, TypeAgentStartedSpeaking:
		c.setActiveStatus(StatusSpeaking)

	case TypeAgentAudioDone:
		c.setActiveStatus(StatusListening)

	case TypeError:
		// Opaque error payload; logged verbatim, session continues.
		c.logEvent(eventlog.CategoryError, string(data))

	default:
		c.logger.Debug("ignoring unhandled message type", "type", msg.Type)
	}
}

// setActiveStatus flips between the two active display states. No-op
// once the session is gone.
func (c *Controller) setActiveStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusListening || c.status == StatusSpeaking {
		c.status = s
	}
}

// watchReady tears the session down if the server never acknowledges the
// Settings message within the configured ready timeout.
func (c *Controller) watchReady(gen int) {
	timer := time.NewTimer(c.opts.readyTimeout)
	defer timer.Stop()
	<-timer.C

	c.mu.Lock()
	expired := c.gen == gen && !c.welcomed
	c.mu.Unlock()

	if expired {
		c.logEvent(eventlog.CategoryError,
			fmt.Sprintf("no ready acknowledgment within %s", c.opts.readyTimeout))
		c.teardown(gen)
		c.logEvent(eventlog.CategorySystem, "stopped")
	}
}

func (c *Controller) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// teardown releases every session resource and returns to Disconnected.
// The generation bump invalidates the transport handle before anything is
// closed, so in-flight callbacks arriving afterwards detect staleness and
// no-op instead of touching released resources.
func (c *Controller) teardown(gen int) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	c.status = StatusDisconnected
	c.welcomed = false
	c.mu.Unlock()

	_ = c.capture.Stop()
	_ = c.playback.Stop()
	if conn != nil {
		closeTransport(conn)
	}
}

// Stop ends the session: it closes the transport, releases the capture
// device and the playback output, and returns the state to Disconnected.
// Safe to call from any state, any number of times, including mid-start.
func (c *Controller) Stop() error {
	c.mu.Lock()
	gen := c.gen
	active := c.status != StatusDisconnected
	c.mu.Unlock()

	if !active {
		return nil
	}

	c.teardown(gen)
	c.logEvent(eventlog.CategorySystem, "stopped")
	return nil
}
