package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultServerURL is the hosted voice-agent endpoint.
const DefaultServerURL = "wss://agent.deepgram.com/v1/agent/converse"

// Transport is the bidirectional socket a session runs over. The gorilla
// websocket connection satisfies it directly; tests substitute fakes.
// Message types are the websocket constants (TextMessage, BinaryMessage).
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Transport to the given URL, authenticating with the API
// key. Injectable for tests.
type Dialer func(ctx context.Context, url, apiKey string) (Transport, error)

// DialWebSocket is the default Dialer. The key travels in the websocket
// subprotocol list ("token", <key>), which is how the service
// authenticates browser clients without custom headers.
func DialWebSocket(ctx context.Context, url, apiKey string) (Transport, error) {
	dialer := websocket.Dialer{
		Subprotocols: []string{"token", apiKey},
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("agent: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("agent: dial failed: %w", err)
	}
	return conn, nil
}

// closeTransport shuts a transport down, sending a polite close frame
// first when the transport supports control messages.
func closeTransport(conn Transport) {
	type controlWriter interface {
		WriteControl(messageType int, data []byte, deadline time.Time) error
	}
	if cw, ok := conn.(controlWriter); ok {
		deadline := time.Now().Add(time.Second)
		_ = cw.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
	}
	_ = conn.Close()
}
