package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Timing constants mirror the read-deadline/pong-handler idiom used for
// every full-duplex socket in this codebase: the server pings well inside
// the peer's read deadline, and any pong (of either kind) pushes that
// deadline back out.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Connection wraps a client websocket, translating between its frames and
// the tagged JSON Message protocol. Liveness pings carry a rolling 16-bit
// counter as their payload so a late or duplicated pong can be told apart
// from the most recent one; the measured round-trip is logged, not
// surfaced to callers — Recv only ever yields real protocol messages or the
// synthetic Close.
type Connection struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	counter uint16
	sentAt  map[uint16]time.Time
}

// NewConnection adopts an already-upgraded websocket and arms its read
// deadline and pong handler.
func NewConnection(ws *websocket.Conn, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{ws: ws, logger: logger, sentAt: make(map[uint16]time.Time)}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(payload string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		c.notePong([]byte(payload))
		return nil
	})
	return c
}

func (c *Connection) notePong(payload []byte) {
	if len(payload) != 2 {
		return
	}
	id := binary.LittleEndian.Uint16(payload)

	c.mu.Lock()
	sentAt, ok := c.sentAt[id]
	if ok {
		delete(c.sentAt, id)
	}
	c.mu.Unlock()

	if ok {
		c.logger.Debug("pong received", zap.Uint16("ping_id", id), zap.Duration("rtt", time.Since(sentAt)))
	}
}

// Ping sends one liveness ping frame, stamped with the next counter value.
func (c *Connection) Ping() error {
	c.mu.Lock()
	c.counter++
	id := c.counter
	c.sentAt[id] = time.Now()
	c.mu.Unlock()

	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, id)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, payload)
}

// Send encodes msg and writes it as a single text frame.
func (c *Connection) Send(msg Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, body)
}

// Recv blocks for the next upstream message. It returns Close{} when the
// peer closes the connection, silently skips envelopes of an unrecognised
// type (per the wire contract), and returns an error for anything else
// that goes wrong reading or decoding a frame.
func (c *Connection) Recv() (Message, error) {
	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return Close{}, nil
			}
			return nil, fmt.Errorf("remote: read: %w", err)
		}

		if frameType != websocket.TextMessage {
			continue
		}

		msg, err := Decode(data)
		if errors.Is(err, ErrUnknownType) {
			c.logger.Debug("ignoring unrecognised message type", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
}

// Close sends a close frame and releases the underlying socket.
func (c *Connection) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// PingPeriod is exported so callers can drive Ping on a matching ticker.
func PingPeriod() time.Duration { return pingPeriod }
