package server

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ATC-UW/pokerden-engine/internal/game"
	"github.com/ATC-UW/pokerden-engine/internal/protocol"
)

var (
	// ErrClientClosed is returned when sending to a disconnected client.
	ErrClientClosed = errors.New("client connection closed")
	// ErrSendTimeout is returned when a client's send queue stays full.
	ErrSendTimeout = errors.New("send timeout")
)

// sendQueueSize bounds the per-client outgoing queue.
const sendQueueSize = 256

// ActionEnvelope wraps a received record with the sender's identity so the
// driver can verify who acted. Err carries decode failures so protocol
// errors surface on the offender's turn.
type ActionEnvelope struct {
	Player game.PlayerID
	Action *protocol.PlayerAction
	Err    error
}

// Client is one connected player: its transport, identity, and the send
// and receive pumps.
type Client struct {
	ID game.PlayerID

	conn    LineConn
	codec   protocol.Codec
	send    chan []byte
	actions chan<- ActionEnvelope
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewClient wires a connection into the session's shared action channel.
func NewClient(logger zerolog.Logger, id game.PlayerID, conn LineConn, codec protocol.Codec, actions chan<- ActionEnvelope) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		codec:   codec,
		send:    make(chan []byte, sendQueueSize),
		actions: actions,
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "client").Int("player_id", int(id)).Logger(),
	}
}

// Close shuts the connection down exactly once.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// Done is closed when the client disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the connection has shut down.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send encodes a message and queues it for the write pump. A full queue is
// treated as a dead connection after one second.
func (c *Client) Send(msg protocol.Message) error {
	if c.IsClosed() {
		return ErrClientClosed
	}

	record, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- record:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-time.After(time.Second):
		return ErrSendTimeout
	}
}

// WritePump drains the send queue onto the connection. A write error
// closes the client.
func (c *Client) WritePump() {
	defer c.Close()

	for {
		select {
		case record := <-c.send:
			if err := c.conn.WriteLine(record); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing connection")
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump reads records off the connection and forwards player actions to
// the session. Blank lines are skipped; unknown message types are ignored
// with a warning; undecodable records are forwarded as protocol errors so
// the driver can answer the offender.
func (c *Client) ReadPump() {
	defer c.Close()

	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.logger.Debug().Err(err).Msg("Read failed, closing connection")
			return
		}
		if len(line) == 0 {
			continue
		}

		msg, err := c.codec.Decode(line)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessageType) {
				c.logger.Warn().Err(err).Msg("Ignoring unknown message type")
				continue
			}
			c.forward(ActionEnvelope{Player: c.ID, Err: err})
			continue
		}

		switch m := msg.(type) {
		case *protocol.PlayerAction:
			c.forward(ActionEnvelope{Player: c.ID, Action: m})
		case *protocol.Text:
			c.logger.Debug().Str("text", m.Body).Msg("Client message")
		default:
			c.logger.Warn().Stringer("type", msg.MessageType()).Msg("Unexpected message from client")
		}
	}
}

func (c *Client) forward(env ActionEnvelope) {
	select {
	case c.actions <- env:
	case <-c.done:
	default:
		// Queue full: the sender is flooding actions nobody asked for.
		c.logger.Warn().Msg("Action channel full, dropping record")
	}
}
