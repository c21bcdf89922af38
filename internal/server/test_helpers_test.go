package server

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ATC-UW/pokerden-engine/internal/evaluator"
	"github.com/ATC-UW/pokerden-engine/internal/protocol"
	"github.com/ATC-UW/pokerden-engine/internal/randutil"
)

const testReadTimeout = 5 * time.Second

// testSession starts a session on a loopback listener and returns its
// address plus a channel carrying Serve's result.
func testSession(t *testing.T, cfg Config, seed int64) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	session := NewSession(zerolog.Nop(), cfg, randutil.New(seed), evaluator.New())
	done := make(chan error, 1)
	go func() {
		done <- session.Serve(ctx, listener)
	}()

	return listener.Addr().String(), cancel, done
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.NumPlayers = 2
	cfg.TurnTimeout = 2 * time.Second
	cfg.InterHandDelay = time.Millisecond
	cfg.HandLimit = 1
	cfg.PostBlinds = PostBlindsServer
	cfg.OutputDir = t.TempDir()
	return cfg
}

// testClient is a scripted agent speaking the line protocol over TCP.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	codec  protocol.JSONCodec
	id     int
}

func dialClient(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{
		t:      t,
		conn:   conn,
		reader: bufio.NewReader(conn),
		codec:  protocol.NewCodec(),
	}
}

// next reads and decodes a single record.
func (c *testClient) next() protocol.Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testReadTimeout)))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(c.t, err, "reading from server")

	line = bytes.TrimRight(line, "\r\n")
	msg, err := c.codec.Decode(line)
	require.NoError(c.t, err, "decoding %q", line)
	return msg
}

// waitFor skips records until one of the wanted type arrives.
func (c *testClient) waitFor(want protocol.MessageType) protocol.Message {
	c.t.Helper()
	for {
		msg := c.next()
		if msg.MessageType() == want {
			return msg
		}
	}
}

// handshake consumes the connect record and remembers the assigned id.
func (c *testClient) handshake() {
	c.t.Helper()
	connect := c.waitFor(protocol.TypeConnect).(*protocol.Connect)
	c.id = connect.PlayerID
}

// awaitTurn blocks until this client is solicited.
func (c *testClient) awaitTurn() *protocol.RequestAction {
	c.t.Helper()
	for {
		req := c.waitFor(protocol.TypeRequestAction).(*protocol.RequestAction)
		if req.PlayerID == c.id {
			return req
		}
	}
}

// act sends a PlayerAction with this client's id.
func (c *testClient) act(action, amount int) {
	c.t.Helper()
	record, err := c.codec.Encode(protocol.PlayerAction{PlayerID: c.id, Action: action, Amount: amount})
	require.NoError(c.t, err)
	_, err = c.conn.Write(append(record, '\n'))
	require.NoError(c.t, err)
}

// score waits for this client's GameEnd record.
func (c *testClient) score() int {
	c.t.Helper()
	return c.waitFor(protocol.TypeGameEnd).(*protocol.GameEnd).Score
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not stop")
	}
}
