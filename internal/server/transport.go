package server

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// writeWait bounds how long a single record write may block before the
// connection is considered dead.
const writeWait = 10 * time.Second

// LineConn delivers one protocol record per line, independent of the
// underlying transport. ReadLine strips the trailing LF; WriteLine frames
// the record.
type LineConn interface {
	ReadLine() ([]byte, error)
	WriteLine(record []byte) error
	Close() error
	RemoteAddr() string
}

// tcpLineConn frames records as LF-delimited lines over a stream socket.
type tcpLineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	return &tcpLineConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *tcpLineConn) ReadLine() ([]byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (c *tcpLineConn) WriteLine(record []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := c.conn.Write(append(record, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

func (c *tcpLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsLineConn carries the same line protocol over WebSocket: one text
// frame per record, no LF framing needed.
type wsLineConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSLineConn(conn *websocket.Conn) *wsLineConn {
	return &wsLineConn{conn: conn}
}

func (c *wsLineConn) ReadLine() ([]byte, error) {
	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return bytes.TrimRight(payload, "\r\n"), nil
	}
}

func (c *wsLineConn) WriteLine(record []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, record)
}

func (c *wsLineConn) Close() error {
	return c.conn.Close()
}

func (c *wsLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsAcceptor upgrades HTTP requests on /ws and hands the resulting
// connections to the session's accept loop.
type wsAcceptor struct {
	upgrader websocket.Upgrader
	incoming chan<- LineConn
	logger   zerolog.Logger
}

func newWSAcceptor(incoming chan<- LineConn, logger zerolog.Logger) *wsAcceptor {
	return &wsAcceptor{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		incoming: incoming,
		logger:   logger,
	}
}

func (a *wsAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	a.incoming <- newWSLineConn(conn)
}
