package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/ground-control/protocol"
)

// expectTimeout bounds every wait on the fake server.
const expectTimeout = 5 * time.Second

// FakeGameServer is an in-process game server speaking the binary protocol
// over a real websocket. Each accepted connection is handed to the test as a
// FakeConn.
type FakeGameServer struct {
	*httptest.Server
	t     testing.TB
	conns chan *FakeConn
}

// NewFakeGameServer starts a fake server that is closed when the test ends.
func NewFakeGameServer(t testing.TB) *FakeGameServer {
	t.Helper()
	fs := &FakeGameServer{t: t, conns: make(chan *FakeConn, 8)}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc := &FakeConn{
			t:      t,
			conn:   conn,
			frames: make(chan protocol.Frame, 1<<14),
			closed: make(chan struct{}),
		}
		go fc.readLoop()
		fs.conns <- fc
	}))
	t.Cleanup(fs.Close)
	return fs
}

// WSURL returns the ws:// address of the server.
func (fs *FakeGameServer) WSURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

// Next waits for the next client connection.
func (fs *FakeGameServer) Next() *FakeConn {
	fs.t.Helper()
	select {
	case c := <-fs.conns:
		fs.t.Cleanup(c.Close)
		return c
	case <-time.After(expectTimeout):
		fs.t.Fatalf("no client connected to %s", fs.WSURL())
		return nil
	}
}

// Accept waits for a client, completes its login as player self and then
// introduces players.
func (fs *FakeGameServer) Accept(self uint16, players ...protocol.PlayerJoin) *FakeConn {
	fs.t.Helper()
	c := fs.Next()
	ExpectFrame(c, func(protocol.Login) bool { return true })
	c.Send(protocol.LoginAck{ID: self, Room: "ffa"})
	ExpectFrame(c, func(cmd protocol.Command) bool {
		return cmd.Com == "spectate" && cmd.Data == "-3"
	})
	for _, p := range players {
		c.Send(p)
	}
	return c
}

// FakeConn is the server side of one client connection.
type FakeConn struct {
	t      testing.TB
	conn   *websocket.Conn
	frames chan protocol.Frame
	closed chan struct{}

	mu   sync.Mutex
	once sync.Once
}

func (c *FakeConn) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		select {
		case c.frames <- f:
		default:
		}
	}
}

// Send encodes and writes one frame to the client.
func (c *FakeConn) Send(f protocol.Frame) {
	c.t.Helper()
	data, err := protocol.Encode(f)
	require.NoError(c.t, err)
	c.SendRaw(data)
}

// SendRaw writes data to the client as one binary message.
func (c *FakeConn) SendRaw(data []byte) {
	c.t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NoError(c.t, c.conn.WriteMessage(websocket.BinaryMessage, data))
}

// Next returns the next frame from the client.
func (c *FakeConn) Next() protocol.Frame {
	c.t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(expectTimeout):
		c.t.Fatalf("timed out waiting for a frame")
		return nil
	}
}

// Expect skips frames until one satisfies match and returns it.
func (c *FakeConn) Expect(match func(protocol.Frame) bool) protocol.Frame {
	c.t.Helper()
	deadline := time.After(expectTimeout)
	for {
		select {
		case f := <-c.frames:
			if match(f) {
				return f
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for a matching frame")
			return nil
		}
	}
}

// ExpectNone fails if a frame satisfying match arrives within d.
func (c *FakeConn) ExpectNone(match func(protocol.Frame) bool, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-c.frames:
			if match(f) {
				c.t.Fatalf("unexpected frame %s: %+v", f.Opcode(), f)
			}
		case <-deadline:
			return
		}
	}
}

// Drain collects every frame that arrives within d.
func (c *FakeConn) Drain(d time.Duration) []protocol.Frame {
	var out []protocol.Frame
	deadline := time.After(d)
	for {
		select {
		case f := <-c.frames:
			out = append(out, f)
		case <-deadline:
			return out
		}
	}
}

// WaitClosed waits until the client has gone away.
func (c *FakeConn) WaitClosed() {
	c.t.Helper()
	select {
	case <-c.closed:
	case <-time.After(expectTimeout):
		c.t.Fatalf("client did not disconnect")
	}
}

// Close drops the connection without a close handshake.
func (c *FakeConn) Close() {
	c.once.Do(func() { c.conn.Close() })
}

// ExpectFrame skips frames until one of type T satisfies match.
func ExpectFrame[T protocol.Frame](c *FakeConn, match func(T) bool) T {
	c.t.Helper()
	f := c.Expect(func(f protocol.Frame) bool {
		v, ok := f.(T)
		return ok && match(v)
	})
	return f.(T)
}

// ExpectChat waits for ground control to say text.
func ExpectChat(c *FakeConn, text string) {
	c.t.Helper()
	ExpectFrame(c, func(m protocol.ChatMessage) bool { return m.Text == text })
}

// IsChat matches any outbound chat line.
func IsChat(f protocol.Frame) bool {
	_, ok := f.(protocol.ChatMessage)
	return ok
}

// FastSessionConfig shortens every interval so sessions react quickly. It
// does not announce joins, so chat only carries command replies.
func FastSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Announce = false
	cfg.Tick = 10 * time.Millisecond
	cfg.ReplyInterval = time.Millisecond
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

// StartSession runs a session against url in the background. The returned
// channel yields Run's result.
func StartSession(t testing.TB, url string, registry *Registry, cfg SessionConfig) (*Session, <-chan error, func()) {
	t.Helper()
	s := NewSession(url, registry, cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return s, errc, cancel
}

// WaitRun waits for a session started by StartSession to return.
func WaitRun(t testing.TB, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(expectTimeout):
		t.Fatalf("session did not stop")
		return nil
	}
}
