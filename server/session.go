package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lab1702/ground-control/game"
	"github.com/lab1702/ground-control/protocol"
)

var (
	// ErrHandshake means the server did not accept our login.
	ErrHandshake = errors.New("login handshake failed")
	// ErrServerClosed means the server announced it was going away.
	ErrServerClosed = errors.New("server closed the connection")
)

// Connection timing
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	inboundBuffer     = 256
	maxPendingReplies = 16
)

// SessionConfig holds the per-connection settings shared by every session.
type SessionConfig struct {
	Name             string        // in-game name of the ground control aircraft
	Flag             string        // flag sent at login
	Announce         bool          // greet new players in chat
	Tick             time.Duration // wingman control cadence
	HandshakeTimeout time.Duration
	ReplyInterval    time.Duration // minimum spacing of chat replies
	TargetStaleAfter time.Duration
	Dialer           *websocket.Dialer
}

// DefaultSessionConfig returns the settings used when nothing is configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Name:             "GROUND-CTRL",
		Flag:             "UN",
		Announce:         true,
		Tick:             game.TickInterval,
		HandshakeTimeout: 10 * time.Second,
		ReplyInterval:    time.Second,
		TargetStaleAfter: TargetStaleAfter,
		Dialer:           websocket.DefaultDialer,
	}
}

// Session drives one connection to one game server. Everything except the
// Registry is owned by the session's event loop.
type Session struct {
	url      string
	cfg      SessionConfig
	registry *Registry
	log      zerolog.Logger
	metrics  *sessionMetrics

	conn      *websocket.Conn
	world     *game.World
	wingmen   map[WingmanID]*Wingman
	outbox    []protocol.Frame
	replies   []string
	limiter   *rate.Limiter
	connected atomic.Bool
	now       func() time.Time
}

// NewSession creates a session for url. Call Run to connect.
func NewSession(url string, registry *Registry, cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.Tick <= 0 {
		cfg.Tick = game.TickInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReplyInterval <= 0 {
		cfg.ReplyInterval = time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Session{
		url:      url,
		cfg:      cfg,
		registry: registry,
		log:      log.With().Str("session", url).Logger(),
		metrics:  newSessionMetrics(),
		world:    game.NewWorld(nil),
		wingmen:  make(map[WingmanID]*Wingman),
		limiter:  rate.NewLimiter(rate.Every(cfg.ReplyInterval), 1),
		now:      time.Now,
	}
}

// ID identifies the session in the registry.
func (s *Session) ID() string { return s.url }

// World returns the session's view of the game. It is safe to read from
// other goroutines.
func (s *Session) World() *game.World { return s.world }

// Connected reports whether the session has completed its login and has not
// yet ended.
func (s *Session) Connected() bool { return s.connected.Load() }

// Run connects, logs in and serves the connection until it fails, the server
// closes it or ctx is cancelled. Every wingman reserved through this session
// is released before Run returns. Cancellation returns nil.
func (s *Session) Run(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, _, err := s.cfg.Dialer.DialContext(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.conn = conn
	defer conn.Close()

	// Unblock reads as soon as we are told to stop.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer s.shutdown()

	if err := s.handshake(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.connected.Store(true)
	self, _ := s.world.Self()
	s.log.Info().Uint16("id", self).Str("name", s.cfg.Name).Msg("Logged in")

	err = s.loop(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handshake sends Login and waits for LoginAck, then switches to spectating.
func (s *Session) handshake() error {
	login := protocol.Login{
		Protocol: game.ProtocolVersion,
		Name:     s.cfg.Name,
		Session:  "none",
		HorizonX: game.HorizonX,
		HorizonY: game.HorizonY,
		Flag:     s.cfg.Flag,
	}
	if err := s.send(login); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := protocol.Decode(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Discarding malformed frame during login")
			continue
		}
		switch f := f.(type) {
		case protocol.LoginAck:
			s.world.Apply(f)
			return s.send(protocol.Command{Com: "spectate", Data: "-3"})
		case protocol.Ping:
			if err := s.send(protocol.Pong{Num: f.Num}); err != nil {
				return fmt.Errorf("%w: %v", ErrHandshake, err)
			}
		case protocol.Error:
			return fmt.Errorf("%w: server error %d: %s", ErrHandshake, f.Code, f.Message)
		case protocol.ServerClose:
			return fmt.Errorf("%w: %s", ErrServerClosed, f.Reason)
		default:
			s.world.Apply(f)
		}
	}
}

// readPump forwards raw binary messages to the event loop. It never decodes.
func (s *Session) readPump(msgs chan<- []byte, errs chan<- error, done <-chan struct{}) {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.BinaryMessage {
			continue
		}
		select {
		case msgs <- data:
		case <-done:
			return
		}
	}
}

// loop is the session's single event loop. Inbound frames and control ticks
// are handled in arrival order on this goroutine.
func (s *Session) loop(ctx context.Context) error {
	msgs := make(chan []byte, inboundBuffer)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go s.readPump(msgs, errs, done)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errs:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: %v", ErrServerClosed, err)
			}
			return fmt.Errorf("read %s: %w", s.url, err)

		case data := <-msgs:
			if err := s.handleMessage(data); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.tick(s.now()); err != nil {
				return err
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping %s: %w", s.url, err)
			}
		}
	}
}

// handleMessage decodes one inbound message and reacts to it. Only a
// ServerClose frame ends the session from here.
func (s *Session) handleMessage(data []byte) error {
	ctx := context.Background()
	f, err := protocol.Decode(data)
	if err != nil {
		s.metrics.decodeErrors.Add(ctx, 1)
		s.log.Warn().Err(err).Msg("Discarding malformed frame")
		return nil
	}
	s.metrics.framesIn.Add(ctx, 1)
	s.world.Apply(f)

	switch f := f.(type) {
	case protocol.Ping:
		s.queue(protocol.Pong{Num: f.Num})

	case protocol.PlayerJoin:
		if s.cfg.Announce && !s.isOwnAircraft(f.ID, f.Name) {
			s.reply(announceLine(f.Name))
		}

	case protocol.PlayerLeave:
		if n := s.callOff(Requester{Session: s.url, Player: f.ID}); n > 0 {
			s.log.Info().Uint16("player", f.ID).Int("wingmen", n).Msg("Requester left, wingmen recalled")
		}

	case protocol.PlayerDeath:
		for _, w := range s.wingmen {
			if w.OnDeath(f.ID) {
				s.log.Debug().Uint32("wingman", uint32(w.ID)).Int("deaths", w.Deaths()).Msg("Wingman shot down")
			}
		}

	case protocol.ChatMessage:
		s.handleChat(f)

	case protocol.Error:
		s.log.Warn().Uint8("code", f.Code).Str("message", f.Message).Msg("Server reported an error")

	case protocol.ServerClose:
		return fmt.Errorf("%w: %s", ErrServerClosed, f.Reason)

	case protocol.Unknown:
		s.log.Trace().Str("opcode", f.Code.String()).Int("bytes", len(f.Payload)).Msg("Ignoring unknown frame")
	}
	return nil
}

// handleChat acts on a chat line if it is a command from another player.
func (s *Session) handleChat(msg protocol.ChatMessage) {
	if self, ok := s.world.Self(); ok && msg.ID == self {
		return
	}
	cmd, ok := ParseCommand(msg.Text, s.registry.Cap())
	if !ok {
		return
	}
	player, ok := s.world.Get(msg.ID)
	if !ok {
		s.log.Warn().Uint16("player", msg.ID).Msg("Command from unknown player")
		return
	}
	s.metrics.chatCommands.Add(context.Background(), 1)
	req := Requester{Session: s.url, Player: msg.ID}
	log := s.log.With().Str("player", player.Name).Str("command", cmd.Kind.String()).Logger()

	switch cmd.Kind {
	case KindWings:
		ids := s.registry.Request(req, cmd.Count)
		if len(ids) == 0 {
			log.Debug().Int("requested", cmd.Count).Msg("Request capped, nothing granted")
			return
		}
		now := s.now()
		for _, id := range ids {
			w := NewWingman(id, req, player.Name, now)
			w.StaleAfter = s.cfg.TargetStaleAfter
			s.wingmen[id] = w
			s.queue(protocol.Spawn{Wingman: uint32(id), Name: w.Callsign})
		}
		log.Info().Int("requested", cmd.Count).Int("granted", len(ids)).Msg("Wingmen dispatched")
		s.reply(wingsReply(player.Name, len(ids)))

	case KindCallOff:
		if n := s.callOff(req); n > 0 {
			log.Info().Int("wingmen", n).Msg("Wingmen called off")
			s.reply(callOffReply(player.Name))
		}

	case KindHelp:
		for _, line := range helpLines() {
			s.reply(line)
		}

	case KindVersion:
		s.reply(versionLine())
	}
}

// callOff removes every wingman held by req and queues their despawns. It
// returns how many were removed.
func (s *Session) callOff(req Requester) int {
	ids := s.registry.CallOff(req)
	for _, id := range ids {
		if w, ok := s.wingmen[id]; ok {
			w.Terminate()
			delete(s.wingmen, id)
		}
		s.queue(protocol.Despawn{Wingman: uint32(id)})
	}
	return len(ids)
}

// tick advances every wingman in id order, then sends rate-limited chat
// replies, then flushes everything queued since the last tick.
func (s *Session) tick(now time.Time) error {
	ids := make([]WingmanID, 0, len(s.wingmen))
	for id := range s.wingmen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		w := s.wingmen[id]
		in, ok := w.Tick(s.world, now)
		if w.State() == WingmanTerminated {
			s.retire(w)
			continue
		}
		if ok {
			s.logPursuit(w, in)
			s.queue(in)
		}
	}

	for len(s.replies) > 0 && s.limiter.AllowN(now, 1) {
		s.queue(protocol.ChatMessage{Text: s.replies[0]})
		s.replies = s.replies[1:]
	}
	return s.flush()
}

// retire releases a wingman whose target is gone. A registry refusal means
// the session and registry disagree about who is alive, which is a bug.
func (s *Session) retire(w *Wingman) {
	delete(s.wingmen, w.ID)
	if err := s.registry.Release(w.ID); err != nil {
		s.log.Error().Err(err).Uint32("wingman", uint32(w.ID)).Msg("Registry out of sync")
		panic(err)
	}
	s.queue(protocol.Despawn{Wingman: uint32(w.ID)})
	s.log.Info().Uint32("wingman", uint32(w.ID)).Str("target", w.TargetName).Msg("Target lost, wingman retired")
}

func (s *Session) queue(f protocol.Frame) {
	s.outbox = append(s.outbox, f)
}

func (s *Session) reply(line string) {
	if len(s.replies) >= maxPendingReplies {
		s.log.Debug().Str("line", line).Msg("Reply queue full, dropping")
		return
	}
	s.replies = append(s.replies, line)
}

// flush writes every queued frame, one websocket message per frame.
func (s *Session) flush() error {
	defer func() { s.outbox = s.outbox[:0] }()
	for _, f := range s.outbox {
		if err := s.send(f); err != nil {
			var ee *protocol.EncodeError
			if errors.As(err, &ee) {
				s.log.Warn().Err(err).Msg("Dropping frame that cannot be encoded")
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Session) send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", s.url, err)
	}
	s.metrics.framesOut.Add(context.Background(), 1)
	return nil
}

// isOwnAircraft reports whether a joining player is ground control itself or
// one of its wingmen.
func (s *Session) isOwnAircraft(id uint16, name string) bool {
	if self, ok := s.world.Self(); ok && self == id {
		return true
	}
	if name == s.cfg.Name {
		return true
	}
	for _, w := range s.wingmen {
		if w.Callsign == name {
			return true
		}
	}
	return false
}

// shutdown drops every wingman and returns their reservations.
func (s *Session) shutdown() {
	s.connected.Store(false)
	for id, w := range s.wingmen {
		w.Terminate()
		delete(s.wingmen, id)
	}
	if ids := s.registry.ReleaseSession(s.url); len(ids) > 0 {
		s.log.Info().Int("wingmen", len(ids)).Msg("Session ended, wingmen released")
	}
}
