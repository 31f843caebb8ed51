package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrAllSessionsFailed is returned by Scheduler.Run when every configured
// server has exhausted its reconnect attempts.
var ErrAllSessionsFailed = errors.New("all sessions failed")

// ErrNoServers is returned by Scheduler.Run when it is given nothing to do.
var ErrNoServers = errors.New("no servers configured")

// SchedulerConfig controls reconnection. Session settings are passed through
// to every session the scheduler starts.
type SchedulerConfig struct {
	Session SessionConfig

	ReconnectBackoff time.Duration // first delay after a session ends
	MaxBackoff       time.Duration // backoff doubles up to this
	MaxReconnect     int           // consecutive failed attempts before giving up
	StableAfter      time.Duration // a session that lasted this long resets the attempt count
}

// DefaultSchedulerConfig returns the default reconnect policy.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Session:          DefaultSessionConfig(),
		ReconnectBackoff: time.Second,
		MaxBackoff:       30 * time.Second,
		MaxReconnect:     10,
		StableAfter:      time.Minute,
	}
}

// SessionStatus describes one configured server for the status endpoint.
type SessionStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Players   int    `json:"players"`
	Wingmen   int    `json:"wingmen"`
	Attempts  int    `json:"attempts"`
}

// Scheduler keeps one session alive per configured server.
type Scheduler struct {
	cfg      SchedulerConfig
	registry *Registry
	log      zerolog.Logger
	metrics  *sessionMetrics

	mu       sync.RWMutex
	sessions map[string]*Session
	attempts map[string]int
	order    []string
}

// NewScheduler creates a scheduler sharing registry across all sessions.
func NewScheduler(registry *Registry, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.ReconnectBackoff {
		cfg.MaxBackoff = cfg.ReconnectBackoff
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		log:      log,
		metrics:  newSessionMetrics(),
		sessions: make(map[string]*Session),
		attempts: make(map[string]int),
	}
}

// Registry returns the registry shared by the scheduler's sessions.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Run supervises one session per url until ctx is cancelled, which returns
// nil. If every supervisor gives up Run returns ErrAllSessionsFailed; a
// single server failing never stops the others.
func (s *Scheduler) Run(ctx context.Context, urls []string) error {
	urls = s.dedupe(urls)
	if len(urls) == 0 {
		return ErrNoServers
	}

	var g errgroup.Group
	var gaveUp atomic.Int32
	for _, u := range urls {
		u := u
		g.Go(func() error {
			if s.supervise(ctx, u) {
				gaveUp.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if int(gaveUp.Load()) == len(urls) {
		return ErrAllSessionsFailed
	}
	return nil
}

// supervise runs sessions for url back to back with exponential backoff. It
// reports true when it gave up.
func (s *Scheduler) supervise(ctx context.Context, url string) bool {
	log := s.log.With().Str("session", url).Logger()
	backoff := s.cfg.ReconnectBackoff
	failures := 0

	for {
		sess := NewSession(url, s.registry, s.cfg.Session, s.log)
		s.track(url, sess, failures)

		started := time.Now()
		err := sess.Run(ctx)
		if ctx.Err() != nil {
			return false
		}

		if time.Since(started) >= s.cfg.StableAfter {
			failures = 0
			backoff = s.cfg.ReconnectBackoff
		}
		failures++
		if failures > s.cfg.MaxReconnect {
			log.Error().Err(err).Int("attempts", failures).Msg("Giving up on server")
			s.track(url, nil, failures)
			return true
		}

		log.Warn().Err(err).Int("attempt", failures).Dur("backoff", backoff).Msg("Session ended, reconnecting")
		s.metrics.reconnections.Add(ctx, 1)
		s.track(url, nil, failures)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *Scheduler) dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			s.log.Warn().Str("url", u).Msg("Ignoring duplicate server")
			continue
		}
		seen[u] = true
		out = append(out, u)
	}

	s.mu.Lock()
	s.order = out
	s.mu.Unlock()
	return out
}

func (s *Scheduler) track(url string, sess *Session, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		delete(s.sessions, url)
	} else {
		s.sessions[url] = sess
	}
	s.attempts[url] = attempts
}

// Session returns the live session for url, if any.
func (s *Scheduler) Session(url string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[url]
	return sess, ok
}

// Status reports every configured server in configuration order.
func (s *Scheduler) Status() []SessionStatus {
	perSession := make(map[string]int)
	for _, a := range s.registry.Snapshot() {
		perSession[a.Requester.Session] += len(a.Wingmen)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionStatus, 0, len(s.order))
	for _, url := range s.order {
		st := SessionStatus{URL: url, Attempts: s.attempts[url], Wingmen: perSession[url]}
		if sess, ok := s.sessions[url]; ok {
			st.Connected = sess.Connected()
			st.Players = sess.World().Len()
		}
		out = append(out, st)
	}
	return out
}
