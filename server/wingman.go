package server

import (
	"time"

	"github.com/lab1702/ground-control/game"
	"github.com/lab1702/ground-control/protocol"
)

// WingmanState is the lifecycle state of a wingman.
type WingmanState int

const (
	WingmanSpawning WingmanState = iota
	WingmanActive
	WingmanTerminated
)

func (s WingmanState) String() string {
	switch s {
	case WingmanSpawning:
		return "spawning"
	case WingmanActive:
		return "active"
	case WingmanTerminated:
		return "terminated"
	}
	return "unknown"
}

// Wingman is one AI aircraft chasing the player who requested it. It only
// refers to other things by id; the owning Session holds the World it reads.
type Wingman struct {
	ID         WingmanID
	Callsign   string
	Requester  Requester
	TargetName string
	Spawned    time.Time

	// StaleAfter bounds how long the target may go unseen. Zero disables it.
	StaleAfter time.Duration

	state    WingmanState
	self     uint16
	resolved bool
	keys     uint8
	heading  float64
	seq      uint32
	deaths   int
}

// NewWingman creates a wingman in the Spawning state targeting the requester.
func NewWingman(id WingmanID, req Requester, targetName string, now time.Time) *Wingman {
	return &Wingman{
		ID:         id,
		Callsign:   Callsign(id),
		Requester:  req,
		TargetName: targetName,
		Spawned:    now,
		StaleAfter: TargetStaleAfter,
	}
}

// State returns the current lifecycle state.
func (w *Wingman) State() WingmanState { return w.state }

// Deaths returns how many times the wingman's aircraft has been shot down.
func (w *Wingman) Deaths() int { return w.deaths }

// Target returns the in-game id of the player being chased.
func (w *Wingman) Target() uint16 { return w.Requester.Player }

// Aircraft returns the wingman's own in-game id once the server has spawned it.
func (w *Wingman) Aircraft() (uint16, bool) { return w.self, w.resolved }

// LastInput returns the keys and heading most recently commanded.
func (w *Wingman) LastInput() (uint8, float64) { return w.keys, w.heading }

// Tick advances the wingman one control step. It returns the control input
// to send, or false when there is nothing to send this tick. A wingman whose
// target has gone terminates here and never emits again.
func (w *Wingman) Tick(world *game.World, now time.Time) (protocol.ControlInput, bool) {
	switch w.state {
	case WingmanTerminated:
		return protocol.ControlInput{}, false
	case WingmanSpawning:
		w.state = WingmanActive
	}

	target, ok := world.Fresh(w.Target(), now, w.StaleAfter)
	if !ok || target.Name != w.TargetName {
		w.Terminate()
		return protocol.ControlInput{}, false
	}

	self, ok := w.aircraft(world)
	if !ok {
		return protocol.ControlInput{}, false
	}

	w.keys, w.heading = pursue(self, target)
	w.seq++
	return protocol.ControlInput{
		Wingman: uint32(w.ID),
		Seq:     w.seq,
		Keys:    w.keys,
		Heading: float32(w.heading),
	}, true
}

// aircraft finds the wingman's own aircraft by callsign, caching the id until
// the server stops reporting it.
func (w *Wingman) aircraft(world *game.World) (game.Player, bool) {
	if w.resolved {
		if p, ok := world.Get(w.self); ok && p.Name == w.Callsign {
			return p, true
		}
		w.resolved = false
	}
	p, ok := world.LookupName(w.Callsign)
	if !ok {
		return game.Player{}, false
	}
	w.self = p.ID
	w.resolved = true
	return p, true
}

// OnDeath records a PlayerDeath. Wingmen respawn and keep chasing, so death
// never terminates them. It reports whether id was this wingman's aircraft.
func (w *Wingman) OnDeath(id uint16) bool {
	if !w.resolved || id != w.self || w.state == WingmanTerminated {
		return false
	}
	w.deaths++
	return true
}

// Terminate moves the wingman to the absorbing Terminated state.
func (w *Wingman) Terminate() {
	w.state = WingmanTerminated
	w.keys = 0
}
