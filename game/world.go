package game

import (
	"sort"
	"sync"
	"time"

	"github.com/lab1702/ground-control/protocol"
)

// World is the table of players known on one server connection, built by
// folding incoming frames. It never produces frames of its own.
type World struct {
	Mu      sync.RWMutex
	players map[uint16]*Player
	names   map[string]uint16
	self    uint16
	hasSelf bool
	now     func() time.Time
}

// NewWorld creates an empty world. now stamps LastSeen; nil means time.Now.
func NewWorld(now func() time.Time) *World {
	if now == nil {
		now = time.Now
	}
	return &World{
		players: make(map[uint16]*Player),
		names:   make(map[string]uint16),
		now:     now,
	}
}

// Apply folds one frame into the table. Frames that do not describe players
// are ignored.
func (w *World) Apply(f protocol.Frame) {
	w.Mu.Lock()
	defer w.Mu.Unlock()

	now := w.now()
	switch f := f.(type) {
	case protocol.LoginAck:
		w.self = f.ID
		w.hasSelf = true

	case protocol.PlayerJoin:
		if old, ok := w.players[f.ID]; ok {
			w.forgetName(old)
		}
		status := StatusAlive
		if f.Status == protocol.StatusDead {
			status = StatusDead
		}
		w.players[f.ID] = &Player{
			ID:       f.ID,
			Name:     f.Name,
			Team:     f.Team,
			Status:   status,
			X:        float64(f.X),
			Y:        float64(f.Y),
			Rot:      float64(f.Rot),
			LastSeen: now,
		}
		w.names[f.Name] = f.ID

	case protocol.PlayerLeave:
		w.remove(f.ID)

	case protocol.PlayerUpdate:
		p, ok := w.players[f.ID]
		if !ok {
			return
		}
		// Last writer wins by server clock, so replays and reordered
		// updates never move a player backwards.
		if p.HasClock && f.Clock <= p.Clock {
			return
		}
		p.Clock = f.Clock
		p.HasClock = true
		p.Keys = f.Keys
		p.X = float64(f.X)
		p.Y = float64(f.Y)
		p.Rot = float64(f.Rot)
		p.VelX = float64(f.VelX)
		p.VelY = float64(f.VelY)
		p.LastSeen = now

	case protocol.PlayerDeath:
		if p, ok := w.players[f.ID]; ok {
			p.Status = StatusDead
			p.X = float64(f.X)
			p.Y = float64(f.Y)
			p.VelX, p.VelY = 0, 0
			p.LastSeen = now
		}

	case protocol.PlayerRespawn:
		if p, ok := w.players[f.ID]; ok {
			p.Status = StatusAlive
			p.X = float64(f.X)
			p.Y = float64(f.Y)
			p.Rot = float64(f.Rot)
			p.VelX, p.VelY = 0, 0
			p.LastSeen = now
		}
	}
}

// Get returns a copy of the player record for id.
func (w *World) Get(id uint16) (Player, bool) {
	w.Mu.RLock()
	defer w.Mu.RUnlock()
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Fresh is Get restricted to players seen within maxAge of now. A
// non-positive maxAge disables the freshness bound.
func (w *World) Fresh(id uint16, now time.Time, maxAge time.Duration) (Player, bool) {
	p, ok := w.Get(id)
	if !ok {
		return Player{}, false
	}
	if maxAge > 0 && now.Sub(p.LastSeen) > maxAge {
		return Player{}, false
	}
	return p, true
}

// LookupName returns the player currently flying under name.
func (w *World) LookupName(name string) (Player, bool) {
	w.Mu.RLock()
	defer w.Mu.RUnlock()
	id, ok := w.names[name]
	if !ok {
		return Player{}, false
	}
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Remove deletes a player from the table.
func (w *World) Remove(id uint16) {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	w.remove(id)
}

// Self returns our own player id once the server has acknowledged login.
func (w *World) Self() (uint16, bool) {
	w.Mu.RLock()
	defer w.Mu.RUnlock()
	return w.self, w.hasSelf
}

// Len returns the number of known players.
func (w *World) Len() int {
	w.Mu.RLock()
	defer w.Mu.RUnlock()
	return len(w.players)
}

// Players returns a copy of every record ordered by id.
func (w *World) Players() []Player {
	w.Mu.RLock()
	out := make([]Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, *p)
	}
	w.Mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) remove(id uint16) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	w.forgetName(p)
	delete(w.players, id)
}

func (w *World) forgetName(p *Player) {
	if id, ok := w.names[p.Name]; ok && id == p.ID {
		delete(w.names, p.Name)
	}
}
