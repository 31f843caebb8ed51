package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// WingmanID identifies a wingman within the process.
type WingmanID uint32

// Requester is the player who asked for wingmen. Player ids are only
// meaningful within one server connection, so the session is part of the key.
type Requester struct {
	Session string `json:"session"`
	Player  uint16 `json:"player"`
}

func (r Requester) String() string {
	return fmt.Sprintf("%s#%d", r.Session, r.Player)
}

// InvariantError reports registry bookkeeping that cannot happen unless the
// caller has a bug, such as releasing a wingman twice.
type InvariantError struct {
	Op      string
	Wingman WingmanID
	Reason  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("registry: %s wingman %d: %s", e.Op, e.Wingman, e.Reason)
}

// Allocation is one registry entry as reported by Snapshot.
type Allocation struct {
	Requester Requester   `json:"requester"`
	Wingmen   []WingmanID `json:"wingmen"`
}

// Registry enforces the per-requester wingman cap across every session. It is
// the only state shared between sessions.
type Registry struct {
	mu      sync.Mutex
	limit   int
	nextID  WingmanID
	entries map[Requester][]WingmanID
	owners  map[WingmanID]Requester

	granted  metric.Int64Counter
	capped   metric.Int64Counter
	released metric.Int64Counter
}

// NewRegistry creates a registry allowing at most limit live wingmen per
// requester.
func NewRegistry(limit int) *Registry {
	if limit < 0 {
		limit = 0
	}
	r := &Registry{
		limit:   limit,
		entries: make(map[Requester][]WingmanID),
		owners:  make(map[WingmanID]Requester),
	}

	m := meter()
	r.granted = counter(m, "groundctrl.wingmen.granted", "Wingmen granted to requesters")
	r.capped = counter(m, "groundctrl.requests.capped", "Wingman requests reduced by the per-requester cap")
	r.released = counter(m, "groundctrl.wingmen.released", "Wingmen released from the registry")

	active, err := m.Int64ObservableGauge(
		"groundctrl.wingmen.active",
		metric.WithDescription("Wingmen currently live across all sessions"),
	)
	if err == nil {
		_, _ = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(active, int64(r.Len()))
			return nil
		}, active)
	}
	return r
}

// Cap returns the per-requester limit.
func (r *Registry) Cap() int { return r.limit }

// Request reserves up to count wingmen for req and returns their ids. The
// grant is reduced so the requester never holds more than the cap; a request
// with nothing left to grant returns nil.
func (r *Registry) Request(req Requester, count int) []WingmanID {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := len(r.entries[req])
	allowed := min(count, r.limit-held)
	if allowed < count {
		r.capped.Add(context.Background(), 1)
	}
	if allowed <= 0 {
		return nil
	}

	ids := make([]WingmanID, 0, allowed)
	for i := 0; i < allowed; i++ {
		r.nextID++
		id := r.nextID
		ids = append(ids, id)
		r.owners[id] = req
	}
	r.entries[req] = append(r.entries[req], ids...)
	r.granted.Add(context.Background(), int64(allowed))
	return ids
}

// CallOff removes every wingman held by req and returns their ids. Calling
// off a requester with no wingmen is a no-op.
func (r *Registry) CallOff(req Requester) []WingmanID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.entries[req]
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		delete(r.owners, id)
	}
	delete(r.entries, req)
	r.released.Add(context.Background(), int64(len(ids)))
	return ids
}

// Release removes a single wingman. Releasing an id that is not live is an
// invariant violation.
func (r *Registry) Release(id WingmanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.owners[id]
	if !ok {
		return &InvariantError{Op: "release", Wingman: id, Reason: "not reserved"}
	}
	ids := r.entries[req]
	idx := -1
	for i, w := range ids {
		if w == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &InvariantError{Op: "release", Wingman: id, Reason: fmt.Sprintf("owner %s does not list it", req)}
	}

	delete(r.owners, id)
	ids = append(ids[:idx:idx], ids[idx+1:]...)
	if len(ids) == 0 {
		delete(r.entries, req)
	} else {
		r.entries[req] = ids
	}
	r.released.Add(context.Background(), 1)
	return nil
}

// ReleaseSession removes every wingman reserved for requesters of session and
// returns their ids in ascending order.
func (r *Registry) ReleaseSession(session string) []WingmanID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []WingmanID
	for req, ids := range r.entries {
		if req.Session != session {
			continue
		}
		for _, id := range ids {
			delete(r.owners, id)
		}
		out = append(out, ids...)
		delete(r.entries, req)
	}
	if len(out) > 0 {
		r.released.Add(context.Background(), int64(len(out)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of live wingmen held by req.
func (r *Registry) Count(req Requester) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[req])
}

// Owner returns the requester a live wingman belongs to.
func (r *Registry) Owner(id WingmanID) (Requester, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.owners[id]
	return req, ok
}

// Len returns the number of live wingmen across all requesters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Snapshot returns a copy of every entry, ordered by session then player.
func (r *Registry) Snapshot() []Allocation {
	r.mu.Lock()
	out := make([]Allocation, 0, len(r.entries))
	for req, ids := range r.entries {
		out = append(out, Allocation{Requester: req, Wingmen: append([]WingmanID(nil), ids...)})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Requester, out[j].Requester
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		return a.Player < b.Player
	})
	return out
}
