package backend

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

// Backend is an extraction backend that can also be probed for reachability.
type Backend interface {
	llm.Completer
	Ping(ctx context.Context) error
}

// Status is the last probe outcome for one backend.
type Status struct {
	Name      string    `json:"name"`
	Reachable bool      `json:"reachable"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Snapshot is an immutable view of backend reachability.
type Snapshot struct {
	Backends  []Status  `json:"backends"`
	Preferred string    `json:"preferred"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Selection is what a single request commits to. Alternate is nil when only
// one backend is configured.
type Selection struct {
	Preferred Backend
	Alternate Backend
}

// Availability holds the current Snapshot for a fixed, priority-ordered set
// of backends. Reads are lock-free.
type Availability struct {
	backends []Backend
	snap     atomic.Pointer[Snapshot]
}

// NewAvailability starts with every backend unprobed and the first one preferred.
func NewAvailability(backends ...Backend) *Availability {
	a := &Availability{backends: backends}
	initial := &Snapshot{Backends: make([]Status, len(backends))}
	for i, b := range backends {
		initial.Backends[i] = Status{Name: b.Name()}
	}
	if len(backends) > 0 {
		initial.Preferred = backends[0].Name()
	}
	a.snap.Store(initial)
	return a
}

func (a *Availability) Backends() []Backend {
	return a.backends
}

// Snapshot returns the most recently published state.
func (a *Availability) Snapshot() Snapshot {
	return *a.snap.Load()
}

// publish replaces the snapshot; the last writer wins.
func (a *Availability) publish(statuses []Status, at time.Time) Snapshot {
	s := &Snapshot{Backends: statuses, ProbedAt: at}
	if len(a.backends) > 0 {
		s.Preferred = a.backends[0].Name()
	}
	for _, st := range statuses {
		if st.Reachable {
			s.Preferred = st.Name
			break
		}
	}
	a.snap.Store(s)
	return *s
}

// Select reads the snapshot once. Preferred is the first reachable backend in
// priority order, or the primary when none is reachable. Alternate is the
// first other reachable backend, else the first other backend.
func (a *Availability) Select() Selection {
	if len(a.backends) == 0 {
		return Selection{}
	}
	snap := a.snap.Load()
	reachable := make(map[string]bool, len(snap.Backends))
	for _, st := range snap.Backends {
		reachable[st.Name] = st.Reachable
	}

	pref := 0
	for i, b := range a.backends {
		if b.Name() == snap.Preferred {
			pref = i
			break
		}
	}
	sel := Selection{Preferred: a.backends[pref]}
	for i, b := range a.backends {
		if i == pref {
			continue
		}
		if sel.Alternate == nil {
			sel.Alternate = b
		}
		if reachable[b.Name()] {
			sel.Alternate = b
			break
		}
	}
	return sel
}
