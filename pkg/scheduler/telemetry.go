package scheduler

import "sync/atomic"

// EventKind names one of the telemetry counters the spec calls out for the
// operator surface / dashboard collaborator.
type EventKind string

const (
	EventDiscover EventKind = "DISCOVER"
	EventCall     EventKind = "CALL"
	EventAnnounce EventKind = "ANNOUNCE"
	EventRX       EventKind = "RX"
	EventRescan   EventKind = "RESCAN"
	EventError    EventKind = "ERROR"
)

// Telemetry is the scheduler's small set of activity counters: bumped as
// the node performs or observes the corresponding action, read without
// locking via atomics the way matter.Node exposes its own counters.
type Telemetry struct {
	discover uint64
	call     uint64
	announce uint64
	rx       uint64
	rescan   uint64
	errors   uint64
}

func (t *Telemetry) bump(kind EventKind) {
	switch kind {
	case EventDiscover:
		atomic.AddUint64(&t.discover, 1)
	case EventCall:
		atomic.AddUint64(&t.call, 1)
	case EventAnnounce:
		atomic.AddUint64(&t.announce, 1)
	case EventRX:
		atomic.AddUint64(&t.rx, 1)
	case EventRescan:
		atomic.AddUint64(&t.rescan, 1)
	case EventError:
		atomic.AddUint64(&t.errors, 1)
	}
}

// Snapshot returns a point-in-time copy of every counter, keyed by event
// kind.
func (t *Telemetry) Snapshot() map[EventKind]uint64 {
	return map[EventKind]uint64{
		EventDiscover: atomic.LoadUint64(&t.discover),
		EventCall:     atomic.LoadUint64(&t.call),
		EventAnnounce: atomic.LoadUint64(&t.announce),
		EventRX:       atomic.LoadUint64(&t.rx),
		EventRescan:   atomic.LoadUint64(&t.rescan),
		EventError:    atomic.LoadUint64(&t.errors),
	}
}
