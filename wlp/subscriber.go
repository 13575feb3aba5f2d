package wlp

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/timer"
)

// RemoteAssertion is one incoming WLP sample: a remote writer
// asserting liveliness under a given kind and lease.
type RemoteAssertion struct {
	Writer        guid.GUID
	Kind          qos.LivelinessKind
	LeaseDuration time.Duration
	NotAlive      bool
}

// LocalReaderInterest is a local reader matched to a remote writer,
// as the subscriber-side manager needs it to decide which readers a
// liveliness_changed callback touches.
type LocalReaderInterest struct {
	Reader guid.GUID
	Writer guid.GUID
	Kind   qos.LivelinessKind
	Lease  time.Duration
}

// LivelinessChangedEvent mirrors DDS's liveliness_changed status:
// alive/not-alive counts (level and delta) for one local reader, plus
// the handle of the writer whose last publication it concerns
// (spec.md §4.5).
type LivelinessChangedEvent struct {
	Reader                 guid.GUID
	AliveCount             int
	NotAliveCount          int
	AliveCountChange       int
	NotAliveCountChange    int
	LastPublicationHandle guid.InstanceHandle
}

type remoteWriterState struct {
	kind     qos.LivelinessKind
	lease    time.Duration
	deadline time.Time
	alive    bool
}

// Subscriber is the subscriber-side WLP engine: it consumes
// RemoteAssertions, maintains a deadline per remote writer, and on
// expiry or explicit NOT_ALIVE fires liveliness_changed for every
// local reader matched to that writer under the same (kind, lease)
// pair (spec.md §4.5).
type Subscriber struct {
	mu sync.Mutex

	driver timer.Driver

	writers map[guid.GUID]*remoteWriterState
	cancel  map[guid.GUID]timer.CancelFunc

	// interests indexes LocalReaderInterest by remote writer GUID.
	interests map[guid.GUID][]LocalReaderInterest

	onChanged []func(LivelinessChangedEvent)
}

// NewSubscriber builds a Subscriber backed by driver.
func NewSubscriber(driver timer.Driver) *Subscriber {
	return &Subscriber{
		driver:    driver,
		writers:   map[guid.GUID]*remoteWriterState{},
		cancel:    map[guid.GUID]timer.CancelFunc{},
		interests: map[guid.GUID][]LocalReaderInterest{},
	}
}

// OnLivelinessChanged registers fn to be called whenever a matched
// writer's alive status changes for some local reader.
func (s *Subscriber) OnLivelinessChanged(fn func(LivelinessChangedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChanged = append(s.onChanged, fn)
}

// AddInterest registers a local reader's match to a remote writer.
func (s *Subscriber) AddInterest(i LocalReaderInterest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests[i.Writer] = append(s.interests[i.Writer], i)
}

// RemoveInterest removes a local reader's match to writer.
func (s *Subscriber) RemoveInterest(reader, writer guid.GUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.interests[writer]
	for idx, i := range list {
		if i.Reader == reader {
			s.interests[writer] = append(list[:idx], list[idx+1:]...)
			break
		}
	}
}

// OnAssertion processes an incoming WLP sample: renews the writer's
// deadline (or marks it NOT_ALIVE on an explicit dispose sample) and
// fires liveliness_changed for any local reader whose interest
// transitions.
//
// Failure semantics: a missed tick is not observable here — only the
// last-received sample time matters, not a count of samples
// (spec.md §4.5).
func (s *Subscriber) OnAssertion(a RemoteAssertion, now time.Time) {
	s.mu.Lock()

	st, existed := s.writers[a.Writer]
	if !existed {
		st = &remoteWriterState{}
		s.writers[a.Writer] = st
	}
	wasAlive := st.alive

	// An explicit NOT_ALIVE sample (a dispose) carries no kind/lease of
	// its own; (kind, lease) is only ever set from the writer's last
	// live assertion, which is what fireChanged's interest filter must
	// match against.
	if a.NotAlive {
		st.alive = false
	} else {
		st.kind = a.Kind
		st.lease = a.LeaseDuration
		st.alive = true
		st.deadline = now.Add(a.LeaseDuration)
		if c, ok := s.cancel[a.Writer]; ok {
			c()
		}
		s.cancel[a.Writer] = s.driver.Schedule(st.deadline, func() {
			s.onDeadline(a.Writer)
		})
	}

	becameAlive := st.alive && !wasAlive
	becameNotAlive := !st.alive && wasAlive
	kind, lease := st.kind, st.lease
	interests := append([]LocalReaderInterest{}, s.interests[a.Writer]...)
	s.mu.Unlock()

	if !becameAlive && !becameNotAlive {
		return
	}
	s.fireChanged(interests, a.Writer, kind, lease, becameAlive)
}

func (s *Subscriber) onDeadline(writer guid.GUID) {
	s.mu.Lock()
	st, ok := s.writers[writer]
	if !ok || !st.alive {
		s.mu.Unlock()
		return
	}
	if s.driver.Now().Before(st.deadline) {
		s.mu.Unlock()
		return
	}
	st.alive = false
	kind, lease := st.kind, st.lease
	interests := append([]LocalReaderInterest{}, s.interests[writer]...)
	s.mu.Unlock()

	s.fireChanged(interests, writer, kind, lease, false)
}

// fireChanged notifies only the readers whose interest shares the
// writer's current (kind, lease) pair (spec.md §4.5) — a reader
// matched under a different liveliness policy is not affected by this
// writer's transition.
func (s *Subscriber) fireChanged(interests []LocalReaderInterest, writer guid.GUID, kind qos.LivelinessKind, lease time.Duration, becameAlive bool) {
	s.mu.Lock()
	subs := append([]func(LivelinessChangedEvent){}, s.onChanged...)
	s.mu.Unlock()

	handle := guid.InstanceHandleOf(writer)
	for _, i := range interests {
		if i.Kind != kind || i.Lease != lease {
			continue
		}
		ev := LivelinessChangedEvent{Reader: i.Reader, LastPublicationHandle: handle}
		if becameAlive {
			ev.AliveCountChange = 1
			ev.AliveCount = 1
		} else {
			ev.NotAliveCountChange = 1
			ev.NotAliveCount = 1
		}
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// IsAlive reports whether writer is currently considered alive; a
// writer with no recorded assertion reports false.
func (s *Subscriber) IsAlive(writer guid.GUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.writers[writer]
	return ok && st.alive
}
