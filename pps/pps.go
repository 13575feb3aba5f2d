// Package pps implements the Participant Proxy Store: a
// concurrency-safe table mapping remote participant GUID prefixes to
// ParticipantProxyData, with lease tracking and idempotent removal
// (spec.md §4.2). Every mutation is serialized under the store's own
// lock (the PDP engine keeps a separate one), replacing the teacher's
// single-recursive-mutex model generalized to a plain sync.Mutex
// under the concurrency redesign (spec.md §5, §9).
package pps

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/proxydata"
)

// Status reports the outcome of an insert_or_update call.
type Status int

const (
	StatusUnchanged Status = iota
	StatusNew
	StatusUpdated
)

// RemovalReason records why a participant was removed, for logging
// and metrics.
type RemovalReason string

const (
	ReasonDisposed RemovalReason = "disposed"
	ReasonLease    RemovalReason = "lease"
)

// Store is the Participant Proxy Store.
type Store struct {
	mu sync.Mutex

	byPrefix map[guid.Prefix]*proxydata.Participant
	local    guid.Prefix

	// onNew is delivered the PPD reference on StatusNew, matching the
	// PDP/EDP handoff in spec.md §4.2 ("on NEW, delivers the PPD
	// reference to the EDP queue").
	onNew []func(*proxydata.Participant)
	// onRemove is delivered the PPD and reason on teardown.
	onRemove []func(*proxydata.Participant, RemovalReason)
}

// New builds an empty Store. localPrefix identifies this process's own
// participant, whose lease is never considered expired.
func New(localPrefix guid.Prefix) *Store {
	return &Store{
		byPrefix: make(map[guid.Prefix]*proxydata.Participant),
		local:    localPrefix,
	}
}

// OnNew registers fn to be called whenever insert_or_update creates a
// new PPD entry.
func (s *Store) OnNew(fn func(*proxydata.Participant)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNew = append(s.onNew, fn)
}

// OnRemove registers fn to be called whenever a PPD is removed.
func (s *Store) OnRemove(fn func(*proxydata.Participant, RemovalReason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// InsertOrUpdate atomically installs ppd, replacing any existing entry
// for the same prefix. Callers must not retain ppd's pointer identity
// as "the" live record across calls — pass a fresh *proxydata.
// Participant each time; the Store is the registry of record.
func (s *Store) InsertOrUpdate(ppd *proxydata.Participant) Status {
	s.mu.Lock()
	existing, had := s.byPrefix[ppd.Prefix]
	s.byPrefix[ppd.Prefix] = ppd
	callbacks := append([]func(*proxydata.Participant){}, s.onNew...)
	s.mu.Unlock()

	if !had {
		for _, fn := range callbacks {
			fn(ppd)
		}
		return StatusNew
	}
	if existing == ppd {
		return StatusUnchanged
	}
	return StatusUpdated
}

// Lookup returns the PPD for prefix, and whether it was present.
func (s *Store) Lookup(prefix guid.Prefix) (*proxydata.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byPrefix[prefix]
	return p, ok
}

// Remove tears down the entry for prefix, calling any registered
// removal callbacks, and deletes it. Idempotent: removing an absent
// prefix is a no-op and returns false.
func (s *Store) Remove(prefix guid.Prefix, reason RemovalReason) bool {
	s.mu.Lock()
	p, ok := s.byPrefix[prefix]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byPrefix, prefix)
	callbacks := append([]func(*proxydata.Participant, RemovalReason){}, s.onRemove...)
	s.mu.Unlock()

	p.Dispose()
	for _, fn := range callbacks {
		fn(p, reason)
	}
	return true
}

// ForeachAlive takes a snapshot of all currently-alive participants
// and invokes fn for each, outside the store's lock.
func (s *Store) ForeachAlive(fn func(*proxydata.Participant)) {
	s.mu.Lock()
	snapshot := make([]*proxydata.Participant, 0, len(s.byPrefix))
	for _, p := range s.byPrefix {
		snapshot = append(snapshot, p)
	}
	s.mu.Unlock()

	for _, p := range snapshot {
		if p.IsAlive() {
			fn(p)
		}
	}
}

// LeaseTick advances the lease clock to now and returns the prefixes
// of every non-local participant whose lease has expired. Callers are
// expected to feed each into Remove(prefix, ReasonLease).
func (s *Store) LeaseTick(now time.Time) []guid.Prefix {
	s.mu.Lock()
	snapshot := make([]*proxydata.Participant, 0, len(s.byPrefix))
	for _, p := range s.byPrefix {
		snapshot = append(snapshot, p)
	}
	s.mu.Unlock()

	var expired []guid.Prefix
	for _, p := range snapshot {
		if p.Prefix == s.local {
			continue
		}
		if p.Expired(now) {
			expired = append(expired, p.Prefix)
		}
	}
	return expired
}

// Size returns the current number of entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPrefix)
}
