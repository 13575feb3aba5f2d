// Package proxydata implements the discovery data model: the
// ParticipantProxyData (PPD) held for every known participant, and
// the WriterProxyData / ReaderProxyData records it owns for each
// remote endpoint (spec.md §3).
package proxydata

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/locator"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/wire"
)

// Participant is the PPD: everything known about a local or remote
// participant.
type Participant struct {
	mu sync.RWMutex

	Prefix           guid.Prefix
	VendorID         guid.VendorID
	ProtoVersion     wire.ProtocolVersion
	ExpectsInlineQoS bool

	AvailableEndpoints wire.BuiltinEndpointSet

	MetatrafficUnicast   locator.List
	MetatrafficMulticast locator.List
	DefaultUnicast       locator.List
	DefaultMulticast     locator.List

	LeaseDuration time.Duration

	Alive          bool
	LastRenewedAt  time.Time

	lastAcceptedSeq int64

	// IdentityToken and PermissionsToken are opaque; they matter only
	// when a security plugin boundary is active (spec.md §3).
	IdentityToken    []byte
	PermissionsToken []byte

	writers map[guid.EntityID]*Writer
	readers map[guid.EntityID]*Reader
}

// New builds a Participant PPD keyed by prefix.
func New(prefix guid.Prefix) *Participant {
	return &Participant{
		Prefix:  prefix,
		Alive:   true,
		writers: make(map[guid.EntityID]*Writer),
		readers: make(map[guid.EntityID]*Reader),
	}
}

// GUID returns the reserved participant GUID (prefix + the fixed
// participant entity id).
func (p *Participant) GUID() guid.GUID {
	return guid.GUID{Prefix: p.Prefix, EID: guid.EntityIDParticipant}
}

// InstanceHandle is the key every built-in CacheChange for this
// participant's announcements carries (spec.md §3).
func (p *Participant) InstanceHandle() guid.InstanceHandle {
	return guid.InstanceHandleOf(p.GUID())
}

// RenewLease marks the participant alive at now.
func (p *Participant) RenewLease(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Alive = true
	p.LastRenewedAt = now
}

// Expired reports whether the lease has elapsed without renewal,
// as of now. The local participant's own PPD must never be passed
// through a lease check by callers (spec.md §3 invariant).
func (p *Participant) Expired(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.Alive || p.LeaseDuration <= 0 {
		return !p.Alive
	}
	return now.After(p.LastRenewedAt.Add(p.LeaseDuration))
}

// LastAcceptedSeq returns the highest DATA(p) sequence number from
// this participant that has been accepted into the store (spec.md
// §4.3: stale replays are rejected by sequence comparison).
func (p *Participant) LastAcceptedSeq() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastAcceptedSeq
}

// SetLastAcceptedSeq records seq as the most recently accepted
// sequence number for this participant's own announcements.
func (p *Participant) SetLastAcceptedSeq(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAcceptedSeq = seq
}

// Dispose marks the participant no longer alive.
func (p *Participant) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Alive = false
}

// IsAlive reports the current alive flag.
func (p *Participant) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Alive
}

// UpsertWriter installs or replaces a WriterProxyData atomically
// (spec.md §3: "updates replace whole records atomically").
func (p *Participant) UpsertWriter(w *Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writers[w.GUID.EID] = w
}

// UpsertReader installs or replaces a ReaderProxyData atomically.
func (p *Participant) UpsertReader(r *Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readers[r.GUID.EID] = r
}

// RemoveWriter removes a WriterProxyData by entity id, returning
// whether it was present.
func (p *Participant) RemoveWriter(eid guid.EntityID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.writers[eid]; !ok {
		return false
	}
	delete(p.writers, eid)
	return true
}

// RemoveReader removes a ReaderProxyData by entity id.
func (p *Participant) RemoveReader(eid guid.EntityID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.readers[eid]; !ok {
		return false
	}
	delete(p.readers, eid)
	return true
}

// Writers returns a snapshot of all owned WriterProxyData.
func (p *Participant) Writers() []*Writer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Writer, 0, len(p.writers))
	for _, w := range p.writers {
		out = append(out, w)
	}
	return out
}

// Readers returns a snapshot of all owned ReaderProxyData.
func (p *Participant) Readers() []*Reader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Reader, 0, len(p.readers))
	for _, r := range p.readers {
		out = append(out, r)
	}
	return out
}

// endpointCommon is the field set shared by WriterProxyData and
// ReaderProxyData (spec.md §3).
type endpointCommon struct {
	GUID           guid.GUID
	Topic          string
	Type           string
	UnicastLocs    locator.List
	MulticastLocs  locator.List
	QoS            qos.Profile
	PersistenceGUID guid.GUID
	KeyHash        guid.InstanceHandle
}

// Writer is a WriterProxyData: what's known about a remote writer.
// Updates replace the whole record, matching the teacher's
// replace-whole-record update model (spec.md §3); a later record's
// Topic is not checked against the earlier one.
type Writer struct {
	endpointCommon
}

// Reader is a ReaderProxyData: what's known about a remote reader.
type Reader struct {
	endpointCommon
}
