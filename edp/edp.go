// Package edp implements the Endpoint Discovery Protocol matching
// engine: ingesting remote WriterProxyData/ReaderProxyData into the
// owning participant's PPD, and running QoS compatibility matching
// against local endpoints on the same topic (spec.md §4.4).
package edp

import (
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/qos"
)

// pendingBound is how long a remote endpoint descriptor is held
// waiting for its owning PPD to arrive before being dropped
// (spec.md §4.4: "queue the sample until PDP catches up, bounded by
// the participant lease"). A fixed bound is used here rather than the
// per-participant lease duration because the lease is exactly the
// thing not yet known at queue time; once the PPD arrives with its
// lease, LocalEndpoint matching proceeds immediately regardless of
// how long the entry waited.
const pendingBound = 30 * time.Second

// LocalEndpoint is a local writer or reader EDP matches remote
// descriptors against.
type LocalEndpoint struct {
	GUID     guid.GUID
	Topic    string
	Type     string
	QoS      qos.Profile
	IsWriter bool
}

// MatchEvent is delivered to OnMatch/OnUnmatch subscribers.
type MatchEvent struct {
	Local  guid.GUID
	Remote guid.GUID
	Topic  string
}

type pairKey struct {
	local  guid.GUID
	remote guid.GUID
}

type pendingEntry struct {
	prefix    guid.Prefix
	queuedAt  time.Time
	writer    *proxydata.Writer
	reader    *proxydata.Reader
}

// Engine is the EDP matching engine for one local participant.
type Engine struct {
	store *pps.Store

	localWriters map[guid.GUID]*LocalEndpoint
	localReaders map[guid.GUID]*LocalEndpoint

	matched map[pairKey]bool

	pending []pendingEntry

	onMatch   []func(MatchEvent)
	onUnmatch []func(MatchEvent)
}

// New builds an Engine backed by store for resolving owning PPDs.
func New(store *pps.Store) *Engine {
	return &Engine{
		store:        store,
		localWriters: make(map[guid.GUID]*LocalEndpoint),
		localReaders: make(map[guid.GUID]*LocalEndpoint),
		matched:      make(map[pairKey]bool),
	}
}

// OnMatch registers fn to be called whenever a local/remote endpoint
// pair is newly matched.
func (e *Engine) OnMatch(fn func(MatchEvent)) { e.onMatch = append(e.onMatch, fn) }

// OnUnmatch registers fn to be called whenever a matched pair is torn
// down.
func (e *Engine) OnUnmatch(fn func(MatchEvent)) { e.onUnmatch = append(e.onUnmatch, fn) }

// RegisterLocalWriter announces a local writer and matches it against
// every already-known compatible remote reader.
func (e *Engine) RegisterLocalWriter(ep LocalEndpoint) {
	ep.IsWriter = true
	e.localWriters[ep.GUID] = &ep
	e.store.ForeachAlive(func(p *proxydata.Participant) {
		for _, r := range p.Readers() {
			e.tryMatch(&ep, r.Topic, r.Type, r.QoS, r.GUID, false)
		}
	})
}

// RegisterLocalReader announces a local reader and matches it against
// every already-known compatible remote writer.
func (e *Engine) RegisterLocalReader(ep LocalEndpoint) {
	ep.IsWriter = false
	e.localReaders[ep.GUID] = &ep
	e.store.ForeachAlive(func(p *proxydata.Participant) {
		for _, w := range p.Writers() {
			e.tryMatch(&ep, w.Topic, w.Type, w.QoS, w.GUID, true)
		}
	})
}

// UnregisterLocalWriter removes a local writer and unmatches every
// remote reader paired with it.
func (e *Engine) UnregisterLocalWriter(g guid.GUID) {
	delete(e.localWriters, g)
	e.unmatchAllFor(g)
}

// UnregisterLocalReader removes a local reader and unmatches every
// remote writer paired with it.
func (e *Engine) UnregisterLocalReader(g guid.GUID) {
	delete(e.localReaders, g)
	e.unmatchAllFor(g)
}

func (e *Engine) unmatchAllFor(local guid.GUID) {
	for k := range e.matched {
		if k.local == local {
			delete(e.matched, k)
			e.fire(e.onUnmatch, MatchEvent{Local: k.local, Remote: k.remote})
		}
	}
}

// UnregisterRemoteParticipant tears down every match whose remote side
// belongs to prefix, and drops any of its descriptors still queued in
// pending — called when PDP removes the owning PPD, so a disposed or
// lease-expired participant's endpoints never leave stale matches
// behind (spec.md §4.4 step 4, symmetric with a local QoS-driven
// unmatch).
func (e *Engine) UnregisterRemoteParticipant(prefix guid.Prefix) {
	for k := range e.matched {
		if k.remote.Prefix != prefix {
			continue
		}
		topic := ""
		if local, ok := e.localWriters[k.local]; ok {
			topic = local.Topic
		} else if local, ok := e.localReaders[k.local]; ok {
			topic = local.Topic
		}
		delete(e.matched, k)
		e.fire(e.onUnmatch, MatchEvent{Local: k.local, Remote: k.remote, Topic: topic})
	}

	var remaining []pendingEntry
	for _, pe := range e.pending {
		if pe.prefix != prefix {
			remaining = append(remaining, pe)
		}
	}
	e.pending = remaining
}

// IngestRemoteWriter processes a DATA(w): resolves the owning PPD,
// upserts the WriterProxyData, and matches it against local readers.
// If the owning PPD is not yet known, the descriptor is queued
// (spec.md §4.4 step 1).
func (e *Engine) IngestRemoteWriter(prefix guid.Prefix, w *proxydata.Writer, now time.Time) {
	p, ok := e.store.Lookup(prefix)
	if !ok {
		e.pending = append(e.pending, pendingEntry{prefix: prefix, queuedAt: now, writer: w})
		return
	}
	p.UpsertWriter(w)
	for _, ep := range e.localReaders {
		e.tryMatch(ep, w.Topic, w.Type, w.QoS, w.GUID, true)
	}
}

// IngestRemoteReader processes a DATA(r), symmetric to
// IngestRemoteWriter.
func (e *Engine) IngestRemoteReader(prefix guid.Prefix, r *proxydata.Reader, now time.Time) {
	p, ok := e.store.Lookup(prefix)
	if !ok {
		e.pending = append(e.pending, pendingEntry{prefix: prefix, queuedAt: now, reader: r})
		return
	}
	p.UpsertReader(r)
	for _, ep := range e.localWriters {
		e.tryMatch(ep, r.Topic, r.Type, r.QoS, r.GUID, false)
	}
}

// DrainPending retries every queued descriptor whose owning PPD has
// since become known, and drops any that exceeded pendingBound.
func (e *Engine) DrainPending(now time.Time) {
	var remaining []pendingEntry
	for _, pe := range e.pending {
		if _, ok := e.store.Lookup(pe.prefix); ok {
			if pe.writer != nil {
				e.IngestRemoteWriter(pe.prefix, pe.writer, now)
			} else {
				e.IngestRemoteReader(pe.prefix, pe.reader, now)
			}
			continue
		}
		if now.Sub(pe.queuedAt) < pendingBound {
			remaining = append(remaining, pe)
		}
		// else: owning PPD never showed up within the bound; drop.
	}
	e.pending = remaining
}

// tryMatch runs the compatibility lattice (spec.md §4.4) between a
// local endpoint and one remote counterpart, installing, skipping, or
// tearing down the match. A pair that was matched and whose QoS has
// since turned incompatible (a remote descriptor update) is unmatched
// symmetrically rather than left stale (spec.md §4.4 step 4).
func (e *Engine) tryMatch(local *LocalEndpoint, remoteTopic, remoteType string, remoteQoS qos.Profile, remoteGUID guid.GUID, remoteIsWriter bool) {
	if local.Topic != remoteTopic || local.Type != remoteType {
		return
	}
	if local.IsWriter == remoteIsWriter {
		return // writer only matches readers and vice versa
	}

	k := pairKey{local: local.GUID, remote: remoteGUID}

	var bad []qos.Incompatibility
	if local.IsWriter {
		bad = qos.Compatible(remoteQoS, local.QoS) // remote reader requests, local writer offers
	} else {
		bad = qos.Compatible(local.QoS, remoteQoS) // local reader requests, remote writer offers
	}
	if len(bad) > 0 {
		if e.matched[k] {
			delete(e.matched, k)
			e.fire(e.onUnmatch, MatchEvent{Local: k.local, Remote: k.remote, Topic: local.Topic})
		}
		return
	}

	if e.matched[k] {
		return
	}
	e.matched[k] = true
	e.fire(e.onMatch, MatchEvent{Local: local.GUID, Remote: remoteGUID, Topic: local.Topic})
}

func (e *Engine) fire(subs []func(MatchEvent), ev MatchEvent) {
	for _, fn := range subs {
		fn(ev)
	}
}

// MatchedCount reports the number of currently matched endpoint
// pairs, for metrics.
func (e *Engine) MatchedCount() int { return len(e.matched) }
