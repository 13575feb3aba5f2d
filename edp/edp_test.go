package edp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/qos"
)

func newPrefix(t *testing.T) guid.Prefix {
	t.Helper()
	p, err := guid.NewPrefix()
	require.NoError(t, err)
	return p
}

func TestMatchOnTopicAndType(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)

	var matched []MatchEvent
	e.OnMatch(func(ev MatchEvent) { matched = append(matched, ev) })

	localReader := LocalEndpoint{GUID: guid.GUID{EID: guid.EntityIDSEDPSubReader}, Topic: "Square", Type: "ShapeType"}
	e.RegisterLocalReader(localReader)

	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{EID: guid.EntityIDSEDPPubWriter}, "Square", "ShapeType", qos.Profile{}), time.Now())

	require.Len(t, matched, 1)
	assert.Equal(t, localReader.GUID, matched[0].Local)
}

func TestNoMatchOnDifferentTopic(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)
	var matched []MatchEvent
	e.OnMatch(func(ev MatchEvent) { matched = append(matched, ev) })

	e.RegisterLocalReader(LocalEndpoint{GUID: guid.GUID{EID: 1}, Topic: "Square", Type: "ShapeType"})
	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{EID: 2}, "Circle", "ShapeType", qos.Profile{}), time.Now())

	assert.Empty(t, matched)
}

func TestNoMatchOnIncompatibleReliability(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)
	var matched []MatchEvent
	e.OnMatch(func(ev MatchEvent) { matched = append(matched, ev) })

	req := qos.Profile{Reliability: qos.Reliability{Kind: qos.ReliabilityReliable}}
	off := qos.Profile{Reliability: qos.Reliability{Kind: qos.ReliabilityBestEffort}}

	e.RegisterLocalReader(LocalEndpoint{GUID: guid.GUID{EID: 1}, Topic: "Square", Type: "ShapeType", QoS: req})
	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{EID: 2}, "Square", "ShapeType", off), time.Now())

	assert.Empty(t, matched)
}

func TestPendingDescriptorQueuedUntilPPDKnown(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)

	e := New(store)
	var matched []MatchEvent
	e.OnMatch(func(ev MatchEvent) { matched = append(matched, ev) })

	e.RegisterLocalReader(LocalEndpoint{GUID: guid.GUID{EID: 1}, Topic: "Square", Type: "ShapeType"})
	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{EID: 2}, "Square", "ShapeType", qos.Profile{}), time.Now())
	assert.Empty(t, matched, "PPD not yet known, match must not happen")

	store.InsertOrUpdate(proxydata.New(remotePrefix))
	e.DrainPending(time.Now())

	assert.Len(t, matched, 1)
}

func TestPendingDescriptorDroppedAfterBound(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)

	e := New(store)
	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{EID: 2}, "Square", "ShapeType", qos.Profile{}), time.Now().Add(-time.Hour))

	e.DrainPending(time.Now())
	assert.Empty(t, e.pending)
}

func TestUnregisterLocalWriterUnmatches(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)
	var unmatched []MatchEvent
	e.OnUnmatch(func(ev MatchEvent) { unmatched = append(unmatched, ev) })

	writerGUID := guid.GUID{EID: guid.EntityIDSEDPPubWriter}
	e.RegisterLocalWriter(LocalEndpoint{GUID: writerGUID, Topic: "Square", Type: "ShapeType"})
	e.IngestRemoteReader(remotePrefix, makeReader(guid.GUID{EID: guid.EntityIDSEDPSubReader}, "Square", "ShapeType", qos.Profile{}), time.Now())

	e.UnregisterLocalWriter(writerGUID)
	require.Len(t, unmatched, 1)
	assert.Equal(t, writerGUID, unmatched[0].Local)
}

func TestIncompatibleQoSUpdateUnmatchesSymmetrically(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)
	var matched, unmatched []MatchEvent
	e.OnMatch(func(ev MatchEvent) { matched = append(matched, ev) })
	e.OnUnmatch(func(ev MatchEvent) { unmatched = append(unmatched, ev) })

	req := qos.Profile{Reliability: qos.Reliability{Kind: qos.ReliabilityReliable}}
	writerGUID := guid.GUID{EID: guid.EntityIDSEDPPubWriter}
	e.RegisterLocalReader(LocalEndpoint{GUID: guid.GUID{EID: guid.EntityIDSEDPSubReader}, Topic: "Square", Type: "ShapeType", QoS: req})

	reliableOffer := qos.Profile{Reliability: qos.Reliability{Kind: qos.ReliabilityReliable}}
	e.IngestRemoteWriter(remotePrefix, makeWriter(writerGUID, "Square", "ShapeType", reliableOffer), time.Now())
	require.Len(t, matched, 1, "compatible offer must match")

	bestEffortOffer := qos.Profile{Reliability: qos.Reliability{Kind: qos.ReliabilityBestEffort}}
	e.IngestRemoteWriter(remotePrefix, makeWriter(writerGUID, "Square", "ShapeType", bestEffortOffer), time.Now())

	require.Len(t, unmatched, 1, "a QoS update that turns incompatible must unmatch the existing pair")
	assert.Equal(t, writerGUID, unmatched[0].Remote)
}

func TestUnregisterRemoteParticipantUnmatchesAndDropsPending(t *testing.T) {
	store := pps.New(newPrefix(t))
	remotePrefix := newPrefix(t)
	store.InsertOrUpdate(proxydata.New(remotePrefix))

	e := New(store)
	var unmatched []MatchEvent
	e.OnUnmatch(func(ev MatchEvent) { unmatched = append(unmatched, ev) })

	e.RegisterLocalReader(LocalEndpoint{GUID: guid.GUID{EID: guid.EntityIDSEDPSubReader}, Topic: "Square", Type: "ShapeType"})
	e.IngestRemoteWriter(remotePrefix, makeWriter(guid.GUID{Prefix: remotePrefix, EID: guid.EntityIDSEDPPubWriter}, "Square", "ShapeType", qos.Profile{}), time.Now())
	require.Equal(t, 1, e.MatchedCount())

	otherPrefix := newPrefix(t)
	e.IngestRemoteWriter(otherPrefix, makeWriter(guid.GUID{EID: 99}, "Square", "ShapeType", qos.Profile{}), time.Now())
	require.Len(t, e.pending, 1, "PPD for otherPrefix was never inserted, so it must still be pending")

	e.UnregisterRemoteParticipant(remotePrefix)
	assert.Equal(t, 0, e.MatchedCount())
	require.Len(t, unmatched, 1)

	e.UnregisterRemoteParticipant(otherPrefix)
	assert.Empty(t, e.pending)
}

func makeWriter(g guid.GUID, topic, typ string, q qos.Profile) *proxydata.Writer {
	w := &proxydata.Writer{}
	w.GUID, w.Topic, w.Type, w.QoS = g, topic, typ, q
	return w
}

func makeReader(g guid.GUID, topic, typ string, q qos.Profile) *proxydata.Reader {
	r := &proxydata.Reader{}
	r.GUID, r.Topic, r.Type, r.QoS = g, topic, typ, q
	return r
}
