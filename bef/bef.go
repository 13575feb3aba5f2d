// Package bef is the Built-in Endpoint Factory: it constructs the
// canonical (writer, writerHistory, reader, readerHistory) quadruple
// for each built-in discovery/liveliness topic, under a fixed QoS
// contract, and tears everything down atomically if any piece fails
// to allocate (spec.md §4.1).
package bef

import (
	"fmt"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/rtpsio"
)

// Topic identifies which built-in discovery/liveliness endpoint a
// quadruple belongs to.
type Topic int

const (
	TopicPDP Topic = iota
	TopicEDPPublications
	TopicEDPSubscriptions
	TopicWLP
)

func (t Topic) String() string {
	switch t {
	case TopicPDP:
		return "pdp"
	case TopicEDPPublications:
		return "edp.publications"
	case TopicEDPSubscriptions:
		return "edp.subscriptions"
	case TopicWLP:
		return "wlp"
	default:
		return "unknown"
	}
}

// History reservation sizes (spec.md §4.1: "modest initial reservation
// (≈20 writer / ≈100 reader caches), cap in the thousands").
const (
	InitialWriterCaches = 20
	InitialReaderCaches = 100
	MaxWriterCaches      = 1000
	MaxReaderCaches       = 2000
)

// FixedQoS is the non-negotiable QoS contract of the built-in
// endpoints (spec.md §4.1: RELIABLE, TRANSIENT_LOCAL, WITH_KEY). Build
// does not apply it: the in-memory endpoints it creates carry no QoS
// value of their own.
var FixedQoS = qos.Profile{
	Reliability: qos.Reliability{Kind: qos.ReliabilityReliable},
	Durability:  qos.Durability{Kind: qos.DurabilityTransientLocal},
	History:     qos.History{Kind: qos.HistoryKeepLast, Depth: 1},
}

// ThroughputController gates whether a writer is created in
// asynchronous mode (spec.md §4.1: "if the containing participant has
// a throughput controller configured with a finite byte budget and
// non-zero period").
type ThroughputController struct {
	BytesPerPeriod int
	Period         int64 // nanoseconds; 0 means unconfigured
}

// Async reports whether c mandates asynchronous writer delivery.
func (c ThroughputController) Async() bool {
	return c.BytesPerPeriod > 0 && c.Period > 0
}

// Quadruple is one built-in endpoint's complete writer/reader pair
// plus their histories.
type Quadruple struct {
	Topic  Topic
	Secure bool

	Writer rtpsio.ReliableWriter
	Reader rtpsio.ReliableReader
	Async  bool
}

// entityIDs maps a Topic to its reserved writer/reader entity ids,
// non-secure and secure variants (RTPS §9.3.1 / Secure DDS §7.4).
func entityIDs(t Topic, secure bool) (w, r guid.EntityID, err error) {
	switch {
	case t == TopicPDP && !secure:
		return guid.EntityIDSPDPPartWriter, guid.EntityIDSPDPPartReader, nil
	case t == TopicPDP && secure:
		return guid.EntityIDSPDPPartWriterSecure, guid.EntityIDSPDPPartReaderSecure, nil
	case t == TopicEDPPublications && !secure:
		return guid.EntityIDSEDPPubWriter, guid.EntityIDSEDPPubReader, nil
	case t == TopicEDPPublications && secure:
		return guid.EntityIDSEDPPubWriterSecure, guid.EntityIDSEDPPubReaderSecure, nil
	case t == TopicEDPSubscriptions && !secure:
		return guid.EntityIDSEDPSubWriter, guid.EntityIDSEDPSubReader, nil
	case t == TopicEDPSubscriptions && secure:
		return guid.EntityIDSEDPSubWriterSecure, guid.EntityIDSEDPSubReaderSecure, nil
	case t == TopicWLP && !secure:
		return guid.EntityIDWriterLiveliness, guid.EntityIDReaderLiveliness, nil
	case t == TopicWLP && secure:
		return guid.EntityIDWriterLivelinessSecure, guid.EntityIDReaderLivelinessSecure, nil
	default:
		return 0, 0, fmt.Errorf("bef: no reserved entity ids for %s (secure=%v)", t, secure)
	}
}

// Factory constructs built-in endpoint quadruples for one local
// participant prefix.
type Factory struct {
	prefix   guid.Prefix
	security bool
	tc       ThroughputController
}

// New builds a Factory for the given participant prefix. security
// enables the parallel secure quadruple per topic (spec.md §4.1).
func New(prefix guid.Prefix, tc ThroughputController, security bool) *Factory {
	return &Factory{prefix: prefix, security: security, tc: tc}
}

// Build constructs every quadruple this participant needs: one
// non-secure quadruple per topic, plus a parallel secure quadruple
// when security is enabled. Construction is all-or-nothing: on any
// error, everything already built is discarded and the error is
// returned (spec.md §4.1 "creation is all-or-nothing").
func (f *Factory) Build() ([]Quadruple, error) {
	topics := []Topic{TopicPDP, TopicEDPPublications, TopicEDPSubscriptions, TopicWLP}

	var out []Quadruple
	for _, t := range topics {
		q, err := f.buildOne(t, false)
		if err != nil {
			return nil, err
		}
		out = append(out, q)

		if f.security {
			qs, err := f.buildOne(t, true)
			if err != nil {
				return nil, err
			}
			out = append(out, qs)
		}
	}
	return out, nil
}

func (f *Factory) buildOne(t Topic, secure bool) (Quadruple, error) {
	wEID, rEID, err := entityIDs(t, secure)
	if err != nil {
		return Quadruple{}, err
	}

	wGUID := guid.GUID{Prefix: f.prefix, EID: wEID}
	rGUID := guid.GUID{Prefix: f.prefix, EID: rEID}

	writer := rtpsio.NewMemWriter(wGUID)
	reader := rtpsio.NewMemReader(rGUID, writer)

	return Quadruple{
		Topic:  t,
		Secure: secure,
		Writer: writer,
		Reader: reader,
		Async:  f.tc.Async(),
	}, nil
}
