// Package rtpsio defines the narrow boundary discovery and liveliness
// engines need onto reliable built-in writers and readers, without
// owning the full RTPS reliable-writer/reader state machine used for
// user data (out of scope, spec.md §1). PDP, EDP and WLP only need to
// add a sample to a writer's history and receive samples a reader has
// collected; everything else (acknack bookkeeping, retransmission,
// transport framing) belongs to a user-data-capable implementation
// this package's interfaces can be satisfied by.
package rtpsio

import (
	"sync"

	"github.com/go-rtps/discovery/guid"
)

// Sample is one cached DATA payload plus the metadata a writer or
// reader history needs to key and order it.
type Sample struct {
	SeqNum   int64
	Instance guid.InstanceHandle
	Payload  []byte
	Disposed bool
}

// HistoryCache is the append/trim boundary onto a built-in endpoint's
// sample history, mirroring the teacher's Pub.dataSubmsgs buffering
// (rtps/pub.go) generalized behind an interface.
type HistoryCache interface {
	Add(s Sample)
	RemoveInstance(h guid.InstanceHandle)
	Samples() []Sample
}

// ReliableWriter is what PDP/EDP/WLP need to publish a built-in
// announcement: add a sample to history for delivery to matched
// readers. Delivery, acknack handling, and retransmission are the
// responsibility of the concrete implementation wired in at the
// transport boundary.
type ReliableWriter interface {
	GUID() guid.GUID
	Write(instance guid.InstanceHandle, payload []byte) (seq int64, err error)
	Dispose(instance guid.InstanceHandle) (seq int64, err error)
	History() HistoryCache
}

// ReliableReader is what PDP/EDP/WLP need to receive samples a
// matched writer announced.
type ReliableReader interface {
	GUID() guid.GUID
	History() HistoryCache
	// Subscribe registers fn to be called for every sample the reader
	// collects, in arrival order. Returns an unsubscribe function.
	Subscribe(fn func(Sample)) (unsubscribe func())
}

// memHistory is an in-memory HistoryCache keyed by instance handle,
// keeping the single most recent sample per instance (the access
// pattern every built-in discovery topic uses — KEEP_LAST depth 1 per
// instance).
type memHistory struct {
	mu      sync.RWMutex
	byInst  map[guid.InstanceHandle]Sample
	order   []guid.InstanceHandle
}

func newMemHistory() *memHistory {
	return &memHistory{byInst: make(map[guid.InstanceHandle]Sample)}
}

func (h *memHistory) Add(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.byInst[s.Instance]; !exists {
		h.order = append(h.order, s.Instance)
	}
	h.byInst[s.Instance] = s
}

func (h *memHistory) RemoveInstance(inst guid.InstanceHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byInst, inst)
	for i, k := range h.order {
		if k == inst {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *memHistory) Samples() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.byInst[k])
	}
	return out
}

// memWriter is an in-memory ReliableWriter reference implementation:
// it fans every written sample out to subscribed readers directly,
// with no wire transport. Suitable for in-process composition (tests,
// the node package's default wiring) and as the shape a real
// transport-backed writer must match.
type memWriter struct {
	g       guid.GUID
	mu      sync.Mutex
	nextSeq int64
	hist    *memHistory
	subs    []func(Sample)
}

// NewMemWriter builds an in-memory ReliableWriter with its own history,
// for use as a built-in endpoint's transport. Readers are attached with
// NewMemReader, each keeping a mirrored history of its own.
func NewMemWriter(g guid.GUID) *memWriter {
	return &memWriter{g: g, nextSeq: 1, hist: newMemHistory()}
}

func (w *memWriter) GUID() guid.GUID      { return w.g }
func (w *memWriter) History() HistoryCache { return w.hist }

func (w *memWriter) Write(instance guid.InstanceHandle, payload []byte) (int64, error) {
	w.mu.Lock()
	seq := w.nextSeq
	w.nextSeq++
	subs := append([]func(Sample){}, w.subs...)
	w.mu.Unlock()

	s := Sample{SeqNum: seq, Instance: instance, Payload: payload}
	w.hist.Add(s)
	for _, fn := range subs {
		if fn == nil {
			continue // unsubscribed
		}
		fn(s)
	}
	return seq, nil
}

func (w *memWriter) Dispose(instance guid.InstanceHandle) (int64, error) {
	w.mu.Lock()
	seq := w.nextSeq
	w.nextSeq++
	subs := append([]func(Sample){}, w.subs...)
	w.mu.Unlock()

	s := Sample{SeqNum: seq, Instance: instance, Disposed: true}
	w.hist.RemoveInstance(instance)
	for _, fn := range subs {
		if fn == nil {
			continue // unsubscribed
		}
		fn(s)
	}
	return seq, nil
}

// Subscribe lets a co-located in-memory reader observe this writer's
// samples directly, bypassing transport.
func (w *memWriter) Subscribe(fn func(Sample)) func() {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	idx := len(w.subs) - 1
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if idx < len(w.subs) {
			w.subs[idx] = nil
		}
	}
}

// memReader is an in-memory ReliableReader that mirrors a memWriter's
// history via Subscribe.
type memReader struct {
	g    guid.GUID
	hist *memHistory
	w    *memWriter
}

// NewMemReader builds a reader that mirrors w's history, modeling a
// co-located built-in reader matched to a built-in writer.
func NewMemReader(g guid.GUID, w *memWriter) *memReader {
	r := &memReader{g: g, hist: newMemHistory(), w: w}
	w.Subscribe(func(s Sample) {
		if s.Disposed {
			r.hist.RemoveInstance(s.Instance)
			return
		}
		r.hist.Add(s)
	})
	return r
}

func (r *memReader) GUID() guid.GUID      { return r.g }
func (r *memReader) History() HistoryCache { return r.hist }

func (r *memReader) Subscribe(fn func(Sample)) func() {
	return r.w.Subscribe(fn)
}
