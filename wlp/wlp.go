// Package wlp implements the Writer Liveliness Protocol engine: the
// publisher-side bucketed assertion timers and the publisher/
// subscriber LivelinessManagers that turn ticks, explicit asserts,
// and incoming WLP samples into liveliness_lost/liveliness_changed
// callbacks (spec.md §4.5).
package wlp

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/timer"
)

// LocalWriter is a local writer with a liveliness lease, as WLP needs
// to track it.
type LocalWriter struct {
	GUID          guid.GUID
	Kind          qos.LivelinessKind
	LeaseDuration time.Duration
}

// LivelinessLostEvent is delivered when a local writer's lease elapses
// without renewal (spec.md §4.5: "transitions to NOT_ALIVE and a
// liveliness_lost callback fires with total_count incremented").
type LivelinessLostEvent struct {
	Writer     guid.GUID
	TotalCount uint32
}

// Publisher is the publisher-side WLP engine: three buckets of local
// writers (AUTOMATIC, MANUAL_BY_PARTICIPANT share a timer each keyed
// to the bucket's minimum lease; MANUAL_BY_TOPIC writers each carry
// their own timer), plus a LivelinessManager tracking per-writer
// absolute deadlines.
type Publisher struct {
	mu sync.Mutex

	driver timer.Driver

	buckets map[qos.LivelinessKind]map[guid.GUID]LocalWriter
	cancel  map[qos.LivelinessKind]timer.CancelFunc // automatic + manual_by_participant only
	topicCancel map[guid.GUID]timer.CancelFunc       // manual_by_topic, per-writer

	deadlines  map[guid.GUID]time.Time
	lost       map[guid.GUID]bool
	totalCount map[guid.GUID]uint32

	// assert publishes a liveliness assertion of kind on the WLP
	// writer, carrying the local participant's key; wired by the
	// caller to the built-in WLP writer.
	assert func(kind qos.LivelinessKind, writer guid.GUID)

	onLost []func(LivelinessLostEvent)
}

// NewPublisher builds a Publisher backed by driver, publishing
// assertions through assert.
func NewPublisher(driver timer.Driver, assert func(kind qos.LivelinessKind, writer guid.GUID)) *Publisher {
	return &Publisher{
		driver:      driver,
		buckets:     map[qos.LivelinessKind]map[guid.GUID]LocalWriter{},
		cancel:      map[qos.LivelinessKind]timer.CancelFunc{},
		topicCancel: map[guid.GUID]timer.CancelFunc{},
		deadlines:   map[guid.GUID]time.Time{},
		lost:        map[guid.GUID]bool{},
		totalCount:  map[guid.GUID]uint32{},
		assert:      assert,
	}
}

// OnLivelinessLost registers fn to be called when a writer's lease
// elapses without renewal.
func (p *Publisher) OnLivelinessLost(fn func(LivelinessLostEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLost = append(p.onLost, fn)
}

// AddLocalWriter registers w. If w shortens its bucket's minimum
// period, the bucket timer is canceled and restarted immediately
// (spec.md §4.5 "period update rule").
func (p *Publisher) AddLocalWriter(w LocalWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buckets[w.Kind] == nil {
		p.buckets[w.Kind] = map[guid.GUID]LocalWriter{}
	}
	p.buckets[w.Kind][w.GUID] = w
	p.deadlines[w.GUID] = p.driver.Now().Add(w.LeaseDuration)
	p.lost[w.GUID] = false

	if w.Kind == qos.LivelinessManualByTopic {
		p.rescheduleTopic(w)
		return
	}
	p.rescheduleBucket(w.Kind)
}

// RemoveLocalWriter unregisters w. If its bucket becomes empty, the
// bucket timer is canceled.
func (p *Publisher) RemoveLocalWriter(g guid.GUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for kind, bucket := range p.buckets {
		if _, ok := bucket[g]; !ok {
			continue
		}
		delete(bucket, g)
		delete(p.deadlines, g)
		delete(p.lost, g)
		delete(p.totalCount, g)

		if kind == qos.LivelinessManualByTopic {
			if c, ok := p.topicCancel[g]; ok {
				c()
				delete(p.topicCancel, g)
			}
			return
		}
		if len(bucket) == 0 {
			if c, ok := p.cancel[kind]; ok {
				c()
				delete(p.cancel, kind)
			}
			return
		}
		p.rescheduleBucket(kind)
		return
	}
}

// AssertManualByParticipant renews every writer in the
// MANUAL_BY_PARTICIPANT bucket, per an explicit application call
// (spec.md §4.5).
func (p *Publisher) AssertManualByParticipant(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renewBucket(qos.LivelinessManualByParticipant, now)
	if p.assert != nil {
		p.assert(qos.LivelinessManualByParticipant, guid.GUID{})
	}
}

// AssertManualByTopic renews a single MANUAL_BY_TOPIC writer's
// deadline and publishes its own assertion under its own identity.
func (p *Publisher) AssertManualByTopic(g guid.GUID, now time.Time) {
	p.mu.Lock()
	w, ok := p.buckets[qos.LivelinessManualByTopic][g]
	if ok {
		p.deadlines[g] = now.Add(w.LeaseDuration)
	}
	p.mu.Unlock()
	if ok && p.assert != nil {
		p.assert(qos.LivelinessManualByTopic, g)
	}
}

// rescheduleBucket cancels and restarts the shared timer for kind, set
// to the bucket's minimum lease across its members. Called with p.mu
// held.
func (p *Publisher) rescheduleBucket(kind qos.LivelinessKind) {
	bucket := p.buckets[kind]
	if c, ok := p.cancel[kind]; ok {
		c()
		delete(p.cancel, kind)
	}
	if len(bucket) == 0 {
		return
	}

	min := minLease(bucket)
	p.cancel[kind] = p.driver.Schedule(p.driver.Now().Add(min), func() {
		p.onBucketTick(kind)
	})
}

// rescheduleTopic cancels and restarts w's own timer. Called with
// p.mu held.
func (p *Publisher) rescheduleTopic(w LocalWriter) {
	if c, ok := p.topicCancel[w.GUID]; ok {
		c()
	}
	p.topicCancel[w.GUID] = p.driver.Schedule(p.driver.Now().Add(w.LeaseDuration), func() {
		p.onTopicTick(w.GUID)
	})
}

func minLease(bucket map[guid.GUID]LocalWriter) time.Duration {
	var min time.Duration
	first := true
	for _, w := range bucket {
		if first || w.LeaseDuration < min {
			min = w.LeaseDuration
			first = false
		}
	}
	return min
}

// onBucketTick fires on a bucket's shared timer. For AUTOMATIC, the
// tick itself is an implicit assertion and renews every writer's
// deadline. For MANUAL_BY_PARTICIPANT, the tick only re-sends the
// most recent assertion to fight packet loss; it does not renew —
// only AssertManualByParticipant does (spec.md §4.5).
func (p *Publisher) onBucketTick(kind qos.LivelinessKind) {
	p.mu.Lock()
	now := p.driver.Now()

	var lostEvents []LivelinessLostEvent
	if kind == qos.LivelinessAutomatic {
		p.renewBucket(kind, now)
	} else {
		lostEvents = p.sweepBucket(kind, now)
	}

	bucket := p.buckets[kind]
	hasWriters := len(bucket) > 0
	if hasWriters {
		p.rescheduleBucket(kind)
	}
	p.mu.Unlock()

	for _, ev := range lostEvents {
		p.fireLost(ev)
	}
	if hasWriters && p.assert != nil {
		p.assert(kind, guid.GUID{})
	}
}

func (p *Publisher) onTopicTick(g guid.GUID) {
	p.mu.Lock()
	_, ok := p.buckets[qos.LivelinessManualByTopic][g]
	if !ok {
		p.mu.Unlock()
		return
	}
	now := p.driver.Now()
	lostEvents := p.sweepOne(g, now)
	p.rescheduleTopic(p.buckets[qos.LivelinessManualByTopic][g])
	p.mu.Unlock()

	for _, ev := range lostEvents {
		p.fireLost(ev)
	}
}

// renewBucket pushes every writer's deadline in kind's bucket forward
// from now. Called with p.mu held.
func (p *Publisher) renewBucket(kind qos.LivelinessKind, now time.Time) {
	for g, w := range p.buckets[kind] {
		p.deadlines[g] = now.Add(w.LeaseDuration)
		p.lost[g] = false
	}
}

// sweepBucket checks every writer in kind's bucket for an elapsed
// deadline without renewing any of them, returning the loss events
// to fire. Called with p.mu held.
func (p *Publisher) sweepBucket(kind qos.LivelinessKind, now time.Time) []LivelinessLostEvent {
	var out []LivelinessLostEvent
	for g := range p.buckets[kind] {
		if ev, lost := p.checkOne(g, now); lost {
			out = append(out, ev)
		}
	}
	return out
}

func (p *Publisher) sweepOne(g guid.GUID, now time.Time) []LivelinessLostEvent {
	if ev, lost := p.checkOne(g, now); lost {
		return []LivelinessLostEvent{ev}
	}
	return nil
}

// checkOne reports whether g's deadline has elapsed as of now,
// recording the loss exactly once. Called with p.mu held.
func (p *Publisher) checkOne(g guid.GUID, now time.Time) (LivelinessLostEvent, bool) {
	deadline, ok := p.deadlines[g]
	if !ok || now.Before(deadline) || p.lost[g] {
		return LivelinessLostEvent{}, false
	}
	p.lost[g] = true
	p.totalCount[g]++
	return LivelinessLostEvent{Writer: g, TotalCount: p.totalCount[g]}, true
}

func (p *Publisher) fireLost(ev LivelinessLostEvent) {
	p.mu.Lock()
	subs := append([]func(LivelinessLostEvent){}, p.onLost...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
