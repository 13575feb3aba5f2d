// Package pdp implements the Participant Discovery Protocol engine:
// the simple variant's Init→Announcing→Running→Draining→Terminated
// state machine, and (in server.go) the PDPServer variant's two-phase
// convergence, relayed discovery, and deferred history trimming
// (spec.md §4.3).
package pdp

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/logging"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/rtpsio"
	"github.com/go-rtps/discovery/timer"
	"go.uber.org/zap"
)

// State is a PDP participant's lifecycle state (spec.md §4.3).
type State int

const (
	StateInit State = iota
	StateAnnouncing
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAnnouncing:
		return "announcing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config configures a Simple PDP engine.
type Config struct {
	AnnouncePeriod time.Duration // resendDiscoveryParticipantDataPeriod
	BurstCount     int           // initial burst sample count
	BurstInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.AnnouncePeriod <= 0 {
		c.AnnouncePeriod = 3 * time.Second
	}
	if c.BurstCount <= 0 {
		c.BurstCount = 5
	}
	if c.BurstInterval <= 0 {
		c.BurstInterval = 250 * time.Millisecond
	}
	return c
}

// Simple is the simple-variant PDP engine for one local participant.
type Simple struct {
	mu sync.Mutex

	log    *zap.Logger
	driver timer.Driver
	cfg    Config

	local *proxydata.Participant
	store *pps.Store

	writer rtpsio.ReliableWriter
	reader rtpsio.ReliableReader

	state  State
	cancel timer.CancelFunc

	// marshal serializes a PPD into the wire payload
	// announceParticipantState pushes to the writer history; unmarshal
	// decodes one back into a fresh PPD. Both are wired by the caller
	// (node package) to the PL_CDR ParameterList codec, keeping this
	// engine free of a hard dependency on the wire encoding choice made
	// at composition time.
	marshal   func(*proxydata.Participant) []byte
	unmarshal func([]byte) (*proxydata.Participant, error)
}

// New builds a Simple PDP engine. local is this process's own PPD,
// already inserted into store.
func New(log *zap.Logger, driver timer.Driver, store *pps.Store, local *proxydata.Participant, writer rtpsio.ReliableWriter, reader rtpsio.ReliableReader, marshal func(*proxydata.Participant) []byte, unmarshal func([]byte) (*proxydata.Participant, error), cfg Config) *Simple {
	s := &Simple{
		log:       log,
		driver:    driver,
		cfg:       cfg.withDefaults(),
		local:     local,
		store:     store,
		writer:    writer,
		reader:    reader,
		marshal:   marshal,
		unmarshal: unmarshal,
	}
	reader.Subscribe(s.onSample)
	return s
}

// Start transitions Init→Announcing, sends the initial burst, then
// transitions to Running and schedules periodic announcement
// (spec.md §4.3).
func (s *Simple) Start() {
	s.mu.Lock()
	if s.state != StateInit {
		s.mu.Unlock()
		return
	}
	s.state = StateAnnouncing
	s.mu.Unlock()

	s.log.Info("pdp announcing", logging.GUID("participant", s.local.GUID().String()))

	s.announceParticipantState(true, false)
	for i := 1; i < s.cfg.BurstCount; i++ {
		time.Sleep(s.cfg.BurstInterval)
		s.announceParticipantState(false, false)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	s.scheduleNextAnnounce()
}

func (s *Simple) scheduleNextAnnounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.cancel = s.driver.Schedule(s.driver.Now().Add(s.cfg.AnnouncePeriod), func() {
		s.announceParticipantState(false, false)
		s.scheduleNextAnnounce()
	})
}

// Stop transitions Running→Draining→Terminated, emitting a final
// disposal announcement to all known peers (spec.md §4.3).
func (s *Simple) Stop() {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateDraining {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.announceParticipantState(false, true)

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
}

// State reports the current lifecycle state.
func (s *Simple) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// announceParticipantState implements the three modes spec.md §4.3
// names: fresh change, resend, and disposal.
func (s *Simple) announceParticipantState(newChange, dispose bool) {
	inst := s.local.InstanceHandle()

	if dispose {
		s.writer.Dispose(inst)
		return
	}

	if !newChange {
		// Re-send the most recent change: in the absence of a richer
		// resend-last-sample primitive, re-publish current PPD state
		// under a fresh sequence number. Readers key on instance, so
		// this is observationally a resend for KEEP_LAST(1) history.
	}

	payload := s.marshal(s.local)
	s.writer.Write(inst, payload)
}

// onSample ingests a remote DATA(p) (spec.md §4.3 "Running ...
// continuously ingests remote DATA(p)"). A strictly lower sequence
// number than the last one accepted from the same source is a stale
// replay and is dropped without renewing the lease (spec.md §4.3, §8).
func (s *Simple) onSample(sample rtpsio.Sample) {
	if sample.Disposed {
		s.removeByInstance(sample.Instance, pps.ReasonDisposed)
		return
	}
	ppd, err := s.unmarshal(sample.Payload)
	if err != nil {
		s.log.Warn("pdp: malformed DATA(p), dropping", zap.Error(err))
		return
	}

	if existing, had := s.store.Lookup(ppd.Prefix); had && sample.SeqNum < existing.LastAcceptedSeq() {
		return
	}

	ppd.SetLastAcceptedSeq(sample.SeqNum)
	ppd.RenewLease(time.Now())
	s.store.InsertOrUpdate(ppd)
}

func (s *Simple) removeByInstance(inst guid.InstanceHandle, reason pps.RemovalReason) {
	var found guid.Prefix
	var ok bool
	s.store.ForeachAlive(func(p *proxydata.Participant) {
		if p.InstanceHandle() == inst {
			found, ok = p.Prefix, true
		}
	})
	if ok {
		s.store.Remove(found, reason)
	}
}
