package pdp

import (
	"sync"
	"time"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/timer"
	"go.uber.org/zap"
)

// ServerConfig configures a Server PDP engine, extending Config with
// the sync interval. The server peer set and the persistence store are
// passed to NewServer instead.
type ServerConfig struct {
	Config
	SyncPeriod     time.Duration // DServerEvent interval
	PersistenceDir string        // not read by this package; persistence is the *Persistence given to NewServer
}

func (c ServerConfig) withDefaults() ServerConfig {
	c.Config = c.Config.withDefaults()
	if c.SyncPeriod <= 0 {
		c.SyncPeriod = 450 * time.Millisecond
	}
	return c
}

// pendingMatch is an entry on the _p2match list: a client participant
// whose EDP endpoints still need matching once this server's PDP view
// has converged with every other known server (spec.md §4.3 Phase 2).
type pendingMatch struct {
	prefix   guid.Prefix
	queuedAt time.Time
}

// Server is the PDPServer variant: a Simple engine plus two-phase
// server convergence, relayed discovery, deferred history trimming,
// and optional persistence (spec.md §4.3 "Server variant").
type Server struct {
	*Simple

	mu sync.Mutex

	log        *zap.Logger
	serverPeers map[guid.Prefix]bool // other designated servers
	acked       map[guid.Prefix]bool // server peers that have ack'd our current DATA(p)

	converged bool // phase-1 complete: every server peer has ack'd

	p2match []pendingMatch
	demises map[guid.InstanceHandle]bool

	// clientAcks tracks, per writer-history instance handle, which
	// client prefixes have acknowledged it — the completeness check
	// trimWriterHistory needs before it may drop a demised entry.
	clientAcks map[guid.InstanceHandle]map[guid.Prefix]bool
	knownClients map[guid.Prefix]bool

	persist *Persistence

	onEDPReady []func(guid.Prefix)

	syncCancel timer.CancelFunc
}

// NewServer builds a Server engine wrapping an already-constructed
// Simple engine. serverPeers are the GUID prefixes of other designated
// servers this one must converge with before releasing EDP gating.
func NewServer(simple *Simple, log *zap.Logger, serverPeers []guid.Prefix, persist *Persistence) *Server {
	srv := &Server{
		Simple:       simple,
		log:          log,
		serverPeers:  setOf(serverPeers),
		acked:        map[guid.Prefix]bool{},
		demises:      map[guid.InstanceHandle]bool{},
		clientAcks:   map[guid.InstanceHandle]map[guid.Prefix]bool{},
		knownClients: map[guid.Prefix]bool{},
		persist:      persist,
	}
	if len(serverPeers) == 0 {
		srv.converged = true // no peers to converge with
	}
	return srv
}

func setOf(prefixes []guid.Prefix) map[guid.Prefix]bool {
	out := make(map[guid.Prefix]bool, len(prefixes))
	for _, p := range prefixes {
		out[p] = true
	}
	return out
}

// OnEDPReady registers fn to be called with a client's prefix once
// phase-2 gating clears for it — the EDP engine's cue to register the
// client's endpoints against the rest of the fleet.
func (srv *Server) OnEDPReady(fn func(guid.Prefix)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onEDPReady = append(srv.onEDPReady, fn)
}

// StartSync begins the periodic DServerEvent-equivalent sync pass:
// phase-1 convergence resend, phase-2 gate release, and history trim
// (spec.md §4.3).
func (srv *Server) StartSync(cfg ServerConfig) {
	cfg = cfg.withDefaults()
	if srv.persist != nil {
		srv.recover()
	}
	srv.scheduleSync(cfg.SyncPeriod)
}

func (srv *Server) scheduleSync(period time.Duration) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.syncCancel = srv.driver.Schedule(srv.driver.Now().Add(period), func() {
		srv.runSyncPass()
		srv.scheduleSync(period)
	})
}

// Wake forces an immediate sync pass, bypassing the period — the
// awakeServerThread equivalent used when a server peer's ack arrives
// and convergence might now be complete.
// The periodic schedule started by StartSync keeps running.
func (srv *Server) Wake() {
	srv.runSyncPass()
}

func (srv *Server) runSyncPass() {
	srv.resendUntilServersAck()
	srv.releaseGatedClients()
	srv.trimWriterHistory()
}

// resendUntilServersAck implements Phase 1: while any known server
// peer has not acknowledged our current DATA(p), keep resending it.
func (srv *Server) resendUntilServersAck() {
	srv.mu.Lock()
	pending := !srv.allServersAcknowledged()
	srv.mu.Unlock()
	if pending {
		srv.announceParticipantState(false, false)
	}
}

// AckFromServer records that server peer prefix has acknowledged our
// current PDP state. A single call counts the peer as acknowledged:
// the reliable-writer acknack and the echo of our participant in the
// peer's own DATA(p) set are not tracked separately.
func (srv *Server) AckFromServer(prefix guid.Prefix) {
	srv.mu.Lock()
	if !srv.serverPeers[prefix] {
		srv.mu.Unlock()
		return
	}
	srv.acked[prefix] = true
	nowConverged := srv.allServersAcknowledged()
	becameConverged := nowConverged && !srv.converged
	srv.converged = nowConverged
	srv.mu.Unlock()

	if becameConverged {
		srv.log.Info("pdp server converged with peer set")
		srv.Wake()
	}
}

func (srv *Server) allServersAcknowledged() bool {
	for p := range srv.serverPeers {
		if !srv.acked[p] {
			return false
		}
	}
	return true
}

// releaseGatedClients implements Phase 2: once converged, every
// pending client on _p2match is released to EDP matching.
func (srv *Server) releaseGatedClients() {
	srv.mu.Lock()
	if !srv.converged || len(srv.p2match) == 0 {
		srv.mu.Unlock()
		return
	}
	ready := srv.p2match
	srv.p2match = nil
	subs := append([]func(guid.Prefix){}, srv.onEDPReady...)
	srv.mu.Unlock()

	for _, pm := range ready {
		for _, fn := range subs {
			fn(pm.prefix)
		}
	}
}

// IngestClientData handles a client participant's DATA(p) arriving on
// this server's PDP reader: it relays the change into the server's
// own writer history, records the client for trim tracking, and
// either releases it immediately to EDP (if already converged) or
// queues it on _p2match.
func (srv *Server) IngestClientData(prefix guid.Prefix, ppd *proxydata.Participant, payload []byte) {
	srv.store.InsertOrUpdate(ppd)
	srv.addRelayedChangeToHistory(ppd, payload)

	srv.mu.Lock()
	// A fresh change replaces any earlier one for this handle, so a
	// demise flag or acks left from before no longer apply to it.
	delete(srv.demises, ppd.InstanceHandle())
	delete(srv.clientAcks, ppd.InstanceHandle())
	srv.knownClients[prefix] = true
	ready := srv.converged
	if !ready {
		srv.p2match = append(srv.p2match, pendingMatch{prefix: prefix, queuedAt: time.Now()})
	}
	subs := append([]func(guid.Prefix){}, srv.onEDPReady...)
	srv.mu.Unlock()

	if ready {
		for _, fn := range subs {
			fn(prefix)
		}
	}
}

// addRelayedChangeToHistory republishes a client's DATA(p) into this
// server's own PDP writer history, so other clients attached to this
// server learn of the newcomer (spec.md §4.3 "Relayed discovery").
func (srv *Server) addRelayedChangeToHistory(ppd *proxydata.Participant, payload []byte) {
	inst := ppd.InstanceHandle()
	srv.writer.Write(inst, payload)
	if srv.persist != nil {
		if err := srv.persist.Put(inst, payload); err != nil {
			srv.log.Warn("pdp server: persist relayed change failed", zap.Error(err))
		}
	}
}

// AckFromClient records that a client prefix has acknowledged
// reception of the writer-history entry for inst, completing one
// member of the acknowledgment set trimWriterHistory checks.
func (srv *Server) AckFromClient(inst guid.InstanceHandle, client guid.Prefix) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	set, ok := srv.clientAcks[inst]
	if !ok {
		set = map[guid.Prefix]bool{}
		srv.clientAcks[inst] = set
	}
	set[client] = true
}

// MarkDemised flags inst for removal from the writer history once its
// acknowledgment set is complete (spec.md §4.3 "_demises").
func (srv *Server) MarkDemised(inst guid.InstanceHandle) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.demises[inst] = true
}

// trimWriterHistory iterates the server's writer history and removes
// every change whose instance handle is on the demise list and whose
// acknowledgment set covers every currently matched client
// (spec.md §4.3, invariant "trim liveness" in spec.md §5).
func (srv *Server) trimWriterHistory() {
	samples := srv.writer.History().Samples()

	srv.mu.Lock()
	var toTrim []guid.InstanceHandle
	for _, s := range samples {
		if !srv.demises[s.Instance] {
			continue
		}
		if srv.ackSetCompleteLocked(s.Instance) {
			toTrim = append(toTrim, s.Instance)
		}
	}
	srv.mu.Unlock()

	for _, inst := range toTrim {
		srv.writer.History().RemoveInstance(inst)
		srv.mu.Lock()
		delete(srv.demises, inst)
		delete(srv.clientAcks, inst)
		srv.mu.Unlock()
		if srv.persist != nil {
			if err := srv.persist.Delete(inst); err != nil {
				srv.log.Warn("pdp server: persist trim failed", zap.Error(err))
			}
		}
	}
}

// ackSetCompleteLocked reports whether every currently known client
// has acknowledged inst. Called with srv.mu held.
func (srv *Server) ackSetCompleteLocked(inst guid.InstanceHandle) bool {
	set := srv.clientAcks[inst]
	for client := range srv.knownClients {
		if !set[client] {
			return false
		}
	}
	return true
}

// recover reloads the server's writer history from disk into both the
// writer itself and the Participant Proxy Store's idea of who was
// known last run, so it can resume relaying without waiting for every
// client to re-announce (spec.md §4.3 "Persistence").
func (srv *Server) recover() {
	entries, err := srv.persist.LoadAll()
	if err != nil {
		srv.log.Warn("pdp server: persistence recovery failed", zap.Error(err))
		return
	}
	for inst, payload := range entries {
		srv.writer.Write(inst, payload)
	}
	srv.log.Info("pdp server: recovered writer history", zap.Int("entries", len(entries)))
}

// ClientRemoved drops bookkeeping for a client that left the fleet
// (lease expiry or explicit disposal), so its prefix no longer blocks
// ack-set completeness for other demised entries.
func (srv *Server) ClientRemoved(prefix guid.Prefix) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.knownClients, prefix)
	for _, set := range srv.clientAcks {
		delete(set, prefix)
	}
}

// StopSync cancels the periodic sync pass; used during participant
// shutdown ahead of Simple.Stop.
func (srv *Server) StopSync() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.syncCancel != nil {
		srv.syncCancel()
	}
}
