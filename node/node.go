// Package node composes the Built-in Endpoint Factory, Participant
// Proxy Store, PDP engine, EDP matching engine, and WLP publisher/
// subscriber into one running discovery participant, and manages
// their lifecycle the way the teacher's own node package manages a
// provider's registered services.
package node

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/go-rtps/discovery/bef"
	"github.com/go-rtps/discovery/config"
	"github.com/go-rtps/discovery/edp"
	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/locator"
	"github.com/go-rtps/discovery/metrics"
	"github.com/go-rtps/discovery/pdp"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/rtpsio"
	"github.com/go-rtps/discovery/rtpstime"
	"github.com/go-rtps/discovery/timer"
	"github.com/go-rtps/discovery/wire"
	"github.com/go-rtps/discovery/wlp"
)

// Service is anything node's lifecycle starts and stops in
// registration order, named for logging.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Node is one running discovery participant: its identity, its
// Participant Proxy Store, and every registered Service driving it.
type Node struct {
	cfg *config.Config
	log *zap.Logger
	ctx context.Context
	cancel context.CancelFunc
	reg prometheus.Registerer

	services []Service

	Local      *proxydata.Participant
	Store      *pps.Store
	EDP        *edp.Engine
	WLPPub     *wlp.Publisher
	WLPSub     *wlp.Subscriber
	Metrics    *metrics.Collectors
	Quadruples []bef.Quadruple

	driver timer.Driver
}

// New builds a Node from cfg: it allocates a local participant
// identity, builds the built-in endpoint quadruples, and wires PDP,
// EDP, and WLP against them, choosing the PDP variant cfg.PDP.Kind
// names (spec.md §4.3).
func New(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	prefix, err := guid.NewPrefix()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: generate participant identity: %w", err)
	}
	local := proxydata.New(prefix)
	local.LeaseDuration = cfg.Participant.LeaseDuration

	store := pps.New(prefix)
	store.InsertOrUpdate(local)

	factory := bef.New(prefix, bef.ThroughputController{}, false)
	quadruples, err := factory.Build()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: build built-in endpoints: %w", err)
	}

	driver := timer.NewWheel()

	n := &Node{
		cfg:        cfg,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		reg:        reg,
		Local:      local,
		Store:      store,
		EDP:        edp.New(store),
		Metrics:    metrics.New(reg),
		Quadruples: quadruples,
		driver:     driver,
	}

	if err := n.wire(); err != nil {
		cancel()
		return nil, err
	}
	return n, nil
}

// localBuiltinEndpoints derives m_availableBuiltinEndpoints from the
// quadruples this node actually built, so a discovering peer's bitmask
// check (spec.md §3, §6) reflects what this participant really
// exposes rather than a hardcoded constant.
func localBuiltinEndpoints(quadruples []bef.Quadruple) wire.BuiltinEndpointSet {
	var set wire.BuiltinEndpointSet
	for _, q := range quadruples {
		if q.Secure {
			continue
		}
		switch q.Topic {
		case bef.TopicPDP:
			set |= wire.EndpointParticipantAnnouncer | wire.EndpointParticipantDetector
		case bef.TopicEDPPublications:
			set |= wire.EndpointPublicationAnnouncer | wire.EndpointPublicationDetector
		case bef.TopicEDPSubscriptions:
			set |= wire.EndpointSubscriptionAnnouncer | wire.EndpointSubscriptionDetector
		case bef.TopicWLP:
			set |= wire.EndpointParticipantMsgWriter | wire.EndpointParticipantMsgReader
		}
	}
	return set
}

func (n *Node) quadruple(t bef.Topic) (bef.Quadruple, bool) {
	for _, q := range n.Quadruples {
		if q.Topic == t && !q.Secure {
			return q, true
		}
	}
	return bef.Quadruple{}, false
}

func (n *Node) wire() error {
	pdpQ, ok := n.quadruple(bef.TopicPDP)
	if !ok {
		return fmt.Errorf("node: missing pdp quadruple")
	}
	wlpQ, ok := n.quadruple(bef.TopicWLP)
	if !ok {
		return fmt.Errorf("node: missing wlp quadruple")
	}

	n.Local.AvailableEndpoints = localBuiltinEndpoints(n.Quadruples)

	if err := n.wirePDP(pdpQ); err != nil {
		return err
	}
	n.wireWLP(wlpQ)
	n.wireEDP()

	n.RegisterService(&leaseService{
		store:         n.Store,
		driver:        n.driver,
		leaseDuration: n.cfg.Participant.LeaseDuration,
		metrics:       n.Metrics,
		log:           n.log,
	})

	if n.cfg.Metrics.ListenAddr != "" {
		n.RegisterService(newMetricsService(n.cfg.Metrics.ListenAddr, n.metricsHandler(), n.log))
	}
	return nil
}

// metricsHandler serves from the registry New was given when it
// supports gathering directly, falling back to the process-wide
// default gatherer otherwise.
func (n *Node) metricsHandler() http.Handler {
	if g, ok := n.reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// wirePDP builds the local PDP engine (simple or server, per
// cfg.PDP.Kind) against the PDP built-in quadruple and registers it as
// a Service.
func (n *Node) wirePDP(pdpQ bef.Quadruple) error {
	pdpCfg := pdp.Config{AnnouncePeriod: n.cfg.PDP.AnnouncePeriod}
	simple := pdp.New(n.log, n.driver, n.Store, n.Local, pdpQ.Writer, pdpQ.Reader, marshalParticipant, unmarshalParticipant, pdpCfg)

	if n.cfg.PDP.Kind == config.PDPSimple {
		n.RegisterService(&simpleService{simple: simple})
		return nil
	}

	peers := make([]guid.Prefix, 0, len(n.cfg.PDP.ServerPeers))
	for _, s := range n.cfg.PDP.ServerPeers {
		p, err := guid.ParsePrefix(s)
		if err != nil {
			return fmt.Errorf("node: parse pdp.server_peers entry %q: %w", s, err)
		}
		peers = append(peers, p)
	}

	var persist *pdp.Persistence
	if n.cfg.PDP.PersistenceDir != "" {
		var err error
		persist, err = pdp.OpenPersistence(n.cfg.PDP.PersistenceDir, n.Local.Prefix)
		if err != nil {
			return fmt.Errorf("node: open pdp persistence: %w", err)
		}
	}

	server := pdp.NewServer(simple, n.log, peers, persist)
	server.OnEDPReady(func(prefix guid.Prefix) {
		n.log.Info("pdp: client released to edp", zap.String("prefix", prefix.String()))
	})
	n.RegisterService(&serverService{server: server, cfg: pdp.ServerConfig{Config: pdpCfg}})
	return nil
}

// wireWLP builds the publisher/subscriber pair against the WLP
// built-in quadruple: the publisher's assert callback writes onto
// wlpQ.Writer, and wlpQ.Reader's incoming samples feed the subscriber.
func (n *Node) wireWLP(wlpQ bef.Quadruple) {
	n.WLPPub = wlp.NewPublisher(n.driver, wlpAssertFunc(wlpQ.Writer))
	n.WLPSub = wlp.NewSubscriber(n.driver)

	wlpQ.Reader.Subscribe(func(s rtpsio.Sample) {
		a, ok := decodeAssertion(s)
		if !ok {
			return
		}
		n.WLPSub.OnAssertion(a, n.driver.Now())
	})

	n.WLPPub.OnLivelinessLost(func(ev wlp.LivelinessLostEvent) {
		n.Metrics.LivelinessLost.Inc()
		n.log.Warn("liveliness lost", zap.String("writer", ev.Writer.String()))
	})
	n.WLPSub.OnLivelinessChanged(func(ev wlp.LivelinessChangedEvent) {
		if ev.AliveCountChange > 0 {
			n.Metrics.LivelinessRecovered.Inc()
		}
	})
}

// wireEDP subscribes the EDP publications/subscriptions built-in
// readers to feed WriterProxyData/ReaderProxyData into the matching
// engine, and drives the PDP/EDP handoff off the Participant Proxy
// Store: a newly discovered participant drains anything EDP had
// queued waiting for its PPD and gets a synthesized WLP peer if its
// bitmask advertises the participant message entities; a removed
// participant is symmetrically unmatched from both (spec.md §4.4,
// §4.5 "Matching with the PDP/EDP layer").
func (n *Node) wireEDP() {
	if edpPub, ok := n.quadruple(bef.TopicEDPPublications); ok {
		edpPub.Reader.Subscribe(func(s rtpsio.Sample) {
			if s.Disposed {
				return
			}
			w, err := unmarshalWriter(s.Payload)
			if err != nil {
				n.log.Warn("edp: malformed DATA(w), dropping", zap.Error(err))
				return
			}
			n.EDP.IngestRemoteWriter(w.GUID.Prefix, w, n.driver.Now())
		})
	}
	if edpSub, ok := n.quadruple(bef.TopicEDPSubscriptions); ok {
		edpSub.Reader.Subscribe(func(s rtpsio.Sample) {
			if s.Disposed {
				return
			}
			r, err := unmarshalReader(s.Payload)
			if err != nil {
				n.log.Warn("edp: malformed DATA(r), dropping", zap.Error(err))
				return
			}
			n.EDP.IngestRemoteReader(r.GUID.Prefix, r, n.driver.Now())
		})
	}

	n.Store.OnNew(func(p *proxydata.Participant) {
		n.EDP.DrainPending(n.driver.Now())
		n.addWLPPeer(p)
	})
	n.Store.OnRemove(func(p *proxydata.Participant, reason pps.RemovalReason) {
		n.EDP.UnregisterRemoteParticipant(p.Prefix)
		n.removeWLPPeer(p)
	})

	n.EDP.OnMatch(func(ev edp.MatchEvent) {
		n.Metrics.MatchedEndpoints.Set(float64(n.EDP.MatchedCount()))
		n.log.Info("endpoint matched", zap.String("local", ev.Local.String()), zap.String("remote", ev.Remote.String()))
	})
	n.EDP.OnUnmatch(func(ev edp.MatchEvent) {
		n.Metrics.MatchedEndpoints.Set(float64(n.EDP.MatchedCount()))
		n.log.Info("endpoint unmatched", zap.String("local", ev.Local.String()), zap.String("remote", ev.Remote.String()))
	})
}

// addWLPPeer synthesizes a matched WLP peer for a remote participant
// whose bitmask advertises the participant message writer/reader
// entities WLP multiplexes liveliness onto, using the fixed entity ids
// (c_EntityId_WriterLiveliness/c_EntityId_ReaderLiveliness in the OMG
// naming) rather than anything negotiated per-writer (spec.md §4.5).
func (n *Node) addWLPPeer(p *proxydata.Participant) {
	if !p.AvailableEndpoints.Has(wire.EndpointParticipantMsgWriter) {
		return
	}
	n.WLPSub.AddInterest(wlp.LocalReaderInterest{
		Reader: guid.GUID{Prefix: n.Local.Prefix, EID: guid.EntityIDReaderLiveliness},
		Writer: guid.GUID{Prefix: p.Prefix, EID: guid.EntityIDWriterLiveliness},
		Kind:   qos.LivelinessAutomatic,
	})
}

func (n *Node) removeWLPPeer(p *proxydata.Participant) {
	n.WLPSub.RemoveInterest(
		guid.GUID{Prefix: n.Local.Prefix, EID: guid.EntityIDReaderLiveliness},
		guid.GUID{Prefix: p.Prefix, EID: guid.EntityIDWriterLiveliness},
	)
}

// AnnounceLocalWriter registers w with the EDP matching engine and
// publishes its descriptor on the built-in publications topic, so
// every already-discovered and future peer can match against it.
func (n *Node) AnnounceLocalWriter(w *proxydata.Writer) error {
	n.EDP.RegisterLocalWriter(edp.LocalEndpoint{GUID: w.GUID, Topic: w.Topic, Type: w.Type, QoS: w.QoS, IsWriter: true})
	edpPub, ok := n.quadruple(bef.TopicEDPPublications)
	if !ok {
		return fmt.Errorf("node: missing edp publications quadruple")
	}
	_, err := edpPub.Writer.Write(guid.InstanceHandleOf(w.GUID), marshalWriter(w))
	return err
}

// AnnounceLocalReader is AnnounceLocalWriter's symmetric counterpart
// for a local reader, published on the subscriptions topic.
func (n *Node) AnnounceLocalReader(r *proxydata.Reader) error {
	n.EDP.RegisterLocalReader(edp.LocalEndpoint{GUID: r.GUID, Topic: r.Topic, Type: r.Type, QoS: r.QoS, IsWriter: false})
	edpSub, ok := n.quadruple(bef.TopicEDPSubscriptions)
	if !ok {
		return fmt.Errorf("node: missing edp subscriptions quadruple")
	}
	_, err := edpSub.Writer.Write(guid.InstanceHandleOf(r.GUID), marshalReader(r))
	return err
}

// wlpAssertFunc adapts wlp.Publisher's assert callback onto a
// built-in writer: it encodes the asserting kind and writer identity
// and writes it under the writer's own instance handle, matching the
// teacher's single-sample-per-writer liveliness announcement shape.
// AUTOMATIC and MANUAL_BY_PARTICIPANT ticks pass the zero GUID (the
// assertion covers every writer in the bucket, not one); those are
// published under the built-in WLP writer's own identity so a remote
// subscriber's bitmask-synthesized peer (addWLPPeer) has a stable,
// per-participant key to track instead of colliding with every other
// participant's bucket-wide assertions on the same zero value.
func wlpAssertFunc(writer rtpsio.ReliableWriter) func(kind qos.LivelinessKind, w guid.GUID) {
	return func(kind qos.LivelinessKind, w guid.GUID) {
		if w == (guid.GUID{}) {
			w = writer.GUID()
		}
		writer.Write(guid.InstanceHandleOf(w), encodeAssertion(kind, w))
	}
}

// encodeAssertion and decodeAssertion are the WLP wire hooks, kept
// symmetric and minimal (kind byte + 16-byte writer GUID) since the
// full PL_CDR parameter list is a transport-layer concern this
// package's in-memory rtpsio reference implementation doesn't need.
func encodeAssertion(kind qos.LivelinessKind, w guid.GUID) []byte {
	b := w.Bytes()
	return append([]byte{byte(kind)}, b[:]...)
}

func decodeAssertion(s rtpsio.Sample) (wlp.RemoteAssertion, bool) {
	if s.Disposed {
		g, err := guid.FromBytes(s.Instance[:])
		if err != nil {
			return wlp.RemoteAssertion{}, false
		}
		return wlp.RemoteAssertion{Writer: g, NotAlive: true}, true
	}
	if len(s.Payload) < 1+guid.Len {
		return wlp.RemoteAssertion{}, false
	}
	kind := qos.LivelinessKind(s.Payload[0])
	g, err := guid.FromBytes(s.Payload[1:])
	if err != nil {
		return wlp.RemoteAssertion{}, false
	}
	return wlp.RemoteAssertion{Writer: g, Kind: kind}, true
}

// RegisterService adds s to the node's managed lifecycle, started in
// registration order and stopped in reverse.
func (n *Node) RegisterService(s Service) {
	n.services = append(n.services, s)
}

// Start starts every registered service in order and begins listening
// for SIGINT/SIGTERM.
func (n *Node) Start() error {
	n.log.Info("starting discovery node", zap.Int("domain_id", n.cfg.Participant.DomainID), zap.String("participant", n.Local.Prefix.String()))

	for _, s := range n.services {
		if err := s.Start(n.ctx); err != nil {
			return fmt.Errorf("node: start service %s: %w", s.Name(), err)
		}
		n.log.Info("started service", zap.String("name", s.Name()))
	}

	go n.handleInterrupt()
	return nil
}

func (n *Node) handleInterrupt() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	n.log.Info("shutting down discovery node")
	n.Stop()
}

// Stop stops every registered service in reverse registration order.
func (n *Node) Stop() {
	for i := len(n.services) - 1; i >= 0; i-- {
		s := n.services[i]
		n.log.Info("stopping service", zap.String("name", s.Name()))
		if err := s.Stop(); err != nil {
			n.log.Warn("error stopping service", zap.String("name", s.Name()), zap.Error(err))
		}
	}
	n.driver.Stop()
	n.cancel()
	n.log.Info("discovery node shutdown complete")
}

// Context returns the node's lifetime context, canceled on Stop.
func (n *Node) Context() context.Context {
	return n.ctx
}

// marshalParticipant and unmarshalParticipant are the PDP DATA(p) wire
// hooks: a PL_CDR little-endian ParameterList carrying the fields EDP
// and WLP matching actually consult — the builtin endpoint bitmask,
// the four locator lists, and the lease duration — plus the
// participant GUID so the reader side never needs anything but the
// payload to reconstruct a usable PPD (spec.md §3, §6).
func marshalParticipant(p *proxydata.Participant) []byte {
	var buf bytes.Buffer
	wire.EncapsulationScheme{Scheme: wire.SchemePLCDRLE}.WriteTo(&buf)

	g := p.GUID().Bytes()
	wire.Param{ID: wire.PIDParticipantGUID, Value: g[:]}.WriteTo(&buf)

	var eps [4]byte
	binary.LittleEndian.PutUint32(eps[:], uint32(p.AvailableEndpoints))
	wire.Param{ID: wire.PIDBuiltinEndpointSet, Value: eps[:]}.WriteTo(&buf)

	wire.Param{ID: wire.PIDParticipantLeaseDuration, Value: rtpstime.DurationBytes(p.LeaseDuration, binary.LittleEndian)}.WriteTo(&buf)

	writeLocatorList(&buf, wire.PIDMetatrafficUnicastLoc, p.MetatrafficUnicast)
	writeLocatorList(&buf, wire.PIDMetatrafficMulticastLoc, p.MetatrafficMulticast)
	writeLocatorList(&buf, wire.PIDDefaultUnicastLocator, p.DefaultUnicast)
	writeLocatorList(&buf, wire.PIDDefaultMulticastLocator, p.DefaultMulticast)

	wire.WriteSentinel(&buf)
	return buf.Bytes()
}

func writeLocatorList(w io.Writer, id wire.ParamID, list locator.List) {
	for _, l := range list {
		wire.Param{ID: id, Value: l.Bytes(binary.LittleEndian)}.WriteTo(w)
	}
}

// unmarshalParticipant decodes a DATA(p) payload written by
// marshalParticipant back into a fresh PPD, keyed by the GUID prefix
// carried in PID_PARTICIPANT_GUID.
func unmarshalParticipant(payload []byte) (*proxydata.Participant, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("node: DATA(p) payload too short for encapsulation header")
	}
	if _, err := wire.EncapsulationFromBytes(binary.LittleEndian, payload); err != nil {
		return nil, fmt.Errorf("node: DATA(p) encapsulation: %w", err)
	}
	params, _, err := wire.ParamList(binary.LittleEndian, payload[4:])
	if err != nil {
		return nil, fmt.Errorf("node: DATA(p) parameter list: %w", err)
	}

	var out *proxydata.Participant
	for _, p := range params {
		if p.ID != wire.PIDParticipantGUID {
			continue
		}
		g, err := guid.FromBytes(p.Value)
		if err != nil {
			return nil, fmt.Errorf("node: decode participant guid: %w", err)
		}
		out = proxydata.New(g.Prefix)
		break
	}
	if out == nil {
		return nil, fmt.Errorf("node: DATA(p) missing participant guid")
	}

	for _, p := range params {
		switch p.ID {
		case wire.PIDBuiltinEndpointSet:
			if len(p.Value) < 4 {
				return nil, fmt.Errorf("node: short builtin endpoint set")
			}
			out.AvailableEndpoints = wire.BuiltinEndpointSet(binary.LittleEndian.Uint32(p.Value))
		case wire.PIDParticipantLeaseDuration:
			d, err := rtpstime.DurationFromBytes(binary.LittleEndian, p.Value)
			if err != nil {
				return nil, fmt.Errorf("node: decode lease duration: %w", err)
			}
			out.LeaseDuration = d
		case wire.PIDMetatrafficUnicastLoc, wire.PIDMetatrafficMulticastLoc, wire.PIDDefaultUnicastLocator, wire.PIDDefaultMulticastLocator:
			loc, err := locator.FromBytes(binary.LittleEndian, p.Value)
			if err != nil {
				return nil, fmt.Errorf("node: decode locator: %w", err)
			}
			appendLocator(out, p.ID, loc)
		}
	}
	return out, nil
}

func appendLocator(p *proxydata.Participant, id wire.ParamID, l locator.Locator) {
	switch id {
	case wire.PIDMetatrafficUnicastLoc:
		p.MetatrafficUnicast = append(p.MetatrafficUnicast, l)
	case wire.PIDMetatrafficMulticastLoc:
		p.MetatrafficMulticast = append(p.MetatrafficMulticast, l)
	case wire.PIDDefaultUnicastLocator:
		p.DefaultUnicast = append(p.DefaultUnicast, l)
	case wire.PIDDefaultMulticastLocator:
		p.DefaultMulticast = append(p.DefaultMulticast, l)
	}
}

// marshalWriter and marshalReader are the EDP DATA(w)/DATA(r) wire
// hooks, sharing endpointParams' PL_CDR encoding of the GUID, topic,
// type, QoS, and locators EDP's compatibility lattice and routing
// actually consult (spec.md §3, §4.4).
func marshalWriter(w *proxydata.Writer) []byte {
	return endpointParams(w.GUID, w.Topic, w.Type, w.QoS, w.UnicastLocs, w.MulticastLocs)
}

func marshalReader(r *proxydata.Reader) []byte {
	return endpointParams(r.GUID, r.Topic, r.Type, r.QoS, r.UnicastLocs, r.MulticastLocs)
}

func endpointParams(g guid.GUID, topic, typ string, q qos.Profile, unicast, multicast locator.List) []byte {
	var buf bytes.Buffer
	wire.EncapsulationScheme{Scheme: wire.SchemePLCDRLE}.WriteTo(&buf)

	gb := g.Bytes()
	wire.Param{ID: wire.PIDEndpointGUID, Value: gb[:]}.WriteTo(&buf)
	wire.Param{ID: wire.PIDTopicName, Value: wire.PackString(binary.LittleEndian, topic)}.WriteTo(&buf)
	wire.Param{ID: wire.PIDTypeName, Value: wire.PackString(binary.LittleEndian, typ)}.WriteTo(&buf)

	var reliab [12]byte
	binary.LittleEndian.PutUint32(reliab[0:], uint32(q.Reliability.Kind))
	binary.LittleEndian.PutUint64(reliab[4:], uint64(q.Reliability.MaxBlockingTime))
	wire.Param{ID: wire.PIDReliability, Value: reliab[:]}.WriteTo(&buf)

	var durab [4]byte
	binary.LittleEndian.PutUint32(durab[:], uint32(q.Durability.Kind))
	wire.Param{ID: wire.PIDDurability, Value: durab[:]}.WriteTo(&buf)

	live := make([]byte, 4)
	binary.LittleEndian.PutUint32(live, uint32(q.Liveliness.Kind))
	live = append(live, rtpstime.DurationBytes(q.Liveliness.LeaseDuration, binary.LittleEndian)...)
	wire.Param{ID: wire.PIDLiveliness, Value: live}.WriteTo(&buf)

	wire.Param{ID: wire.PIDDeadline, Value: rtpstime.DurationBytes(q.Deadline.Period, binary.LittleEndian)}.WriteTo(&buf)

	var owner [4]byte
	binary.LittleEndian.PutUint32(owner[:], uint32(q.Ownership.Kind))
	wire.Param{ID: wire.PIDOwnership, Value: owner[:]}.WriteTo(&buf)

	var hist [8]byte
	binary.LittleEndian.PutUint32(hist[0:], uint32(q.History.Kind))
	binary.LittleEndian.PutUint32(hist[4:], uint32(q.History.Depth))
	wire.Param{ID: wire.PIDHistory, Value: hist[:]}.WriteTo(&buf)

	for _, name := range q.Partition.Names {
		wire.Param{ID: wire.PIDPartition, Value: wire.PackString(binary.LittleEndian, name)}.WriteTo(&buf)
	}

	writeLocatorList(&buf, wire.PIDDefaultUnicastLocator, unicast)
	writeLocatorList(&buf, wire.PIDDefaultMulticastLocator, multicast)

	wire.WriteSentinel(&buf)
	return buf.Bytes()
}

func unmarshalWriter(payload []byte) (*proxydata.Writer, error) {
	g, topic, typ, q, unicast, multicast, err := decodeEndpointParams(payload)
	if err != nil {
		return nil, err
	}
	w := &proxydata.Writer{}
	w.GUID, w.Topic, w.Type, w.QoS, w.UnicastLocs, w.MulticastLocs = g, topic, typ, q, unicast, multicast
	return w, nil
}

func unmarshalReader(payload []byte) (*proxydata.Reader, error) {
	g, topic, typ, q, unicast, multicast, err := decodeEndpointParams(payload)
	if err != nil {
		return nil, err
	}
	r := &proxydata.Reader{}
	r.GUID, r.Topic, r.Type, r.QoS, r.UnicastLocs, r.MulticastLocs = g, topic, typ, q, unicast, multicast
	return r, nil
}

func decodeEndpointParams(payload []byte) (g guid.GUID, topic, typ string, q qos.Profile, unicast, multicast locator.List, err error) {
	if len(payload) < 4 {
		err = fmt.Errorf("node: endpoint payload too short for encapsulation header")
		return
	}
	if _, err = wire.EncapsulationFromBytes(binary.LittleEndian, payload); err != nil {
		err = fmt.Errorf("node: endpoint encapsulation: %w", err)
		return
	}
	var params []wire.Param
	if params, _, err = wire.ParamList(binary.LittleEndian, payload[4:]); err != nil {
		err = fmt.Errorf("node: endpoint parameter list: %w", err)
		return
	}

	var haveGUID bool
	for _, p := range params {
		switch p.ID {
		case wire.PIDEndpointGUID:
			if g, err = guid.FromBytes(p.Value); err != nil {
				err = fmt.Errorf("node: decode endpoint guid: %w", err)
				return
			}
			haveGUID = true
		case wire.PIDTopicName:
			if topic, err = p.ParamString(binary.LittleEndian); err != nil {
				err = fmt.Errorf("node: decode topic name: %w", err)
				return
			}
		case wire.PIDTypeName:
			if typ, err = p.ParamString(binary.LittleEndian); err != nil {
				err = fmt.Errorf("node: decode type name: %w", err)
				return
			}
		case wire.PIDReliability:
			if len(p.Value) < 12 {
				err = fmt.Errorf("node: short reliability parameter")
				return
			}
			q.Reliability.Kind = qos.ReliabilityKind(binary.LittleEndian.Uint32(p.Value[0:]))
			q.Reliability.MaxBlockingTime = time.Duration(binary.LittleEndian.Uint64(p.Value[4:]))
		case wire.PIDDurability:
			if len(p.Value) < 4 {
				err = fmt.Errorf("node: short durability parameter")
				return
			}
			q.Durability.Kind = qos.DurabilityKind(binary.LittleEndian.Uint32(p.Value))
		case wire.PIDLiveliness:
			if len(p.Value) < 4 {
				err = fmt.Errorf("node: short liveliness parameter")
				return
			}
			q.Liveliness.Kind = qos.LivelinessKind(binary.LittleEndian.Uint32(p.Value[0:]))
			if q.Liveliness.LeaseDuration, err = rtpstime.DurationFromBytes(binary.LittleEndian, p.Value[4:]); err != nil {
				err = fmt.Errorf("node: decode liveliness lease: %w", err)
				return
			}
		case wire.PIDDeadline:
			if q.Deadline.Period, err = rtpstime.DurationFromBytes(binary.LittleEndian, p.Value); err != nil {
				err = fmt.Errorf("node: decode deadline period: %w", err)
				return
			}
		case wire.PIDOwnership:
			if len(p.Value) < 4 {
				err = fmt.Errorf("node: short ownership parameter")
				return
			}
			q.Ownership.Kind = qos.OwnershipKind(binary.LittleEndian.Uint32(p.Value))
		case wire.PIDHistory:
			if len(p.Value) < 8 {
				err = fmt.Errorf("node: short history parameter")
				return
			}
			q.History.Kind = qos.HistoryKind(binary.LittleEndian.Uint32(p.Value[0:]))
			q.History.Depth = int32(binary.LittleEndian.Uint32(p.Value[4:]))
		case wire.PIDPartition:
			var name string
			if name, err = p.ParamString(binary.LittleEndian); err != nil {
				err = fmt.Errorf("node: decode partition name: %w", err)
				return
			}
			q.Partition.Names = append(q.Partition.Names, name)
		case wire.PIDDefaultUnicastLocator:
			var l locator.Locator
			if l, err = locator.FromBytes(binary.LittleEndian, p.Value); err != nil {
				err = fmt.Errorf("node: decode unicast locator: %w", err)
				return
			}
			unicast = append(unicast, l)
		case wire.PIDDefaultMulticastLocator:
			var l locator.Locator
			if l, err = locator.FromBytes(binary.LittleEndian, p.Value); err != nil {
				err = fmt.Errorf("node: decode multicast locator: %w", err)
				return
			}
			multicast = append(multicast, l)
		}
	}
	if !haveGUID {
		err = fmt.Errorf("node: endpoint payload missing guid")
		return
	}
	err = nil
	return
}
