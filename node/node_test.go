package node

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/go-rtps/discovery/config"
	"github.com/go-rtps/discovery/edp"
	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/locator"
	"github.com/go-rtps/discovery/pps"
	"github.com/go-rtps/discovery/proxydata"
	"github.com/go-rtps/discovery/qos"
	"github.com/go-rtps/discovery/wire"
	"github.com/go-rtps/discovery/wlp"
)

func testConfig() *config.Config {
	var c config.Config
	c.Participant.DomainID = 0
	c.Participant.LeaseDuration = time.Hour
	c.PDP.Kind = config.PDPSimple
	c.PDP.AnnouncePeriod = time.Hour
	return &c
}

func TestNewBuildsSimpleNode(t *testing.T) {
	n, err := New(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.NotEmpty(t, n.Quadruples)
	assert.Len(t, n.services, 2) // pdp.simple + pps.lease-scan
}

func TestNewServerRequiresParsablePeers(t *testing.T) {
	cfg := testConfig()
	cfg.PDP.Kind = config.PDPServer
	cfg.PDP.ServerPeers = []string{"not-a-valid-prefix"}

	_, err := New(cfg, zap.NewNop(), prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestNewServerWithValidPeers(t *testing.T) {
	peer, err := guid.NewPrefix()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.PDP.Kind = config.PDPServer
	cfg.PDP.ServerPeers = []string{peer.String()}

	n, err := New(cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Len(t, n.services, 2) // pdp.server + pps.lease-scan
}

func TestStartAndStopRunsEveryService(t *testing.T) {
	n, err := New(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	require.NoError(t, n.Start())
	n.Stop()

	select {
	case <-n.Context().Done():
	default:
		t.Fatal("expected node context to be canceled after Stop")
	}
}

func TestWLPAssertRoundtripsThroughBuiltinQuadruple(t *testing.T) {
	n, err := New(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	var events []wlp.LivelinessChangedEvent
	n.WLPSub.OnLivelinessChanged(func(ev wlp.LivelinessChangedEvent) { events = append(events, ev) })

	writer := guid.GUID{Prefix: n.Local.Prefix, EID: guid.EntityIDWriterLiveliness}
	n.WLPSub.AddInterest(wlp.LocalReaderInterest{
		Reader: guid.GUID{Prefix: n.Local.Prefix, EID: guid.EntityIDReaderLiveliness},
		Writer: writer,
		Kind:   qos.LivelinessAutomatic,
	})

	n.WLPPub.AddLocalWriter(wlp.LocalWriter{GUID: writer, Kind: qos.LivelinessAutomatic, LeaseDuration: 10 * time.Millisecond})

	assert.Eventually(t, func() bool { return len(events) >= 1 }, time.Second, time.Millisecond)
}

func TestMarshalParticipantRoundTrips(t *testing.T) {
	prefix, err := guid.NewPrefix()
	require.NoError(t, err)

	p := proxydata.New(prefix)
	p.AvailableEndpoints = wire.EndpointParticipantMsgWriter | wire.EndpointParticipantMsgReader
	p.LeaseDuration = 11 * time.Second
	p.MetatrafficUnicast = locator.List{locator.NewUDPv4(net.IPv4(127, 0, 0, 1), 7410)}
	p.DefaultMulticast = locator.List{locator.NewUDPv4(net.IPv4(239, 255, 0, 1), 7411)}

	decoded, err := unmarshalParticipant(marshalParticipant(p))
	require.NoError(t, err)

	assert.Equal(t, prefix, decoded.Prefix)
	assert.Equal(t, p.AvailableEndpoints, decoded.AvailableEndpoints)
	assert.Equal(t, p.LeaseDuration, decoded.LeaseDuration)
	assert.Equal(t, p.MetatrafficUnicast, decoded.MetatrafficUnicast)
	assert.Equal(t, p.DefaultMulticast, decoded.DefaultMulticast)
}

func TestMarshalWriterRoundTrips(t *testing.T) {
	prefix, err := guid.NewPrefix()
	require.NoError(t, err)

	w := &proxydata.Writer{}
	w.GUID = guid.GUID{Prefix: prefix, EID: 0x01020301}
	w.Topic = "square"
	w.Type = "ShapeType"
	w.QoS.Reliability.Kind = qos.ReliabilityReliable
	w.QoS.Durability.Kind = qos.DurabilityTransientLocal
	w.QoS.Liveliness.Kind = qos.LivelinessManualByTopic
	w.QoS.Liveliness.LeaseDuration = 3 * time.Second
	w.QoS.History.Depth = 5
	w.QoS.Partition.Names = []string{"a", "b"}
	w.UnicastLocs = locator.List{locator.NewUDPv4(net.IPv4(10, 0, 0, 1), 7412)}

	decoded, err := unmarshalWriter(marshalWriter(w))
	require.NoError(t, err)

	assert.Equal(t, w.GUID, decoded.GUID)
	assert.Equal(t, w.Topic, decoded.Topic)
	assert.Equal(t, w.Type, decoded.Type)
	assert.Equal(t, w.QoS.Reliability.Kind, decoded.QoS.Reliability.Kind)
	assert.Equal(t, w.QoS.Durability.Kind, decoded.QoS.Durability.Kind)
	assert.Equal(t, w.QoS.Liveliness.Kind, decoded.QoS.Liveliness.Kind)
	assert.Equal(t, w.QoS.Liveliness.LeaseDuration, decoded.QoS.Liveliness.LeaseDuration)
	assert.Equal(t, w.QoS.History.Depth, decoded.QoS.History.Depth)
	assert.Equal(t, w.QoS.Partition.Names, decoded.QoS.Partition.Names)
	assert.Equal(t, w.UnicastLocs, decoded.UnicastLocs)
}

func TestStoreOnNewDrainsPendingEDPAndAddsWLPPeer(t *testing.T) {
	n, err := New(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	remotePrefix, err := guid.NewPrefix()
	require.NoError(t, err)

	remoteWriter := &proxydata.Writer{}
	remoteWriter.GUID = guid.GUID{Prefix: remotePrefix, EID: 0x09090901}
	remoteWriter.Topic = "square"
	remoteWriter.Type = "ShapeType"

	localReaderPrefix, err := guid.NewPrefix()
	require.NoError(t, err)
	n.EDP.RegisterLocalReader(edp.LocalEndpoint{
		GUID:  guid.GUID{Prefix: localReaderPrefix, EID: 0x04040401},
		Topic: remoteWriter.Topic,
		Type:  remoteWriter.Type,
	})

	// The remote writer's owning PPD has not arrived yet, so ingest must
	// queue it rather than drop it.
	n.EDP.IngestRemoteWriter(remotePrefix, remoteWriter, n.driver.Now())
	assert.Equal(t, 0, n.EDP.MatchedCount())

	remote := proxydata.New(remotePrefix)
	remote.AvailableEndpoints = wire.EndpointParticipantMsgWriter
	n.Store.InsertOrUpdate(remote)

	assert.Eventually(t, func() bool { return n.EDP.MatchedCount() == 1 }, time.Second, time.Millisecond)

	var changed []wlp.LivelinessChangedEvent
	n.WLPSub.OnLivelinessChanged(func(ev wlp.LivelinessChangedEvent) { changed = append(changed, ev) })
	remoteWLPWriter := guid.GUID{Prefix: remotePrefix, EID: guid.EntityIDWriterLiveliness}
	n.WLPSub.OnAssertion(wlp.RemoteAssertion{Writer: remoteWLPWriter, Kind: qos.LivelinessAutomatic}, n.driver.Now())
	assert.Len(t, changed, 1)

	n.Store.Remove(remotePrefix, pps.ReasonLease)
	assert.Equal(t, 0, n.EDP.MatchedCount())

	changed = nil
	n.WLPSub.OnAssertion(wlp.RemoteAssertion{Writer: remoteWLPWriter, NotAlive: true}, n.driver.Now())
	assert.Empty(t, changed)
}
