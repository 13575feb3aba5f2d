package pdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/proxydata"
)

func newTestServer(t *testing.T, serverPeers []guid.Prefix) *Server {
	t.Helper()
	simple, _, _ := newTestSimple(t)
	return NewServer(simple, zap.NewNop(), serverPeers, nil)
}

func TestServerWithNoPeersStartsConverged(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.True(t, srv.converged)
}

func TestServerConvergesOnlyAfterAllPeersAck(t *testing.T) {
	peerA, err := guid.NewPrefix()
	require.NoError(t, err)
	peerB, err := guid.NewPrefix()
	require.NoError(t, err)

	srv := newTestServer(t, []guid.Prefix{peerA, peerB})
	assert.False(t, srv.converged)

	srv.AckFromServer(peerA)
	assert.False(t, srv.converged)

	srv.AckFromServer(peerB)
	assert.True(t, srv.converged)
}

func TestIngestClientDataGatedUntilConverged(t *testing.T) {
	peerA, err := guid.NewPrefix()
	require.NoError(t, err)
	srv := newTestServer(t, []guid.Prefix{peerA})

	clientPrefix, err := guid.NewPrefix()
	require.NoError(t, err)
	client := proxydata.New(clientPrefix)

	var released []guid.Prefix
	srv.OnEDPReady(func(p guid.Prefix) { released = append(released, p) })

	srv.IngestClientData(clientPrefix, client, clientPrefix[:])
	assert.Empty(t, released, "must stay gated until server peers converge")

	srv.AckFromServer(peerA)
	assert.Equal(t, []guid.Prefix{clientPrefix}, released)
}

func TestIngestClientDataReleasedImmediatelyWhenAlreadyConverged(t *testing.T) {
	srv := newTestServer(t, nil)

	clientPrefix, err := guid.NewPrefix()
	require.NoError(t, err)
	client := proxydata.New(clientPrefix)

	var released []guid.Prefix
	srv.OnEDPReady(func(p guid.Prefix) { released = append(released, p) })

	srv.IngestClientData(clientPrefix, client, clientPrefix[:])
	assert.Equal(t, []guid.Prefix{clientPrefix}, released)
}

func TestAddRelayedChangeToHistoryWritesToPDPHistory(t *testing.T) {
	srv := newTestServer(t, nil)

	clientPrefix, err := guid.NewPrefix()
	require.NoError(t, err)
	client := proxydata.New(clientPrefix)

	before := len(srv.writer.History().Samples())
	srv.addRelayedChangeToHistory(client, clientPrefix[:])
	assert.Len(t, srv.writer.History().Samples(), before+1)
}

func TestTrimWriterHistoryRemovesOnlyFullyAckedDemises(t *testing.T) {
	srv := newTestServer(t, nil)

	clientA, err := guid.NewPrefix()
	require.NoError(t, err)
	clientB, err := guid.NewPrefix()
	require.NoError(t, err)
	victim := proxydata.New(clientA)
	inst := victim.InstanceHandle()

	srv.knownClients[clientA] = true
	srv.knownClients[clientB] = true
	srv.addRelayedChangeToHistory(victim, clientA[:])
	srv.MarkDemised(inst)

	srv.trimWriterHistory()
	assert.NotEmpty(t, srv.writer.History().Samples(), "must not trim before every known client has acked")

	srv.AckFromClient(inst, clientA)
	srv.AckFromClient(inst, clientB)
	srv.trimWriterHistory()

	for _, s := range srv.writer.History().Samples() {
		assert.NotEqual(t, inst, s.Instance)
	}
}

func TestClientRemovedUnblocksAckSetCompleteness(t *testing.T) {
	srv := newTestServer(t, nil)

	clientA, err := guid.NewPrefix()
	require.NoError(t, err)
	clientB, err := guid.NewPrefix()
	require.NoError(t, err)
	victim := proxydata.New(clientA)
	inst := victim.InstanceHandle()

	srv.knownClients[clientA] = true
	srv.knownClients[clientB] = true
	srv.addRelayedChangeToHistory(victim, clientA[:])
	srv.MarkDemised(inst)
	srv.AckFromClient(inst, clientA)

	// clientB never acks but leaves the fleet instead.
	srv.ClientRemoved(clientB)
	srv.trimWriterHistory()

	for _, s := range srv.writer.History().Samples() {
		assert.NotEqual(t, inst, s.Instance)
	}
}

func TestWakeTriggersImmediateSyncPass(t *testing.T) {
	peerA, err := guid.NewPrefix()
	require.NoError(t, err)
	srv := newTestServer(t, []guid.Prefix{peerA})

	before := len(srv.writer.History().Samples())
	srv.Wake()
	assert.GreaterOrEqual(t, len(srv.writer.History().Samples()), before)
}

func TestStartSyncRecoversFromPersistence(t *testing.T) {
	dir := t.TempDir()
	serverPrefix, err := guid.NewPrefix()
	require.NoError(t, err)

	persist, err := OpenPersistence(dir, serverPrefix)
	require.NoError(t, err)

	remote := proxydata.New(serverPrefix)
	inst := remote.InstanceHandle()
	require.NoError(t, persist.Put(inst, []byte("recovered")))
	require.NoError(t, persist.Close())

	persist, err = OpenPersistence(dir, serverPrefix)
	require.NoError(t, err)
	defer persist.Close()

	srv := newTestServer(t, nil)
	srv.persist = persist

	srv.StartSync(ServerConfig{SyncPeriod: time.Hour})
	defer srv.StopSync()

	found := false
	for _, s := range srv.writer.History().Samples() {
		if s.Instance == inst {
			found = true
		}
	}
	assert.True(t, found)
}
