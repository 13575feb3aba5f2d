package pps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/proxydata"
)

func newPrefix(t *testing.T) guid.Prefix {
	t.Helper()
	p, err := guid.NewPrefix()
	require.NoError(t, err)
	return p
}

func TestInsertNewFiresCallback(t *testing.T) {
	s := New(newPrefix(t))

	var got *proxydata.Participant
	s.OnNew(func(p *proxydata.Participant) { got = p })

	ppd := proxydata.New(newPrefix(t))
	status := s.InsertOrUpdate(ppd)

	assert.Equal(t, StatusNew, status)
	assert.Same(t, ppd, got)
}

func TestInsertUpdateReplacesRecord(t *testing.T) {
	s := New(newPrefix(t))
	prefix := newPrefix(t)

	p1 := proxydata.New(prefix)
	p2 := proxydata.New(prefix)

	assert.Equal(t, StatusNew, s.InsertOrUpdate(p1))
	assert.Equal(t, StatusUpdated, s.InsertOrUpdate(p2))

	got, ok := s.Lookup(prefix)
	require.True(t, ok)
	assert.Same(t, p2, got)
}

func TestLookupMissing(t *testing.T) {
	s := New(newPrefix(t))
	_, ok := s.Lookup(newPrefix(t))
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := New(newPrefix(t))
	prefix := newPrefix(t)
	s.InsertOrUpdate(proxydata.New(prefix))

	assert.True(t, s.Remove(prefix, ReasonDisposed))
	assert.False(t, s.Remove(prefix, ReasonDisposed))
}

func TestRemoveFiresCallbackAndDisposes(t *testing.T) {
	s := New(newPrefix(t))
	prefix := newPrefix(t)
	ppd := proxydata.New(prefix)
	s.InsertOrUpdate(ppd)

	var reason RemovalReason
	s.OnRemove(func(p *proxydata.Participant, r RemovalReason) { reason = r })

	s.Remove(prefix, ReasonLease)
	assert.Equal(t, ReasonLease, reason)
	assert.False(t, ppd.IsAlive())
}

func TestForeachAliveSkipsDisposed(t *testing.T) {
	s := New(newPrefix(t))
	alive := proxydata.New(newPrefix(t))
	dead := proxydata.New(newPrefix(t))
	dead.Dispose()

	s.InsertOrUpdate(alive)
	s.InsertOrUpdate(dead)

	var seen []guid.Prefix
	s.ForeachAlive(func(p *proxydata.Participant) { seen = append(seen, p.Prefix) })

	assert.Equal(t, []guid.Prefix{alive.Prefix}, seen)
}

func TestLeaseTickExcludesLocal(t *testing.T) {
	local := newPrefix(t)
	s := New(local)

	localPPD := proxydata.New(local)
	localPPD.LeaseDuration = time.Millisecond
	localPPD.RenewLease(time.Now().Add(-time.Hour))
	s.InsertOrUpdate(localPPD)

	remote := proxydata.New(newPrefix(t))
	remote.LeaseDuration = time.Millisecond
	remote.RenewLease(time.Now().Add(-time.Hour))
	s.InsertOrUpdate(remote)

	expired := s.LeaseTick(time.Now())
	assert.Equal(t, []guid.Prefix{remote.Prefix}, expired)
}

func TestSize(t *testing.T) {
	s := New(newPrefix(t))
	s.InsertOrUpdate(proxydata.New(newPrefix(t)))
	s.InsertOrUpdate(proxydata.New(newPrefix(t)))
	assert.Equal(t, 2, s.Size())
}
