package rtpsio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rtps/discovery/guid"
)

func testGUID(t *testing.T) guid.GUID {
	t.Helper()
	prefix, err := guid.NewPrefix()
	require.NoError(t, err)
	return guid.GUID{Prefix: prefix, EID: guid.EntityIDSPDPPartWriter}
}

func TestWriterReaderDelivery(t *testing.T) {
	wg, rg := testGUID(t), testGUID(t)
	w := NewMemWriter(wg)
	r := NewMemReader(rg, w)

	inst := guid.InstanceHandleOf(wg)
	seq, err := w.Write(inst, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	samples := r.History().Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, []byte("hello"), samples[0].Payload)
}

func TestDisposeRemovesFromHistory(t *testing.T) {
	wg, rg := testGUID(t), testGUID(t)
	w := NewMemWriter(wg)
	r := NewMemReader(rg, w)

	inst := guid.InstanceHandleOf(wg)
	_, err := w.Write(inst, []byte("v1"))
	require.NoError(t, err)
	_, err = w.Dispose(inst)
	require.NoError(t, err)

	assert.Empty(t, r.History().Samples())
	assert.Empty(t, w.History().Samples())
}

func TestSubscribeReceivesSamplesInOrder(t *testing.T) {
	wg := testGUID(t)
	w := NewMemWriter(wg)

	var got []string
	unsub := w.Subscribe(func(s Sample) { got = append(got, string(s.Payload)) })
	defer unsub()

	inst1 := guid.InstanceHandleOf(wg)
	w.Write(inst1, []byte("a"))
	w.Write(inst1, []byte("b"))

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	wg := testGUID(t)
	w := NewMemWriter(wg)

	var count int
	unsub := w.Subscribe(func(Sample) { count++ })
	unsub()

	w.Write(guid.InstanceHandleOf(wg), []byte("x"))
	assert.Equal(t, 0, count)
}

func TestHistoryKeepsLatestPerInstance(t *testing.T) {
	wg := testGUID(t)
	w := NewMemWriter(wg)
	inst := guid.InstanceHandleOf(wg)

	w.Write(inst, []byte("v1"))
	w.Write(inst, []byte("v2"))

	samples := w.History().Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, []byte("v2"), samples[0].Payload)
}
