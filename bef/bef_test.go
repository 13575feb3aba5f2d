package bef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rtps/discovery/guid"
)

func testPrefix(t *testing.T) guid.Prefix {
	t.Helper()
	p, err := guid.NewPrefix()
	require.NoError(t, err)
	return p
}

func TestBuildNonSecureProducesFourQuadruples(t *testing.T) {
	f := New(testPrefix(t), ThroughputController{}, false)
	qs, err := f.Build()
	require.NoError(t, err)
	assert.Len(t, qs, 4)

	for _, q := range qs {
		assert.False(t, q.Secure)
		assert.NotNil(t, q.Writer)
		assert.NotNil(t, q.Reader)
	}
}

func TestBuildSecureProducesEightQuadruples(t *testing.T) {
	f := New(testPrefix(t), ThroughputController{}, true)
	qs, err := f.Build()
	require.NoError(t, err)
	assert.Len(t, qs, 8)

	var secureCount int
	for _, q := range qs {
		if q.Secure {
			secureCount++
		}
	}
	assert.Equal(t, 4, secureCount)
}

func TestAsyncPropagatesFromThroughputController(t *testing.T) {
	f := New(testPrefix(t), ThroughputController{BytesPerPeriod: 1024, Period: int64(1e6)}, false)
	qs, err := f.Build()
	require.NoError(t, err)
	for _, q := range qs {
		assert.True(t, q.Async)
	}
}

func TestThroughputControllerUnconfiguredIsSync(t *testing.T) {
	assert.False(t, ThroughputController{}.Async())
}

func TestPDPWriterHasReservedEntityID(t *testing.T) {
	prefix := testPrefix(t)
	f := New(prefix, ThroughputController{}, false)
	qs, err := f.Build()
	require.NoError(t, err)

	for _, q := range qs {
		if q.Topic == TopicPDP {
			assert.Equal(t, guid.EntityIDSPDPPartWriter, q.Writer.GUID().EID)
		}
	}
}
