package rtpstime

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRoundtrip(t *testing.T) {
	in := time.Unix(1451457191, 226962928).UTC()
	b := Bytes(in, binary.LittleEndian)

	out, err := FromBytes(binary.LittleEndian, b)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestDurationRoundtrip(t *testing.T) {
	cases := []time.Duration{
		0,
		time.Millisecond * 500,
		5 * time.Second,
		100*time.Second + 250*time.Millisecond,
	}

	for _, d := range cases {
		b := DurationBytes(d, binary.LittleEndian)
		out, err := DurationFromBytes(binary.LittleEndian, b)
		require.NoError(t, err)
		assert.Equal(t, d, out)
	}
}

func TestInfiniteDurationRoundtrip(t *testing.T) {
	b := DurationBytes(Infinite, binary.LittleEndian)
	out, err := DurationFromBytes(binary.LittleEndian, b)
	require.NoError(t, err)
	assert.Equal(t, Infinite, out)
}

func TestDurationFromBytesTooShort(t *testing.T) {
	_, err := DurationFromBytes(binary.LittleEndian, []byte{1, 2, 3})
	assert.Error(t, err)
}
