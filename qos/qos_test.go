package qos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompatibleReliability(t *testing.T) {
	req := Profile{Reliability: Reliability{Kind: ReliabilityReliable}}
	off := Profile{Reliability: Reliability{Kind: ReliabilityBestEffort}}

	bad := Compatible(req, off)
	assert.Len(t, bad, 1)
	assert.Equal(t, "RELIABILITY", bad[0].Policy)
}

func TestCompatibleDurability(t *testing.T) {
	req := Profile{Durability: Durability{Kind: DurabilityTransientLocal}}
	off := Profile{Durability: Durability{Kind: DurabilityVolatile}}

	bad := Compatible(req, off)
	assert.Len(t, bad, 1)
	assert.Equal(t, "DURABILITY", bad[0].Policy)
}

func TestCompatibleDeadline(t *testing.T) {
	req := Profile{Deadline: Deadline{Period: time.Second}}
	off := Profile{Deadline: Deadline{Period: 2 * time.Second}}

	bad := Compatible(req, off)
	assert.Len(t, bad, 1)
	assert.Equal(t, "DEADLINE", bad[0].Policy)
}

func TestCompatibleOwnership(t *testing.T) {
	req := Profile{Ownership: Ownership{Kind: OwnershipExclusive}}
	off := Profile{Ownership: Ownership{Kind: OwnershipShared}}

	bad := Compatible(req, off)
	assert.Len(t, bad, 1)
	assert.Equal(t, "OWNERSHIP", bad[0].Policy)
}

func TestCompatiblePartitionDefault(t *testing.T) {
	bad := Compatible(Profile{}, Profile{})
	assert.Empty(t, bad)
}

func TestCompatiblePartitionDisjoint(t *testing.T) {
	req := Profile{Partition: Partition{Names: []string{"a"}}}
	off := Profile{Partition: Partition{Names: []string{"b"}}}

	bad := Compatible(req, off)
	assert.Len(t, bad, 1)
	assert.Equal(t, "PARTITION", bad[0].Policy)
}

func TestCompatiblePartitionOverlap(t *testing.T) {
	req := Profile{Partition: Partition{Names: []string{"a", "b"}}}
	off := Profile{Partition: Partition{Names: []string{"b", "c"}}}

	assert.Empty(t, Compatible(req, off))
}

func TestCompatibleAllMatch(t *testing.T) {
	p := Profile{
		Reliability: Reliability{Kind: ReliabilityReliable},
		Durability:  Durability{Kind: DurabilityTransientLocal},
	}
	assert.Empty(t, Compatible(p, p))
}
