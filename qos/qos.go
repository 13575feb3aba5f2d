// Package qos implements the QoS policy types discovery must carry
// and compare: RELIABILITY, DURABILITY, LIVELINESS, DEADLINE,
// OWNERSHIP, PARTITION and HISTORY. The policies themselves are
// opaque to transport and storage; the only behavior this package
// owns is the requested-vs-offered compatibility lattice EDP matching
// needs (spec.md §4.4).
package qos

import "time"

// ReliabilityKind selects best-effort or reliable delivery.
type ReliabilityKind uint32

const (
	ReliabilityBestEffort ReliabilityKind = 1
	ReliabilityReliable   ReliabilityKind = 2
)

// Reliability is the RELIABILITY QoS policy.
type Reliability struct {
	Kind            ReliabilityKind
	MaxBlockingTime time.Duration
}

// DurabilityKind selects whether late-joining readers receive history.
type DurabilityKind uint32

const (
	DurabilityVolatile       DurabilityKind = 0
	DurabilityTransientLocal DurabilityKind = 1
	DurabilityTransient      DurabilityKind = 2
	DurabilityPersistent     DurabilityKind = 3
)

// Durability is the DURABILITY QoS policy.
type Durability struct {
	Kind DurabilityKind
}

// HistoryKind selects how many samples per instance a cache retains.
type HistoryKind uint32

const (
	HistoryKeepLast HistoryKind = 0
	HistoryKeepAll  HistoryKind = 1
)

// History is the HISTORY QoS policy.
type History struct {
	Kind  HistoryKind
	Depth int32
}

// LivelinessKind selects who is responsible for asserting liveliness
// (spec.md §4.5).
type LivelinessKind uint32

const (
	LivelinessAutomatic             LivelinessKind = 0
	LivelinessManualByParticipant   LivelinessKind = 1
	LivelinessManualByTopic         LivelinessKind = 2
)

// Liveliness is the LIVELINESS QoS policy.
type Liveliness struct {
	Kind         LivelinessKind
	LeaseDuration time.Duration
}

// OwnershipKind selects SHARED or EXCLUSIVE instance ownership.
type OwnershipKind uint32

const (
	OwnershipShared    OwnershipKind = 0
	OwnershipExclusive OwnershipKind = 1
)

// Ownership is the OWNERSHIP QoS policy.
type Ownership struct {
	Kind OwnershipKind
}

// Deadline is the DEADLINE QoS policy: the maximum period between
// samples an application commits to.
type Deadline struct {
	Period time.Duration
}

// Partition is the PARTITION QoS policy: the set of partition names
// an endpoint belongs to. An empty partition list is the default
// partition.
type Partition struct {
	Names []string
}

// Profile bundles the policies EDP must compare when matching a
// writer against a reader (spec.md §4.4).
type Profile struct {
	Reliability Reliability
	Durability  Durability
	Liveliness  Liveliness
	Deadline    Deadline
	Ownership   Ownership
	Partition   Partition
	History     History
}

// Incompatibility names one policy that failed the requested-vs-offered
// test, for diagnostics (mirrors DDS's offered_incompatible_qos /
// requested_incompatible_qos status reasons).
type Incompatibility struct {
	Policy string
	Reason string
}

// Compatible reports whether a reader requesting `req` may match a
// writer offering `off`, per the DDS RxO (requested-vs-offered) rule:
// the reader's request must be satisfiable by what the writer offers.
// Returns the list of incompatibilities found, empty if compatible.
func Compatible(req, off Profile) []Incompatibility {
	var bad []Incompatibility

	if req.Reliability.Kind == ReliabilityReliable && off.Reliability.Kind != ReliabilityReliable {
		bad = append(bad, Incompatibility{"RELIABILITY", "reader requires RELIABLE, writer offers BEST_EFFORT"})
	}

	if durabilityRank(req.Durability.Kind) > durabilityRank(off.Durability.Kind) {
		bad = append(bad, Incompatibility{"DURABILITY", "reader requests stronger durability than writer offers"})
	}

	if req.Liveliness.Kind > off.Liveliness.Kind {
		bad = append(bad, Incompatibility{"LIVELINESS", "reader requests a stronger liveliness kind than writer offers"})
	}
	if req.Liveliness.LeaseDuration != 0 {
		if off.Liveliness.LeaseDuration == 0 || off.Liveliness.LeaseDuration > req.Liveliness.LeaseDuration {
			bad = append(bad, Incompatibility{"LIVELINESS", "writer's lease duration exceeds reader's requested lease"})
		}
	}

	if req.Deadline.Period != 0 {
		if off.Deadline.Period == 0 || off.Deadline.Period > req.Deadline.Period {
			bad = append(bad, Incompatibility{"DEADLINE", "writer's commitment period exceeds reader's requested period"})
		}
	}

	if req.Ownership.Kind != off.Ownership.Kind {
		bad = append(bad, Incompatibility{"OWNERSHIP", "reader and writer disagree on SHARED vs EXCLUSIVE"})
	}

	if !partitionsIntersect(req.Partition, off.Partition) {
		bad = append(bad, Incompatibility{"PARTITION", "reader and writer share no partition"})
	}

	return bad
}

func durabilityRank(k DurabilityKind) int {
	switch k {
	case DurabilityVolatile:
		return 0
	case DurabilityTransientLocal:
		return 1
	case DurabilityTransient:
		return 2
	case DurabilityPersistent:
		return 3
	default:
		return 0
	}
}

// partitionsIntersect reports whether two partition lists share at
// least one name; an empty list is the implicit "" default partition.
func partitionsIntersect(a, b Partition) bool {
	an, bn := a.Names, b.Names
	if len(an) == 0 {
		an = []string{""}
	}
	if len(bn) == 0 {
		bn = []string{""}
	}
	for _, x := range an {
		for _, y := range bn {
			if x == y {
				return true
			}
		}
	}
	return false
}
