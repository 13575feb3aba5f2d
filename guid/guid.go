// Package guid implements the RTPS entity identification scheme: the
// 12-byte GUID prefix that names a participant, the 4-byte entity id
// that names an endpoint within it, and the reserved ids OMG RTPS 9.3.1
// assigns to the built-in discovery and liveliness endpoints.
package guid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// PrefixLen is the size in bytes of a GUID prefix (RTPS 9.3.2).
const PrefixLen = 12

// Len is the size in bytes of a full GUID (prefix + entity id).
const Len = PrefixLen + 4

// VendorID identifies the RTPS implementation that produced a GUID.
// Encoded big endian on the wire regardless of submessage endianness.
type VendorID uint16

// VendorGoRTPSDiscovery is this implementation's vendor id, allocated
// out of the vendor-specific range reserved by the OMG spec.
const VendorGoRTPSDiscovery VendorID = 0x1234

func (v VendorID) String() string {
	switch v {
	case 0x0101:
		return "RTI Connext"
	case 0x0102:
		return "PrismTech OpenSplice"
	case 0x0103:
		return "OCI OpenDDS"
	case VendorGoRTPSDiscovery:
		return "go-rtps/discovery"
	default:
		return fmt.Sprintf("vendor(0x%04x)", uint16(v))
	}
}

// EntityKind occupies the low byte of an EntityID and encodes whether
// the entity is a reader/writer, keyed/unkeyed, user/built-in/vendor.
type EntityKind uint8

const (
	SourceMask    EntityKind = 0xc0
	SourceUser    EntityKind = 0x00
	SourceVendor  EntityKind = 0x40
	SourceBuiltin EntityKind = 0xc0

	KindMask          EntityKind = 0x3f
	KindWriterWithKey EntityKind = 0x02
	KindWriterNoKey   EntityKind = 0x03
	KindReaderNoKey   EntityKind = 0x04
	KindReaderWithKey EntityKind = 0x07
)

// EntityID is the per-participant-unique suffix of a GUID. Always
// encoded big endian on the wire regardless of the submessage endian
// flag (RTPS 9.3.1.2).
type EntityID uint32

// Reserved entity ids, RTPS 9.3.1.2 and the Secure DDS spec §7.4. These
// values must be reproduced bit-exactly; they are not implementation
// choices.
const (
	EntityIDUnknown     EntityID = 0x00000000
	EntityIDParticipant EntityID = 0x000001c1

	EntityIDSEDPPubWriter EntityID = 0x000003c2
	EntityIDSEDPPubReader EntityID = 0x000003c7
	EntityIDSEDPSubWriter EntityID = 0x000004c2
	EntityIDSEDPSubReader EntityID = 0x000004c7

	EntityIDSPDPPartWriter EntityID = 0x000100c2
	EntityIDSPDPPartReader EntityID = 0x000100c7

	EntityIDWriterLiveliness EntityID = 0x000200c2
	EntityIDReaderLiveliness EntityID = 0x000200c7

	// Secure variants (Secure DDS spec §7.4.1.2). Coexist with the
	// non-secure built-ins; BEF decides which to instantiate per
	// participant based on security attributes (spec.md §4.1).
	EntityIDSPDPPartWriterSecure EntityID = 0xff0101c2
	EntityIDSPDPPartReaderSecure EntityID = 0xff0101c7
	EntityIDSEDPPubWriterSecure  EntityID = 0xff0003c2
	EntityIDSEDPPubReaderSecure  EntityID = 0xff0003c7
	EntityIDSEDPSubWriterSecure  EntityID = 0xff0004c2
	EntityIDSEDPSubReaderSecure  EntityID = 0xff0004c7
	EntityIDWriterLivelinessSecure EntityID = 0xff0200c2
	EntityIDReaderLivelinessSecure EntityID = 0xff0200c7
)

// byte is the raw low byte of the entity id, carrying both the source
// bits (SourceMask) and the kind bits (KindMask).
func (e EntityID) byte() EntityKind { return EntityKind(e & 0xff) }

func (e EntityID) IsWriter() bool {
	switch e.byte() & KindMask {
	case KindWriterWithKey, KindWriterNoKey:
		return true
	}
	return false
}

func (e EntityID) IsReader() bool {
	switch e.byte() & KindMask {
	case KindReaderWithKey, KindReaderNoKey:
		return true
	}
	return false
}

func (e EntityID) IsBuiltin() bool {
	return e.byte()&SourceMask == SourceBuiltin
}

func (e EntityID) IsBuiltinEndpoint() bool {
	return e.IsBuiltin() && e != EntityIDParticipant
}

func (e EntityID) String() string {
	return fmt.Sprintf("0x%08x", uint32(e))
}

// userAllocStep mirrors the teacher's fixed allocation stride for
// user entity ids (id.go ENTITYID_ALLOCSTEP); kept small since this
// repo only ever allocates built-in ids itself, and user ids are
// supplied by the out-of-scope DDS API layer.
const userAllocStep = 0x100

// Prefix is the 12-byte participant-identifying portion of a GUID.
type Prefix [PrefixLen]byte

// NewPrefix generates a random prefix suitable for a local participant.
// If the draw comes out as the all-zero "unknown" sentinel, the whole
// prefix is drawn again, matching RTPS's requirement that a GUID
// prefix never be all zero for a real participant.
func NewPrefix() (Prefix, error) {
	var p Prefix
	for {
		if _, err := rand.Read(p[:]); err != nil {
			return Prefix{}, fmt.Errorf("guid: generate prefix: %w", err)
		}
		if p != (Prefix{}) {
			return p, nil
		}
	}
}

func (p Prefix) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x%02x%02x-%02x%02x%02x%02x",
		p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7], p[8], p[9], p[10], p[11])
}

// IsUnknown reports whether p is the reserved all-zero prefix.
func (p Prefix) IsUnknown() bool { return p == Prefix{} }

// ParsePrefix parses the dashed hex form String() produces, for
// reading a server peer's identity out of configuration.
func ParsePrefix(s string) (Prefix, error) {
	var p Prefix
	n, err := fmt.Sscanf(s, "%02x%02x%02x%02x-%02x%02x%02x%02x-%02x%02x%02x%02x",
		&p[0], &p[1], &p[2], &p[3], &p[4], &p[5], &p[6], &p[7], &p[8], &p[9], &p[10], &p[11])
	if err != nil || n != PrefixLen {
		return Prefix{}, fmt.Errorf("guid: invalid prefix %q: %w", s, err)
	}
	return p, nil
}

// GUID is a full 16-byte RTPS entity identifier.
type GUID struct {
	Prefix Prefix
	EID    EntityID
}

// Unknown is the reserved GUID meaning "no particular entity".
var Unknown = GUID{}

// FromBytes decodes a 16-byte wire-format GUID.
func FromBytes(b []byte) (GUID, error) {
	if len(b) < Len {
		return GUID{}, fmt.Errorf("guid: need %d bytes, got %d", Len, len(b))
	}
	var g GUID
	copy(g.Prefix[:], b[:PrefixLen])
	g.EID = EntityID(binary.BigEndian.Uint32(b[PrefixLen:]))
	return g, nil
}

// Bytes encodes g in the fixed 16-byte wire layout.
func (g GUID) Bytes() [Len]byte {
	var b [Len]byte
	copy(b[:PrefixLen], g.Prefix[:])
	binary.BigEndian.PutUint32(b[PrefixLen:], uint32(g.EID))
	return b
}

// IsUnknown reports whether g is the reserved unknown GUID.
func (g GUID) IsUnknown() bool {
	return g.EID == EntityIDUnknown && g.Prefix.IsUnknown()
}

func (g GUID) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix.String(), g.EID.String())
}

// InstanceHandle is the 16-byte key identifying a keyed-topic instance.
// For built-in topics it is derived deterministically from a GUID
// (spec.md §3 "Invariants"), so it shares the GUID's byte layout.
type InstanceHandle [Len]byte

// InstanceHandleOf derives the instance handle for the built-in-topic
// row describing the entity named by g.
func InstanceHandleOf(g GUID) InstanceHandle {
	return InstanceHandle(g.Bytes())
}

func (h InstanceHandle) String() string {
	g, err := FromBytes(h[:])
	if err != nil {
		return "<invalid instance handle>"
	}
	return g.String()
}
