// Package locator implements the RTPS Locator_t type: an address at
// which an endpoint can be reached, tagged with a transport kind. The
// transports themselves (UDP/TCP/SHM framing and socket plumbing) are
// out of scope here (spec.md §1); this package only carries the data
// model and its wire encoding, which discovery payloads embed.
package locator

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Kind identifies the transport a Locator addresses (RTPS 9.3.2, with
// TCP/SHM kinds used by implementations beyond the base spec).
type Kind int32

const (
	KindInvalid  Kind = -1
	KindReserved Kind = 0
	KindUDPv4    Kind = 1
	KindUDPv6    Kind = 2
	KindTCPv4    Kind = 4
	KindTCPv6    Kind = 8
	KindSHM      Kind = 16
)

// PortInvalid is the reserved "no port" sentinel.
const PortInvalid uint32 = 0

// Locator is an RTPS Locator_t: a transport kind, a port, and a
// 16-byte address (IPv4 addresses are stored in the low 4 bytes,
// matching the wire layout).
type Locator struct {
	Kind Kind
	Port uint32
	Addr net.IP
}

// NewUDPv4 builds a UDPv4 locator for ip:port.
func NewUDPv4(ip net.IP, port uint16) Locator {
	return Locator{Kind: KindUDPv4, Port: uint32(port), Addr: ip.To16()}
}

// FromBytes decodes the fixed 24-byte RTPS Locator_t wire layout:
// kind(4) + port(4) + address(16).
func FromBytes(order binary.ByteOrder, b []byte) (Locator, error) {
	if len(b) < 24 {
		return Locator{}, io.ErrUnexpectedEOF
	}
	kind := Kind(order.Uint32(b[0:]))
	port := order.Uint32(b[4:])
	addr := make(net.IP, 16)
	copy(addr, b[8:24])
	return Locator{Kind: kind, Port: port, Addr: addr}, nil
}

// Bytes encodes l in the fixed 24-byte RTPS Locator_t wire layout.
func (l Locator) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 24)
	order.PutUint32(b[0:], uint32(l.Kind))
	order.PutUint32(b[4:], l.Port)
	addr := l.Addr.To16()
	if addr == nil {
		addr = make(net.IP, 16)
	}
	copy(b[8:24], addr)
	return b
}

func (l Locator) String() string {
	switch l.Kind {
	case KindUDPv4, KindTCPv4:
		return fmt.Sprintf("%s:%d", l.Addr.To4().String(), l.Port)
	case KindUDPv6, KindTCPv6:
		return fmt.Sprintf("[%s]:%d", l.Addr.String(), l.Port)
	case KindSHM:
		return fmt.Sprintf("shm:%d", l.Port)
	default:
		return fmt.Sprintf("locator(kind=%d)", l.Kind)
	}
}

// Equal reports whether l and other address the same endpoint.
func (l Locator) Equal(other Locator) bool {
	return l.Kind == other.Kind && l.Port == other.Port && l.Addr.Equal(other.Addr)
}

// List is a replaceable-as-a-whole locator list (spec.md §4.3: "locator
// lists are replaced as a whole, not merged").
type List []Locator

// Equal reports whether two lists contain the same locators in the
// same order — callers that need set semantics should sort first.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if !l[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of l, so that replacing a
// participant's locator list never aliases a caller's slice.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}
