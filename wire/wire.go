// Package wire implements the bit-exact RTPS 2.2 envelope and
// ParameterList encoding used by every built-in discovery and
// liveliness sample: the message Header, the submessage header, the
// CDR ParameterList used to serialize DATA(p)/DATA(w)/DATA(r) and
// DATA(message) payloads, and the PID_* parameter ids those payloads
// are built from (OMG RTPS 2.2 §9, §9.6.3).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-rtps/discovery/guid"
)

// Magic is the fixed 4-byte "RTPS" magic number opening every message.
const Magic uint32 = 0x52545053

// ProtocolVersion is the {major, minor} RTPS protocol version.
type ProtocolVersion struct {
	Major, Minor uint8
}

// Version22 is the protocol version this package implements.
var Version22 = ProtocolVersion{Major: 2, Minor: 2}

// Submessage kind ids (RTPS 9.4.5.1.1).
const (
	SubmsgPad           = 0x01
	SubmsgAckNack       = 0x06
	SubmsgHeartbeat     = 0x07
	SubmsgGap           = 0x08
	SubmsgInfoTS        = 0x09
	SubmsgInfoSrc       = 0x0c
	SubmsgInfoReplyIP4  = 0x0d
	SubmsgInfoDst       = 0x0e
	SubmsgInfoReply     = 0x0f
	SubmsgNackFrag      = 0x12
	SubmsgHeartbeatFrag = 0x13
	SubmsgData          = 0x15
	SubmsgDataFrag      = 0x16
)

// Submessage flag bits, at minimum the ones consumed by this package
// (RTPS 9.4.5.3, 9.4.5.10, 9.4.5.6).
const (
	FlagEndianLittle = 0x01 // applies to all submessages

	FlagDataInlineQos  = 0x02
	FlagDataPresent    = 0x04
	FlagDataKey        = 0x08

	FlagHeartbeatFinal      = 0x02
	FlagHeartbeatLiveliness = 0x04

	FlagAckNackFinal = 0x02
)

// Encapsulation schemes (RTPS 10.2, 10.5).
const (
	SchemeCDRLE   uint16 = 0x0001
	SchemePLCDRLE uint16 = 0x0003
)

// ParamID is a ParameterList PID_* identifier (RTPS 9.6.3).
type ParamID uint16

// Parameter ids used by the built-in discovery/liveliness topics.
// Values are specified by the OMG spec and must be reproduced
// bit-exactly (spec.md §6).
const (
	PIDPad                      ParamID = 0x0000
	PIDSentinel                 ParamID = 0x0001
	PIDParticipantLeaseDuration ParamID = 0x0002
	PIDTopicName                ParamID = 0x0005
	PIDTypeName                 ParamID = 0x0007
	PIDProtocolVersion          ParamID = 0x0015
	PIDVendorID                 ParamID = 0x0016
	PIDReliability              ParamID = 0x001a
	PIDLiveliness               ParamID = 0x001b
	PIDDurability               ParamID = 0x001d
	PIDOwnership                ParamID = 0x001f
	PIDPresentation             ParamID = 0x0021
	PIDDeadline                 ParamID = 0x0023
	PIDPartition                ParamID = 0x0029
	PIDDefaultUnicastLocator    ParamID = 0x0031
	PIDMetatrafficUnicastLoc    ParamID = 0x0032
	PIDMetatrafficMulticastLoc  ParamID = 0x0033
	PIDHistory                  ParamID = 0x0040
	PIDDefaultMulticastLocator  ParamID = 0x0048
	PIDTransportPriority        ParamID = 0x0049
	PIDParticipantGUID          ParamID = 0x0050
	PIDBuiltinEndpointSet       ParamID = 0x0058
	PIDPropertyList             ParamID = 0x0059
	PIDEndpointGUID             ParamID = 0x005a
	PIDIdentityToken            ParamID = 0x1001
	PIDPermissionsToken         ParamID = 0x1002
	PIDKeyHash                  ParamID = 0x0070
)

// BuiltinEndpointSet is the bitmask advertising which built-in
// endpoints a participant exposes (spec.md §3, §6).
type BuiltinEndpointSet uint32

const (
	EndpointParticipantAnnouncer  BuiltinEndpointSet = 1 << 0
	EndpointParticipantDetector   BuiltinEndpointSet = 1 << 1
	EndpointPublicationAnnouncer  BuiltinEndpointSet = 1 << 2
	EndpointPublicationDetector   BuiltinEndpointSet = 1 << 3
	EndpointSubscriptionAnnouncer BuiltinEndpointSet = 1 << 4
	EndpointSubscriptionDetector  BuiltinEndpointSet = 1 << 5
	EndpointParticipantMsgWriter  BuiltinEndpointSet = 1 << 10
	EndpointParticipantMsgReader  BuiltinEndpointSet = 1 << 11
	// Secure variants, Secure DDS spec §7.4.3.
	EndpointParticipantSecureAnnouncer BuiltinEndpointSet = 1 << 26
	EndpointParticipantSecureDetector  BuiltinEndpointSet = 1 << 27
	EndpointPublicationSecureAnnouncer BuiltinEndpointSet = 1 << 16
	EndpointPublicationSecureDetector  BuiltinEndpointSet = 1 << 17
	EndpointSubscriptionSecureAnnouncer BuiltinEndpointSet = 1 << 18
	EndpointSubscriptionSecureDetector  BuiltinEndpointSet = 1 << 19
	EndpointParticipantMsgSecureWriter  BuiltinEndpointSet = 1 << 20
	EndpointParticipantMsgSecureReader  BuiltinEndpointSet = 1 << 21
)

// Has reports whether every bit in want is set in s.
func (s BuiltinEndpointSet) Has(want BuiltinEndpointSet) bool { return s&want == want }

// SeqNum is an RTPS sequence number: a 64-bit signed count starting
// at 1; 0 and negative values are reserved.
type SeqNum int64

// Unknown is the reserved "no sequence number known" value.
const Unknown SeqNum = -1

// Header is the fixed RTPS message header (RTPS 9.4.2).
type Header struct {
	ProtoVer   ProtocolVersion
	VendorID   guid.VendorID
	GUIDPrefix guid.Prefix
}

// WriteTo serializes h per RTPS 9.4.2 (always big endian).
func (h Header) WriteTo(w io.Writer) (int64, error) {
	b := make([]byte, 8+guid.PrefixLen)
	binary.BigEndian.PutUint32(b[0:], Magic)
	b[4], b[5] = h.ProtoVer.Major, h.ProtoVer.Minor
	binary.BigEndian.PutUint16(b[6:], uint16(h.VendorID))
	copy(b[8:], h.GUIDPrefix[:])
	n, err := w.Write(b)
	return int64(n), err
}

// HeaderFromBytes decodes a Header from b.
func HeaderFromBytes(b []byte) (Header, int, error) {
	const hdrLen = 8 + guid.PrefixLen
	if len(b) < hdrLen {
		return Header{}, 0, io.ErrUnexpectedEOF
	}
	magic := binary.BigEndian.Uint32(b[0:])
	if magic != Magic {
		return Header{}, 0, fmt.Errorf("wire: bad magic 0x%08x", magic)
	}
	h := Header{
		ProtoVer: ProtocolVersion{Major: b[4], Minor: b[5]},
		VendorID: guid.VendorID(binary.BigEndian.Uint16(b[6:])),
	}
	copy(h.GUIDPrefix[:], b[8:hdrLen])
	return h, hdrLen, nil
}

// SubmsgHeader is the fixed 4-byte header preceding every submessage
// (RTPS 9.4.3.1).
type SubmsgHeader struct {
	ID    uint8
	Flags uint8
	Len   uint16 // octetsToNextHeader
}

func (s SubmsgHeader) order() binary.ByteOrder {
	if s.Flags&FlagEndianLittle != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (s SubmsgHeader) WriteTo(w io.Writer) (int64, error) {
	b := make([]byte, 4)
	b[0], b[1] = s.ID, s.Flags
	s.order().PutUint16(b[2:], s.Len)
	n, err := w.Write(b)
	return int64(n), err
}

// SubmsgHeaderFromBytes decodes a submessage header from b.
func SubmsgHeaderFromBytes(b []byte) (SubmsgHeader, error) {
	if len(b) < 4 {
		return SubmsgHeader{}, io.ErrUnexpectedEOF
	}
	h := SubmsgHeader{ID: b[0], Flags: b[1]}
	h.Len = h.order().Uint16(b[2:])
	return h, nil
}

// Param is one entry of a ParameterList: a PID plus its raw,
// 32-bit-aligned value bytes.
type Param struct {
	ID    ParamID
	Value []byte
}

func (p Param) WriteTo(w io.Writer) (int64, error) {
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(p.ID))
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(p.Value)))
	n1, err := w.Write(hdr[:])
	if err != nil {
		return int64(n1), err
	}
	n2, err := w.Write(p.Value)
	return int64(n1 + n2), err
}

// ParamString decodes a CDR string parameter value (length-prefixed,
// NUL-terminated, 32-bit aligned).
func (p Param) ParamString(order binary.ByteOrder) (string, error) {
	if len(p.Value) < 4 {
		return "", io.ErrUnexpectedEOF
	}
	sz := int(order.Uint32(p.Value[0:]))
	if sz == 0 || len(p.Value) < 4+sz {
		return "", io.ErrUnexpectedEOF
	}
	// sz includes the trailing NUL.
	return string(p.Value[4 : 4+sz-1]), nil
}

// PackString encodes s as a CDR string parameter value.
func PackString(order binary.ByteOrder, s string) []byte {
	raw := 4 + len(s) + 1
	aligned := (raw + 3) &^ 3
	b := make([]byte, aligned)
	order.PutUint32(b[0:], uint32(len(s)+1))
	copy(b[4:], s)
	return b
}

// ParamList decodes a sequence of Params terminated by PIDSentinel.
// Returns the decoded params and the number of bytes consumed
// (including the sentinel).
func ParamList(order binary.ByteOrder, b []byte) ([]Param, int, error) {
	var out []Param
	consumed := 0
	for len(b) >= 4 {
		id := ParamID(order.Uint16(b[0:]))
		sz := int(order.Uint16(b[2:]))
		if len(b) < 4+sz {
			return nil, 0, io.ErrUnexpectedEOF
		}
		p := Param{ID: id, Value: b[4 : 4+sz]}
		b = b[4+sz:]
		consumed += 4 + sz
		if id == PIDSentinel {
			return out, consumed, nil
		}
		out = append(out, p)
	}
	return nil, 0, io.ErrUnexpectedEOF
}

// WriteSentinel appends the PIDSentinel terminator to w.
func WriteSentinel(w io.Writer) (int64, error) {
	return Param{ID: PIDSentinel}.WriteTo(w)
}

// EncapsulationScheme precedes a ParameterList's serialized payload
// (RTPS 10.2).
type EncapsulationScheme struct {
	Scheme  uint16
	Options uint16
}

func (e EncapsulationScheme) WriteTo(w io.Writer) (int64, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:], e.Scheme)
	binary.LittleEndian.PutUint16(b[2:], e.Options)
	n, err := w.Write(b)
	return int64(n), err
}

// EncapsulationFromBytes decodes an EncapsulationScheme. The scheme
// id itself is always big endian; the options field follows the
// submessage's own endianness.
func EncapsulationFromBytes(order binary.ByteOrder, b []byte) (EncapsulationScheme, error) {
	if len(b) < 4 {
		return EncapsulationScheme{}, io.ErrUnexpectedEOF
	}
	return EncapsulationScheme{
		Scheme:  binary.BigEndian.Uint16(b[0:]),
		Options: order.Uint16(b[2:]),
	}, nil
}
