// Package rtpstime codecs the RTPS wire representation of time and
// duration values: NTP-style seconds + fraction-of-a-second (RTPS
// 9.3.3), expressed here in terms of the standard library's time.Time
// and time.Duration.
package rtpstime

import (
	"encoding/binary"
	"io"
	"time"
)

const nanosPerSec = 1e9

// Infinite is the reserved "no expiration" duration value (seconds
// 0x7fffffff, fraction 0xffffffff on the wire), used by QoS policies such as DEADLINE when the
// policy is not bounded.
var Infinite = time.Duration(1<<63 - 1)

// FromBytes decodes an 8-byte NTP-style timestamp.
func FromBytes(order binary.ByteOrder, b []byte) (time.Time, error) {
	if len(b) < 8 {
		return time.Time{}, io.ErrUnexpectedEOF
	}
	sec := int64(order.Uint32(b[0:]))
	frac := int64(order.Uint32(b[4:]))
	return time.Unix(sec, (frac*nanosPerSec)>>32).UTC(), nil
}

// Bytes encodes t as an 8-byte NTP-style timestamp.
func Bytes(t time.Time, order binary.ByteOrder) []byte {
	sec := uint32(t.Unix())
	frac := uint32((nanosPerSec - 1 + (int64(t.Nanosecond()) << 32)) / nanosPerSec)

	b := make([]byte, 8)
	order.PutUint32(b[0:], sec)
	order.PutUint32(b[4:], frac)
	return b
}

// DurationBytes encodes d as the RTPS {seconds int32, fraction uint32}
// duration layout.
func DurationBytes(d time.Duration, order binary.ByteOrder) []byte {
	b := make([]byte, 8)
	if d >= Infinite {
		order.PutUint32(b[0:], 0x7fffffff)
		order.PutUint32(b[4:], 0xffffffff)
		return b
	}
	nsec := d.Nanoseconds()
	order.PutUint32(b[0:], uint32(nsec/nanosPerSec))
	order.PutUint32(b[4:], uint32((nanosPerSec-1+((nsec%nanosPerSec)<<32))/nanosPerSec))
	return b
}

// DurationFromBytes decodes an 8-byte RTPS duration.
func DurationFromBytes(order binary.ByteOrder, b []byte) (time.Duration, error) {
	if len(b) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	sec := order.Uint32(b[0:])
	frac := order.Uint32(b[4:])
	if sec == 0x7fffffff && frac == 0xffffffff {
		return Infinite, nil
	}
	return time.Duration(sec)*time.Second + time.Duration((int64(frac)*nanosPerSec)>>32), nil
}
