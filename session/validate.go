package session

import (
	"github.com/pkg/errors"

	"ppcb/wire"
)

// ErrInvalidResponse is returned when a RESPONSE packet (CONACC/CONRJT/RCVD)
// does not carry the id or session the caller expected.
var ErrInvalidResponse = errors.New("session: unexpected response packet")

// ValidConn reports whether a decoded CONN packet is acceptable: its
// protocol_id must be one of allowed and its byte_sequence_length must be
// positive. The id byte itself is checked by the caller (ServeTCP in tcp.go,
// RunDatagram in the dispatch package), since a non-CONN id changes whether
// a CONRJT is owed at all.
func ValidConn(p wire.ConnPacket, allowed map[byte]bool) bool {
	return allowed[p.ProtocolID] && p.ByteSequenceLength > 0
}

// ValidateResponse checks a decoded RESPONSE packet against the id and
// session the caller is waiting for.
func ValidateResponse(p wire.ResponsePacket, expectedID byte, sessionID uint64) error {
	if p.ID != expectedID {
		return errors.Wrapf(ErrInvalidResponse, "got id %d, want %d", p.ID, expectedID)
	}
	if p.SessionID != sessionID {
		return errors.Wrap(ErrInvalidResponse, "session id mismatch")
	}
	return nil
}

// ValidData reports whether a decoded DATA header is acceptable, given the
// session it must belong to, the packet_number the caller expects next, how
// many bytes have already been received, and the transfer's total length.
//
// UDPR tolerates packet_number <= expected (an earlier number is a
// duplicate to discard, see udpr.go); every other transport requires exact
// equality plus that the new payload doesn't overrun the declared total.
func ValidData(h wire.DataHeader, protocol byte, sessionID, expectedPN, bytesReceived, total uint64) bool {
	if h.SessionID != sessionID {
		return false
	}
	if h.PayloadLength < 1 || h.PayloadLength > wire.MaxPacketSize {
		return false
	}
	if protocol == wire.UDPR {
		return h.PacketNumber <= expectedPN
	}
	return h.PacketNumber == expectedPN && uint64(h.PayloadLength) <= total-bytesReceived
}
