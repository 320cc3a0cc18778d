// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package wire encodes and decodes the four ppcb packet shapes. Multi-byte
// length fields go on the wire big-endian; session_id is carried as an
// opaque 8-byte value and is never byte-swapped, matching the reference
// encoder (set_CONN et al. in ppcb-common.c, which htobe64/htobe32 the
// length fields but assign session_id straight through).
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Packet ids.
const (
	CONN   = 1
	CONACC = 2
	CONRJT = 3
	DATA   = 4
	ACC    = 5
	RJT    = 6
	RCVD   = 7
)

// Protocol ids.
const (
	TCP  = 1
	UDP  = 2
	UDPR = 3
)

// MaxPacketSize bounds the payload of a single DATA packet.
const MaxPacketSize = 64000

// BufferSize is the scratch buffer size, large enough for the fixed DATA
// header plus MaxPacketSize bytes of payload.
const BufferSize = 64500

const (
	connSize           = 1 + 8 + 1 + 8 // id, session_id, protocol_id, byte_sequence_length
	responseSize       = 1 + 8         // id, session_id
	dataHeaderSize     = 1 + 8 + 8 + 4 // id, session_id, packet_number, payload_length
	packetResponseSize = 1 + 8 + 8     // id, session_id, packet_number
)

// DataHeaderSize reports the size in bytes of a DATA packet header (without payload).
func DataHeaderSize() int { return dataHeaderSize }

// ConnSize reports the wire size of a CONN packet.
func ConnSize() int { return connSize }

// ConnPacket is the CONN packet: a client's announcement of a new session.
type ConnPacket struct {
	SessionID           uint64
	ProtocolID          byte
	ByteSequenceLength  uint64
}

// EncodeConn serializes a CONN packet.
func EncodeConn(p ConnPacket) []byte {
	b := make([]byte, connSize)
	b[0] = CONN
	putSessionID(b[1:9], p.SessionID)
	b[9] = p.ProtocolID
	binary.BigEndian.PutUint64(b[10:18], p.ByteSequenceLength)
	return b
}

// DecodeConn parses a CONN packet. It does not validate field semantics.
func DecodeConn(b []byte) (ConnPacket, error) {
	if len(b) < connSize {
		return ConnPacket{}, errors.New("wire: short CONN buffer")
	}
	return ConnPacket{
		SessionID:          getSessionID(b[1:9]),
		ProtocolID:         b[9],
		ByteSequenceLength: binary.BigEndian.Uint64(b[10:18]),
	}, nil
}

// ConnID returns the id byte of a buffer believed to hold a CONN packet,
// without requiring the rest of the packet to be well formed. Used to decide
// whether a short/garbled receive still deserves a CONRJT.
func ConnID(b []byte) (byte, bool) {
	if len(b) < 1 {
		return 0, false
	}
	return b[0], true
}

// ResponsePacket is the shape shared by CONACC, CONRJT and RCVD.
type ResponsePacket struct {
	ID        byte
	SessionID uint64
}

// EncodeResponse serializes a RESPONSE packet (CONACC/CONRJT/RCVD).
func EncodeResponse(id byte, sessionID uint64) []byte {
	b := make([]byte, responseSize)
	b[0] = id
	putSessionID(b[1:9], sessionID)
	return b
}

// DecodeResponse parses a RESPONSE packet.
func DecodeResponse(b []byte) (ResponsePacket, error) {
	if len(b) < responseSize {
		return ResponsePacket{}, errors.New("wire: short RESPONSE buffer")
	}
	return ResponsePacket{ID: b[0], SessionID: getSessionID(b[1:9])}, nil
}

// ResponseSize reports the wire size of a RESPONSE packet.
func ResponseSize() int { return responseSize }

// DataHeader is the fixed portion of a DATA packet; the payload follows it
// on the wire but is handled separately by callers to avoid an extra copy.
type DataHeader struct {
	SessionID     uint64
	PacketNumber  uint64
	PayloadLength uint32
}

// EncodeDataHeader serializes just the DATA header.
func EncodeDataHeader(h DataHeader) []byte {
	b := make([]byte, dataHeaderSize)
	b[0] = DATA
	putSessionID(b[1:9], h.SessionID)
	binary.BigEndian.PutUint64(b[9:17], h.PacketNumber)
	binary.BigEndian.PutUint32(b[17:21], h.PayloadLength)
	return b
}

// EncodeData serializes a full DATA packet: header followed by payload.
// len(payload) must equal h.PayloadLength.
func EncodeData(h DataHeader, payload []byte) []byte {
	b := make([]byte, dataHeaderSize+len(payload))
	copy(b, EncodeDataHeader(h))
	copy(b[dataHeaderSize:], payload)
	return b
}

// DecodeDataHeader parses the fixed portion of a DATA packet. Callers must
// separately read/validate PayloadLength bytes of payload.
func DecodeDataHeader(b []byte) (DataHeader, error) {
	if len(b) < dataHeaderSize {
		return DataHeader{}, errors.New("wire: short DATA header buffer")
	}
	return DataHeader{
		SessionID:     getSessionID(b[1:9]),
		PacketNumber:  binary.BigEndian.Uint64(b[9:17]),
		PayloadLength: binary.BigEndian.Uint32(b[17:21]),
	}, nil
}

// PacketResponse is the shape shared by ACC and RJT.
type PacketResponse struct {
	ID           byte
	SessionID    uint64
	PacketNumber uint64
}

// EncodePacketResponse serializes an ACC/RJT packet.
func EncodePacketResponse(id byte, sessionID, packetNumber uint64) []byte {
	b := make([]byte, packetResponseSize)
	b[0] = id
	putSessionID(b[1:9], sessionID)
	binary.BigEndian.PutUint64(b[9:17], packetNumber)
	return b
}

// DecodePacketResponse parses an ACC/RJT packet.
func DecodePacketResponse(b []byte) (PacketResponse, error) {
	if len(b) < packetResponseSize {
		return PacketResponse{}, errors.New("wire: short PACKET_RESPONSE buffer")
	}
	return PacketResponse{
		ID:           b[0],
		SessionID:    getSessionID(b[1:9]),
		PacketNumber: binary.BigEndian.Uint64(b[9:17]),
	}, nil
}

// PacketResponseSize reports the wire size of an ACC/RJT packet.
func PacketResponseSize() int { return packetResponseSize }

// PeekID reports the id byte of any packet buffer, for dispatch-time
// branching before the shape is known.
func PeekID(b []byte) (byte, bool) {
	if len(b) < 1 {
		return 0, false
	}
	return b[0], true
}

// putSessionID and getSessionID keep session_id as an opaque 8-byte value:
// one fixed in-memory layout, copied verbatim, never byte-swapped. Both ends
// of a session run this same code so the convention only has to agree with
// itself.
func putSessionID(dst []byte, id uint64) {
	binary.LittleEndian.PutUint64(dst, id)
}

func getSessionID(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}
