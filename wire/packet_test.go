package wire

import (
	"bytes"
	"testing"
)

func TestConnRoundTrip(t *testing.T) {
	p := ConnPacket{SessionID: 0x0123456789abcdef, ProtocolID: TCP, ByteSequenceLength: 5}
	b := EncodeConn(p)
	if len(b) != connSize {
		t.Fatalf("unexpected CONN size: %d", len(b))
	}
	got, err := DecodeConn(b)
	if err != nil {
		t.Fatalf("DecodeConn: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestDecodeConnShort(t *testing.T) {
	if _, err := DecodeConn(make([]byte, connSize-1)); err == nil {
		t.Fatalf("expected error for short CONN buffer")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, id := range []byte{CONACC, CONRJT, RCVD} {
		b := EncodeResponse(id, 42)
		got, err := DecodeResponse(b)
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		if got.ID != id || got.SessionID != 42 {
			t.Fatalf("unexpected response: %+v", got)
		}
	}
}

func TestDataRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 10)
	h := DataHeader{SessionID: 7, PacketNumber: 3, PayloadLength: uint32(len(payload))}
	b := EncodeData(h, payload)
	if len(b) != dataHeaderSize+len(payload) {
		t.Fatalf("unexpected DATA size: %d", len(b))
	}
	gotHeader, err := DecodeDataHeader(b)
	if err != nil {
		t.Fatalf("DecodeDataHeader: %v", err)
	}
	if gotHeader != h {
		t.Fatalf("header mismatch: got %+v, want %+v", gotHeader, h)
	}
	if !bytes.Equal(b[dataHeaderSize:], payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeDataHeaderShort(t *testing.T) {
	if _, err := DecodeDataHeader(make([]byte, dataHeaderSize-1)); err == nil {
		t.Fatalf("expected error for short DATA header")
	}
}

func TestPacketResponseRoundTrip(t *testing.T) {
	for _, id := range []byte{ACC, RJT} {
		b := EncodePacketResponse(id, 9, 4)
		got, err := DecodePacketResponse(b)
		if err != nil {
			t.Fatalf("DecodePacketResponse: %v", err)
		}
		if got.ID != id || got.SessionID != 9 || got.PacketNumber != 4 {
			t.Fatalf("unexpected packet response: %+v", got)
		}
	}
}

func TestPeekID(t *testing.T) {
	b := EncodeResponse(RCVD, 1)
	id, ok := PeekID(b)
	if !ok || id != RCVD {
		t.Fatalf("PeekID = %d, %v", id, ok)
	}
	if _, ok := PeekID(nil); ok {
		t.Fatalf("PeekID on empty buffer should fail")
	}
}

func TestSessionIDNotByteSwapped(t *testing.T) {
	// session_id must round-trip through EncodeConn/DecodeConn and
	// EncodeResponse/DecodeResponse using the exact same convention,
	// since the two ends of a session never coordinate endianness for it.
	const id = uint64(0xfeedfacecafebeef)
	connBytes := EncodeConn(ConnPacket{SessionID: id, ProtocolID: UDP, ByteSequenceLength: 1})
	respBytes := EncodeResponse(CONACC, id)
	if !bytes.Equal(connBytes[1:9], respBytes[1:9]) {
		t.Fatalf("session_id encoding differs between packet shapes")
	}
}
