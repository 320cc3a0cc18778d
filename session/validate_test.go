package session

import (
	"testing"

	"ppcb/wire"
)

func TestValidConn(t *testing.T) {
	allowed := map[byte]bool{wire.TCP: true}
	if !ValidConn(wire.ConnPacket{ProtocolID: wire.TCP, ByteSequenceLength: 5}, allowed) {
		t.Fatalf("expected valid CONN")
	}
	if ValidConn(wire.ConnPacket{ProtocolID: wire.UDP, ByteSequenceLength: 5}, allowed) {
		t.Fatalf("expected protocol mismatch to be rejected")
	}
	if ValidConn(wire.ConnPacket{ProtocolID: wire.TCP, ByteSequenceLength: 0}, allowed) {
		t.Fatalf("expected zero length to be rejected")
	}
}

func TestValidateResponse(t *testing.T) {
	p := wire.ResponsePacket{ID: wire.CONACC, SessionID: 7}
	if err := ValidateResponse(p, wire.CONACC, 7); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := ValidateResponse(p, wire.RCVD, 7); err == nil {
		t.Fatalf("expected id mismatch to fail")
	}
	if err := ValidateResponse(p, wire.CONACC, 8); err == nil {
		t.Fatalf("expected session mismatch to fail")
	}
}

func TestValidDataTCP(t *testing.T) {
	h := wire.DataHeader{SessionID: 1, PacketNumber: 0, PayloadLength: 10}
	if !ValidData(h, wire.TCP, 1, 0, 0, 100) {
		t.Fatalf("expected valid DATA")
	}
	if ValidData(h, wire.TCP, 1, 1, 0, 100) {
		t.Fatalf("wrong packet_number should be rejected outside UDPR")
	}
	overrun := wire.DataHeader{SessionID: 1, PacketNumber: 0, PayloadLength: 50}
	if ValidData(overrun, wire.TCP, 1, 0, 60, 100) {
		t.Fatalf("payload exceeding remaining bytes should be rejected")
	}
	zero := wire.DataHeader{SessionID: 1, PacketNumber: 0, PayloadLength: 0}
	if ValidData(zero, wire.TCP, 1, 0, 0, 100) {
		t.Fatalf("zero payload length should be rejected")
	}
	tooBig := wire.DataHeader{SessionID: 1, PacketNumber: 0, PayloadLength: wire.MaxPacketSize + 1}
	if ValidData(tooBig, wire.TCP, 1, 0, 0, 1<<20) {
		t.Fatalf("oversize payload length should be rejected")
	}
}

func TestValidDataUDPRAcceptsDuplicates(t *testing.T) {
	dup := wire.DataHeader{SessionID: 1, PacketNumber: 2, PayloadLength: 10}
	if !ValidData(dup, wire.UDPR, 1, 5, 0, 1000) {
		t.Fatalf("UDPR should accept packet_number <= expected")
	}
	future := wire.DataHeader{SessionID: 1, PacketNumber: 6, PayloadLength: 10}
	if ValidData(future, wire.UDPR, 1, 5, 0, 1000) {
		t.Fatalf("UDPR should reject packet_number > expected")
	}
}
