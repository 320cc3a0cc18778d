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

package session

import (
	"io"
	"net"

	"github.com/pkg/errors"

	"ppcb/stats"
	"ppcb/transport"
	"ppcb/wire"
)

// ClientUDP runs one transfer over a bare UDP socket. Like ClientTCP, DATA
// packets are streamed one after another with no per-packet acknowledgment;
// plain UDP carries no retransmission, so a lost CONN, DATA, CONACC or RCVD
// datagram is simply fatal. A datagram arriving from any address other than
// addr is a stray and is discarded without otherwise disturbing the
// session; since each discard takes another pass through the receive loop,
// and each pass applies a fresh MaxWait deadline, a stray also has the
// effect of extending the wait.
func ClientUDP(conn transport.PacketConn, addr net.Addr, sessionID uint64, payload []byte, counters *stats.Counters) error {
	s := &Session{ID: sessionID, Protocol: wire.UDP, TotalBytes: uint64(len(payload)), PeerAddr: addr}

	if err := transport.Send(conn, addr, wire.EncodeConn(wire.ConnPacket{
		SessionID:          sessionID,
		ProtocolID:         wire.UDP,
		ByteSequenceLength: s.TotalBytes,
	})); err != nil {
		return errors.Wrap(err, "session: send CONN")
	}
	if counters != nil {
		counters.AddConnSent()
	}

	buf := make([]byte, wire.BufferSize)
	resp, err := recvResponseFrom(conn, buf, addr)
	if err != nil {
		return errors.Wrap(err, "session: waiting for CONACC")
	}
	if err := ValidateResponse(resp, wire.CONACC, sessionID); err != nil {
		return errors.Wrap(err, "session: unexpected reply to CONN")
	}
	if counters != nil {
		counters.AddConnAcked()
	}

	for !s.Done() {
		n := s.ChunkSize()
		chunk := payload[s.BytesTransferred : s.BytesTransferred+uint64(n)]
		header := wire.DataHeader{SessionID: sessionID, PacketNumber: s.NextPacketNumber, PayloadLength: n}
		if err := transport.Send(conn, addr, wire.EncodeData(header, chunk)); err != nil {
			return errors.Wrap(err, "session: send DATA")
		}
		if counters != nil {
			counters.AddDataSent(n)
		}
		s.BytesTransferred += uint64(n)
		s.NextPacketNumber++
	}

	resp, err = recvResponseFrom(conn, buf, addr)
	if err != nil {
		return errors.Wrap(err, "session: waiting for RCVD")
	}
	if err := ValidateResponse(resp, wire.RCVD, sessionID); err != nil {
		return errors.Wrap(err, "session: unexpected reply after DATA")
	}
	if counters != nil {
		counters.AddCompleted()
	}
	return nil
}

// recvResponseFrom waits for a RESPONSE datagram from addr, silently
// discarding datagrams from anyone else and taking a fresh MaxWait on each
// attempt.
func recvResponseFrom(conn transport.PacketConn, buf []byte, addr net.Addr) (wire.ResponsePacket, error) {
	for {
		n, from, err := transport.Receive(conn, buf, MaxWait)
		if err != nil {
			return wire.ResponsePacket{}, err
		}
		if from.String() != addr.String() {
			continue
		}
		return wire.DecodeResponse(buf[:n])
	}
}

// ServeUDP handles one session on a shared UDP socket once the dispatcher
// (dispatch package) has read and decoded the peer's first CONN packet. Any
// datagram from an address other than peer is a stray: it gets a
// same-shaped rejection (CONRJT for a stray CONN, RJT for a stray DATA) and
// is otherwise ignored, matching server_receive_bytes's
// different_addresses() check in the reference server.
func ServeUDP(conn transport.PacketConn, peer net.Addr, firstConn wire.ConnPacket, out io.Writer, counters *stats.Counters) error {
	if !ValidConn(firstConn, map[byte]bool{wire.UDP: true}) {
		_ = transport.Send(conn, peer, wire.EncodeResponse(wire.CONRJT, firstConn.SessionID))
		if counters != nil {
			counters.AddConnRejected()
		}
		return errors.New("session: rejected CONN")
	}

	s := &Session{ID: firstConn.SessionID, Protocol: wire.UDP, TotalBytes: firstConn.ByteSequenceLength, PeerAddr: peer}
	if err := transport.Send(conn, peer, wire.EncodeResponse(wire.CONACC, s.ID)); err != nil {
		return errors.Wrap(err, "session: send CONACC")
	}
	if counters != nil {
		counters.AddConnAcked()
	}

	buf := make([]byte, wire.BufferSize)
	for !s.Done() {
		n, from, err := transport.Receive(conn, buf, MaxWait)
		if err != nil {
			if counters != nil {
				counters.AddAborted()
			}
			return errors.Wrap(err, "session: waiting for DATA")
		}
		if from.String() != peer.String() {
			rejectStray(conn, from, buf[:n], s.NextPacketNumber)
			continue
		}

		header, err := wire.DecodeDataHeader(buf[:n])
		if err != nil || !ValidData(header, wire.UDP, s.ID, s.NextPacketNumber, s.BytesTransferred, s.TotalBytes) {
			_ = transport.Send(conn, peer, wire.EncodePacketResponse(wire.RJT, s.ID, s.NextPacketNumber))
			if counters != nil {
				counters.AddReject()
				counters.AddAborted()
			}
			return errors.New("session: invalid DATA packet")
		}
		payload := buf[wire.DataHeaderSize():n]
		if uint32(len(payload)) != header.PayloadLength {
			_ = transport.Send(conn, peer, wire.EncodePacketResponse(wire.RJT, s.ID, s.NextPacketNumber))
			if counters != nil {
				counters.AddReject()
				counters.AddAborted()
			}
			return errors.New("session: datagram shorter than declared payload_length")
		}
		if _, err := out.Write(payload); err != nil {
			return errors.Wrap(err, "session: writing payload")
		}
		if counters != nil {
			counters.AddDataRecv(header.PayloadLength)
		}
		s.BytesTransferred += uint64(header.PayloadLength)
		s.NextPacketNumber++
	}

	if err := transport.Send(conn, peer, wire.EncodeResponse(wire.RCVD, s.ID)); err != nil {
		return errors.Wrap(err, "session: send RCVD")
	}
	if counters != nil {
		counters.AddCompleted()
	}
	return nil
}

// rejectStray answers an unexpected peer with whatever shape of rejection
// matches the id it sent, so a second client probing a busy server gets a
// definite CONRJT instead of silence. Neither reply echoes anything parsed
// from the stray datagram: session_id is always 0 and packet_number is
// always the session's own expected value, matching
// server_sends_RESPONSE_udp/server_sends_RJT_udp in the reference
// implementation, which are always called with a hardcoded 0 session_id and
// the session's own packet_number local rather than anything read off the
// stray packet.
func rejectStray(conn transport.PacketConn, from net.Addr, b []byte, nextPacketNumber uint64) {
	id, ok := wire.PeekID(b)
	if !ok {
		return
	}
	if id == wire.CONN {
		_ = transport.Send(conn, from, wire.EncodeResponse(wire.CONRJT, 0))
		return
	}
	if id != wire.DATA {
		return
	}
	if _, err := wire.DecodeDataHeader(b); err == nil {
		_ = transport.Send(conn, from, wire.EncodePacketResponse(wire.RJT, 0, nextPacketNumber))
	}
}
