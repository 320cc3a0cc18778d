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
	"time"

	"github.com/pkg/errors"

	"ppcb/stats"
	"ppcb/transport"
	"ppcb/wire"
)

// ErrRetransmitsExhausted is returned when MaxRetransmits resends of the
// same packet all timed out.
var ErrRetransmitsExhausted = errors.New("session: retransmits exhausted")

// ClientUDPR runs one transfer with stop-and-wait retransmission: every CONN
// and DATA packet gets up to MaxRetransmits resends if its reply doesn't
// arrive within MaxWait. A stray datagram (wrong peer address) is discarded
// without consuming any of the retry budget and, because the next receive
// call starts a fresh MaxWait, effectively extends the current wait — this
// matches the reference client, which doesn't distinguish "ignored noise"
// from "still waiting".
func ClientUDPR(conn transport.PacketConn, addr net.Addr, sessionID uint64, payload []byte, counters *stats.Counters) error {
	s := &Session{ID: sessionID, Protocol: wire.UDPR, TotalBytes: uint64(len(payload)), PeerAddr: addr}
	buf := make([]byte, wire.BufferSize)

	connPkt := wire.EncodeConn(wire.ConnPacket{
		SessionID:          sessionID,
		ProtocolID:         wire.UDPR,
		ByteSequenceLength: s.TotalBytes,
	})
	resp, err := retransmitUntil(conn, addr, connPkt, buf, counters, func(b []byte) (wire.ResponsePacket, bool, error) {
		id, ok := wire.PeekID(b)
		if !ok || (id != wire.CONACC && id != wire.CONRJT) {
			return wire.ResponsePacket{}, false, nil
		}
		r, derr := wire.DecodeResponse(b)
		return r, true, derr
	})
	if err != nil {
		return errors.Wrap(err, "session: establishing connection")
	}
	if resp.ID == wire.CONRJT {
		return errors.New("session: server refused connection")
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
		dataPkt := wire.EncodeData(header, chunk)

		type reply struct {
			id  byte
			sid uint64
			pn  uint64
		}
		r, err := retransmitUntil(conn, addr, dataPkt, buf, counters, func(b []byte) (reply, bool, error) {
			id, ok := wire.PeekID(b)
			if !ok {
				return reply{}, false, nil
			}
			if id == wire.RCVD {
				resp, derr := wire.DecodeResponse(b)
				return reply{id: resp.ID, sid: resp.SessionID}, true, derr
			}
			if id == wire.ACC || id == wire.RJT {
				pr, derr := wire.DecodePacketResponse(b)
				if derr != nil {
					return reply{}, false, derr
				}
				// A reply for any packet_number but the one just sent is
				// stale (an earlier attempt's reply arriving late): keep
				// waiting for the current one instead of resending or
				// failing.
				if pr.PacketNumber != header.PacketNumber {
					return reply{}, false, nil
				}
				return reply{id: pr.ID, sid: pr.SessionID, pn: pr.PacketNumber}, true, nil
			}
			return reply{}, false, nil
		})
		if err != nil {
			return errors.Wrap(err, "session: sending DATA")
		}
		if r.sid != sessionID {
			return errors.New("session: reply session id mismatch")
		}
		switch r.id {
		case wire.RCVD:
			s.BytesTransferred += uint64(n)
			if counters != nil {
				counters.AddCompleted()
			}
			if !s.Done() {
				return errors.New("session: server closed transfer early")
			}
			return nil
		case wire.ACC:
			s.BytesTransferred += uint64(n)
			s.NextPacketNumber++
		case wire.RJT:
			if counters != nil {
				counters.AddReject()
			}
			return errors.Errorf("session: server rejected packet %d", r.pn)
		}
	}
	return nil
}

// retransmitUntil sends pkt to addr, then waits up to MaxWait for a
// datagram from addr that accept takes (accept returns ok=true). Stray
// datagrams from other addresses, and datagrams from addr that accept
// passes over (ok=false), are discarded without effect. On a genuine timeout
// the packet is resent, up to MaxRetransmits times.
func retransmitUntil[T any](conn transport.PacketConn, addr net.Addr, pkt []byte, buf []byte, counters *stats.Counters, accept func([]byte) (T, bool, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := transport.Send(conn, addr, pkt); err != nil {
			return zero, errors.Wrap(err, "send")
		}
		if counters != nil {
			if attempt == 0 {
				if id, _ := wire.PeekID(pkt); id == wire.DATA {
					counters.AddDataSent(uint32(len(pkt) - wire.DataHeaderSize()))
				} else {
					counters.AddConnSent()
				}
			} else {
				counters.AddRetransmit()
			}
		}

		for {
			n, from, err := transport.Receive(conn, buf, MaxWait)
			if err == transport.ErrTimeout {
				break // fall through to resend
			}
			if err != nil {
				return zero, err
			}
			if from.String() != addr.String() {
				continue
			}
			val, ok, derr := accept(buf[:n])
			if derr != nil {
				return zero, derr
			}
			if !ok {
				continue
			}
			return val, nil
		}

		if attempt >= MaxRetransmits {
			return zero, ErrRetransmitsExhausted
		}
	}
}

// ServeUDPR handles one UDPR session once the dispatcher has decoded the
// peer's first CONN. The server owns its own per-step retry budget,
// mirroring exchange_server in the reference implementation: each pending
// confirmation (CONACC for the connection step, or an ACC for each DATA
// step) is resent on the server's OWN receive timeout, never reactively the
// instant a duplicate is observed. A duplicate CONN, or a DATA packet at or
// below the packet_number already accepted, is silently ignored — it costs
// the client nothing, but it doesn't make the server resend early either.
func ServeUDPR(conn transport.PacketConn, peer net.Addr, firstConn wire.ConnPacket, out io.Writer, counters *stats.Counters) error {
	if !ValidConn(firstConn, map[byte]bool{wire.UDPR: true}) {
		_ = transport.Send(conn, peer, wire.EncodeResponse(wire.CONRJT, firstConn.SessionID))
		if counters != nil {
			counters.AddConnRejected()
		}
		return errors.New("session: rejected CONN")
	}

	s := &Session{ID: firstConn.SessionID, Protocol: wire.UDPR, TotalBytes: firstConn.ByteSequenceLength, PeerAddr: peer}
	if counters != nil {
		counters.AddConnAcked()
	}

	buf := make([]byte, wire.BufferSize)
	confirm := wire.EncodeResponse(wire.CONACC, s.ID)
	for !s.Done() {
		header, payload, err := confirmUntilNextData(conn, peer, confirm, buf, s, counters)
		if err != nil {
			if counters != nil {
				counters.AddAborted()
			}
			return errors.Wrap(err, "session: confirming step")
		}
		if !ValidData(header, wire.UDPR, s.ID, s.NextPacketNumber, s.BytesTransferred, s.TotalBytes) || header.PacketNumber != s.NextPacketNumber || uint64(header.PayloadLength) > s.Remaining() {
			_ = transport.Send(conn, peer, wire.EncodePacketResponse(wire.RJT, s.ID, s.NextPacketNumber))
			if counters != nil {
				counters.AddReject()
				counters.AddAborted()
			}
			return errors.New("session: invalid DATA packet")
		}
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
		confirm = wire.EncodePacketResponse(wire.ACC, s.ID, s.NextPacketNumber-1)
	}

	// The final DATA packet gets no ACC: RCVD alone answers it, sent exactly
	// once with no further receive (ClientUDPR takes RCVD as the reply to its
	// last DATA). A client that never sees RCVD is left to exhaust its own
	// retransmit budget rather than have the (single-threaded) server wait
	// here for a possible duplicate.
	if err := transport.Send(conn, peer, wire.EncodeResponse(wire.RCVD, s.ID)); err != nil {
		return errors.Wrap(err, "session: send RCVD")
	}
	if counters != nil {
		counters.AddCompleted()
	}
	return nil
}

// confirmUntilNextData resends confirm (the reply to whatever the client
// last sent) and waits MaxWait for the client's next DATA packet, up to
// MaxRetransmits times. A duplicate CONN, or a DATA packet below
// s.NextPacketNumber, is silently ignored within the same attempt rather
// than triggering an immediate resend; only the attempt's own timeout does.
func confirmUntilNextData(conn transport.PacketConn, peer net.Addr, confirm []byte, buf []byte, s *Session, counters *stats.Counters) (wire.DataHeader, []byte, error) {
	for attempt := 0; ; attempt++ {
		if err := transport.Send(conn, peer, confirm); err != nil {
			return wire.DataHeader{}, nil, errors.Wrap(err, "send confirm")
		}
		if attempt > 0 && counters != nil {
			counters.AddRetransmit()
		}

		deadline := time.Now().Add(MaxWait)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			n, from, err := transport.Receive(conn, buf, remaining)
			if err == transport.ErrTimeout {
				break
			}
			if err != nil {
				return wire.DataHeader{}, nil, err
			}
			if from.String() != peer.String() {
				rejectStray(conn, from, buf[:n], s.NextPacketNumber)
				continue
			}
			id, ok := wire.PeekID(buf[:n])
			if !ok || id == wire.CONN {
				continue
			}
			if id != wire.DATA {
				continue
			}
			header, derr := wire.DecodeDataHeader(buf[:n])
			if derr != nil || header.SessionID != s.ID || header.PacketNumber < s.NextPacketNumber {
				continue
			}
			return header, buf[wire.DataHeaderSize():n], nil
		}

		if attempt >= MaxRetransmits {
			return wire.DataHeader{}, nil, ErrRetransmitsExhausted
		}
	}
}
