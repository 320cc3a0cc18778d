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

// ClientTCP runs one full transfer over an already-dialed TCP connection.
// TCP's own reliability means the DATA stream is sent back to back with no
// per-packet acknowledgment: only the CONN/CONACC handshake and the final
// RCVD are actual round trips. Any error at any step is fatal; there is
// nothing to retry over a stream that is itself guaranteed to deliver what
// was written.
func ClientTCP(conn net.Conn, sessionID uint64, payload []byte, counters *stats.Counters) error {
	s := &Session{ID: sessionID, Protocol: wire.TCP, TotalBytes: uint64(len(payload))}

	if err := transport.WriteExact(conn, wire.EncodeConn(wire.ConnPacket{
		SessionID:          sessionID,
		ProtocolID:         wire.TCP,
		ByteSequenceLength: s.TotalBytes,
	})); err != nil {
		return errors.Wrap(err, "session: send CONN")
	}
	if counters != nil {
		counters.AddConnSent()
	}

	respBuf := make([]byte, wire.ResponseSize())
	if _, err := transport.ReadExact(conn, respBuf, MaxWait); err != nil {
		return errors.Wrap(err, "session: waiting for CONACC")
	}
	resp, err := wire.DecodeResponse(respBuf)
	if err != nil {
		return errors.Wrap(err, "session: decode CONACC")
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
		if err := transport.WriteExact(conn, wire.EncodeData(header, chunk)); err != nil {
			return errors.Wrap(err, "session: send DATA")
		}
		if counters != nil {
			counters.AddDataSent(n)
		}
		s.BytesTransferred += uint64(n)
		s.NextPacketNumber++
	}

	if _, err := transport.ReadExact(conn, respBuf, MaxWait); err != nil {
		return errors.Wrap(err, "session: waiting for RCVD")
	}
	resp, err = wire.DecodeResponse(respBuf)
	if err != nil {
		return errors.Wrap(err, "session: decode RCVD")
	}
	if err := ValidateResponse(resp, wire.RCVD, sessionID); err != nil {
		return errors.Wrap(err, "session: unexpected reply after DATA")
	}
	if counters != nil {
		counters.AddCompleted()
	}
	return nil
}

// ServeTCP handles one accepted TCP connection end to end: reads the CONN,
// replies CONACC/CONRJT, reads DATA packets until byte_sequence_length
// bytes have arrived writing their payloads to out, and finally replies
// RCVD. A CONRJT is only owed back when the offending datagram genuinely
// decoded as a CONN (wrong protocol_id or a zero length); anything that
// fails to even look like a CONN (a short read, a timeout, garbage) is
// abandoned without a reply, since there is no well-formed session_id to
// address it to. The same asymmetry governs RJT during the DATA phase: it
// is sent once a DATA header decodes but then proves invalid, or its
// payload fails to arrive, so the client gets a definite answer instead of
// a connection that silently stops responding (server_receive_bytes in the
// reference implementation).
func ServeTCP(conn net.Conn, out io.Writer, counters *stats.Counters) error {
	connBuf := make([]byte, wire.ConnSize())
	if _, err := transport.ReadExact(conn, connBuf, MaxWait); err != nil {
		return errors.Wrap(err, "session: waiting for CONN")
	}
	cp, err := wire.DecodeConn(connBuf)
	if err != nil {
		return errors.Wrap(err, "session: decode CONN")
	}

	if id, _ := wire.ConnID(connBuf); id != wire.CONN {
		return errors.Errorf("session: expected CONN, got id %d", id)
	}
	if !ValidConn(cp, map[byte]bool{wire.TCP: true}) {
		_ = transport.WriteExact(conn, wire.EncodeResponse(wire.CONRJT, cp.SessionID))
		if counters != nil {
			counters.AddConnRejected()
		}
		return errors.New("session: rejected CONN")
	}

	s := &Session{ID: cp.SessionID, Protocol: wire.TCP, TotalBytes: cp.ByteSequenceLength, PeerAddr: conn.RemoteAddr()}
	if err := transport.WriteExact(conn, wire.EncodeResponse(wire.CONACC, s.ID)); err != nil {
		return errors.Wrap(err, "session: send CONACC")
	}
	if counters != nil {
		counters.AddConnAcked()
	}

	buf := make([]byte, wire.BufferSize)
	for !s.Done() {
		header, payload, rerr := readDataPacket(conn, buf)
		if rerr != nil {
			if header.SessionID == s.ID {
				_ = transport.WriteExact(conn, wire.EncodePacketResponse(wire.RJT, s.ID, s.NextPacketNumber))
				if counters != nil {
					counters.AddReject()
				}
			}
			if counters != nil {
				counters.AddAborted()
			}
			return errors.Wrap(rerr, "session: reading DATA")
		}
		if !ValidData(header, wire.TCP, s.ID, s.NextPacketNumber, s.BytesTransferred, s.TotalBytes) {
			_ = transport.WriteExact(conn, wire.EncodePacketResponse(wire.RJT, s.ID, s.NextPacketNumber))
			if counters != nil {
				counters.AddReject()
				counters.AddAborted()
			}
			return errors.New("session: invalid DATA packet")
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

	if err := transport.WriteExact(conn, wire.EncodeResponse(wire.RCVD, s.ID)); err != nil {
		return errors.Wrap(err, "session: send RCVD")
	}
	if counters != nil {
		counters.AddCompleted()
	}
	return nil
}

// readDataPacket reads one DATA packet's header, then its declared payload.
// The header is decoded and returned even on a payload read error so the
// caller can still target an RJT at the right session. A packet whose id is
// not DATA comes back with an empty header, so it gets no RJT.
func readDataPacket(conn net.Conn, buf []byte) (wire.DataHeader, []byte, error) {
	headerBuf := buf[:wire.DataHeaderSize()]
	if _, err := transport.ReadExact(conn, headerBuf, MaxWait); err != nil {
		return wire.DataHeader{}, nil, err
	}
	if headerBuf[0] != wire.DATA {
		return wire.DataHeader{}, nil, errors.Errorf("session: expected DATA, got id %d", headerBuf[0])
	}
	header, err := wire.DecodeDataHeader(headerBuf)
	if err != nil {
		return wire.DataHeader{}, nil, err
	}
	if header.PayloadLength > wire.MaxPacketSize {
		return header, nil, errors.New("session: payload_length exceeds maximum")
	}
	payload := buf[wire.DataHeaderSize() : wire.DataHeaderSize()+int(header.PayloadLength)]
	if _, err := transport.ReadExact(conn, payload, MaxWait); err != nil {
		return header, nil, err
	}
	return header, payload, nil
}
