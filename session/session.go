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

// Package session implements the CONN->DATA*->RCVD exchange for all three
// ppcb transports. Each transport gets its own client/server pair (tcp.go,
// udp.go, udpr.go) built on top of the shared Session bookkeeping and
// validation rules in this file and validate.go.
package session

import (
	"net"
	"time"

	"ppcb/wire"
)

// MaxWait is the per-operation receive timeout used everywhere except the
// UDP/UDPR server's wait for the very first CONN on the shared socket.
const MaxWait = 5 * time.Second

// MaxRetransmits bounds UDPR's retry budget: MaxRetransmits+1 total attempts
// per exchange step.
const MaxRetransmits = 3

// Session is the in-memory state of one end-to-end transfer. It is created
// when a CONN is sent (client) or accepted (server) and discarded on a
// terminal RCVD or any fatal error.
type Session struct {
	ID               uint64
	Protocol         byte
	TotalBytes       uint64
	PeerAddr         net.Addr
	BytesTransferred uint64
	NextPacketNumber uint64
}

// Remaining reports how many bytes are still expected for this session.
func (s *Session) Remaining() uint64 {
	return s.TotalBytes - s.BytesTransferred
}

// Done reports whether the full byte sequence has arrived.
func (s *Session) Done() bool {
	return s.BytesTransferred >= s.TotalBytes
}

// ChunkSize returns how large the next DATA payload should be, honoring
// both MaxPacketSize and the bytes remaining in the sequence.
func (s *Session) ChunkSize() uint32 {
	remaining := s.Remaining()
	if remaining > wire.MaxPacketSize {
		return wire.MaxPacketSize
	}
	return uint32(remaining)
}
