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

// Package transport provides the stream and datagram I/O primitives the
// session state machines are built on: read-exact/write-exact for TCP, and
// a send/receive pair for UDP that reports timeouts distinctly from both
// I/O errors and genuine zero-length datagrams. It is the Go analogue of
// readn/writen and send_packet_udp/receive_packet_udp in
// original_source/src/ppcb-common.c.
package transport

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by ReadExact and Receive when the per-operation
// receive deadline elapses before any (or all) of the expected data arrives.
var ErrTimeout = errors.New("transport: receive timeout")

// ErrClosed mirrors an EOF observed before the requested byte count was read.
var ErrClosed = errors.New("transport: connection closed before requested length")

// ReadExact reads exactly len(buf) bytes from conn, looping over partial
// reads the way readn() does. It applies the given deadline before reading
// (a zero deadline disables the deadline). It distinguishes a timeout from
// a clean EOF so callers can tell "nothing arrived in time" from "the peer
// hung up mid-message".
func ReadExact(conn net.Conn, buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, errors.Wrap(err, "set read deadline")
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	n, err := io.ReadFull(conn, buf)
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, ErrTimeout
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, ErrClosed
	}
	return n, errors.Wrap(err, "readn")
}

// WriteExact writes every byte of buf to conn, looping over partial writes
// the way writen() does.
func WriteExact(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if n <= 0 && err == nil {
			return errors.New("writen: zero-length write with no error")
		}
		total += n
		if err != nil {
			return errors.Wrap(err, "writen")
		}
	}
	return nil
}

// PacketConn is the subset of *net.UDPConn that Send/Receive need, narrowed
// so tests can exercise the package without a real socket.
type PacketConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
}

// Send writes a single datagram in one call; a short write is an error,
// matching send_packet_udp's expectation that sendto() either writes the
// whole buffer or fails.
func Send(conn PacketConn, addr net.Addr, buf []byte) error {
	n, err := conn.WriteTo(buf, addr)
	if err != nil {
		return errors.Wrap(err, "sendto")
	}
	if n != len(buf) {
		return errors.Errorf("sendto: short write %d/%d", n, len(buf))
	}
	return nil
}

// Receive reads a single datagram into buf. timeout == 0 means blocking (no
// deadline, used by the UDP/UDPR server waiting for the very first CONN);
// any positive timeout is applied per call. A timeout is reported as
// ErrTimeout, distinct from both a real I/O error and a genuine zero-length
// datagram (n == 0, err == nil).
func Receive(conn PacketConn, buf []byte, timeout time.Duration) (int, net.Addr, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, nil, errors.Wrap(err, "set read deadline")
		}
	} else {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, nil, errors.Wrap(err, "clear read deadline")
		}
	}

	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrTimeout
		}
		return 0, nil, errors.Wrap(err, "recvfrom")
	}
	return n, addr, nil
}
