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

// Package dispatch runs the server side accept loops: one connection at a
// time for TCP, and a blocking wait for the first CONN on a shared UDP/UDPR
// socket followed by routing to the matching session handler. Only one
// transfer is ever in flight; a session ending (successfully or not) just
// returns control to the loop for the next one, the same serialized model
// server/main.go in the reference implementation uses (handle one client,
// then accept()/recvfrom() again).
package dispatch

import (
	"io"
	"net"

	"github.com/fatih/color"

	"ppcb/session"
	"ppcb/stats"
	"ppcb/transport"
	"ppcb/wire"
)

// RunTCP accepts connections from ln one at a time, forever, running each
// through session.ServeTCP and logging (never panicking on) a failed
// session before accepting the next one. It returns only if Accept itself
// fails, e.g. the listener was closed.
func RunTCP(ln net.Listener, out io.Writer, counters *stats.Counters) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		if err := session.ServeTCP(conn, out, counters); err != nil {
			color.Red("session error: %v", err)
		}
		conn.Close()
	}
}

// RunDatagram serves UDP and UDPR sessions off one shared socket. It blocks
// for the first CONN of the next session, decides by protocol_id which
// state machine to hand it to, and otherwise rejects or ignores whatever it
// sees. A session failing does not stop the loop: the socket is still good
// for the next client.
func RunDatagram(conn transport.PacketConn, out io.Writer, counters *stats.Counters) error {
	buf := make([]byte, wire.BufferSize)
	for {
		n, from, err := transport.Receive(conn, buf, 0)
		if err != nil {
			return err
		}
		id, ok := wire.PeekID(buf[:n])
		if !ok || id != wire.CONN {
			continue
		}
		cp, err := wire.DecodeConn(buf[:n])
		if err != nil {
			continue
		}

		switch cp.ProtocolID {
		case wire.UDP:
			if err := session.ServeUDP(conn, from, cp, out, counters); err != nil {
				color.Red("session error: %v", err)
			}
		case wire.UDPR:
			if err := session.ServeUDPR(conn, from, cp, out, counters); err != nil {
				color.Red("session error: %v", err)
			}
		default:
			_ = transport.Send(conn, from, wire.EncodeResponse(wire.CONRJT, cp.SessionID))
		}
	}
}
