package session

import (
	"bytes"
	"net"
	"testing"
	"time"

	"ppcb/wire"
)

func TestUDPRoundTrip(t *testing.T) {
	srv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer srv.Close()

	cli, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer cli.Close()

	payload := bytes.Repeat([]byte("udp-payload "), 6000)
	var out bytes.Buffer

	serverErr := make(chan error, 1)
	go func() {
		buf := make([]byte, wire.BufferSize)
		n, from, err := srv.ReadFromUDP(buf)
		if err != nil {
			serverErr <- err
			return
		}
		cp, err := wire.DecodeConn(buf[:n])
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- ServeUDP(srv, from, cp, &out, nil)
	}()

	if err := ClientUDP(cli, srv.LocalAddr(), 42, payload, nil); err != nil {
		t.Fatalf("ClientUDP: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("ServeUDP: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", out.Len(), len(payload))
	}
}

func TestUDPStrayPeerIsRejectedWithoutDisturbingSession(t *testing.T) {
	srv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer srv.Close()

	cli, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer cli.Close()

	stray, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP stray: %v", err)
	}
	defer stray.Close()

	payload := []byte("hello")
	var out bytes.Buffer

	serverErr := make(chan error, 1)
	go func() {
		buf := make([]byte, wire.BufferSize)
		n, from, err := srv.ReadFromUDP(buf)
		if err != nil {
			serverErr <- err
			return
		}
		cp, err := wire.DecodeConn(buf[:n])
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- ServeUDP(srv, from, cp, &out, nil)
	}()

	go func() {
		time.Sleep(10 * time.Millisecond)
		stray.WriteTo(wire.EncodeDataHeader(wire.DataHeader{SessionID: 7, PacketNumber: 0, PayloadLength: 1}), srv.LocalAddr())
	}()

	if err := ClientUDP(cli, srv.LocalAddr(), 7, payload, nil); err != nil {
		t.Fatalf("ClientUDP: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("ServeUDP: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("got %q", out.String())
	}
}
