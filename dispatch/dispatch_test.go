package dispatch

import (
	"bytes"
	"net"
	"testing"
	"time"

	"ppcb/session"
)

func TestRunTCPServesOneConnectionThenAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	var out bytes.Buffer
	runErr := make(chan error, 1)
	go func() {
		runErr <- RunTCP(ln, &out, nil)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := session.ClientTCP(conn, 10, []byte("via-dispatch"), nil); err != nil {
		t.Fatalf("ClientTCP: %v", err)
	}
	conn.Close()

	// A second client proves the loop really does accept again.
	conn2, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial 2: %v", err)
	}
	if err := session.ClientTCP(conn2, 11, []byte("-second"), nil); err != nil {
		t.Fatalf("ClientTCP 2: %v", err)
	}
	conn2.Close()

	ln.Close()
	<-runErr

	if out.String() != "via-dispatch-second" {
		t.Fatalf("got %q", out.String())
	}
}

func TestRunDatagramServesUDPSession(t *testing.T) {
	srv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	cli, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer cli.Close()

	var out bytes.Buffer
	runErr := make(chan error, 1)
	go func() {
		runErr <- RunDatagram(srv, &out, nil)
	}()

	if err := session.ClientUDP(cli, srv.LocalAddr(), 20, []byte("datagram-dispatch"), nil); err != nil {
		t.Fatalf("ClientUDP: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	srv.Close()
	<-runErr

	if out.String() != "datagram-dispatch" {
		t.Fatalf("got %q", out.String())
	}
}
