package session

import (
	"bytes"
	"net"
	"testing"

	"ppcb/stats"
)

func TestTCPRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	payload := bytes.Repeat([]byte("ppcb-tcp-payload "), 5000) // forces multiple DATA packets
	var out bytes.Buffer
	serverCounters := &stats.Counters{}
	clientCounters := &stats.Counters{}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ServeTCP(serverConn, &out, serverCounters)
	}()

	if err := ClientTCP(clientConn, 99, payload, clientCounters); err != nil {
		t.Fatalf("ClientTCP: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("ServeTCP: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", out.Len(), len(payload))
	}
	if serverCounters.Completed != 1 {
		t.Fatalf("expected server to record one completed transfer")
	}
	if clientCounters.Completed != 1 {
		t.Fatalf("expected client to record one completed transfer")
	}
}

func TestTCPSmallPayloadSinglePacket(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	payload := []byte("tiny")
	var out bytes.Buffer

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ServeTCP(serverConn, &out, nil)
	}()

	if err := ClientTCP(clientConn, 1, payload, nil); err != nil {
		t.Fatalf("ClientTCP: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("ServeTCP: %v", err)
	}
	if out.String() != "tiny" {
		t.Fatalf("got %q", out.String())
	}
}

func TestTCPZeroLengthConnIsRejected(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	var out bytes.Buffer
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ServeTCP(serverConn, &out, nil)
	}()

	if err := ClientTCP(clientConn, 1, nil, nil); err == nil {
		t.Fatalf("expected ClientTCP to fail on zero-length sequence")
	}
	if err := <-serverErr; err == nil {
		t.Fatalf("expected ServeTCP to report the rejected CONN")
	}
}
