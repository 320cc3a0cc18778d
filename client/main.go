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

package main

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"ppcb/session"
	"ppcb/stats"
	"ppcb/transport"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "ppcbc"
	myApp.Usage = "byte-sequence transfer client (tcp/udp/udpr)"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "JSON file overriding -log/-statslog/-statsperiod",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "redirect diagnostic logging to FILE instead of stderr",
		},
		cli.StringFlag{
			Name:  "statslog",
			Usage: "append a CSV row of transfer counters to FILE every -statsperiod seconds",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 5,
			Usage: "seconds between -statslog rows",
		},
	}
	myApp.ArgsUsage = "<protocol> <host> <port>"
	myApp.Action = func(c *cli.Context) error {
		protocol := c.Args().Get(0)
		host := c.Args().Get(1)
		port := c.Args().Get(2)
		if protocol == "" || host == "" || port == "" {
			return cli.NewExitError("usage: ppcbc <tcp|udp|udpr> <host> <port>", 1)
		}

		cfg := Config{Log: c.String("log"), StatsLog: c.String("statslog"), StatsPeriod: c.Int("statsperiod")}
		if path := c.String("config"); path != "" {
			checkError(parseJSONConfig(&cfg, path))
		}

		if cfg.Log != "" {
			f, err := os.OpenFile(cfg.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			checkError(err)
			log.SetOutput(f)
		}

		counters := &stats.Counters{}
		go stats.Logger(counters, cfg.StatsLog, time.Duration(cfg.StatsPeriod)*time.Second)

		payload, err := io.ReadAll(os.Stdin)
		checkError(err)

		sessionID, err := randomSessionID()
		checkError(err)

		if err := run(protocol, host, port, sessionID, payload, counters); err != nil {
			checkError(err)
		}
		return nil
	}

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

// run dials the right kind of socket for protocol and drives one transfer
// to completion.
func run(protocol, host, port string, sessionID uint64, payload []byte, counters *stats.Counters) error {
	addr := net.JoinHostPort(host, port)
	switch protocol {
	case "tcp":
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return errors.Wrap(err, "dial tcp")
		}
		defer conn.Close()
		return session.ClientTCP(conn, sessionID, payload, counters)
	case "udp":
		conn, raddr, err := dialUDP(addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		return session.ClientUDP(conn, raddr, sessionID, payload, counters)
	case "udpr":
		conn, raddr, err := dialUDP(addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		return session.ClientUDPR(conn, raddr, sessionID, payload, counters)
	default:
		return errors.Errorf("unsupported protocol %q, want tcp, udp or udpr", protocol)
	}
}

// dialUDP resolves addr and opens a UDP socket bound to an ephemeral local
// port, returning the server's resolved address for subsequent WriteTo calls.
func dialUDP(addr string) (transport.PacketConn, net.Addr, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve udp address")
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open udp socket")
	}
	return conn, raddr, nil
}

// randomSessionID draws a fresh, unpredictable session_id so two clients
// hitting the same server at once don't collide.
func randomSessionID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "generate session id")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
