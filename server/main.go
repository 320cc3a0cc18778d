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
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"ppcb/dispatch"
	"ppcb/stats"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "ppcbs"
	myApp.Usage = "byte-sequence transfer server (tcp/udp, udpr shares the udp socket)"
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
	myApp.ArgsUsage = "<protocol> <port>"
	myApp.Action = func(c *cli.Context) error {
		protocol := c.Args().Get(0)
		port := c.Args().Get(1)
		if protocol == "" || port == "" {
			return cli.NewExitError("usage: ppcbs <tcp|udp> <port>", 1)
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

		checkError(serve(protocol, port, counters))
		return nil
	}

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

// serve binds INADDR_ANY on port and runs the matching accept loop until it
// fails (e.g. the listener is closed), writing received payload bytes to
// stdout in arrival order.
func serve(protocol, port string, counters *stats.Counters) error {
	switch protocol {
	case "tcp":
		ln, err := net.Listen("tcp", net.JoinHostPort("", port))
		if err != nil {
			return errors.Wrap(err, "listen tcp")
		}
		defer ln.Close()
		return dispatch.RunTCP(ln, os.Stdout, counters)
	case "udp":
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return errors.Wrapf(err, "invalid port %q", port)
		}
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: portNum})
		if err != nil {
			return errors.Wrap(err, "listen udp")
		}
		defer conn.Close()
		return dispatch.RunDatagram(conn, os.Stdout, counters)
	default:
		return errors.Errorf("unsupported protocol %q, want tcp or udp", protocol)
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
