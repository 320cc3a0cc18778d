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

// Package stats keeps a small set of process-wide transfer counters and,
// like the teacher's SnmpLogger in std/snmp.go, can dump them to a CSV file
// on a timer. Counters are purely observational: nothing in session,
// transport or wire reads them back to make a protocol decision.
package stats

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters is a set of atomic transfer counters, safe to share between the
// session goroutine and a background CSV logger.
type Counters struct {
	ConnSent     uint64
	ConnAcked    uint64
	ConnRejected uint64
	DataSent     uint64
	DataReceived uint64
	BytesSent    uint64
	BytesRecv    uint64
	Retransmits  uint64
	Rejects      uint64
	Completed    uint64
	Aborted      uint64
}

// header lists the Counters fields in the order ToSlice/Header emit them.
var header = []string{
	"ConnSent", "ConnAcked", "ConnRejected",
	"DataSent", "DataReceived", "BytesSent", "BytesRecv",
	"Retransmits", "Rejects", "Completed", "Aborted",
}

// Header reports the CSV column names, Unix timestamp column excluded.
func (c *Counters) Header() []string { return header }

// ToSlice renders the current counter values as strings, in Header order.
func (c *Counters) ToSlice() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&c.ConnSent)),
		fmt.Sprint(atomic.LoadUint64(&c.ConnAcked)),
		fmt.Sprint(atomic.LoadUint64(&c.ConnRejected)),
		fmt.Sprint(atomic.LoadUint64(&c.DataSent)),
		fmt.Sprint(atomic.LoadUint64(&c.DataReceived)),
		fmt.Sprint(atomic.LoadUint64(&c.BytesSent)),
		fmt.Sprint(atomic.LoadUint64(&c.BytesRecv)),
		fmt.Sprint(atomic.LoadUint64(&c.Retransmits)),
		fmt.Sprint(atomic.LoadUint64(&c.Rejects)),
		fmt.Sprint(atomic.LoadUint64(&c.Completed)),
		fmt.Sprint(atomic.LoadUint64(&c.Aborted)),
	}
}

func (c *Counters) AddConnSent()          { atomic.AddUint64(&c.ConnSent, 1) }
func (c *Counters) AddConnAcked()         { atomic.AddUint64(&c.ConnAcked, 1) }
func (c *Counters) AddConnRejected()      { atomic.AddUint64(&c.ConnRejected, 1) }
func (c *Counters) AddDataSent(n uint32)  { atomic.AddUint64(&c.DataSent, 1); atomic.AddUint64(&c.BytesSent, uint64(n)) }
func (c *Counters) AddDataRecv(n uint32)  { atomic.AddUint64(&c.DataReceived, 1); atomic.AddUint64(&c.BytesRecv, uint64(n)) }
func (c *Counters) AddRetransmit()        { atomic.AddUint64(&c.Retransmits, 1) }
func (c *Counters) AddReject()            { atomic.AddUint64(&c.Rejects, 1) }
func (c *Counters) AddCompleted()         { atomic.AddUint64(&c.Completed, 1) }
func (c *Counters) AddAborted()           { atomic.AddUint64(&c.Aborted, 1) }

// Logger appends one CSV row of c's current values to path every interval,
// writing a header row the first time the file is created. Adapted from
// std/snmp.go's SnmpLogger: same open-append-write-flush shape, generalized
// from kcp.DefaultSnmp to the Counters defined above. Returns when path or
// interval is zero (feature disabled) — callers run it in its own goroutine.
func Logger(c *Counters, path string, interval time.Duration) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}
		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, c.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.ToSlice()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
