/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package connmgr

import (
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"

	"github/sabouaram/connmgr/transaction"
)

// ReportSpdyConnection posts the upgrade notice of a dispatched connection.
func (o *mgr) ReportSpdyConnection(c transaction.Conn) liberr.Error {
	h, k := c.(*handle)
	if !k || h.c == nil {
		return ErrorConnectionUnknown.Error(nil)
	}

	if e := o.post(event{k: evtReportSpdyConn, v: h.c}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) onReportSpdyConn(c *conn) {
	var e = o.ct[c.ek]

	if e == nil || c.tr == nil {
		return
	}

	c.spdy = true
	o.reportSpdyConnection(e, c)
}

// coalesceKey builds the cross-host pooling key: hosts resolving to the
// same address with the same credential mode may share one multiplexed
// session.
func coalesceKey(ip string, anonymous bool) string {
	if len(ip) < 1 {
		return ""
	}

	if anonymous {
		return ip + "!A"
	}

	return ip
}

// reportSpdyConnection records a freshly negotiated multiplexed session and
// elects, or defers to, the preferred entry of its address pool.
func (o *mgr) reportSpdyConnection(e *connEntry, c *conn) {
	e.usingSpdy = true
	e.testedSpdy = true

	if len(e.key) < 1 && c.tr != nil {
		e.key = coalesceKey(c.tr.RemoteIP(), e.nfo.IsAnonymous())
	}

	if len(e.key) < 1 {
		return
	}

	if p, ok := o.sp[e.key]; !ok || p == nil {
		o.sp[e.key] = e
		e.spdyPreferred = true

		o.logger().Entry(loglvl.DebugLevel, "entry elected as preferred for its address pool").
			FieldAdd("key", e.key).FieldAdd("host", e.nfo.HostPort()).Log()
	}

	o.syncEntryCounts()
	o.processSpdyPendingQ(e.key)
}

// processSpdyPendingQ drains the pending queues of every entry sharing the
// address pool, so queued traffic rides the multiplexed session.
func (o *mgr) processSpdyPendingQ(key string) {
	for _, e := range o.ct {
		if e.key == key && len(e.pq) > 0 {
			o.processPendingQForEntry(e)
		}
	}
}

// getSpdyPreferredEnt returns the entry this one should defer to: the
// preferred entry of the same address pool, when it differs and still holds
// a live multiplexed connection.
func (o *mgr) getSpdyPreferredEnt(e *connEntry) *connEntry {
	if len(e.key) < 1 {
		return nil
	}

	var p, ok = o.sp[e.key]

	if !ok || p == nil || p == e {
		return nil
	}

	if p.firstSpdyConn() == nil {
		return nil
	}

	return p
}

// resolveCoalesceKey computes the pooling key of a TLS entry off the socket
// context, then lands it as an event. New transports for the entry are held
// back until the key is known, so a new host can ride an existing session
// of its address pool instead of opening its own.
func (o *mgr) resolveCoalesceKey(e *connEntry) {
	var (
		nfo  = e.nfo
		anon = e.nfo.IsAnonymous()
	)

	go func() {
		x, l := timeoutCtx()
		defer l()

		var key string

		if ip, err := o.pv.LookupIP(x, nfo.Host()); err == nil {
			key = coalesceKey(ip, anon)
		}

		_ = o.post(event{k: evtCoalesceKey, v: evtKey{ek: nfo.HashKey(), key: key}})
	}()
}

type evtKey struct {
	ek  string
	key string
}

func (o *mgr) onCoalesceKey(v evtKey) {
	var e = o.ct[v.ek]

	if e == nil {
		return
	}

	e.keyDone = true

	if len(e.key) < 1 {
		e.key = v.key
	}

	if len(e.pq) > 0 {
		o.processPendingQForEntry(e)
	}
}
