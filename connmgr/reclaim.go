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
	"time"

	loglvl "github.com/nabbar/golib/logger/level"

	"github/sabouaram/connmgr/transaction"
)

// onReclaimConnection returns a connection to the manager once its handle
// holder is done with it.
func (o *mgr) onReclaimConnection(c *conn) {
	for t, st := range o.tx {
		if st.cn == c {
			delete(o.tx, t)
		}
	}

	var e = o.ct[c.ek]

	if c.detached {
		return
	}

	if e == nil {
		c.closeTransport()
		return
	}

	if c.spdy {
		// multiplexed sessions stay active between transactions, unless
		// they were tainted and have drained
		if c.depth > 0 {
			c.depth--
		}

		if c.dontReuse && c.depth == 0 {
			if e.removeActive(c) {
				o.addActive(-1)
			}

			c.closeTransport()
			o.ConditionallyStopReadTimeoutTick()
		}

		o.processPendingQForEntry(e)
		return
	}

	if e.gov.YellowConn() == c.id {
		e.gov.OnYellowComplete()
		o.syncEntryState(e)
	}

	if e.removeActive(c) {
		o.addActive(-1)
	}

	c.depth = 0
	c.pl = nil

	if c.reusable() && !o.isShutdown() {
		c.idleAt = time.Now()
		e.idl = append(e.idl, c)
		o.addIdle(1)
		o.armPruneTimer(o.config().idleTimeout())
	} else {
		c.closeTransport()
	}

	o.ConditionallyStopReadTimeoutTick()
	o.processPendingQForEntry(e)
}

// onCompleteUpgrade detaches the live transport from the connection and
// hands it to the expectant listener.
func (o *mgr) onCompleteUpgrade(c *conn, l UpgradeListener) {
	if c == nil || c.tr == nil {
		o.logger().Entry(loglvl.ErrorLevel, "upgrade hand-off without live transport").
			ErrorAdd(true, ErrorUpgradeFailed.Error(nil)).Log()
		return
	}

	var tr = c.tr

	c.tr = nil
	c.detached = true

	if e := o.ct[c.ek]; e != nil {
		if e.removeActive(c) {
			o.addActive(-1)
			o.ConditionallyStopReadTimeoutTick()
		}
	}

	l.OnTransportAvailable(tr)
}

// onShutdown tears every entry down, signals every known transaction sink
// with the shutdown reason, then acknowledges the drain.
func (o *mgr) onShutdown(done chan struct{}) {
	o.m.Lock()
	o.shut = true
	o.m.Unlock()

	var reason = ErrorManagerShutdown.Error(nil)

	for t := range o.tx {
		t.OnStop(reason)
	}

	for _, e := range o.ct {
		for _, h := range append(make([]*halfOpen, 0, len(e.ho)), e.ho...) {
			h.abandon()
		}

		for _, c := range e.act {
			c.closeTransport()
		}

		for _, c := range e.idl {
			c.closeTransport()
		}

		o.addPending(-len(e.pq))
		o.addActive(-len(e.act))
		o.addIdle(-len(e.idl))

		e.pq = nil
		e.act = nil
		e.idl = nil
	}

	o.ct = make(map[string]*connEntry)
	o.sp = make(map[string]*connEntry)
	o.tx = make(map[transaction.Transaction]*txState)

	o.stopPruneTimer()
	o.stopTimeoutTick()
	o.syncEntryCounts()

	o.m.Lock()
	o.pOK = make(map[string]bool)
	o.m.Unlock()

	o.logger().Entry(loglvl.InfoLevel, "connection manager socket context has drained").Log()

	if done != nil {
		close(done)
	}
}
