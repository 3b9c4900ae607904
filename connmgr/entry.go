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

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
)

// pendingTrans is one queued transaction with its scheduling metadata.
type pendingTrans struct {
	t   transaction.Transaction
	pri int32
	seq uint64
	at  time.Time

	// claimed is set once a half-open has been created for this
	// transaction, so further dispatch passes do not open another one.
	claimed bool
}

// connEntry is the per-origin bucket: the pending queue, the three
// connection containers and the pipelining governor. It lives on the socket
// context only.
type connEntry struct {
	nfo conninfo.ConnInfo

	pq  []pendingTrans
	act []*conn
	idl []*conn // most recently used at tail
	ho  []*halfOpen

	gov pipeline.Governor

	// key is the coalescing key (dotted peer address plus anonymous flag),
	// resolved ahead of the first transport for TLS targets so queued
	// traffic can ride an existing session of the same address pool.
	key     string
	keyDone bool

	usingSpdy     bool
	testedSpdy    bool
	spdyPreferred bool

	seq uint64
}

// getOrCreateEntry resolves the bucket for a target, creating it lazily.
func (o *mgr) getOrCreateEntry(nfo conninfo.ConnInfo) *connEntry {
	var k = nfo.HashKey()

	if e, ok := o.ct[k]; ok {
		return e
	}

	e := &connEntry{
		nfo: nfo.Clone(),
		gov: pipeline.New(o.config().AggressivePipelining, nil),
	}

	o.ct[k] = e
	o.syncEntryState(e)
	o.syncEntryCounts()

	if nfo.IsTLS() {
		o.resolveCoalesceKey(e)
	} else {
		e.keyDone = true
	}

	return e
}

func (o *mgr) lookupEntry(nfo conninfo.ConnInfo) *connEntry {
	if nfo == nil {
		return nil
	}

	return o.ct[nfo.HashKey()]
}

// insertPending queues a transaction keeping the queue sorted by priority,
// stable for equal priorities.
func (e *connEntry) insertPending(t transaction.Transaction, pri int32, now time.Time) {
	e.seq++

	var p = pendingTrans{
		t:   t,
		pri: pri,
		seq: e.seq,
		at:  now,
	}

	var i = len(e.pq)
	for i > 0 && e.pq[i-1].pri > pri {
		i--
	}

	e.pq = append(e.pq, pendingTrans{})
	copy(e.pq[i+1:], e.pq[i:])
	e.pq[i] = p
}

// requeueFront puts transactions back at the head of the queue preserving
// their relative order, used when a server cancels a pipeline.
func (e *connEntry) requeueFront(ts []transaction.Transaction, now time.Time) {
	if len(ts) < 1 {
		return
	}

	var front = make([]pendingTrans, 0, len(ts)+len(e.pq))

	for _, t := range ts {
		e.seq++
		front = append(front, pendingTrans{
			t:   t,
			pri: -1 << 30,
			seq: e.seq,
			at:  now,
		})
	}

	e.pq = append(front, e.pq...)
}

func (e *connEntry) removePending(t transaction.Transaction) bool {
	for i := range e.pq {
		if e.pq[i].t == t {
			e.pq = append(e.pq[:i], e.pq[i+1:]...)
			return true
		}
	}

	return false
}

func (e *connEntry) findPending(t transaction.Transaction) *pendingTrans {
	for i := range e.pq {
		if e.pq[i].t == t {
			return &e.pq[i]
		}
	}

	return nil
}

// oldestPendingAge returns the age of the oldest queued transaction.
func (e *connEntry) oldestPendingAge(now time.Time) time.Duration {
	var res time.Duration

	for i := range e.pq {
		if d := now.Sub(e.pq[i].at); d > res {
			res = d
		}
	}

	return res
}

func (e *connEntry) removeActive(c *conn) bool {
	for i := range e.act {
		if e.act[i] == c {
			e.act = append(e.act[:i], e.act[i+1:]...)
			return true
		}
	}

	return false
}

func (e *connEntry) removeIdle(c *conn) bool {
	for i := range e.idl {
		if e.idl[i] == c {
			e.idl = append(e.idl[:i], e.idl[i+1:]...)
			return true
		}
	}

	return false
}

// popIdle returns the most recently used idle connection, the warmest one.
func (e *connEntry) popIdle() *conn {
	if len(e.idl) < 1 {
		return nil
	}

	c := e.idl[len(e.idl)-1]
	e.idl = e.idl[:len(e.idl)-1]

	return c
}

func (e *connEntry) removeHalfOpen(h *halfOpen) bool {
	for i := range e.ho {
		if e.ho[i] == h {
			e.ho = append(e.ho[:i], e.ho[i+1:]...)
			return true
		}
	}

	return false
}

// firstSpdyConn returns the active multiplexed connection, when one exists.
func (e *connEntry) firstSpdyConn() *conn {
	for _, c := range e.act {
		if c.spdy && c.tr != nil {
			return c
		}
	}

	return nil
}

// isEmpty reports whether the bucket holds nothing worth keeping.
func (e *connEntry) isEmpty() bool {
	return len(e.pq) == 0 && len(e.act) == 0 && len(e.idl) == 0 && len(e.ho) == 0
}

// syncEntryState refreshes the cross-thread cache of the governor verdict
// for this entry.
func (o *mgr) syncEntryState(e *connEntry) {
	o.m.Lock()
	o.pOK[e.nfo.HashKey()] = e.gov.SupportsPipelining()
	o.m.Unlock()
}

// syncEntryCounts refreshes the cross-thread entry counters.
func (o *mgr) syncEntryCounts() {
	var spdy int

	for _, e := range o.ct {
		if e.usingSpdy {
			spdy++
		}
	}

	o.setEntryCounts(len(o.ct), spdy)
}

// dropEntry removes an empty bucket and its cross-entry references.
func (o *mgr) dropEntry(e *connEntry) {
	var k = e.nfo.HashKey()

	delete(o.ct, k)

	if len(e.key) > 0 {
		if p, ok := o.sp[e.key]; ok && p == e {
			delete(o.sp, e.key)
		}
	}

	o.m.Lock()
	delete(o.pOK, k)
	o.m.Unlock()

	o.syncEntryCounts()
}
