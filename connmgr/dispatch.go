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

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
)

// dispatch outcome of one attempt for one pending transaction.
type dispResult uint8

const (
	// dispDone means the transaction left the pending queue.
	dispDone dispResult = iota

	// dispStarted means a transport is on the way; the transaction stays
	// queued until the half-open lands.
	dispStarted

	// dispBlocked means nothing could be done now.
	dispBlocked
)

func (o *mgr) onNewTransaction(t transaction.Transaction, priority int32) {
	if _, ok := o.tx[t]; ok {
		// duplicate submission keeps the first scheduling
		return
	}

	var e = o.getOrCreateEntry(t.Info())

	o.tx[t] = &txState{ek: e.nfo.HashKey()}

	e.insertPending(t, priority, time.Now())
	o.addPending(1)

	o.processPendingQForEntry(e)
}

func (o *mgr) onReschedTransaction(t transaction.Transaction, priority int32) {
	var st, ok = o.tx[t]

	if !ok {
		return
	}

	var e = o.ct[st.ek]
	if e == nil {
		return
	}

	var pt = e.findPending(t)
	if pt == nil {
		return
	}

	var (
		at      = pt.at
		claimed = pt.claimed
	)

	e.removePending(t)
	e.insertPending(t, priority, at)

	if np := e.findPending(t); np != nil {
		np.claimed = claimed
	}

	o.processPendingQForEntry(e)
}

func (o *mgr) onCancelTransaction(t transaction.Transaction, reason error) {
	var st, ok = o.tx[t]

	if !ok {
		// cancel is idempotent; unknown transactions are silently ignored
		return
	}

	var e = o.ct[st.ek]

	if e != nil && e.removePending(t) {
		o.addPending(-1)

		for _, h := range e.ho {
			if h.t == t {
				h.t = nil

				if !h.spec {
					h.abandon()
				}

				break
			}
		}
	} else if st.cn != nil && st.cn.depth > 0 {
		// already dispatched: the connection may stay reusable
		st.cn.depth--
	}

	delete(o.tx, t)
	t.OnStop(reason)

	if e != nil && e.isEmpty() && !e.spdyPreferred {
		o.dropEntry(e)
	}
}

func (o *mgr) onProcessPendingQ(nfo conninfo.ConnInfo) {
	if e := o.lookupEntry(nfo); e != nil {
		o.processPendingQForEntry(e)
	} else {
		o.onProcessAllPendingQ()
	}
}

func (o *mgr) onProcessAllPendingQ() {
	for _, e := range o.ct {
		o.processPendingQForEntry(e)
	}
}

// processPendingQForEntry walks the pending queue head to tail and attempts
// to dispatch every transaction.
func (o *mgr) processPendingQForEntry(e *connEntry) bool {
	e.gov.CreditPenalty()
	o.syncEntryState(e)

	var (
		i    int
		done bool
	)

	for i < len(e.pq) {
		switch o.tryDispatchTransaction(e, &e.pq[i]) {
		case dispDone:
			e.pq = append(e.pq[:i], e.pq[i+1:]...)
			o.addPending(-1)
			done = true

		default:
			i++
		}
	}

	return done
}

// tryDispatchTransaction attempts one placement, in order: the multiplexed
// session (local or coalesced), an optimistic pipeline for latency tolerant
// classes, the warmest idle connection, a fresh transport, and finally a
// pipeline at full depth.
func (o *mgr) tryDispatchTransaction(e *connEntry, pt *pendingTrans) dispResult {
	var (
		class    = pt.t.Classify()
		pressure = o.isUnderPressure(e, class)
	)

	if p := o.getSpdyPreferredEnt(e); p != nil {
		if c := p.firstSpdyConn(); c != nil {
			o.dispatchTransaction(p, pt.t, c)
			return dispDone
		}
	} else if e.usingSpdy {
		if c := e.firstSpdyConn(); c != nil {
			o.dispatchTransaction(e, pt.t, c)
			return dispDone
		}
	}

	if !pressure && class != transaction.ClassBulkContent {
		if o.addToShortestPipeline(e, pt.t, class, o.config().maxOptimisticPipelined()) {
			return dispDone
		}
	}

	for {
		var c = e.popIdle()

		if c == nil {
			break
		}

		o.addIdle(-1)

		if c.tr == nil {
			continue
		}

		e.act = append(e.act, c)
		o.addActive(1)
		o.activateTimeoutTick()
		o.dispatchTransaction(e, pt.t, c)

		return dispDone
	}

	if o.makeNewConnection(e, pt) {
		return dispStarted
	}

	if o.addToShortestPipeline(e, pt.t, class, o.config().maxPipelined()) {
		return dispDone
	}

	return dispBlocked
}

// isUnderPressure reports whether the bucket is saturated: connection slots
// exhausted and every active connection loaded to its permitted depth.
func (o *mgr) isUnderPressure(e *connEntry, class transaction.Classifier) bool {
	var limit = int(o.persistLimit(e))

	if len(e.act)+len(e.ho) < limit {
		return false
	}

	var depth = e.gov.MaxDepth(class)
	if depth < 1 {
		depth = 1
	}

	for _, c := range e.act {
		if c.spdy {
			return false
		}

		if c.depth < depth {
			return false
		}
	}

	return true
}

func (o *mgr) persistLimit(e *connEntry) uint16 {
	var cfg = o.config()

	if e.nfo.UsingProxy() {
		return cfg.maxPersistPerProxy()
	}

	return cfg.maxPersistPerHost()
}

// restrictConnections holds back parallel handshakes on a TLS bucket whose
// protocol support is still unknown, so traffic can coalesce onto a single
// multiplexed session once negotiation settles.
func (o *mgr) restrictConnections(e *connEntry) bool {
	if !e.nfo.IsTLS() || e.testedSpdy {
		return false
	}

	return len(e.act)+len(e.ho) > 0
}

// atActiveConnectionLimit checks the global and per-bucket caps. A queue
// aged beyond the request delay bypasses the per-bucket persistent caps,
// never the global one.
func (o *mgr) atActiveConnectionLimit(e *connEntry, caps transaction.Capability, aged bool) bool {
	var cfg = o.config()

	if int(o.NumActiveConns())+int(o.NumHalfOpen()) >= int(cfg.maxConns()) {
		return true
	}

	if aged {
		return false
	}

	var limit uint16

	if caps.Has(transaction.CapNoKeepAlive) {
		if e.nfo.UsingProxy() {
			limit = cfg.maxConnsPerProxy()
		} else {
			limit = cfg.maxConnsPerHost()
		}
	} else {
		limit = o.persistLimit(e)
	}

	return len(e.act)+len(e.ho) >= int(limit)
}

// makeNewConnection opens a transport for the transaction, or claims an
// unclaimed speculative half-open already on the way.
func (o *mgr) makeNewConnection(e *connEntry, pt *pendingTrans) bool {
	if pt.claimed {
		return false
	}

	// a speculative half-open already on the way keeps its speculative
	// flag, so a later cancel still lets it finish into the idle pool
	for _, h := range e.ho {
		if h.t == nil {
			h.t = pt.t
			pt.claimed = true
			return true
		}
	}

	if !e.keyDone {
		// the address pool of the target is still resolving; a transport
		// opened now could not coalesce
		return false
	}

	if o.restrictConnections(e) {
		return false
	}

	var aged = e.oldestPendingAge(time.Now()) >= o.config().maxRequestDelay()

	if o.atActiveConnectionLimit(e, pt.t.Caps(), aged) {
		return false
	}

	o.createTransport(e, pt.t, false)
	pt.claimed = true

	return true
}

// addToShortestPipeline appends the transaction to the least loaded
// pipeline-bearing connection within the depth cap.
func (o *mgr) addToShortestPipeline(e *connEntry, t transaction.Transaction, class transaction.Classifier, depthCap uint32) bool {
	if o.bd == nil {
		return false
	}

	if t.Caps().Has(transaction.CapNoPipeline) {
		return false
	}

	var govCap = e.gov.MaxDepth(class)
	if govCap < 2 {
		return false
	}

	if govCap < depthCap {
		depthCap = govCap
	}

	if m := o.config().maxPipelined(); m < depthCap {
		depthCap = m
	}

	var (
		yellow = e.gov.State() == pipeline.Yellow
		yID    = e.gov.YellowConn()
		best   *conn
	)

	for _, c := range e.act {
		if c.spdy || c.pl == nil || c.depth < 1 || c.depth >= depthCap {
			continue
		}

		if yellow && c.id != yID {
			continue
		}

		if best == nil || c.depth < best.depth {
			best = c
		}
	}

	if best == nil {
		return false
	}

	if !best.pl.Add(t) {
		return false
	}

	best.depth++
	best.total++

	if st, ok := o.tx[t]; ok {
		st.cn = best
	}

	o.addDispatch()

	return true
}

// dispatchTransaction binds the transaction to the connection and delivers
// the ownership handle. When the governor allows it, the transaction is
// seeded into a fresh pipeline first so followers can join.
func (o *mgr) dispatchTransaction(e *connEntry, t transaction.Transaction, c *conn) {
	c.depth++
	c.total++
	c.idleAt = time.Time{}

	if t.Caps().Has(transaction.CapNoKeepAlive) {
		c.noKeepAlive = true
	}

	if !c.spdy && e.gov.State() == pipeline.Yellow && e.gov.YellowConn() == 0 {
		e.gov.SetYellowConn(c.id)
	}

	if st, ok := o.tx[t]; ok {
		st.cn = c
	}

	var h = o.newHandle(c)

	o.addDispatch()

	if pl := o.wrapPipeline(e, t, c); pl != nil {
		c.pl = pl
		pl.OnStart(h)
	} else {
		t.OnStart(h)
	}

	o.syncEntryState(e)
}

// wrapPipeline seeds a pipeline around the first transaction dispatched on
// a connection eligible for pipelining.
func (o *mgr) wrapPipeline(e *connEntry, t transaction.Transaction, c *conn) transaction.Pipeline {
	if o.bd == nil || c.spdy || c.pl != nil {
		return nil
	}

	if t.Caps().Has(transaction.CapNoPipeline) {
		return nil
	}

	if e.gov.MaxDepth(t.Classify()) < 2 {
		return nil
	}

	if e.gov.State() == pipeline.Yellow && e.gov.YellowConn() != c.id {
		return nil
	}

	if pl, err := o.bd.New(t); err != nil {
		o.logger().Entry(loglvl.DebugLevel, "pipeline builder refused transaction").ErrorAdd(true, err).Log()
		return nil
	} else {
		return pl
	}
}

func (o *mgr) onSpeculativeConnect(nfo conninfo.ConnInfo) {
	var e = o.getOrCreateEntry(nfo)

	if len(e.idl) > 0 || len(e.ho) > 0 {
		return
	}

	if o.restrictConnections(e) {
		return
	}

	if o.atActiveConnectionLimit(e, 0, false) {
		return
	}

	o.createTransport(e, nil, true)
}
