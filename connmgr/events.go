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
	"context"
	"time"

	loglvl "github.com/nabbar/golib/logger/level"

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
	"github/sabouaram/connmgr/transport"
)

// evtKind identifies one socket-context message handler.
type evtKind uint8

const (
	evtShutdown evtKind = iota
	evtNewTransaction
	evtReschedTransaction
	evtCancelTransaction
	evtProcessPendingQ
	evtPruneDeadConnections
	evtSpeculativeConnect
	evtReclaimConnection
	evtCompleteUpgrade
	evtUpdateParam
	evtClosePersistentConnections
	evtProcessFeedback
	evtPrintDiagnostics
	evtTransportResult
	evtSetupBackup
	evtReadTimeoutTick
	evtCoalesceKey
	evtReportSpdyConn
)

// event is one queued message: a handler id, an integer parameter and an
// opaque payload. Events posted from a single goroutine are observed in
// submission order.
type event struct {
	k evtKind
	i int32
	v interface{}
}

type evtCancel struct {
	t transaction.Transaction
	r error
}

type evtFeedback struct {
	n conninfo.ConnInfo
	t pipeline.FeedbackType
	c uint64
	d uint32
}

type evtUpgrade struct {
	c *conn
	l UpgradeListener
}

type evtDial struct {
	h *halfOpen
	t transport.Transport
	b bool
	e error
}

type evtDone struct {
	d chan struct{}
}

// post enqueues one event for the socket context. It fails once the manager
// is shut down; an event posted before Start waits in the queue until the
// socket context runs.
func (o *mgr) post(e event) error {
	if o.isShutdown() {
		return ErrorManagerShutdown.Error(nil)
	}

	o.q <- e

	return nil
}

// runLoop is the socket context. It owns every entry container; no other
// goroutine touches them.
func (o *mgr) runLoop(ctx context.Context) error {
	o.m.Lock()
	o.shut = false
	o.m.Unlock()

	var q = o.q

	o.ct = make(map[string]*connEntry)
	o.sp = make(map[string]*connEntry)
	o.tx = make(map[transaction.Transaction]*txState)

	o.logger().Entry(loglvl.InfoLevel, "connection manager socket context is starting").Log()

	for {
		select {
		case e := <-q:
			if stop := o.handle(e); stop {
				return nil
			}

		case <-ctx.Done():
			o.onShutdown(nil)
			return ctx.Err()
		}
	}
}

// runStop posts the drain message and blocks until the socket context has
// acknowledged teardown of every entry.
func (o *mgr) runStop(ctx context.Context) error {
	var d = make(chan struct{})

	if e := o.post(event{k: evtShutdown, v: evtDone{d: d}}); e != nil {
		if o.isShutdown() {
			// the loop already drained on context cancellation
			return nil
		}

		return e
	}

	select {
	case <-d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *mgr) handle(e event) bool {
	switch e.k {
	case evtShutdown:
		if v, k := e.v.(evtDone); k {
			o.onShutdown(v.d)
		} else {
			o.onShutdown(nil)
		}
		return true

	case evtNewTransaction:
		if t, k := e.v.(transaction.Transaction); k {
			o.onNewTransaction(t, e.i)
		}

	case evtReschedTransaction:
		if t, k := e.v.(transaction.Transaction); k {
			o.onReschedTransaction(t, e.i)
		}

	case evtCancelTransaction:
		if v, k := e.v.(evtCancel); k {
			o.onCancelTransaction(v.t, v.r)
		}

	case evtProcessPendingQ:
		if n, k := e.v.(conninfo.ConnInfo); k && n != nil {
			o.onProcessPendingQ(n)
		} else {
			o.onProcessAllPendingQ()
		}

	case evtPruneDeadConnections:
		o.onPruneDeadConnections()

	case evtSpeculativeConnect:
		if n, k := e.v.(conninfo.ConnInfo); k {
			o.onSpeculativeConnect(n)
		}

	case evtReclaimConnection:
		if c, k := e.v.(*conn); k {
			o.onReclaimConnection(c)
		}

	case evtCompleteUpgrade:
		if v, k := e.v.(evtUpgrade); k {
			o.onCompleteUpgrade(v.c, v.l)
		}

	case evtUpdateParam:
		o.onUpdateParam(e.i)

	case evtClosePersistentConnections:
		o.onClosePersistentConnections()

	case evtProcessFeedback:
		if v, k := e.v.(evtFeedback); k {
			o.onProcessFeedback(v)
		}

	case evtPrintDiagnostics:
		o.onPrintDiagnostics()

	case evtTransportResult:
		if v, k := e.v.(evtDial); k {
			o.onTransportResult(v)
		}

	case evtSetupBackup:
		if h, k := e.v.(*halfOpen); k {
			o.onSetupBackup(h)
		}

	case evtReadTimeoutTick:
		o.onReadTimeoutTick(time.Now())

	case evtCoalesceKey:
		if v, k := e.v.(evtKey); k {
			o.onCoalesceKey(v)
		}

	case evtReportSpdyConn:
		if c, k := e.v.(*conn); k {
			o.onReportSpdyConn(c)
		}
	}

	return false
}
