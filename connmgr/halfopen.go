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
	"strings"
	"time"

	loglvl "github.com/nabbar/golib/logger/level"

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/transaction"
)

// halfOpen is one in-flight connection attempt: a primary dial, and after
// the backup delay a second dial raced against it. The first transport to
// establish wins; the loser is canceled.
type halfOpen struct {
	o  *mgr
	ek string
	n  conninfo.ConnInfo

	// t is the claimant transaction, nil for speculative attempts.
	t transaction.Transaction

	spec         bool
	hasConnected bool
	abandoned    bool

	primarySynStarted time.Time
	backupSynStarted  time.Time

	cnlP context.CancelFunc
	cnlB context.CancelFunc

	timer         *time.Timer
	backupStarted bool

	failP bool
	failB bool
}

// createTransport starts a half-open for the bucket. The claimant
// transaction, when any, stays in the pending queue until the transport
// lands.
func (o *mgr) createTransport(e *connEntry, t transaction.Transaction, speculative bool) {
	h := &halfOpen{
		o:    o,
		ek:   e.nfo.HashKey(),
		n:    e.nfo,
		t:    t,
		spec: speculative,
	}

	e.ho = append(e.ho, h)
	o.addHalfOpen(1)

	h.setupPrimaryStream()
	h.setupBackupTimer(o.config().backupDelay())
}

func (h *halfOpen) setupPrimaryStream() {
	var x context.Context

	x, h.cnlP = context.WithCancel(context.Background())
	h.primarySynStarted = time.Now()

	go h.dial(x, false)
}

func (h *halfOpen) setupBackupStream() {
	var x context.Context

	x, h.cnlB = context.WithCancel(context.Background())
	h.backupSynStarted = time.Now()
	h.backupStarted = true

	go h.dial(x, true)
}

func (h *halfOpen) setupBackupTimer(d time.Duration) {
	h.timer = time.AfterFunc(d, func() {
		_ = h.o.post(event{k: evtSetupBackup, v: h})
	})
}

func (h *halfOpen) cancelBackupTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// dial runs off the socket context; the result always comes back as an
// event so container mutation stays single threaded.
func (h *halfOpen) dial(ctx context.Context, backup bool) {
	tr, err := h.o.pv.Dial(ctx, h.n)
	_ = h.o.post(event{k: evtTransportResult, v: evtDial{h: h, t: tr, b: backup, e: err}})
}

// abandon closes both attempts, cancels the timer and detaches from the
// bucket. Socket context only.
func (h *halfOpen) abandon() {
	if h.abandoned {
		return
	}

	h.abandoned = true
	h.cancelBackupTimer()

	if h.cnlP != nil {
		h.cnlP()
	}

	if h.cnlB != nil {
		h.cnlB()
	}

	if e := h.o.ct[h.ek]; e != nil {
		if e.removeHalfOpen(h) {
			h.o.addHalfOpen(-1)
		}
	}
}

// onSetupBackup fires when the backup timer elapses with the primary still
// not connected.
func (o *mgr) onSetupBackup(h *halfOpen) {
	if h.abandoned || h.hasConnected {
		return
	}

	if h.failP && !h.backupStarted {
		// the primary already failed; the backup is the only hope left
		h.setupBackupStream()
		return
	}

	if !h.backupStarted {
		h.setupBackupStream()
	}
}

// onTransportResult lands every dial outcome on the socket context.
func (o *mgr) onTransportResult(v evtDial) {
	var h = v.h

	if h.abandoned || h.hasConnected {
		if v.t != nil {
			_ = v.t.Close()
		}
		return
	}

	if v.e != nil {
		o.onTransportError(h, v)
		return
	}

	// winner: detach from the bucket before binding the transport
	h.hasConnected = true
	h.cancelBackupTimer()

	if v.b {
		if h.cnlP != nil {
			h.cnlP()
		}
	} else if h.cnlB != nil {
		h.cnlB()
	}

	var e = o.ct[h.ek]
	if e == nil {
		_ = v.t.Close()
		return
	}

	if e.removeHalfOpen(h) {
		o.addHalfOpen(-1)
	}

	var c = o.newConn(e, v.t)

	var p = v.t.NegotiatedProtocol()
	if strings.HasPrefix(p, "spdy") || p == "h2" {
		c.spdy = true
	}

	if h.t != nil && e.removePending(h.t) {
		o.addPending(-1)
		e.act = append(e.act, c)
		o.addActive(1)
		o.activateTimeoutTick()
		o.dispatchTransaction(e, h.t, c)
	} else {
		// no claimant left: speculative attempts and canceled claimants
		// both park the fresh connection in the idle pool
		c.idleAt = time.Now()
		e.idl = append(e.idl, c)
		o.addIdle(1)
		o.armPruneTimer(o.config().idleTimeout())
	}

	if c.spdy {
		o.reportSpdyConnection(e, c)
	}

	if e.nfo.IsTLS() {
		e.testedSpdy = true
	}

	o.processPendingQForEntry(e)
}

func (o *mgr) onTransportError(h *halfOpen, v evtDial) {
	if v.b {
		h.failB = true
	} else {
		h.failP = true
	}

	// keep waiting while another attempt is still in flight
	if !h.failP {
		return
	}

	if h.backupStarted && !h.failB {
		return
	}

	if !h.backupStarted && h.timer != nil {
		// primary lost but the backup may still try; fire it now
		h.cancelBackupTimer()
		h.setupBackupStream()
		return
	}

	h.abandon()

	var e = o.ct[h.ek]

	if h.t != nil {
		if e != nil && e.removePending(h.t) {
			o.addPending(-1)
		}

		if st, ok := o.tx[h.t]; ok && st.cn == nil {
			delete(o.tx, h.t)
		}

		h.t.OnStop(ErrorTransportFailed.ErrorParent(v.e))
	} else {
		o.logger().Entry(loglvl.DebugLevel, "speculative transport failed").ErrorAdd(true, v.e).Log()
	}

	if e != nil && e.isEmpty() {
		o.dropEntry(e)
	}
}
