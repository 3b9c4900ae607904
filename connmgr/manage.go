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

	liberr "github.com/nabbar/golib/errors"

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
)

func (o *mgr) AddTransaction(t transaction.Transaction, priority int32) liberr.Error {
	if t == nil || t.Info() == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if e := o.post(event{k: evtNewTransaction, i: priority, v: t}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) RescheduleTransaction(t transaction.Transaction, priority int32) liberr.Error {
	if t == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if e := o.post(event{k: evtReschedTransaction, i: priority, v: t}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) CancelTransaction(t transaction.Transaction, reason error) liberr.Error {
	if t == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if reason == nil {
		reason = ErrorTransactionCancel.Error(nil)
	}

	if e := o.post(event{k: evtCancelTransaction, v: evtCancel{t: t, r: reason}}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) ReclaimConnection(c transaction.Conn) liberr.Error {
	h, k := c.(*handle)
	if !k {
		return ErrorConnectionUnknown.Error(nil)
	}

	h.release()
	return nil
}

func (o *mgr) ProcessPendingQ(nfo conninfo.ConnInfo) liberr.Error {
	if e := o.post(event{k: evtProcessPendingQ, v: nfo}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) SpeculativeConnect(nfo conninfo.ConnInfo) liberr.Error {
	if nfo == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if e := o.post(event{k: evtSpeculativeConnect, v: nfo}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) CompleteUpgrade(c transaction.Conn, l UpgradeListener) liberr.Error {
	h, k := c.(*handle)
	if !k || l == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if e := o.post(event{k: evtCompleteUpgrade, v: evtUpgrade{c: h.c, l: l}}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) UpdateParam(name ParamName, value uint16) liberr.Error {
	if !name.valid() {
		return ErrorParamInvalid.Error(nil)
	}

	var packed = int32(uint32(name)<<16 | uint32(value))

	if e := o.post(event{k: evtUpdateParam, i: packed}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) PruneDeadConnections() liberr.Error {
	if e := o.post(event{k: evtPruneDeadConnections}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) PruneDeadConnectionsAfter(d time.Duration) liberr.Error {
	if d <= 0 {
		return ErrorParamInvalid.Error(nil)
	}

	o.armPruneTimer(d)
	return nil
}

func (o *mgr) ClosePersistentConnections() liberr.Error {
	if e := o.post(event{k: evtClosePersistentConnections}); e != nil {
		return liberrOf(e)
	}

	return nil
}

func (o *mgr) ConditionallyStopPruneDeadConnectionsTimer() {
	o.m.RLock()
	var idle = o.numIdle
	var spdy = o.numSpdyEnts
	o.m.RUnlock()

	if idle == 0 && spdy == 0 {
		o.stopPruneTimer()
	}
}

func (o *mgr) ConditionallyStopReadTimeoutTick() {
	if o.NumActiveConns() > 0 {
		return
	}

	if t := o.tck.Load(); t != nil && t.IsRunning() {
		x, l := timeoutCtx()
		defer l()
		_ = t.Stop(x)
	}
}

func (o *mgr) PipelineFeedbackInfo(nfo conninfo.ConnInfo, kind pipeline.FeedbackType, c transaction.Conn, data uint32) {
	if nfo == nil {
		return
	}

	var id uint64

	if h, k := c.(*handle); k && h.c != nil {
		id = h.c.id
	}

	_ = o.post(event{k: evtProcessFeedback, v: evtFeedback{n: nfo, t: kind, c: id, d: data}})
}

func (o *mgr) SupportsPipelining(nfo conninfo.ConnInfo) bool {
	if nfo == nil {
		return false
	}

	o.m.RLock()
	defer o.m.RUnlock()

	if o.pOK == nil {
		return true
	}

	if v, k := o.pOK[nfo.HashKey()]; k {
		return v
	}

	// an entry never seen starts in the probing state
	return true
}

func (o *mgr) PrintDiagnostics() {
	_ = o.post(event{k: evtPrintDiagnostics})
}

func liberrOf(e error) liberr.Error {
	if e == nil {
		return nil
	}

	if l, k := e.(liberr.Error); k {
		return l
	}

	return ErrorParamInvalid.ErrorParent(e)
}
