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

	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
)

// onProcessFeedback routes one classified host event into the entry's
// governor, and repairs the damage of a canceled pipeline by requeueing its
// unsent transactions.
func (o *mgr) onProcessFeedback(v evtFeedback) {
	var e = o.getOrCreateEntry(v.n)

	o.addFeedback()

	var cls = transaction.ClassMax

	if v.t.IsBad() && !v.t.IsRed() {
		if c := transaction.Classifier(v.d); c < transaction.ClassMax {
			cls = c
		} else {
			cls = transaction.ClassBulkContent
		}
	}

	e.gov.OnFeedback(v.t, v.c, cls, v.d)

	if v.t == pipeline.RedCanceledPipeline {
		o.requeueCanceledPipeline(e, v.c)
	}

	o.syncEntryState(e)
	o.processPendingQForEntry(e)
}

// requeueCanceledPipeline returns the unsent tail of a canceled pipeline to
// the head of the pending queue.
func (o *mgr) requeueCanceledPipeline(e *connEntry, connID uint64) {
	var c *conn

	for _, a := range e.act {
		if a.id == connID {
			c = a
			break
		}
	}

	if c == nil || c.pl == nil {
		return
	}

	var ts = c.pl.Drain()

	if len(ts) < 1 {
		return
	}

	if n := uint32(len(ts)); c.depth >= n {
		c.depth -= n
	} else {
		c.depth = 0
	}

	for _, t := range ts {
		if st, ok := o.tx[t]; ok {
			st.cn = nil
		} else {
			o.tx[t] = &txState{ek: e.nfo.HashKey()}
		}
	}

	e.requeueFront(ts, time.Now())
	o.addPending(len(ts))
}
