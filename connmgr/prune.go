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

	libtck "github.com/nabbar/golib/server/runner/ticker"
)

// armPruneTimer schedules the next prune pass no later than the given delay
// from now. An earlier pending schedule wins.
func (o *mgr) armPruneTimer(d time.Duration) {
	var at = time.Now().Add(d)

	o.m.Lock()
	defer o.m.Unlock()

	if o.prune != nil && !o.pruneAt.IsZero() && o.pruneAt.Before(at) {
		return
	}

	if o.prune != nil {
		o.prune.Stop()
	}

	o.pruneAt = at
	o.prune = time.AfterFunc(d, func() {
		_ = o.post(event{k: evtPruneDeadConnections})
	})
}

func (o *mgr) stopPruneTimer() {
	o.m.Lock()
	defer o.m.Unlock()

	if o.prune != nil {
		o.prune.Stop()
		o.prune = nil
	}

	o.pruneAt = time.Time{}
}

// onPruneDeadConnections closes idle connections whose keep-alive lifetime
// has elapsed, credits pipelining penalties, and drops empty buckets.
func (o *mgr) onPruneDeadConnections() {
	var (
		now      = time.Now()
		lifetime = o.config().idleTimeout()
		soonest  time.Duration
	)

	o.m.Lock()
	o.pruneAt = time.Time{}
	o.m.Unlock()

	for _, e := range o.ct {
		e.gov.CreditPenalty()
		o.syncEntryState(e)

		var keep = e.idl[:0]

		for _, c := range e.idl {
			if c.tr == nil || c.idleExpired(now, lifetime) {
				c.closeTransport()
				o.addIdle(-1)
			} else {
				keep = append(keep, c)

				if left := lifetime - now.Sub(c.idleAt); soonest == 0 || left < soonest {
					soonest = left
				}
			}
		}

		e.idl = keep

		if e.isEmpty() && !e.spdyPreferred {
			o.dropEntry(e)
		}
	}

	if soonest > 0 {
		o.armPruneTimer(soonest)
	} else {
		o.ConditionallyStopPruneDeadConnectionsTimer()
	}
}

// onClosePersistentConnections closes every idle connection and prevents
// the active ones from being pooled again.
func (o *mgr) onClosePersistentConnections() {
	for _, e := range o.ct {
		for _, c := range e.idl {
			c.closeTransport()
		}

		o.addIdle(-len(e.idl))
		e.idl = nil

		for _, c := range e.act {
			c.dontReuse = true
		}

		if e.isEmpty() && !e.spdyPreferred {
			o.dropEntry(e)
		}
	}
}

// activateTimeoutTick arms the one second read-timeout tick when the first
// connection becomes active.
func (o *mgr) activateTimeoutTick() {
	var t = o.tck.Load()

	if t == nil {
		t = libtck.New(time.Second, func(ctx context.Context, tck *time.Ticker) error {
			return o.post(event{k: evtReadTimeoutTick})
		})
		o.tck.Store(t)
	}

	if !t.IsRunning() {
		_ = t.Start(context.Background())
	}
}

func (o *mgr) stopTimeoutTick() {
	if t := o.tck.Load(); t != nil && t.IsRunning() {
		x, l := timeoutCtx()
		defer l()
		_ = t.Stop(x)
	}
}

// onReadTimeoutTick refreshes the read deadline of every active plain
// connection so a stalled peer fails the next read fast.
func (o *mgr) onReadTimeoutTick(now time.Time) {
	var stall = o.config().TimeoutReadStall.Time()

	if stall <= 0 {
		return
	}

	for _, e := range o.ct {
		for _, c := range e.act {
			if !c.spdy && c.tr != nil && c.depth > 0 {
				_ = c.tr.SetReadDeadline(now.Add(stall))
			}
		}
	}
}
