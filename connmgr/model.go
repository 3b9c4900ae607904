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
	"sync"
	"time"

	libatm "github.com/nabbar/golib/atomic"
	liblog "github.com/nabbar/golib/logger"
	librun "github.com/nabbar/golib/server/runner/startStop"
	libtck "github.com/nabbar/golib/server/runner/ticker"

	"github/sabouaram/connmgr/transaction"
	"github/sabouaram/connmgr/transport"
)

// txState tracks where a submitted transaction currently lives: the entry
// key always, the carrying connection once dispatched.
type txState struct {
	ek string
	cn *conn
}

type mgr struct {
	// m guards the fields visible to arbitrary goroutines: the limit
	// config, the counters, the alternate protocol set and the shutdown
	// flag. Entry containers are never touched under it.
	m sync.RWMutex
	c Config

	shut bool

	numActive   uint16
	numIdle     uint16
	numHalfOpen uint16
	numPending  int
	numEntries  int
	numSpdyEnts int

	cntDispatch uint64
	cntFeedback uint64

	alt map[string]struct{}
	pOK map[string]bool

	pv transport.Provider
	bd transaction.PipelineBuilder

	lg  libatm.Value[liblog.FuncLog]
	run libatm.Value[librun.StartStop]
	tck libatm.Value[libtck.Ticker]

	// q is the event queue feeding the socket context, fixed at build time.
	q chan event

	// Everything below belongs to the socket context goroutine only.
	ct map[string]*connEntry                // connection table by hash key
	sp map[string]*connEntry                // preferred entry by coalescing key
	tx map[transaction.Transaction]*txState // submitted transactions
	cs uint64                               // connection id sequence

	prune   *time.Timer
	pruneAt time.Time
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (o *mgr) logger() liblog.Logger {
	if f := o.lg.Load(); f == nil {
		return liblog.GetDefault()
	} else if l := f(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

func (o *mgr) config() Config {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.c
}

func (o *mgr) isShutdown() bool {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.shut
}

func (o *mgr) Start(ctx context.Context) error {
	o.m.Lock()
	o.shut = false
	o.m.Unlock()

	if r := o.run.Load(); r == nil {
		return ErrorManagerNotRunning.Error(nil)
	} else {
		return r.Start(ctx)
	}
}

func (o *mgr) Stop(ctx context.Context) error {
	if r := o.run.Load(); r == nil {
		return ErrorManagerNotRunning.Error(nil)
	} else {
		return r.Stop(ctx)
	}
}

func (o *mgr) Restart(ctx context.Context) error {
	if r := o.run.Load(); r == nil {
		return ErrorManagerNotRunning.Error(nil)
	} else {
		return r.Restart(ctx)
	}
}

func (o *mgr) IsRunning() bool {
	if r := o.run.Load(); r == nil {
		return false
	} else {
		return r.IsRunning()
	}
}

func (o *mgr) Uptime() time.Duration {
	if r := o.run.Load(); r == nil {
		return 0
	} else {
		return r.Uptime()
	}
}

func (o *mgr) NumActiveConns() uint16 {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.numActive
}

func (o *mgr) NumIdleConns() uint16 {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.numIdle
}

func (o *mgr) NumHalfOpen() uint16 {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.numHalfOpen
}

func (o *mgr) NumPendingTrans() int {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.numPending
}

func (o *mgr) NumEntries() int {
	o.m.RLock()
	defer o.m.RUnlock()
	return o.numEntries
}

// counter mutation helpers, called from the socket context
func (o *mgr) addActive(d int) {
	o.m.Lock()
	o.numActive = uint16(int(o.numActive) + d)
	o.m.Unlock()
}

func (o *mgr) addIdle(d int) {
	o.m.Lock()
	o.numIdle = uint16(int(o.numIdle) + d)
	o.m.Unlock()
}

func (o *mgr) addHalfOpen(d int) {
	o.m.Lock()
	o.numHalfOpen = uint16(int(o.numHalfOpen) + d)
	o.m.Unlock()
}

func (o *mgr) addPending(d int) {
	o.m.Lock()
	o.numPending += d
	o.m.Unlock()
}

func (o *mgr) setEntryCounts(entries, spdy int) {
	o.m.Lock()
	o.numEntries = entries
	o.numSpdyEnts = spdy
	o.m.Unlock()
}

func (o *mgr) addDispatch() {
	o.m.Lock()
	o.cntDispatch++
	o.m.Unlock()
}

func (o *mgr) addFeedback() {
	o.m.Lock()
	o.cntFeedback++
	o.m.Unlock()
}

func (o *mgr) GetSpdyAlternateProtocol(key string) bool {
	o.m.RLock()
	defer o.m.RUnlock()

	_, ok := o.alt[key]
	return ok
}

func (o *mgr) ReportSpdyAlternateProtocol(key string) {
	if len(key) < 1 {
		return
	}

	o.m.Lock()
	defer o.m.Unlock()

	o.alt[key] = struct{}{}
}

func (o *mgr) RemoveSpdyAlternateProtocol(key string) {
	o.m.Lock()
	defer o.m.Unlock()

	delete(o.alt, key)
}
