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
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	librun "github.com/nabbar/golib/server/runner/startStop"
	libtck "github.com/nabbar/golib/server/runner/ticker"
	"github.com/prometheus/client_golang/prometheus"

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
	"github/sabouaram/connmgr/transport"
)

// UpgradeListener receives a live transport detached from a managed
// connection after a 101 Switching Protocols response.
type UpgradeListener interface {
	// OnTransportAvailable delivers the detached transport. The listener
	// owns it from this point on.
	OnTransportAvailable(t transport.Transport)
}

// Manager multiplexes transactions onto a bounded pool of transports toward
// a dynamic set of origins. All state mutation happens on a single socket
// context goroutine fed by an ordered event queue; the public operations may
// be called from any goroutine and return as soon as the event is posted.
type Manager interface {
	// Start launches the socket context and accepts operations. It must be
	// called before any transaction is submitted.
	Start(ctx context.Context) error

	// Stop drains the socket context: every pending transaction is stopped
	// with a shutdown reason, every connection closed, every half-open
	// abandoned. It blocks until the drain is acknowledged. After Stop no
	// further operations are accepted.
	Stop(ctx context.Context) error

	// Restart chains Stop and Start.
	Restart(ctx context.Context) error

	// IsRunning reports whether the socket context is live.
	IsRunning() bool

	// Uptime returns the time elapsed since a successful Start.
	Uptime() time.Duration

	// AddTransaction submits a transaction with the given priority. Lower
	// numeric priority dispatches earlier; equal priorities dispatch in
	// submission order.
	AddTransaction(t transaction.Transaction, priority int32) liberr.Error

	// RescheduleTransaction changes the priority of an already submitted,
	// still pending transaction.
	RescheduleTransaction(t transaction.Transaction, priority int32) liberr.Error

	// CancelTransaction cancels a transaction with the given reason. The
	// call is idempotent; the reason is surfaced to the transaction sink.
	CancelTransaction(t transaction.Transaction, reason error) liberr.Error

	// ReclaimConnection returns a dispatched connection to the manager,
	// equivalent to closing its handle. The connection must be active.
	ReclaimConnection(c transaction.Conn) liberr.Error

	// ProcessPendingQ forces another dispatch pass over the entry owning
	// the given target, or over every entry when nfo is nil.
	ProcessPendingQ(nfo conninfo.ConnInfo) liberr.Error

	// SpeculativeConnect starts a half-open toward the target because a
	// transaction is likely coming soon. No obligation is incurred either
	// way; an unclaimed result lands on the idle list.
	SpeculativeConnect(nfo conninfo.ConnInfo) liberr.Error

	// CompleteUpgrade detaches the live transport from the given connection
	// on the socket context and delivers it to the listener, as needed after
	// a 101 response.
	CompleteUpgrade(c transaction.Conn, l UpgradeListener) liberr.Error

	// UpdateParam changes one of the eight tunable limits.
	UpdateParam(name ParamName, value uint16) liberr.Error

	// PruneDeadConnections closes idle connections whose keep-alive
	// lifetime has elapsed and drops empty entries.
	PruneDeadConnections() liberr.Error

	// PruneDeadConnectionsAfter schedules the next prune no later than the
	// given delay from now.
	PruneDeadConnectionsAfter(d time.Duration) liberr.Error

	// ClosePersistentConnections closes all idle persistent connections and
	// prevents the active ones from being reused.
	ClosePersistentConnections() liberr.Error

	// ConditionallyStopPruneDeadConnectionsTimer stops the prune timer when
	// no idle connections and no active multiplexed entries remain.
	ConditionallyStopPruneDeadConnectionsTimer()

	// ConditionallyStopReadTimeoutTick stops the read-timeout tick when no
	// active connections remain.
	ConditionallyStopReadTimeoutTick()

	// PipelineFeedbackInfo reports one classified event about a host. For
	// good completions data carries the pipeline depth; for bad events it
	// carries the transaction classification. May be called from any
	// goroutine.
	PipelineFeedbackInfo(nfo conninfo.ConnInfo, kind pipeline.FeedbackType, c transaction.Conn, data uint32)

	// SupportsPipelining reports whether the entry owning the target
	// currently allows pipelining at all.
	SupportsPipelining(nfo conninfo.ConnInfo) bool

	// ReportSpdyConnection tells the manager a dispatched connection has
	// been upgraded to a multiplexed session, so dispatch and idle
	// semantics switch and traffic of the same address pool coalesces.
	ReportSpdyConnection(c transaction.Conn) liberr.Error

	// GetSpdyAlternateProtocol reports whether the given host key advertised
	// a multiplexed upgrade earlier.
	GetSpdyAlternateProtocol(key string) bool

	// ReportSpdyAlternateProtocol records that the given host key advertised
	// a multiplexed upgrade.
	ReportSpdyAlternateProtocol(key string)

	// RemoveSpdyAlternateProtocol forgets an advertised upgrade.
	RemoveSpdyAlternateProtocol(key string)

	// PrintDiagnostics logs a dump of the connection table.
	PrintDiagnostics()

	// RegisterMetrics registers a collector exposing the manager counters
	// with the given prometheus registerer.
	RegisterMetrics(reg prometheus.Registerer) error

	// NumActiveConns returns the total number of active connections.
	NumActiveConns() uint16

	// NumIdleConns returns the total number of idle pooled connections.
	NumIdleConns() uint16

	// NumHalfOpen returns the number of in-flight connection attempts.
	NumHalfOpen() uint16

	// NumPendingTrans returns the number of queued transactions.
	NumPendingTrans() int

	// NumEntries returns the number of live connection buckets.
	NumEntries() int
}

// New builds a connection manager. The provider opens transports, the
// builder packages pipelines (nil disables pipelining entirely), and the
// logger function may be nil.
func New(cfg *Config, prv transport.Provider, bld transaction.PipelineBuilder, defLog liblog.FuncLog) (Manager, liberr.Error) {
	if prv == nil {
		return nil, ErrorParamEmpty.Error(nil)
	}

	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &mgr{
		m:   sync.RWMutex{},
		c:   *cfg,
		pv:  prv,
		bd:  bld,
		alt: make(map[string]struct{}),
		pOK: make(map[string]bool),
		lg:  libatm.NewValue[liblog.FuncLog](),
		run: libatm.NewValue[librun.StartStop](),
		tck: libatm.NewValue[libtck.Ticker](),
		q:   make(chan event, cfg.queueSize()),
	}

	if defLog != nil {
		o.lg.Store(defLog)
	}

	o.run.Store(librun.New(o.runLoop, o.runStop))

	return o, nil
}
