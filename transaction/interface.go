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

// Package transaction defines the capability traits exchanged between the
// connection manager and its consumers: the transaction sink, the abstract
// connection handed to a dispatched transaction, and the pipeline builder.
//
// The manager never parses HTTP; it schedules opaque transactions onto
// opaque connections. Everything wire-level lives behind these interfaces.
package transaction

import (
	"github/sabouaram/connmgr/conninfo"
)

// Classifier partitions transactions for pipelining purposes. A server that
// head-of-line blocks on one class of request may still pipeline another.
type Classifier uint8

const (
	// ClassRevalidation covers conditional cache revalidations.
	ClassRevalidation Classifier = iota

	// ClassImmediateDict covers small dictionary-like resources needed before
	// anything else can proceed.
	ClassImmediateDict

	// ClassMaybeSpeculative covers requests that may turn out unnecessary.
	ClassMaybeSpeculative

	// ClassBulkContent covers ordinary content transfers. This is the default
	// classification.
	ClassBulkContent

	// ClassMax bounds the classifier space; it is never a valid class.
	ClassMax
)

func (c Classifier) String() string {
	switch c {
	case ClassRevalidation:
		return "revalidation"
	case ClassImmediateDict:
		return "immediate-dict"
	case ClassMaybeSpeculative:
		return "maybe-speculative"
	case ClassBulkContent:
		return "bulk-content"
	}

	return "invalid"
}

// Capability bits restrict how the manager may place a transaction.
type Capability uint8

const (
	// CapNoKeepAlive forbids reusing or pooling the connection after the
	// transaction completes.
	CapNoKeepAlive Capability = 1 << iota

	// CapNoPipeline forbids adding the transaction to a pipeline.
	CapNoPipeline

	// CapAnonymous marks a transaction that needs a connection without
	// ambient credentials. The connection manager does not read this bit;
	// placement follows the anonymous flag of the transaction's ConnInfo.
	CapAnonymous
)

// Has returns true when every bit of c is set.
func (o Capability) Has(c Capability) bool {
	return o&c == c
}

// Conn is the abstract connection capability handed to a dispatched
// transaction. It is a move-only ownership token: closing it returns the
// underlying connection to the manager exactly once.
type Conn interface {
	// WriteSegments sends request bytes on the bound transport.
	WriteSegments(p []byte) (n int, err error)

	// ReadSegments receives response bytes from the bound transport.
	ReadSegments(p []byte) (n int, err error)

	// UsingSpdy reports whether the bound transport negotiated a multiplexed
	// protocol.
	UsingSpdy() bool

	// Close releases the connection back to the manager. The first call
	// decides reuse: a keep-alive eligible connection returns to the idle
	// pool, a multiplexed session stays active for other transactions,
	// anything else is torn down. Further calls are no-ops.
	Close() error
}

// Transaction is an outgoing request known to the connection manager.
// OnStart and OnStop form the dispatch sink; both are invoked from the
// manager's socket context and must not block.
type Transaction interface {
	// Info returns the identity of the connection target.
	Info() conninfo.ConnInfo

	// Classify returns the transaction class used for pipelining decisions.
	Classify() Classifier

	// Caps returns the capability bits restricting placement.
	Caps() Capability

	// OnStart delivers the connection the transaction was dispatched onto.
	OnStart(c Conn)

	// OnStop reports the terminal outcome. A nil reason means the manager
	// released the transaction normally; otherwise reason carries the
	// cancellation or transport error.
	OnStop(reason error)
}

// Pipeline is a wire-level bundle of transactions sharing one connection.
// The manager decides when to build one and how deep it may grow; framing is
// the builder's business.
type Pipeline interface {
	Transaction

	// Add appends a transaction to the pipeline. It returns false when the
	// pipeline cannot accept more (already committed to the wire).
	Add(t Transaction) bool

	// Depth returns the number of in-flight requests in the pipeline.
	Depth() uint32

	// Drain removes and returns the transactions not yet written to the
	// wire, used to requeue them after a server cancels a pipeline.
	Drain() []Transaction
}

// PipelineBuilder packages transactions into pipelines.
type PipelineBuilder interface {
	// New builds a pipeline seeded with the given transaction.
	New(first Transaction) (Pipeline, error)
}
