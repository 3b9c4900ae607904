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

// Package connmgr multiplexes an unbounded stream of HTTP transactions onto
// a bounded pool of transports toward a dynamic set of origins.
//
// The manager is actor shaped: every state-mutating operation lowers to a
// typed event consumed by a single socket context goroutine, so the entry
// containers never need a lock. A small reentrant-style monitor guards only
// what other goroutines read: the limit parameters, the aggregate counters,
// the alternate protocol set and the shutdown flag.
//
// Per origin, a connection entry holds the pending transaction queue
// (priority ordered, stable within a priority), the active and idle
// connection lists, the in-flight half-open attempts and a pipelining
// governor. Dispatch prefers a multiplexed session (local or coalesced by
// resolved address), then an optimistic pipeline for latency tolerant
// classes, then the warmest idle connection, then a fresh transport raced
// over a primary and a delayed backup dial, and finally a pipeline at full
// depth.
//
// Connections hand out ownership through move-only handles: whoever holds
// the handle owns the connection, and releasing it posts the reclaim back
// to the socket context exactly once.
//
// Basic usage:
//
//	prv, _ := transport.New(nil, nil)
//	cm, _ := connmgr.New(nil, prv, nil, nil)
//	_ = cm.Start(context.Background())
//	defer cm.Stop(context.Background())
//
//	_ = cm.AddTransaction(t, 0)
package connmgr
