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
	"io"
	"sync"
	"time"

	"github/sabouaram/connmgr/transaction"
	"github/sabouaram/connmgr/transport"
)

// conn is one bound transport. It refers to its owning bucket by hash key,
// never by pointer; the manager's table resolves the key when needed.
type conn struct {
	id uint64
	ek string

	tr transport.Transport

	spdy bool

	// depth is the number of in-flight transactions currently carried.
	depth uint32

	// total counts every transaction ever carried, for diagnostics.
	total uint64

	// pl is the pipeline currently bound to the connection, when any.
	pl transaction.Pipeline

	idleAt time.Time

	noKeepAlive bool
	dontReuse   bool
	detached    bool
}

// reusable reports whether the connection may return to the idle pool.
func (c *conn) reusable() bool {
	return c.tr != nil && !c.noKeepAlive && !c.dontReuse && !c.detached && !c.spdy
}

// idleExpired reports whether the keep-alive lifetime has elapsed.
func (c *conn) idleExpired(now time.Time, lifetime time.Duration) bool {
	return !c.idleAt.IsZero() && now.Sub(c.idleAt) >= lifetime
}

func (c *conn) closeTransport() {
	if c.tr != nil {
		_ = c.tr.Close()
		c.tr = nil
	}
}

// newConn binds an established transport for the given bucket.
func (o *mgr) newConn(e *connEntry, tr transport.Transport) *conn {
	o.cs++

	return &conn{
		id: o.cs,
		ek: e.nfo.HashKey(),
		tr: tr,
	}
}

// handle is the indirection owned by a dispatched transaction. Whoever
// holds the handle owns the connection; releasing it posts the reclaim
// exactly once.
type handle struct {
	o *mgr
	c *conn
	r sync.Once
}

func (o *mgr) newHandle(c *conn) *handle {
	return &handle{
		o: o,
		c: c,
	}
}

func (h *handle) WriteSegments(p []byte) (n int, err error) {
	if h.c == nil || h.c.tr == nil {
		return 0, io.ErrClosedPipe
	}

	return h.c.tr.Write(p)
}

func (h *handle) ReadSegments(p []byte) (n int, err error) {
	if h.c == nil || h.c.tr == nil {
		return 0, io.EOF
	}

	return h.c.tr.Read(p)
}

func (h *handle) UsingSpdy() bool {
	return h.c != nil && h.c.spdy
}

func (h *handle) Close() error {
	h.release()
	return nil
}

func (h *handle) release() {
	h.r.Do(func() {
		_ = h.o.post(event{k: evtReclaimConnection, v: h.c})
	})
}
