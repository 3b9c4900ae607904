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
	loglvl "github.com/nabbar/golib/logger/level"
)

// onPrintDiagnostics dumps the connection table through the logger.
func (o *mgr) onPrintDiagnostics() {
	var ent = o.logger().Entry(loglvl.InfoLevel, "connection manager diagnostics")

	ent.FieldAdd("entries", len(o.ct))
	ent.FieldAdd("active", o.NumActiveConns())
	ent.FieldAdd("idle", o.NumIdleConns())
	ent.FieldAdd("half-open", o.NumHalfOpen())
	ent.FieldAdd("pending", o.NumPendingTrans())
	ent.Log()

	for k, e := range o.ct {
		var d = o.logger().Entry(loglvl.DebugLevel, "connection entry")

		d.FieldAdd("key", k)
		d.FieldAdd("pending", len(e.pq))
		d.FieldAdd("active", len(e.act))
		d.FieldAdd("idle", len(e.idl))
		d.FieldAdd("half-open", len(e.ho))
		d.FieldAdd("pipeline-state", e.gov.State().String())
		d.FieldAdd("pipeline-penalty", e.gov.Penalty())
		d.FieldAdd("using-spdy", e.usingSpdy)
		d.FieldAdd("spdy-preferred", e.spdyPreferred)
		d.FieldAdd("coalescing-key", e.key)
		d.Log()
	}
}
