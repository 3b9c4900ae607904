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

package pipeline

import (
	"math"
	"time"

	"github/sabouaram/connmgr/transaction"
)

// Penalty points per event. Red events carry heavy global penalties, bad
// events moderate ones; most bad events also charge the class they hit so a
// host with head-of-line trouble on one class can keep pipelining others.
const (
	penaltyVersionTooLow       = 1000
	penaltyBannedServer        = math.MaxInt16 / 2
	penaltyCorruptedContent    = 7000
	penaltyCanceledPipeline    = 60
	penaltyExplicitClose       = 250
	penaltySlowReadMinor       = 5
	penaltySlowReadMajor       = 25
	penaltyInsufficientFraming = 7
	penaltyUnexpectedLarge     = 120

	// creditPeriod is the wall time needed to pay back one penalty point.
	creditPeriod = time.Second

	// promoteDepth is the pipeline depth a completion must reach before it
	// counts as proof for widening the green depth.
	promoteDepth = 3
)

type gov struct {
	s State
	b bool // banned, terminal red

	d uint32 // current green depth cap
	i uint32 // depth cap granted on first promotion to green

	y  uint64 // yellow probe connection id, 0 when none
	yg uint32 // good events observed during yellow
	yb uint32 // bad events observed during yellow

	p  int16
	pc [transaction.ClassMax]int16

	t time.Time // last credit time, zero until first penalty
	n func() time.Time
}

func (o *gov) State() State {
	return o.s
}

func (o *gov) SupportsPipelining() bool {
	return o.s != Red
}

func (o *gov) MaxDepth(c transaction.Classifier) uint32 {
	o.CreditPenalty()

	if o.s == Red || c >= transaction.ClassMax {
		return 0
	}

	if o.pc[c] > 0 {
		return 0
	}

	if o.s == Yellow {
		return DepthRestricted
	}

	return o.d
}

func (o *gov) OnFeedback(t FeedbackType, connID uint64, c transaction.Classifier, data uint32) {
	o.CreditPenalty()

	switch {
	case t.IsRed():
		o.onRed(t)
	case t.IsBad():
		o.onBad(t, connID, c)
	case t.IsGood():
		o.onGood(connID, data)
	}
}

func (o *gov) onRed(t FeedbackType) {
	if t == RedBannedServer {
		o.b = true
	}

	o.addPenalty(redPenalty(t))
	o.s = Red
	o.y = 0
	o.yg = 0
	o.yb = 0
}

func (o *gov) onBad(t FeedbackType, connID uint64, c transaction.Classifier) {
	var amount = badPenalty(t)

	o.addPenalty(amount)

	if c < transaction.ClassMax {
		o.pc[c] = clampPenalty(int32(o.pc[c]) + int32(amount))
	}

	if o.s == Yellow && connID != 0 && connID == o.y {
		o.yb++
	}
}

func (o *gov) onGood(connID uint64, depth uint32) {
	// healthy transactions pay back one point each
	if o.p > 0 {
		o.p--
	}

	switch o.s {
	case Yellow:
		if connID != 0 && connID == o.y {
			o.yg++

			if depth >= promoteDepth && o.yb == 0 {
				o.promote()
			}
		}

	case Green:
		if depth >= promoteDepth {
			o.d = DepthUnlimited
		}
	}
}

func (o *gov) promote() {
	o.s = Green
	o.d = o.i
	o.y = 0
	o.yg = 0
	o.yb = 0
}

func (o *gov) CreditPenalty() {
	if o.b {
		return
	}

	if o.t.IsZero() {
		return
	}

	var (
		now     = o.n()
		credits = int32(now.Sub(o.t) / creditPeriod)
	)

	if credits <= 0 {
		return
	}

	// advance the credit mark only by whole periods so the remainder keeps
	// accruing
	o.t = o.t.Add(time.Duration(credits) * creditPeriod)

	o.p = clampPenalty(int32(o.p) - credits)
	for i := range o.pc {
		o.pc[i] = clampPenalty(int32(o.pc[i]) - credits)
	}

	if o.s == Red && o.p == 0 {
		o.s = Yellow
		o.y = 0
		o.yg = 0
		o.yb = 0
	}

	if o.p == 0 && o.allClassesClear() {
		o.t = time.Time{}
	}
}

func (o *gov) allClassesClear() bool {
	for i := range o.pc {
		if o.pc[i] != 0 {
			return false
		}
	}

	return true
}

func (o *gov) SetYellowConn(id uint64) {
	if o.s != Yellow {
		return
	}

	o.y = id
	o.yg = 0
	o.yb = 0
}

func (o *gov) YellowConn() uint64 {
	return o.y
}

func (o *gov) OnYellowComplete() {
	if o.s == Yellow {
		if o.yg > 0 && o.yb == 0 {
			o.promote()
		}
	}

	o.y = 0
}

func (o *gov) Penalty() int16 {
	return o.p
}

func (o *gov) ClassPenalty(c transaction.Classifier) int16 {
	if c >= transaction.ClassMax {
		return 0
	}

	return o.pc[c]
}

func (o *gov) addPenalty(amount int16) {
	o.p = clampPenalty(int32(o.p) + int32(amount))

	if o.t.IsZero() {
		o.t = o.n()
	}
}

func redPenalty(t FeedbackType) int16 {
	switch t {
	case RedVersionTooLow:
		return penaltyVersionTooLow
	case RedBannedServer:
		return penaltyBannedServer
	case RedCorruptedContent:
		return penaltyCorruptedContent
	case RedCanceledPipeline:
		return penaltyCanceledPipeline
	}

	return 0
}

func badPenalty(t FeedbackType) int16 {
	switch t {
	case BadExplicitClose:
		return penaltyExplicitClose
	case BadSlowReadMinor:
		return penaltySlowReadMinor
	case BadSlowReadMajor:
		return penaltySlowReadMajor
	case BadInsufficientFraming:
		return penaltyInsufficientFraming
	case BadUnexpectedLarge:
		return penaltyUnexpectedLarge
	}

	return 0
}

func clampPenalty(v int32) int16 {
	if v < 0 {
		return 0
	}

	if v > math.MaxInt16 {
		return math.MaxInt16
	}

	return int16(v)
}
