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

// Package pipeline implements the per-host pipelining feedback governor.
//
// Each connection bucket carries one Governor. The governor consumes
// classified feedback events about a host's behaviour (protocol violations,
// slow reads, clean pipeline completions) and answers one question for the
// dispatcher: how deep may a pipeline grow on this host, for this class of
// transaction, right now.
//
// The governor moves between three states. YELLOW is the probing state: one
// connection at a time runs shallow pipelines to gather evidence. GREEN
// allows open pipelining on every connection, with a depth that widens after
// proven deep successes. RED forbids pipelining; it is left only through
// wall-clock penalty decay.
package pipeline

import (
	"time"

	"github/sabouaram/connmgr/transaction"
)

// State is the pipelining capability of a host entry.
type State uint8

const (
	// Green means the host proved itself pipeline capable; large depths are
	// allowed on multiple connections.
	Green State = iota

	// Yellow means not enough evidence yet; small pipelines on a single
	// probe connection decide whether to proceed to Green.
	Yellow

	// Red means pipelining is currently forbidden for this host. Time and
	// penalty decay eventually allow another Yellow probe.
	Red
)

func (s State) String() string {
	switch s {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	}

	return "invalid"
}

// Depth caps for the governor states.
const (
	// DepthUnlimited is the extended green cap after repeated deep successes.
	DepthUnlimited uint32 = 1024

	// DepthOpen is the normal green cap, per connection.
	DepthOpen uint32 = 6

	// DepthRestricted is the yellow cap, on the single probe connection.
	DepthRestricted uint32 = 2
)

// FeedbackType classifies one observed event about a host. The high half
// carries the category masks, the low half an event code, so a single value
// both identifies the event and tells the governor how severe it is.
type FeedbackType uint32

const (
	feedbackTypeMask FeedbackType = 0xffff0000

	// TypeRed marks events that forbid pipelining outright.
	TypeRed FeedbackType = 0x00010000
	// TypeBad marks events that cost penalty points.
	TypeBad FeedbackType = 0x00020000
	// TypeNeutral marks events with no effect on scoring.
	TypeNeutral FeedbackType = 0x00040000
	// TypeGood marks successful pipelined completions.
	TypeGood FeedbackType = 0x00080000
)

const (
	// RedVersionTooLow is sent when a response below HTTP/1.1 is received.
	RedVersionTooLow = TypeRed | TypeBad | 0x0001

	// RedBannedServer is sent when the server identity is on the list of
	// products known to break pipelining. The entry stays red permanently.
	RedBannedServer = TypeRed | TypeBad | 0x0002

	// RedCorruptedContent is sent when a response fails an integrity check
	// or terminates early.
	RedCorruptedContent = TypeRed | TypeBad | 0x0004

	// RedCanceledPipeline is sent when the server closed the connection with
	// pipelined requests still unanswered.
	RedCanceledPipeline = TypeRed | TypeBad | 0x0005

	// BadExplicitClose is sent when a connection expected to stay persistent
	// was closed by the server.
	BadExplicitClose = TypeBad | 0x0003

	// BadSlowReadMinor is sent on a 400-1200ms gap between reads.
	BadSlowReadMinor = TypeBad | 0x0006

	// BadSlowReadMajor is sent on a gap above 1200ms between reads.
	BadSlowReadMajor = TypeBad | 0x0007

	// BadInsufficientFraming is sent when a response has neither chunked
	// encoding nor a complete content length.
	BadInsufficientFraming = TypeBad | 0x0008

	// BadUnexpectedLarge is sent when a very large response shows up in a
	// pipelining context and blocks the head of the line.
	BadUnexpectedLarge = TypeBad | 0x000B

	// NeutralExpectedOK is sent when response headers look pipeline friendly.
	NeutralExpectedOK = TypeNeutral | 0x0009

	// GoodCompletedOK is sent when a pipelined response completed cleanly.
	// The event data carries the pipeline depth at completion.
	GoodCompletedOK = TypeGood | 0x000A
)

// IsRed reports whether the event forbids pipelining.
func (t FeedbackType) IsRed() bool {
	return t&TypeRed != 0
}

// IsBad reports whether the event costs penalty points.
func (t FeedbackType) IsBad() bool {
	return t&TypeBad != 0
}

// IsGood reports whether the event is a successful pipelined completion.
func (t FeedbackType) IsGood() bool {
	return t&TypeGood != 0
}

// Governor is the feedback state machine of one host entry. It is not safe
// for concurrent use: the connection manager mutates it only from its socket
// context.
type Governor interface {
	// State returns the current pipelining state.
	State() State

	// SupportsPipelining reports whether any pipelining is allowed at all.
	SupportsPipelining() bool

	// MaxDepth returns the pipeline depth allowed for the given class, after
	// penalty credit has been applied. Zero means the class may not pipeline.
	MaxDepth(c transaction.Classifier) uint32

	// OnFeedback consumes one classified event. connID identifies the
	// connection the event was observed on (zero when unknown); data carries
	// event specific detail, for GoodCompletedOK the pipeline depth.
	OnFeedback(t FeedbackType, connID uint64, c transaction.Classifier, data uint32)

	// CreditPenalty pays back penalty points earned by elapsed wall time
	// and, when the total reaches zero, lets a red entry probe again.
	CreditPenalty()

	// SetYellowConn elects the single probe connection of the yellow state.
	SetYellowConn(id uint64)

	// YellowConn returns the probe connection id, zero when none is elected.
	YellowConn() uint64

	// OnYellowComplete is invoked when the probe connection finishes its
	// work; it settles the yellow phase using the accumulated good and bad
	// event counts.
	OnYellowComplete()

	// Penalty returns the current global penalty, for diagnostics.
	Penalty() int16

	// ClassPenalty returns the per-class penalty, for diagnostics.
	ClassPenalty(c transaction.Classifier) int16
}

// New returns a Governor in the yellow state. When aggressive is true the
// first promotion to green opens the depth straight to DepthUnlimited. The
// clock function may be nil, in which case time.Now is used; tests inject
// their own to drive penalty decay deterministically.
func New(aggressive bool, clock func() time.Time) Governor {
	if clock == nil {
		clock = time.Now
	}

	g := &gov{
		s: Yellow,
		d: DepthOpen,
		i: DepthOpen,
		n: clock,
	}

	if aggressive {
		g.i = DepthUnlimited
		g.d = DepthUnlimited
	}

	return g
}
