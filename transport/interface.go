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

// Package transport supplies the socket-transport provider consumed by the
// connection manager: an asynchronous opener of TCP (and TLS) transports
// toward a connection target, plus the default implementation built on the
// net dialer.
//
// The connection manager only needs three things from a transport once it is
// open: a byte stream, the negotiated application protocol (to detect a
// multiplexed session), and the resolved peer address in dotted form (to
// coalesce hosts sharing an IP pool).
package transport

import (
	"context"
	"io"
	"net"
	"time"

	libtls "github.com/nabbar/golib/certificates"
	tlscas "github.com/nabbar/golib/certificates/ca"

	"github/sabouaram/connmgr/conninfo"
)

// Transport is one established byte stream toward a connection target.
type Transport interface {
	io.ReadWriteCloser

	// LocalAddr returns the local endpoint of the transport.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote endpoint of the transport.
	RemoteAddr() net.Addr

	// RemoteIP returns the resolved peer address in dotted decimal form,
	// without the port. Used as coalescing key material.
	RemoteIP() string

	// NegotiatedProtocol returns the application protocol negotiated during
	// the TLS handshake, or the empty string for cleartext transports.
	NegotiatedProtocol() string

	// SetReadDeadline bounds the next Read; the connection manager uses it
	// from its read-timeout tick to fail stalled connections fast.
	SetReadDeadline(t time.Time) error
}

// Provider opens transports. Dial blocks until the transport is established
// or the context ends; the connection manager races two Dial calls per
// half-open attempt (primary plus delayed backup).
type Provider interface {
	// Dial opens a transport toward the target described by nfo. When the
	// target declares a proxy chain the first hop is dialed instead of the
	// origin; anything past the TCP+TLS establishment stays wire-level and
	// out of scope.
	Dial(ctx context.Context, nfo conninfo.ConnInfo) (Transport, error)

	// LookupIP resolves the host to one dotted address, used to coalesce
	// hosts sharing an address pool before any transport is open.
	LookupIP(ctx context.Context, host string) (string, error)
}

// New returns the default Provider built from the given configuration. The
// root CA function may be nil; it follows the certificate aggregation idiom
// of the TLS helpers.
func New(cfg *Config, fct libtls.FctRootCACert) (Provider, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if fct == nil {
		fct = func() tlscas.Cert {
			return nil
		}
	}

	return &prv{
		c: *cfg,
		f: fct,
	}, nil
}
