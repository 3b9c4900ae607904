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

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"time"

	libtls "github.com/nabbar/golib/certificates"
	libptc "github.com/nabbar/golib/network/protocol"

	"github/sabouaram/connmgr/conninfo"
)

type prv struct {
	c Config
	f libtls.FctRootCACert
}

func (o *prv) Dial(ctx context.Context, nfo conninfo.ConnInfo) (Transport, error) {
	if nfo == nil {
		return nil, ErrorParamEmpty.Error(nil)
	}

	var (
		e error
		d = o.dialer()
		n net.Conn

		endpoint = o.endpoint(nfo)
	)

	x, l := context.WithTimeout(ctx, o.c.timeoutConnect())
	defer l()

	if n, e = d.DialContext(x, libptc.NetworkTCP.Code(), endpoint); e != nil {
		return nil, ErrorDialFailed.ErrorParent(e)
	}

	if !nfo.IsTLS() {
		return &trp{c: n}, nil
	}

	var t = tls.Client(n, o.tlsConfig(nfo))

	if e = t.HandshakeContext(x); e != nil {
		_ = n.Close()
		return nil, ErrorTLSHandshake.ErrorParent(e)
	}

	return &trp{
		c: t,
		p: t.ConnectionState().NegotiatedProtocol,
	}, nil
}

func (o *prv) LookupIP(ctx context.Context, host string) (string, error) {
	if len(host) < 1 {
		return "", ErrorParamEmpty.Error(nil)
	}

	if a, e := net.DefaultResolver.LookupIPAddr(ctx, host); e != nil {
		return "", ErrorDialFailed.ErrorParent(e)
	} else if len(a) < 1 {
		return "", ErrorDialFailed.Error(nil)
	} else {
		return a[0].IP.String(), nil
	}
}

func (o *prv) dialer() *net.Dialer {
	var d = &net.Dialer{
		Timeout:   o.c.timeoutConnect(),
		KeepAlive: o.c.timeoutKeepAlive(),
	}

	if len(o.c.LocalAddr) > 0 {
		if a, e := net.ResolveTCPAddr(libptc.NetworkTCP.Code(), o.c.LocalAddr); e == nil {
			d.LocalAddr = a
		}
	}

	return d
}

// endpoint returns the first proxy hop when a chain is declared, else the
// origin itself.
func (o *prv) endpoint(nfo conninfo.ConnInfo) string {
	if p := nfo.Proxies(); len(p) > 0 {
		return net.JoinHostPort(p[0].Host, strconv.Itoa(int(p[0].Port)))
	}

	return nfo.HostPort()
}

func (o *prv) tlsConfig(nfo conninfo.ConnInfo) *tls.Config {
	var s *tls.Config

	if o.c.TLSConfig != nil {
		if t, e := o.c.TLSConfig.NewFrom(libtls.Default); e == nil && t != nil {
			s = t.TlsConfig(nfo.Host())
		}
	}

	if s == nil {
		s = libtls.Default.TlsConfig(nfo.Host())
	}

	if s == nil {
		s = &tls.Config{ServerName: nfo.Host()}
	}

	if c := o.f(); c != nil && c.Len() > 0 {
		if s.RootCAs == nil {
			s.RootCAs = x509.NewCertPool()
		}
		c.AppendPool(s.RootCAs)
	}

	s.NextProtos = o.c.protocols()

	return s
}

type trp struct {
	c net.Conn
	p string
}

func (o *trp) Read(p []byte) (n int, err error) {
	return o.c.Read(p)
}

func (o *trp) Write(p []byte) (n int, err error) {
	return o.c.Write(p)
}

func (o *trp) Close() error {
	return o.c.Close()
}

func (o *trp) LocalAddr() net.Addr {
	return o.c.LocalAddr()
}

func (o *trp) RemoteAddr() net.Addr {
	return o.c.RemoteAddr()
}

func (o *trp) RemoteIP() string {
	if a := o.c.RemoteAddr(); a == nil {
		return ""
	} else if h, _, e := net.SplitHostPort(a.String()); e != nil {
		return a.String()
	} else {
		return h
	}
}

func (o *trp) NegotiatedProtocol() string {
	return o.p
}

func (o *trp) SetReadDeadline(t time.Time) error {
	return o.c.SetReadDeadline(t)
}
