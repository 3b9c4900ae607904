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

package conninfo

import (
	"net"
	"strconv"
	"strings"
)

type nfo struct {
	h string
	p uint16
	t bool
	a bool
	x []Proxy
	k string
}

func (o *nfo) Host() string {
	return o.h
}

func (o *nfo) Port() uint16 {
	return o.p
}

func (o *nfo) HostPort() string {
	return net.JoinHostPort(o.h, strconv.Itoa(int(o.p)))
}

func (o *nfo) Proxies() []Proxy {
	var res = make([]Proxy, len(o.x))
	copy(res, o.x)
	return res
}

func (o *nfo) UsingProxy() bool {
	return len(o.x) > 0
}

func (o *nfo) IsTLS() bool {
	return o.t
}

func (o *nfo) IsAnonymous() bool {
	return o.a
}

func (o *nfo) HashKey() string {
	return o.k
}

func (o *nfo) Equal(other ConnInfo) bool {
	if other == nil {
		return false
	}

	return o.k == other.HashKey()
}

func (o *nfo) Clone() ConnInfo {
	n := &nfo{
		h: o.h,
		p: o.p,
		t: o.t,
		a: o.a,
		x: make([]Proxy, len(o.x)),
		k: o.k,
	}

	copy(n.x, o.x)

	return n
}

// makeKey derives the bucket identity from every field. The scheme prefix
// keeps a TLS endpoint distinct from a cleartext one on the same port, and
// the anonymous marker keeps credentialed traffic out of anonymous buckets.
func (o *nfo) makeKey() string {
	var b strings.Builder

	if o.t {
		b.WriteString("https://")
	} else {
		b.WriteString("http://")
	}

	b.WriteString(strings.ToLower(o.h))
	b.WriteRune(':')
	b.WriteString(strconv.Itoa(int(o.p)))

	if o.a {
		b.WriteString("!A")
	}

	for _, p := range o.x {
		b.WriteString("|")
		b.WriteString(strings.ToLower(p.Type))
		b.WriteRune(':')
		b.WriteString(strings.ToLower(p.Host))
		b.WriteRune(':')
		b.WriteString(strconv.Itoa(int(p.Port)))
	}

	return b.String()
}
