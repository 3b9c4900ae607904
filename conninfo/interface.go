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

// Package conninfo defines the immutable identity of a connection target.
//
// A ConnInfo captures everything that makes two connections interchangeable:
// origin host and port, the proxy chain used to reach it, whether the
// transport is TLS, and whether the connection carries ambient credentials
// (anonymous flag). Two ConnInfo values with the same hash key address the
// same connection bucket in the connection manager.
package conninfo

// Proxy describes one hop of the proxy chain used to reach the origin.
type Proxy struct {
	Type string `json:"type" yaml:"type" toml:"type" mapstructure:"type"`
	Host string `json:"host" yaml:"host" toml:"host" mapstructure:"host"`
	Port uint16 `json:"port" yaml:"port" toml:"port" mapstructure:"port"`
}

// ConnInfo is the immutable identity of a connection target.
// All implementations returned by New are safe for concurrent use.
type ConnInfo interface {
	// Host returns the origin hostname.
	Host() string

	// Port returns the origin port.
	Port() uint16

	// HostPort returns the joined "host:port" endpoint string.
	HostPort() string

	// Proxies returns a copy of the proxy chain, first hop first.
	Proxies() []Proxy

	// UsingProxy returns true when at least one proxy hop is configured.
	UsingProxy() bool

	// IsTLS returns true when the transport to the origin must be TLS.
	IsTLS() bool

	// IsAnonymous returns true when the connection must not carry ambient
	// credentials. The flag participates in the hash key and in the SPDY
	// coalescing key.
	IsAnonymous() bool

	// HashKey returns the identity string derived from all fields.
	// Equality of two ConnInfo is equality of their hash keys.
	HashKey() string

	// Equal compares the identity with another ConnInfo by hash key.
	Equal(other ConnInfo) bool

	// Clone returns an independent copy of the identity.
	Clone() ConnInfo
}

// New builds a ConnInfo for the given origin. The returned value is immutable.
func New(host string, port uint16, tls, anonymous bool, proxies ...Proxy) ConnInfo {
	i := &nfo{
		h: host,
		p: port,
		t: tls,
		a: anonymous,
		x: make([]Proxy, len(proxies)),
	}

	copy(i.x, proxies)
	i.k = i.makeKey()

	return i
}
