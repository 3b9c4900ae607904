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

// ParamName identifies one of the tunable limits that may be changed after
// the manager has been started.
type ParamName uint8

const (
	// MaxConnections caps the total of active plus half-open connections.
	MaxConnections ParamName = iota

	// MaxConnectionsPerHost caps connections toward one origin host when
	// keep-alive is disabled.
	MaxConnectionsPerHost

	// MaxConnectionsPerProxy caps connections through one proxy when
	// keep-alive is disabled.
	MaxConnectionsPerProxy

	// MaxPersistentConnectionsPerHost caps persistent connections toward one
	// origin host.
	MaxPersistentConnectionsPerHost

	// MaxPersistentConnectionsPerProxy caps persistent connections through
	// one proxy.
	MaxPersistentConnectionsPerProxy

	// MaxRequestDelay is the pending age, in seconds, past which a queued
	// transaction may force a new connection despite the persistent caps.
	MaxRequestDelay

	// MaxPipelinedRequests caps the depth of any pipeline.
	MaxPipelinedRequests

	// MaxOptimisticPipelinedRequests caps the depth used when scheduling
	// onto a pipeline while connection capacity is still available.
	MaxOptimisticPipelinedRequests
)

func (p ParamName) String() string {
	switch p {
	case MaxConnections:
		return "max-connections"
	case MaxConnectionsPerHost:
		return "max-connections-per-host"
	case MaxConnectionsPerProxy:
		return "max-connections-per-proxy"
	case MaxPersistentConnectionsPerHost:
		return "max-persistent-connections-per-host"
	case MaxPersistentConnectionsPerProxy:
		return "max-persistent-connections-per-proxy"
	case MaxRequestDelay:
		return "max-request-delay"
	case MaxPipelinedRequests:
		return "max-pipelined-requests"
	case MaxOptimisticPipelinedRequests:
		return "max-optimistic-pipelined-requests"
	}

	return "invalid"
}

func (p ParamName) valid() bool {
	return p <= MaxOptimisticPipelinedRequests
}

// onUpdateParam applies one parameter slot on the socket context. The name
// and value travel packed in the event int param.
func (o *mgr) onUpdateParam(iparam int32) {
	var (
		prm = ParamName(uint32(iparam) >> 16)
		val = uint16(uint32(iparam) & 0xffff)
	)

	o.m.Lock()
	defer o.m.Unlock()

	switch prm {
	case MaxConnections:
		o.c.MaxConnections = val
	case MaxConnectionsPerHost:
		o.c.MaxConnectionsPerHost = val
	case MaxConnectionsPerProxy:
		o.c.MaxConnectionsPerProxy = val
	case MaxPersistentConnectionsPerHost:
		o.c.MaxPersistentConnectionsPerHost = val
	case MaxPersistentConnectionsPerProxy:
		o.c.MaxPersistentConnectionsPerProxy = val
	case MaxRequestDelay:
		o.c.MaxRequestDelay = val
	case MaxPipelinedRequests:
		o.c.MaxPipelinedRequests = val
	case MaxOptimisticPipelinedRequests:
		o.c.MaxOptimisticPipelinedRequests = val
	}
}
