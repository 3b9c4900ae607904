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
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "connmgr"

type collector struct {
	o *mgr

	active   *prometheus.Desc
	idle     *prometheus.Desc
	halfOpen *prometheus.Desc
	pending  *prometheus.Desc
	entries  *prometheus.Desc
	spdyEnts *prometheus.Desc
	dispatch *prometheus.Desc
	feedback *prometheus.Desc
}

func newCollector(o *mgr) *collector {
	return &collector{
		o: o,
		active: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "active_connections"),
			"Number of connections currently dispatched to transactions.",
			nil, nil),
		idle: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "idle_connections"),
			"Number of pooled keep-alive connections.",
			nil, nil),
		halfOpen: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "half_open_connections"),
			"Number of in-flight connection attempts.",
			nil, nil),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "pending_transactions"),
			"Number of transactions waiting in pending queues.",
			nil, nil),
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "entries"),
			"Number of live connection buckets.",
			nil, nil),
		spdyEnts: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "spdy_entries"),
			"Number of buckets carrying a multiplexed session.",
			nil, nil),
		dispatch: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "dispatch_total"),
			"Total number of transaction dispatches.",
			nil, nil),
		feedback: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "pipeline_feedback_total"),
			"Total number of pipelining feedback events consumed.",
			nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.idle
	ch <- c.halfOpen
	ch <- c.pending
	ch <- c.entries
	ch <- c.spdyEnts
	ch <- c.dispatch
	ch <- c.feedback
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.o.m.RLock()
	var (
		act = float64(c.o.numActive)
		idl = float64(c.o.numIdle)
		hop = float64(c.o.numHalfOpen)
		pnd = float64(c.o.numPending)
		ent = float64(c.o.numEntries)
		spd = float64(c.o.numSpdyEnts)
		dsp = float64(c.o.cntDispatch)
		fbk = float64(c.o.cntFeedback)
	)
	c.o.m.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, act)
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, idl)
	ch <- prometheus.MustNewConstMetric(c.halfOpen, prometheus.GaugeValue, hop)
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, pnd)
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, ent)
	ch <- prometheus.MustNewConstMetric(c.spdyEnts, prometheus.GaugeValue, spd)
	ch <- prometheus.MustNewConstMetric(c.dispatch, prometheus.CounterValue, dsp)
	ch <- prometheus.MustNewConstMetric(c.feedback, prometheus.CounterValue, fbk)
}

// RegisterMetrics registers the manager counters with the given registerer.
func (o *mgr) RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return ErrorParamEmpty.Error(nil)
	}

	return reg.Register(newCollector(o))
}
