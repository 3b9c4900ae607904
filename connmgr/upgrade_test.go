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

package connmgr_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github/sabouaram/connmgr/connmgr"
)

var _ = Describe("Upgrade Hand-Off", func() {
	var (
		ctx context.Context
		cnl context.CancelFunc
		prv *fakeProvider
		cm  connmgr.Manager
	)

	BeforeEach(func() {
		ctx, cnl = context.WithTimeout(context.Background(), 30*time.Second)
		prv = newProvider()

		var err error
		cm, err = connmgr.New(nil, prv, nil, nil)
		Expect(err).To(BeNil())
		Expect(cm.Start(ctx)).ToNot(HaveOccurred())
		Eventually(cm.IsRunning, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
	})

	AfterEach(func() {
		if cm != nil && cm.IsRunning() {
			_ = cm.Stop(ctx)
		}

		if cnl != nil {
			cnl()
		}
	})

	Context("CompleteUpgrade", func() {
		It("should detach the live transport and deliver it to the listener", func() {
			t1 := newTrans("ws.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			l := newListener()
			Expect(cm.CompleteUpgrade(t1.connection(), l)).To(BeNil())

			var got bool
			select {
			case tr := <-l.ch:
				got = tr != nil
			case <-time.After(2 * time.Second):
			}

			Expect(got).To(BeTrue())
			Eventually(cm.NumActiveConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))

			// the detached transport stays open for the listener
			Expect(prv.transports()[0].isClosed()).To(BeFalse())

			// a late handle release must not pool the detached connection
			Expect(t1.connection().Close()).ToNot(HaveOccurred())
			Consistently(cm.NumIdleConns, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(uint16(0)))
		})

		It("should refuse a hand-off without a listener", func() {
			t1 := newTrans("ws.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(cm.CompleteUpgrade(t1.connection(), nil)).ToNot(BeNil())
		})
	})

	Context("Metrics", func() {
		It("should expose the manager counters", func() {
			t1 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			reg := prometheus.NewRegistry()
			Expect(cm.RegisterMetrics(reg)).ToNot(HaveOccurred())

			fams, err := reg.Gather()
			Expect(err).ToNot(HaveOccurred())

			var names = make(map[string]float64)
			for _, f := range fams {
				if len(f.GetMetric()) > 0 {
					names[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue() + f.GetMetric()[0].GetCounter().GetValue()
				}
			}

			Expect(names).To(HaveKey("connmgr_active_connections"))
			Expect(names["connmgr_active_connections"]).To(Equal(float64(1)))
			Expect(names).To(HaveKey("connmgr_entries"))
			Expect(names).To(HaveKey("connmgr_dispatch_total"))
			Expect(names["connmgr_dispatch_total"]).To(BeNumerically(">=", 1))
		})

		It("should refuse a nil registerer", func() {
			Expect(cm.RegisterMetrics(nil)).To(HaveOccurred())
		})
	})
})
