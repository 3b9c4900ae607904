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

	"github/sabouaram/connmgr/conninfo"
	"github/sabouaram/connmgr/connmgr"
)

var _ = Describe("Multiplexed Session Coalescing", func() {
	var (
		ctx context.Context
		cnl context.CancelFunc
		prv *fakeProvider
		cm  connmgr.Manager
	)

	BeforeEach(func() {
		ctx, cnl = context.WithTimeout(context.Background(), 30*time.Second)
		prv = newProvider()
	})

	AfterEach(func() {
		if cm != nil && cm.IsRunning() {
			_ = cm.Stop(ctx)
		}

		if cnl != nil {
			cnl()
		}
	})

	start := func(cfg *connmgr.Config) {
		var err error

		cm, err = connmgr.New(cfg, prv, nil, nil)
		Expect(err).To(BeNil())
		Expect(cm.Start(ctx)).ToNot(HaveOccurred())
		Eventually(cm.IsRunning, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
	}

	Context("Cross-host coalescing", func() {
		It("should ride the preferred host session instead of opening a transport", func() {
			prv.setSpec("a.example.com", hostSpec{ip: "192.0.2.7", proto: "spdy/3.1"})
			prv.setSpec("b.example.com", hostSpec{ip: "192.0.2.7", proto: "spdy/3.1"})

			start(nil)

			ta := newTrans("a.example.com", 443, true)
			Expect(cm.AddTransaction(ta, 0)).To(BeNil())

			Eventually(ta.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))
			Expect(ta.connection().UsingSpdy()).To(BeTrue())

			tb := newTrans("b.example.com", 443, true)
			Expect(cm.AddTransaction(tb, 0)).To(BeNil())

			Eventually(tb.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))
			Expect(tb.connection().UsingSpdy()).To(BeTrue())
		})

		It("should keep hosts of different address pools apart", func() {
			prv.setSpec("a.example.com", hostSpec{ip: "192.0.2.7", proto: "spdy/3.1"})
			prv.setSpec("c.example.com", hostSpec{ip: "198.51.100.4", proto: "spdy/3.1"})

			start(nil)

			ta := newTrans("a.example.com", 443, true)
			Expect(cm.AddTransaction(ta, 0)).To(BeNil())
			Eventually(ta.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			tc := newTrans("c.example.com", 443, true)
			Expect(cm.AddTransaction(tc, 0)).To(BeNil())
			Eventually(tc.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(prv.countDials()).To(Equal(2))
		})

		It("should keep anonymous traffic off a credentialed session", func() {
			prv.setSpec("a.example.com", hostSpec{ip: "192.0.2.7", proto: "spdy/3.1"})

			start(nil)

			ta := newTrans("a.example.com", 443, true)
			Expect(cm.AddTransaction(ta, 0)).To(BeNil())
			Eventually(ta.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			tb := newTrans("a.example.com", 443, true)
			tb.nfo = conninfo.New("a.example.com", 443, true, true)
			Expect(cm.AddTransaction(tb, 0)).To(BeNil())
			Eventually(tb.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(prv.countDials()).To(Equal(2))
		})

		It("should share one session between transactions of the same host", func() {
			prv.setSpec("a.example.com", hostSpec{ip: "192.0.2.7", proto: "spdy/3.1"})

			start(nil)

			ta := newTrans("a.example.com", 443, true)
			Expect(cm.AddTransaction(ta, 0)).To(BeNil())
			Eventually(ta.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			tb := newTrans("a.example.com", 443, true)
			Expect(cm.AddTransaction(tb, 0)).To(BeNil())
			Eventually(tb.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(prv.countDials()).To(Equal(1))
			Expect(cm.NumActiveConns()).To(Equal(uint16(1)))
		})
	})

	Context("Alternate protocol set", func() {
		It("should remember and forget advertised upgrades", func() {
			start(nil)

			Expect(cm.GetSpdyAlternateProtocol("host.example.com:80")).To(BeFalse())

			cm.ReportSpdyAlternateProtocol("host.example.com:80")
			Expect(cm.GetSpdyAlternateProtocol("host.example.com:80")).To(BeTrue())

			cm.RemoveSpdyAlternateProtocol("host.example.com:80")
			Expect(cm.GetSpdyAlternateProtocol("host.example.com:80")).To(BeFalse())
		})

		It("should ignore an empty key", func() {
			start(nil)

			cm.ReportSpdyAlternateProtocol("")
			Expect(cm.GetSpdyAlternateProtocol("")).To(BeFalse())
		})
	})
})
