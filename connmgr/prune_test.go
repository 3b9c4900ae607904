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

	libdur "github.com/nabbar/golib/duration"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/connmgr/connmgr"
	"github/sabouaram/connmgr/transaction"
)

var _ = Describe("Connection Lifetime", func() {
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

	Context("Prune dead connections", func() {
		It("should close an idle connection after its keep-alive lifetime", func() {
			start(&connmgr.Config{
				TimeoutIdleConn: libdur.ParseDuration(150 * time.Millisecond),
			})

			t1 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(t1.connection().Close()).ToNot(HaveOccurred())
			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))

			Eventually(cm.NumIdleConns, 3*time.Second, 20*time.Millisecond).Should(Equal(uint16(0)))
			Eventually(cm.NumEntries, 2*time.Second, 20*time.Millisecond).Should(Equal(0))

			Expect(prv.transports()[0].isClosed()).To(BeTrue())
		})

		It("should prune on demand", func() {
			start(nil)

			t1 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(t1.connection().Close()).ToNot(HaveOccurred())
			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))

			// the lifetime has not elapsed, an explicit prune keeps it
			Expect(cm.PruneDeadConnections()).To(BeNil())
			Consistently(cm.NumIdleConns, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(uint16(1)))
		})
	})

	Context("Close persistent connections", func() {
		It("should drop idle connections and taint the active ones", func() {
			start(&connmgr.Config{
				MaxPersistentConnectionsPerHost: 2,
			})

			t1 := newTrans("www.example.com", 80, false)
			t2 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())

			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Eventually(t2.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(t1.connection().Close()).ToNot(HaveOccurred())
			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))

			Expect(cm.ClosePersistentConnections()).To(BeNil())
			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))

			// the tainted active connection is closed instead of pooled
			Expect(t2.connection().Close()).ToNot(HaveOccurred())
			Eventually(cm.NumActiveConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))
			Consistently(cm.NumIdleConns, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(uint16(0)))
		})
	})

	Context("Read timeout tick", func() {
		It("should refresh the read deadline of stalled active connections", func() {
			start(&connmgr.Config{
				TimeoutReadStall: libdur.ParseDuration(5 * time.Second),
			})

			t1 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Eventually(func() int {
				return prv.transports()[0].deadlineCount()
			}, 3*time.Second, 50*time.Millisecond).Should(BeNumerically(">", 0))

			// the tick stops once nothing is active anymore
			Expect(t1.connection().Close()).ToNot(HaveOccurred())
			Eventually(cm.NumActiveConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))
		})
	})

	Context("No keep-alive", func() {
		It("should close instead of pooling a no-keepalive connection", func() {
			start(nil)

			t1 := newTrans("www.example.com", 80, false)
			t1.cap = transaction.CapNoKeepAlive
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(t1.connection().Close()).ToNot(HaveOccurred())

			Eventually(cm.NumActiveConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))
			Consistently(cm.NumIdleConns, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(uint16(0)))
			Eventually(func() bool {
				return prv.transports()[0].isClosed()
			}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
		})
	})
})
