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
)

var _ = Describe("Half-Open Sockets", func() {
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

	Context("Backup SYN race", func() {
		It("should race a backup dial against a slow primary", func() {
			prv.setSpec("slow.example.com", hostSpec{latency: 200 * time.Millisecond})

			start(&connmgr.Config{
				BackupConnDelay: libdur.ParseDuration(50 * time.Millisecond),
			})

			t1 := newTrans("slow.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			// backup fired while the primary was still connecting
			Eventually(prv.countDials, 2*time.Second, 5*time.Millisecond).Should(Equal(2))
			Expect(t1.started()).To(BeFalse())

			// primary wins, transaction dispatched, attempt list drained
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Eventually(cm.NumHalfOpen, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))
			Expect(cm.NumActiveConns()).To(Equal(uint16(1)))

			// the canceled loser never produced a transport
			Expect(len(prv.transports())).To(Equal(1))
		})

		It("should not start a backup when the primary lands first", func() {
			start(&connmgr.Config{
				BackupConnDelay: libdur.ParseDuration(500 * time.Millisecond),
			})

			t1 := newTrans("fast.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Consistently(prv.countDials, 700*time.Millisecond, 50*time.Millisecond).Should(Equal(1))
		})

		It("should recover through the backup after a primary failure", func() {
			prv.setSpec("flaky.example.com", hostSpec{failFirst: 1})

			start(&connmgr.Config{
				BackupConnDelay: libdur.ParseDuration(5 * time.Second),
			})

			t1 := newTrans("flaky.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(2))
			Expect(t1.stopCount()).To(Equal(0))
		})

		It("should surface the transport error once every attempt failed", func() {
			prv.setSpec("down.example.com", hostSpec{failFirst: 99})

			start(&connmgr.Config{
				BackupConnDelay: libdur.ParseDuration(20 * time.Millisecond),
			})

			t1 := newTrans("down.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			Eventually(t1.stopCount, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
			Expect(t1.started()).To(BeFalse())
			Expect(t1.stopReason()).To(HaveOccurred())

			Eventually(cm.NumHalfOpen, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(0)))
			Expect(cm.NumPendingTrans()).To(Equal(0))
		})
	})

	Context("Speculative connect", func() {
		It("should park an unclaimed result on the idle list", func() {
			start(nil)

			Expect(cm.SpeculativeConnect(newTrans("warm.example.com", 80, false).Info())).To(BeNil())

			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))
			Expect(cm.NumActiveConns()).To(Equal(uint16(0)))
			Expect(prv.countDials()).To(Equal(1))

			t1 := newTrans("warm.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))
		})

		It("should let a transaction claim a half-open still in flight", func() {
			prv.setSpec("warm.example.com", hostSpec{latency: 150 * time.Millisecond})

			start(nil)

			Expect(cm.SpeculativeConnect(newTrans("warm.example.com", 80, false).Info())).To(BeNil())
			Eventually(cm.NumHalfOpen, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))

			t1 := newTrans("warm.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())

			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))
			Expect(cm.NumIdleConns()).To(Equal(uint16(0)))
		})

		It("should keep a canceled claimant speculative and finish into idle", func() {
			prv.setSpec("warm.example.com", hostSpec{latency: 150 * time.Millisecond})

			start(nil)

			Expect(cm.SpeculativeConnect(newTrans("warm.example.com", 80, false).Info())).To(BeNil())
			Eventually(cm.NumHalfOpen, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))

			t1 := newTrans("warm.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Expect(cm.CancelTransaction(t1, nil)).To(BeNil())

			Eventually(t1.stopCount, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
			Eventually(cm.NumIdleConns, 2*time.Second, 10*time.Millisecond).Should(Equal(uint16(1)))
			Expect(t1.started()).To(BeFalse())
		})
	})
})
