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

	"github/sabouaram/connmgr/connmgr"
	"github/sabouaram/connmgr/pipeline"
	"github/sabouaram/connmgr/transaction"
)

var _ = Describe("Pipelining Dispatch", func() {
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

		cm, err = connmgr.New(cfg, prv, &fakeBuilder{}, nil)
		Expect(err).To(BeNil())
		Expect(cm.Start(ctx)).ToNot(HaveOccurred())
		Eventually(cm.IsRunning, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
	}

	revalTrans := func(host string) *fakeTrans {
		t := newTrans(host, 80, false)
		t.cls = transaction.ClassRevalidation
		return t
	}

	Context("Optimistic pipelining", func() {
		It("should ride the probe connection for latency tolerant classes", func() {
			start(nil)

			t1 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			t2 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())

			Eventually(t2.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))
			Expect(cm.NumActiveConns()).To(Equal(uint16(1)))
		})

		It("should not pipeline bulk content while connection capacity remains", func() {
			start(nil)

			t1 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			t2 := newTrans("www.example.com", 80, false)
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())

			Eventually(t2.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(2))
			Expect(cm.NumActiveConns()).To(Equal(uint16(2)))
		})

		It("should respect the no-pipeline capability", func() {
			start(nil)

			t1 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			t2 := revalTrans("www.example.com")
			t2.cap = transaction.CapNoPipeline
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())

			Eventually(t2.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(2))
		})
	})

	Context("Feedback collapse", func() {
		It("should stop pipelining after corrupted content", func() {
			start(&connmgr.Config{
				MaxPersistentConnectionsPerHost: 1,
			})

			t1 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(cm.SupportsPipelining(t1.Info())).To(BeTrue())

			cm.PipelineFeedbackInfo(t1.Info(), pipeline.RedCorruptedContent, t1.connection(), 0)

			Eventually(func() bool {
				return cm.SupportsPipelining(t1.Info())
			}, 2*time.Second, 10*time.Millisecond).Should(BeFalse())

			// with one saturated connection and a red entry, a latency
			// tolerant transaction now has to wait its turn
			t2 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())

			Consistently(t2.started, 400*time.Millisecond, 50*time.Millisecond).Should(BeFalse())
			Expect(cm.NumPendingTrans()).To(Equal(1))
		})

		It("should requeue the unsent tail of a canceled pipeline", func() {
			start(&connmgr.Config{
				MaxPersistentConnectionsPerHost: 2,
			})

			t1 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t1, 0)).To(BeNil())
			Eventually(t1.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			t2 := revalTrans("www.example.com")
			Expect(cm.AddTransaction(t2, 0)).To(BeNil())
			Eventually(t2.started, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(prv.countDials()).To(Equal(1))

			cm.PipelineFeedbackInfo(t1.Info(), pipeline.RedCanceledPipeline, t1.connection(), 0)

			// the tail lands back at the head of the queue, then redispatches
			// on a fresh connection since the entry is now red
			Eventually(t2.startCount, 2*time.Second, 10*time.Millisecond).Should(Equal(2))
			Expect(prv.countDials()).To(Equal(2))
			Expect(t2.stopCount()).To(Equal(0))
		})
	})
})
