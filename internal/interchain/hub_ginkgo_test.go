package interchain

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/jive5ge/jive5ge/internal/block"
	"github.com/jive5ge/jive5ge/internal/bqueue"
)

var _ = Describe("BroadcastHub concurrent fan-out", func() {
	var (
		pool *block.Blockpool
		hub  *Hub
	)

	BeforeEach(func() {
		pool = block.NewBlockpool(8, 4, 8)
		hub = NewHub()
	})

	It("delivers a blocking Push to every subscriber with room", func() {
		q1 := bqueue.New[Tagged](1)
		q2 := bqueue.New[Tagged](1)
		h1 := hub.RequestQueue(q1)
		h2 := hub.RequestQueue(q2)
		defer hub.RemoveQueue(h1)
		defer hub.RemoveQueue(h2)

		b, err := pool.Get(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(hub.Push(b)).To(BeTrue())
		b.Release()

		t1, ok := q1.Pop()
		Expect(ok).To(BeTrue())
		t1.B.Release()

		t2, ok := q2.Pop()
		Expect(ok).To(BeTrue())
		t2.B.Release()
	})

	It("reports false when any subscriber's queue cannot accept the push before disable", func() {
		q := bqueue.New[Tagged](1)
		h := hub.RequestQueue(q)
		defer hub.RemoveQueue(h)

		q.Disable() // simulate a snooper tearing down mid-broadcast

		b, err := pool.Get(context.Background())
		Expect(err).NotTo(HaveOccurred())
		defer b.Release()

		Expect(hub.Push(b)).To(BeFalse())
	})

	It("keeps Len in sync across registration and removal", func() {
		Expect(hub.Len()).To(Equal(0))
		q := bqueue.New[Tagged](1)
		h := hub.RequestQueue(q)
		Expect(hub.Len()).To(Equal(1))
		hub.RemoveQueue(h)
		Expect(hub.Len()).To(Equal(0))
	})
})
