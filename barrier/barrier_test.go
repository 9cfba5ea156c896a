package barrier_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/streamhouse/flowcore/barrier"
)

var _ = Describe("Epoch", func() {
	It("rejects a non-increasing epoch", func() {
		e := barrier.Epoch{Prev: 5, Curr: 5}
		Expect(e.Validate()).To(HaveOccurred())
	})

	It("accepts a strictly increasing epoch", func() {
		e := barrier.Epoch{Prev: 5, Curr: 6}
		Expect(e.Validate()).NotTo(HaveOccurred())
	})

	It("chains via FollowsFrom", func() {
		first := barrier.Epoch{Prev: 0, Curr: 1}
		second := barrier.Epoch{Prev: 1, Curr: 2}
		Expect(second.FollowsFrom(first)).To(BeTrue())
		Expect(first.FollowsFrom(second)).To(BeFalse())
	})
})

var _ = Describe("Barrier equality", func() {
	It("ignores Trace", func() {
		a := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}, Trace: "a"}
		b := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}, Trace: "b"}
		Expect(a.Equal(b)).To(BeTrue())
	})

	It("differs on mutation", func() {
		a := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}}
		b := barrier.Barrier{
			Epoch:    barrier.Epoch{Prev: 1, Curr: 2},
			Mutation: barrier.Mutation{Kind: barrier.Stop, StopSet: map[string]struct{}{"a1": {}}},
		}
		Expect(a.Equal(b)).To(BeFalse())
	})
})

var _ = Describe("Barrier wire codec", func() {
	It("round-trips a Stop mutation", func() {
		b := barrier.Barrier{
			Epoch: barrier.Epoch{Prev: 3, Curr: 4},
			Mutation: barrier.Mutation{
				Kind:    barrier.Stop,
				StopSet: map[string]struct{}{"a1": {}, "a2": {}},
			},
			Trace: "ignored-on-equal",
		}
		data, err := barrier.Encode(b)
		Expect(err).NotTo(HaveOccurred())
		dec, err := barrier.Decode(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Equal(b)).To(BeTrue())
	})

	It("round-trips an UpdateOutputs mutation", func() {
		b := barrier.Barrier{
			Epoch: barrier.Epoch{Prev: 1, Curr: 2},
			Mutation: barrier.Mutation{
				Kind: barrier.UpdateOutputs,
				Outputs: map[string][]barrier.ActorInfo{
					"a1": {{ActorID: "234", HostAddress: "h1"}, {ActorID: "235", HostAddress: "h1"}},
				},
			},
		}
		data, err := barrier.Encode(b)
		Expect(err).NotTo(HaveOccurred())
		dec, err := barrier.Decode(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Equal(b)).To(BeTrue())
	})
})
