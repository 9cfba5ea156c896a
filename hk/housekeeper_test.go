package hk_test

import (
	"time"

	"github.com/streamhouse/flowcore/hk"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("invokes a registered callback on its interval and reschedules it", func() {
		calls := make(chan struct{}, 8)
		hk.Reg("probe"+hk.NameSuffix, func() time.Duration {
			calls <- struct{}{}
			return 5 * time.Millisecond
		}, time.Millisecond)

		Eventually(calls, time.Second).Should(Receive())
		Eventually(calls, time.Second).Should(Receive())

		hk.Unreg("probe" + hk.NameSuffix)
	})

	It("stops calling back once unregistered", func() {
		calls := make(chan struct{}, 8)
		hk.Reg("once"+hk.NameSuffix, func() time.Duration {
			calls <- struct{}{}
			return hk.UnregInterval
		}, time.Millisecond)

		Eventually(calls, time.Second).Should(Receive())
		Consistently(calls, 50*time.Millisecond).ShouldNot(Receive())
	})
})
