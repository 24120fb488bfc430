package receipt

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-genie/internal/scanning"
)

var _ = Describe("computeAnalytics", func() {
	var (
		receipts  []*Receipt
		analytics *Analytics
	)

	JustBeforeEach(func() {
		analytics = computeAnalytics(receipts)
	})

	When("there are no receipts", func() {
		BeforeEach(func() {
			receipts = nil
		})

		It("returns empty, non-nil series", func() {
			Expect(analytics.Monthly).NotTo(BeNil())
			Expect(analytics.Monthly).To(BeEmpty())
			Expect(analytics.Vendors).To(BeEmpty())
		})
	})

	When("receipts span months and weeks", func() {
		BeforeEach(func() {
			receipts = []*Receipt{
				{
					Vendor: "Grocer",
					Date:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), // ISO week 2024-W01
					Items: []scanning.Item{
						{Category: scanning.CategoryFood, Subtotal: 10},
						{Category: scanning.CategoryHousehold, Subtotal: 5},
					},
				},
				{
					Vendor: "Grocer",
					Date:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), // 2024-W05
					Items:  []scanning.Item{{Category: scanning.CategoryFood, Subtotal: 2.5}},
				},
				{
					Vendor: "Gadget Hut",
					Date:   time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), // 2024-W05
					Items:  []scanning.Item{{Category: "Toys", Subtotal: 30}},
				},
			}
		})

		It("sums item subtotals per month in order", func() {
			Expect(analytics.Monthly).To(Equal([]Total{
				{Label: "2024-01", Amount: 17.5},
				{Label: "2024-02", Amount: 30},
			}))
		})

		It("sums per ISO week", func() {
			Expect(analytics.Weekly).To(Equal([]Total{
				{Label: "2024-W01", Amount: 15},
				{Label: "2024-W05", Amount: 32.5},
			}))
		})

		It("ranks categories, folding unknown ones into Other", func() {
			Expect(analytics.Categories).To(Equal([]Total{
				{Label: scanning.CategoryOther, Amount: 30},
				{Label: scanning.CategoryFood, Amount: 12.5},
				{Label: scanning.CategoryHousehold, Amount: 5},
			}))
		})

		It("ranks vendors", func() {
			Expect(analytics.Vendors).To(Equal([]Total{
				{Label: "Gadget Hut", Amount: 30},
				{Label: "Grocer", Amount: 17.5},
			}))
		})
	})

	When("there are more than ten vendors", func() {
		BeforeEach(func() {
			receipts = nil
			for i := 0; i < 12; i++ {
				receipts = append(receipts, &Receipt{
					Vendor: fmt.Sprintf("Vendor %02d", i),
					Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
					Items:  []scanning.Item{{Category: scanning.CategoryFood, Subtotal: float64(i + 1)}},
				})
			}
		})

		It("keeps the top ten", func() {
			Expect(analytics.Vendors).To(HaveLen(10))
			Expect(analytics.Vendors[0]).To(Equal(Total{Label: "Vendor 11", Amount: 12}))
			Expect(analytics.Vendors[9]).To(Equal(Total{Label: "Vendor 02", Amount: 3}))
		})
	})
})
