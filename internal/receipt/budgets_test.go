package receipt

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-genie/internal/scanning"
)

var _ = Describe("Budgets", func() {
	var (
		db      *mockDB
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		timeSrc := &mockTimeSource{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, newMockStorage(), &mockIDGenerator{id: "x"}, timeSrc)
	})

	Describe("SetBudgets", func() {
		It("stores budgets for the current month", func() {
			Expect(service.SetBudgets("alice@example.com", "2024-06", map[string]int{"Food": 20000, "Other": 0})).To(Succeed())
			budgets, err := db.ListBudgets("alice@example.com", "2024-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(budgets).To(HaveLen(2))
		})

		It("accepts future months", func() {
			Expect(service.SetBudgets("alice@example.com", "2025-01", map[string]int{"Food": 1})).To(Succeed())
		})

		It("refuses past months", func() {
			err := service.SetBudgets("alice@example.com", "2024-05", map[string]int{"Food": 1})
			Expect(err).To(MatchError(ErrPastMonth))
			Expect(db.budgets).To(BeEmpty())
		})

		DescribeTable("rejects bad input without saving anything",
			func(month string, amounts map[string]int) {
				err := service.SetBudgets("alice@example.com", month, amounts)
				Expect(err).To(MatchError(ErrInvalidInput))
				Expect(db.budgets).To(BeEmpty())
			},
			Entry("malformed month", "June", map[string]int{"Food": 1}),
			Entry("unknown category", "2024-06", map[string]int{"Food": 1, "Toys": 1}),
			Entry("negative amount", "2024-06", map[string]int{"Food": -1}),
		)

		It("returns store failures", func() {
			db.budgetErr = errors.New("db error")
			Expect(service.SetBudgets("alice@example.com", "2024-06", map[string]int{"Food": 1})).To(MatchError(ContainSubstring("db error")))
		})
	})

	Describe("BudgetReport", func() {
		var (
			month  string
			report *BudgetReport
			err    error
		)

		BeforeEach(func() {
			month = "2024-06"
			db.budgets["a"] = &Budget{Owner: "alice@example.com", Month: "2024-06", Category: "Food", Amount: 10000}
			db.budgets["b"] = &Budget{Owner: "alice@example.com", Month: "2024-06", Category: "Household", Amount: 1000}
			db.budgets["c"] = &Budget{Owner: "alice@example.com", Month: "2024-06", Category: "Electronics", Amount: 10000}
			db.receipts["in"] = &Receipt{
				ID: "in", Owner: "alice@example.com", Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
				Items: []scanning.Item{
					{Category: "Food", Subtotal: 45.5},
					{Category: "Household", Subtotal: 12},
					{Category: "Electronics", Subtotal: 92},
					{Category: "Services", Subtotal: 7.25},
				},
			}
			db.receipts["out"] = &Receipt{
				ID: "out", Owner: "alice@example.com", Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
				Items: []scanning.Item{{Category: "Food", Subtotal: 999}},
			}
			db.receipts["bob"] = &Receipt{
				ID: "bob", Owner: "bob@example.com", Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
				Items: []scanning.Item{{Category: "Food", Subtotal: 999}},
			}
		})

		JustBeforeEach(func() {
			report, err = service.BudgetReport("alice@example.com", month)
		})

		It("lists every category in display order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Lines).To(HaveLen(len(scanning.Categories)))
			for i, line := range report.Lines {
				Expect(line.Category).To(Equal(scanning.Categories[i]))
			}
		})

		It("compares spending within the month to the budget", func() {
			Expect(report.Lines[0]).To(Equal(BudgetLine{
				Category: "Food", Budget: 10000, Spent: 4550, Remaining: 5450, Percent: 45.5, Status: BudgetOK,
			}))
		})

		It("flags budgets close to the limit", func() {
			Expect(report.Lines[1].Category).To(Equal("Electronics"))
			Expect(report.Lines[1].Status).To(Equal(BudgetWarning))
		})

		It("flags exceeded budgets", func() {
			household := report.Lines[4]
			Expect(household.Category).To(Equal("Household"))
			Expect(household.Status).To(Equal(BudgetExceeded))
			Expect(household.Remaining).To(Equal(-200))
		})

		It("shows spending for categories without a budget", func() {
			services := report.Lines[2]
			Expect(services.Spent).To(Equal(725))
			Expect(services.Status).To(Equal(BudgetNone))
		})

		It("is editable for the current month", func() {
			Expect(report.Editable).To(BeTrue())
		})

		When("the month has passed", func() {
			BeforeEach(func() {
				month = "2024-05"
			})

			It("is read-only", func() {
				Expect(report.Editable).To(BeFalse())
			})
		})

		When("the month is malformed", func() {
			BeforeEach(func() {
				month = "2024-13"
			})

			It("returns ErrInvalidInput", func() {
				Expect(err).To(MatchError(ErrInvalidInput))
			})
		})
	})
})
