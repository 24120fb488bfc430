package receipt

import (
	"fmt"
	"math"
	"sort"

	"github.com/zombor/receipt-genie/internal/scanning"
)

// topVendorCount limits the vendor ranking
const topVendorCount = 10

// Total is one labelled spending sum
type Total struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// Analytics summarises a user's spending from item subtotals
type Analytics struct {
	Monthly    []Total `json:"monthly"`
	Weekly     []Total `json:"weekly"`
	Categories []Total `json:"categories"`
	Vendors    []Total `json:"vendors"`
}

// Analytics computes spending summaries over all of owner's receipts
func (s *Service) Analytics(owner string) (*Analytics, error) {
	receipts, err := s.db.ListReceipts(owner)
	if err != nil {
		return nil, fmt.Errorf("listing receipts for analytics: %w", err)
	}
	return computeAnalytics(receipts), nil
}

func computeAnalytics(receipts []*Receipt) *Analytics {
	monthly := make(map[string]float64)
	weekly := make(map[string]float64)
	categories := make(map[string]float64)
	vendors := make(map[string]float64)

	for _, r := range receipts {
		month := r.Date.Format("2006-01")
		year, week := r.Date.ISOWeek()
		weekLabel := fmt.Sprintf("%04d-W%02d", year, week)

		for _, item := range r.Items {
			monthly[month] += item.Subtotal
			weekly[weekLabel] += item.Subtotal
			categories[itemCategory(item)] += item.Subtotal
			vendors[r.Vendor] += item.Subtotal
		}
	}

	top := byAmount(vendors)
	if len(top) > topVendorCount {
		top = top[:topVendorCount]
	}

	return &Analytics{
		Monthly:    byLabel(monthly),
		Weekly:     byLabel(weekly),
		Categories: byAmount(categories),
		Vendors:    top,
	}
}

func itemCategory(item scanning.Item) string {
	if scanning.IsCategory(item.Category) {
		return item.Category
	}
	return scanning.CategoryOther
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

func totals(sums map[string]float64) []Total {
	out := make([]Total, 0, len(sums))
	for label, amount := range sums {
		out = append(out, Total{Label: label, Amount: roundAmount(amount)})
	}
	return out
}

// byLabel sorts chronologically for month and week labels
func byLabel(sums map[string]float64) []Total {
	out := totals(sums)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// byAmount sorts largest first, ties broken by label
func byAmount(sums map[string]float64) []Total {
	out := totals(sums)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Label < out[j].Label
	})
	return out
}
