package receipt

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ExportCSV renders a receipt as Type,Field,Value rows: store info first,
// then transaction details, then one row per item.
func ExportCSV(r *Receipt) ([]byte, error) {
	rows := [][]string{
		{"Type", "Field", "Value"},
		{"Store Info", "Name", r.Store.Name},
		{"Store Info", "Address", r.Store.Address},
		{"Store Info", "Phone", r.Store.Phone},
		{"Store Info", "Date", r.Store.Date},
		{"Transaction Details", "Total", formatNumber(r.Transaction.Total)},
		{"Transaction Details", "Tax", formatNumber(r.Transaction.Tax)},
		{"Transaction Details", "Subtotal", formatNumber(r.Transaction.Subtotal)},
		{"Transaction Details", "Payment Method", r.Transaction.PaymentMethod},
		{"Transaction Details", "Change", formatNumber(r.Transaction.Change)},
	}
	for _, item := range r.Items {
		rows = append(rows, []string{
			"Item",
			item.Name,
			fmt.Sprintf("Qty: %s, Price: %.2f, Subtotal: %.2f, Category: %s",
				formatNumber(item.Quantity), item.Price, item.Subtotal, item.Category),
		})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return buf.Bytes(), nil
}
