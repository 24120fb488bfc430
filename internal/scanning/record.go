package scanning

// Item categories the extraction service may assign.
const (
	CategoryFood         = "Food"
	CategoryElectronics  = "Electronics"
	CategoryServices     = "Services"
	CategoryPersonalCare = "Personal Care"
	CategoryHousehold    = "Household"
	CategoryOther        = "Other"
)

// Categories lists every item category in display order.
var Categories = []string{
	CategoryFood,
	CategoryElectronics,
	CategoryServices,
	CategoryPersonalCare,
	CategoryHousehold,
	CategoryOther,
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// ParseErrorMessage is set on the sentinel record when the model output could
// not be parsed.
const ParseErrorMessage = "Failed to parse receipt data"

// StoreInfo identifies the merchant
type StoreInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Date    string `json:"date"` // YYYY-MM-DD
}

// TransactionDetails holds the totals printed on the receipt
type TransactionDetails struct {
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	Total         float64 `json:"total"`
	PaymentMethod string  `json:"payment_method"`
	Change        float64 `json:"change"`
}

// Item is a single receipt line
type Item struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Category string  `json:"category"`
	Subtotal float64 `json:"subtotal"`
}

// ReceiptRecord is the structured result of one extraction. A record whose
// Error is set is the sentinel produced for unparseable output; it keeps the
// same shape so consumers never need a separate failure path.
type ReceiptRecord struct {
	StoreInfo          StoreInfo          `json:"store_info"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	Items              []Item             `json:"items"`
	Error              string             `json:"error,omitempty"`
	RawResponse        string             `json:"raw_response,omitempty"`
}

// IsError reports whether r is the sentinel error record.
func (r ReceiptRecord) IsError() bool {
	return r.Error != ""
}

// CategoryTotal is the summed item subtotal of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// CategoryBreakdown sums item subtotals per category, in Categories order,
// omitting categories with no spend. Unknown categories count as Other.
func (r ReceiptRecord) CategoryBreakdown() []CategoryTotal {
	sums := make(map[string]float64, len(Categories))
	for _, item := range r.Items {
		cat := item.Category
		if !IsCategory(cat) {
			cat = CategoryOther
		}
		sums[cat] += item.Subtotal
	}

	breakdown := make([]CategoryTotal, 0, len(sums))
	for _, cat := range Categories {
		if total := sums[cat]; total > 0 {
			breakdown = append(breakdown, CategoryTotal{Category: cat, Total: total})
		}
	}
	return breakdown
}

// errorRecord builds the sentinel record for raw output that failed to parse.
func errorRecord(raw string) ReceiptRecord {
	return ReceiptRecord{
		StoreInfo:   StoreInfo{Name: "Error"},
		Items:       []Item{},
		Error:       ParseErrorMessage,
		RawResponse: raw,
	}
}
