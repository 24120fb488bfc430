package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/zombor/receipt-genie/internal/scanning"
)

var (
	// ErrInvalidInput is returned for malformed months, categories, amounts or credentials
	ErrInvalidInput = errors.New("invalid input")
	// ErrPastMonth is returned when setting a budget for a month that has ended
	ErrPastMonth = errors.New("budgets cannot be set for past months")
)

// Budget status values
const (
	BudgetNone     = "none"
	BudgetOK       = "ok"
	BudgetWarning  = "warning"
	BudgetExceeded = "exceeded"
)

// BudgetLine compares one category's budget with its spending
type BudgetLine struct {
	Category  string  `json:"category"`
	Budget    int     `json:"budget"`    // cents
	Spent     int     `json:"spent"`     // cents
	Remaining int     `json:"remaining"` // cents, negative when over budget
	Percent   float64 `json:"percent"`
	Status    string  `json:"status"`
}

// BudgetReport is the budget-vs-spend view of one month
type BudgetReport struct {
	Month    string       `json:"month"`
	Editable bool         `json:"editable"`
	Lines    []BudgetLine `json:"lines"`
}

func parseMonth(month string) (time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q must be YYYY-MM", ErrInvalidInput, month)
	}
	return start, nil
}

// isPastMonth reports whether month ended before now's month began
func isPastMonth(start, now time.Time) bool {
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.Before(current)
}

// SetBudgets stores owner's category budgets (in cents) for month. Past
// months are read-only.
func (s *Service) SetBudgets(owner, month string, amounts map[string]int) error {
	start, err := parseMonth(month)
	if err != nil {
		return err
	}
	if isPastMonth(start, s.timeSource.Now()) {
		return fmt.Errorf("%w: %s", ErrPastMonth, month)
	}

	for category, amount := range amounts {
		if !scanning.IsCategory(category) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
		}
		if amount < 0 {
			return fmt.Errorf("%w: negative budget for %s", ErrInvalidInput, category)
		}
	}

	for _, category := range scanning.Categories {
		amount, ok := amounts[category]
		if !ok {
			continue
		}
		budget := &Budget{Owner: owner, Category: category, Month: month, Amount: amount}
		if err := s.db.SaveBudget(budget); err != nil {
			return fmt.Errorf("saving budget: %w", err)
		}
	}
	return nil
}

// BudgetReport compares owner's budgets for month with item spending in that month
func (s *Service) BudgetReport(owner, month string) (*BudgetReport, error) {
	start, err := parseMonth(month)
	if err != nil {
		return nil, err
	}
	end := start.AddDate(0, 1, 0)

	budgets, err := s.db.ListBudgets(owner, month)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	receipts, err := s.db.ListReceipts(owner)
	if err != nil {
		return nil, fmt.Errorf("listing receipts for budgets: %w", err)
	}

	limits := make(map[string]int, len(budgets))
	for _, b := range budgets {
		limits[b.Category] = b.Amount
	}

	spent := make(map[string]int)
	for _, r := range receipts {
		if r.Date.Before(start) || !r.Date.Before(end) {
			continue
		}
		for _, item := range r.Items {
			spent[itemCategory(item)] += toCents(item.Subtotal)
		}
	}

	report := &BudgetReport{
		Month:    month,
		Editable: !isPastMonth(start, s.timeSource.Now()),
		Lines:    make([]BudgetLine, 0, len(scanning.Categories)),
	}
	for _, category := range scanning.Categories {
		report.Lines = append(report.Lines, budgetLine(category, limits[category], spent[category]))
	}
	return report, nil
}

func budgetLine(category string, budget, spent int) BudgetLine {
	line := BudgetLine{
		Category:  category,
		Budget:    budget,
		Spent:     spent,
		Remaining: budget - spent,
		Status:    BudgetNone,
	}
	if budget <= 0 {
		return line
	}
	line.Percent = roundAmount(float64(spent) / float64(budget) * 100)
	switch {
	case line.Percent >= 100:
		line.Status = BudgetExceeded
	case line.Percent >= 90:
		line.Status = BudgetWarning
	default:
		line.Status = BudgetOK
	}
	return line
}
