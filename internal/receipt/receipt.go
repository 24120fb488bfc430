package receipt

import (
	"errors"
	"time"

	"github.com/zombor/receipt-genie/internal/scanning"
)

var (
	// ErrNotFound is returned when a receipt, budget or user does not exist
	// or belongs to someone else.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering an email that is taken
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned when an email/password pair does not match
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Receipt represents a persisted, successfully extracted receipt
type Receipt struct {
	ID          string                      `json:"id"`
	Owner       string                      `json:"owner"`
	Date        time.Time                   `json:"date"`
	Vendor      string                      `json:"vendor"`
	Total       int                         `json:"total"` // Total in cents
	Store       scanning.StoreInfo          `json:"store_info"`
	Transaction scanning.TransactionDetails `json:"transaction_details"`
	Items       []scanning.Item             `json:"items"`
	Categories  []scanning.CategoryTotal    `json:"categories"`
	Fingerprint string                      `json:"fingerprint"`
	Filename    string                      `json:"filename,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Budget is a spending limit for one category in one month
type Budget struct {
	Owner    string `json:"owner"`
	Category string `json:"category"`
	Month    string `json:"month"`  // YYYY-MM
	Amount   int    `json:"amount"` // Amount in cents
}

// User is a registered account
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
