package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	budgetBucketName  = "budgets"
	userBucketName    = "users"
)

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt saves a receipt to the database
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts belonging to owner
	ListReceipts(owner string) ([]*Receipt, error)

	// FindByFingerprint returns every receipt extracted from the same image
	FindByFingerprint(fingerprint string) ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(id string) error

	// SaveBudget creates or replaces the budget for its owner, category and month
	SaveBudget(budget *Budget) error

	// ListBudgets returns owner's budgets for month
	ListBudgets(owner, month string) ([]*Budget, error)

	// CreateUser stores a new user, failing with ErrUserExists if the email is taken
	CreateUser(user *User) error

	// GetUser retrieves a user by email
	GetUser(email string) (*User, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucketName, budgetBucketName, userBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts belonging to owner
func (b *BoltDB) ListReceipts(owner string) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if receipt.Owner == owner {
				receipts = append(receipts, &receipt)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// FindByFingerprint returns every receipt extracted from the same image
func (b *BoltDB) FindByFingerprint(fingerprint string) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if receipt.Fingerprint == fingerprint {
				receipts = append(receipts, &receipt)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.Delete([]byte(id))
	})
}

// budgetKey orders budgets by owner, then month, so a month is one prefix scan
func budgetKey(owner, month, category string) []byte {
	return []byte(owner + "\x00" + month + "\x00" + category)
}

// SaveBudget creates or replaces a budget
func (b *BoltDB) SaveBudget(budget *Budget) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(budgetBucketName))
		data, err := json.Marshal(budget)
		if err != nil {
			return fmt.Errorf("marshaling budget: %w", err)
		}
		return bucket.Put(budgetKey(budget.Owner, budget.Month, budget.Category), data)
	})
}

// ListBudgets returns owner's budgets for month
func (b *BoltDB) ListBudgets(owner, month string) ([]*Budget, error) {
	budgets := make([]*Budget, 0)
	prefix := []byte(owner + "\x00" + month + "\x00")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(budgetBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var budget Budget
			if err := json.Unmarshal(v, &budget); err != nil {
				return fmt.Errorf("unmarshaling budget: %w", err)
			}
			budgets = append(budgets, &budget)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// CreateUser stores a new user
func (b *BoltDB) CreateUser(user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(userBucketName))
		if bucket.Get([]byte(user.Email)) != nil {
			return fmt.Errorf("%s: %w", user.Email, ErrUserExists)
		}
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return bucket.Put([]byte(user.Email), data)
	})
}

// GetUser retrieves a user by email
func (b *BoltDB) GetUser(email string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(userBucketName)).Get([]byte(email))
		if data == nil {
			return fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
