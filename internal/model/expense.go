package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// Amounts travel as JSON numbers (3.5), not strings ("3.5").
	decimal.MarshalJSONWithoutQuotes = true
}

// Expense is a single spending record owned by exactly one user.
type Expense struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	OwnerID     uuid.UUID       `json:"ownerId" gorm:"type:char(36);not null;index:idx_expenses_owner_date,priority:1"`
	Description string          `json:"description" gorm:"size:255;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null" swaggertype:"number"`
	Date        time.Time       `json:"date" gorm:"not null;index:idx_expenses_owner_date,priority:2"`
	CreatedAt   time.Time       `json:"-"`

	// Relations
	Owner User `json:"-" gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate sets UUID before creating the record.
func (e *Expense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Summary aggregates a user's expenses.
type Summary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total" swaggertype:"number"`
}

// Summarize totals the given expenses.
func Summarize(expenses []Expense) Summary {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return Summary{Count: len(expenses), Total: total}
}
