package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expensetracker/internal/model"
)

// ExpenseRepository is the record store. Every read and delete is filtered
// by owner id, so callers cannot reach another user's rows.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *model.Expense) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Expense, error)
	FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Expense, error)
	DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Expense, error)
}

type expenseRepository struct {
	db *gorm.DB
}

// NewExpenseRepository creates a new expense repository.
func NewExpenseRepository(db *gorm.DB) ExpenseRepository {
	return &expenseRepository{db: db}
}

// Create inserts a new expense without touching the owner row.
func (r *expenseRepository) Create(ctx context.Context, expense *model.Expense) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(expense).Error
}

// ListByOwner returns the owner's expenses, most recent first.
func (r *expenseRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Expense, error) {
	expenses := make([]model.Expense, 0)
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date DESC").Order("id DESC").
		Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

// FindOwned finds an expense by id that belongs to ownerID.
func (r *expenseRepository) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Expense, error) {
	var expense model.Expense
	if err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

// DeleteOwned removes an owned expense and returns the removed row. It
// reports gorm.ErrRecordNotFound when the row is absent, belongs to someone
// else, or was deleted concurrently between the read and the delete.
func (r *expenseRepository) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.Expense, error) {
	var removed *model.Expense
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &expenseRepository{db: tx}
		expense, err := txRepo.FindOwned(ctx, id, ownerID)
		if err != nil {
			return err
		}

		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&model.Expense{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		removed = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
