package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"expensetracker/internal/model"
	"expensetracker/internal/service"
)

// ExpenseHandler handles expense endpoints.
type ExpenseHandler struct {
	expenseService service.ExpenseService
}

// NewExpenseHandler creates a new expense handler.
func NewExpenseHandler(expenseService service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService}
}

// CreateExpenseRequest represents an expense creation request. Amount is a
// JSON number; a quoted decimal string is accepted too.
type CreateExpenseRequest struct {
	Description string           `json:"description" validate:"required,max=255"`
	Amount      *decimal.Decimal `json:"amount" validate:"required" swaggertype:"number"`
}

// ExpenseListResponse wraps a list of expenses.
type ExpenseListResponse struct {
	Data  []model.Expense `json:"data"`
	Count int             `json:"count"`
}

// ExpenseResponse wraps a single expense.
type ExpenseResponse struct {
	Data *model.Expense `json:"data"`
}

// List godoc
// @Summary List the caller's expenses
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ExpenseListResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/expenses [get]
func (h *ExpenseHandler) List(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	expenses, err := h.expenseService.List(c.Request().Context(), identity)
	if err != nil {
		return fromError(err)
	}

	return c.JSON(http.StatusOK, ExpenseListResponse{
		Data:  expenses,
		Count: len(expenses),
	})
}

// Create godoc
// @Summary Create an expense
// @Tags expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "Expense data"
// @Success 201 {object} ExpenseResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/expenses [post]
func (h *ExpenseHandler) Create(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req CreateExpenseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	expense, err := h.expenseService.Create(c.Request().Context(), identity, req.Description, *req.Amount)
	if err != nil {
		return fromError(err)
	}

	return c.JSON(http.StatusCreated, ExpenseResponse{Data: expense})
}

// Delete godoc
// @Summary Delete an expense
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Expense ID"
// @Success 200 {object} ExpenseResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	removed, err := h.expenseService.Delete(c.Request().Context(), identity, c.Param("id"))
	if err != nil {
		return fromError(err)
	}

	return c.JSON(http.StatusOK, ExpenseResponse{Data: removed})
}

// Summary godoc
// @Summary Count and total of the caller's expenses
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Summary
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/expenses/summary [get]
func (h *ExpenseHandler) Summary(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	summary, err := h.expenseService.Summary(c.Request().Context(), identity)
	if err != nil {
		return fromError(err)
	}

	return c.JSON(http.StatusOK, summary)
}
