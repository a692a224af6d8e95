package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("inventory: variant not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Variant is a purchasable product configuration with its own price and stock.
type Variant struct {
	ID            int64
	ProductName   string
	SKU           string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Stock         int
	UpdatedAt     time.Time
}

// InsufficientStockError reports which variant could not cover the requested quantity.
type InsufficientStockError struct {
	VariantID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for variant %d: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type VariantNotFoundError struct {
	VariantID int64
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("inventory: variant %d not found", e.VariantID)
}

func (e *VariantNotFoundError) Unwrap() error { return ErrNotFound }

// Deduct removes quantity units from stock. Stock never goes negative.
func (v *Variant) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > v.Stock {
		return &InsufficientStockError{VariantID: v.ID, Requested: quantity, Available: v.Stock}
	}
	v.Stock -= quantity
	v.touch()
	return nil
}

func (v *Variant) IsLowStock(threshold int) bool {
	return v.Stock < threshold
}

func (v *Variant) Clone() *Variant {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func (v *Variant) touch() {
	v.UpdatedAt = time.Now().UTC()
}
