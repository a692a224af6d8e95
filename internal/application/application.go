package application

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Tx exposes repositories bound to one database transaction.
type Tx interface {
	Variants() dominv.Repository
	Promos() pricing.PromoRepository
	Orders() domorder.Repository
	Payments() dompay.Repository
	Outbox() domoutbox.Writer
}

// UnitOfWork runs fn inside a transaction. A returned error or panic rolls
// everything back; otherwise the transaction commits and row locks are released.
type UnitOfWork interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// Actor is the caller as asserted by the upstream gateway.
type Actor struct {
	UserID int64
	Staff  bool
}

// CanSee reports whether the actor may read a resource owned by ownerID.
func (a Actor) CanSee(ownerID int64) bool {
	return a.Staff || (a.UserID > 0 && a.UserID == ownerID)
}

// ValidationError is a client input problem attributable to one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
