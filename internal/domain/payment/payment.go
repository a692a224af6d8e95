package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("payment: not found")
	ErrDuplicateReference = errors.New("payment: duplicate reference")
	ErrInvalidStatus      = errors.New("payment: invalid status")
	ErrInvalidAmount      = errors.New("payment: amount must be greater than zero")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

type Provider string

const (
	ProviderPaynow Provider = "paynow"
	ProviderPayPal Provider = "paypal"
)

// Payment is one attempt to pay for an order. An order may have several.
type Payment struct {
	ID                string
	OrderID           int64
	Provider          Provider
	Reference         string
	ProviderReference string
	Amount            decimal.Decimal
	Status            Status
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func New(id string, orderID int64, provider Provider, reference string, amount decimal.Decimal) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		Provider:  provider,
		Reference: reference,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves a pending payment into a terminal status. A payment that is
// already terminal is left as is and Transition reports false without error.
func (p *Payment) Transition(to Status, reason string) (bool, error) {
	if !to.IsTerminal() {
		return false, ErrInvalidStatus
	}
	if p.Status.IsTerminal() {
		return false, nil
	}
	p.Status = to
	if to != StatusPaid {
		p.FailureReason = reason
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
