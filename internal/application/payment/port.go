package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	// ErrProviderRejected is an explicit, final answer from the provider.
	ErrProviderRejected = errors.New("payment: provider rejected the request")
	// ErrProviderUnavailable covers timeouts, transport failures and unexpected responses.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	ErrCaptureIncomplete   = errors.New("payment: capture not completed by provider")
)

type ProviderError struct {
	Provider dompay.Provider
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment: %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProviderRejected }

// Field is one key/value pair of a form body, kept in wire order.
type Field struct {
	Key   string
	Value string
}

type PaynowRequest struct {
	Reference      string
	Amount         decimal.Decimal
	AdditionalInfo string
}

type PaynowRedirect struct {
	BrowserURL        string
	PollURL           string
	ProviderReference string
}

// PaynowGateway is the outbound port to Paynow.
type PaynowGateway interface {
	Initiate(ctx context.Context, req PaynowRequest) (*PaynowRedirect, error)
	// Verify checks the hash carried by a status update.
	Verify(fields []Field) bool
}

type PayPalOrderRequest struct {
	ReferenceID string
	Amount      decimal.Decimal
}

type PayPalOrder struct {
	ID     string
	Status string
	// Raw is the provider's response body, relayed to the client untouched.
	Raw json.RawMessage
}

const PayPalStatusCompleted = "COMPLETED"

// PayPalGateway is the outbound port to PayPal's Orders API.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, req PayPalOrderRequest) (*PayPalOrder, error)
	CaptureOrder(ctx context.Context, paypalOrderID string) (*PayPalOrder, error)
}

type IDGenerator interface {
	NewID() string
}

// ReferenceGenerator builds merchant references such as ORDER-ORD-7K2Q9M4XA1-3FA2.
type ReferenceGenerator interface {
	NewPaymentReference(orderNumber string) string
}
