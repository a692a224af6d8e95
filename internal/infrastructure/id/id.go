package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	orderNumberPrefix = "ORD-"
	orderNumberLen    = 10
	orderAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// UUIDGenerator issues random (v4) UUIDs for payment rows.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// OrderNumbers issues ORD- followed by 10 upper-case alphanumerics.
type OrderNumbers struct {
	rand io.Reader
}

func NewOrderNumbers() *OrderNumbers { return &OrderNumbers{rand: rand.Reader} }

func (g *OrderNumbers) NewOrderNumber() string {
	// Largest multiple of 36 below 256. Bytes at or above it are discarded.
	const limit = 252
	out := make([]byte, 0, orderNumberLen)
	buf := make([]byte, orderNumberLen*2)
	for len(out) < orderNumberLen {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			panic(fmt.Sprintf("id: read random: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, orderAlphabet[int(b)%len(orderAlphabet)])
			if len(out) == orderNumberLen {
				break
			}
		}
	}
	return orderNumberPrefix + string(out)
}

// PaymentReferences builds ORDER-{order number}-{4 upper-case hex} references.
type PaymentReferences struct{}

func NewPaymentReferences() PaymentReferences { return PaymentReferences{} }

func (PaymentReferences) NewPaymentReference(orderNumber string) string {
	u := uuid.New()
	return fmt.Sprintf("ORDER-%s-%s", orderNumber, strings.ToUpper(hex.EncodeToString(u[:2])))
}
