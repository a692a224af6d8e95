package id

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator(t *testing.T) {
	g := NewUUIDGenerator()
	a, b := g.NewID(), g.NewID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestOrderNumberFormat(t *testing.T) {
	g := NewOrderNumbers()
	re := regexp.MustCompile(`^ORD-[A-Z0-9]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n := g.NewOrderNumber()
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestOrderNumberRejectsBiasedBytes(t *testing.T) {
	src := append(bytes.Repeat([]byte{255}, 5), bytes.Repeat([]byte{0, 1}, 20)...)
	g := &OrderNumbers{rand: bytes.NewReader(src)}
	assert.Equal(t, "ORD-ABABABABAB", g.NewOrderNumber())
}

func TestPaymentReferenceFormat(t *testing.T) {
	ref := NewPaymentReferences().NewPaymentReference("ORD-7K2Q9M4XA1")
	assert.Regexp(t, `^ORDER-ORD-7K2Q9M4XA1-[0-9A-F]{4}$`, ref)
}
