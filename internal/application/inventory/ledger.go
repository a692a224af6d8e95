package inventory

import (
	"context"
	"fmt"
	"sort"

	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
)

type Line struct {
	VariantID int64
	Quantity  int
}

// Reservation is a reserved line together with the locked variant as it stood
// after the decrement.
type Reservation struct {
	Line    Line
	Variant *dominv.Variant
}

// Reserve locks the variant row until the enclosing transaction ends, then
// checks and decrements its stock.
func Reserve(ctx context.Context, variants dominv.Repository, variantID int64, quantity int) (*dominv.Variant, error) {
	v, err := variants.GetForUpdate(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if err := v.Deduct(quantity); err != nil {
		return nil, err
	}
	if err := variants.UpdateStock(ctx, v.ID, v.Stock); err != nil {
		return nil, fmt.Errorf("inventory: update stock of variant %d: %w", v.ID, err)
	}
	return v, nil
}

// ReserveAll reserves every line, acquiring row locks in ascending variant id
// order so two orders sharing variants cannot deadlock. Results keep the
// caller's line order. The first failure aborts and is returned as is.
func ReserveAll(ctx context.Context, variants dominv.Repository, lines []Line) ([]Reservation, error) {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lines[order[a]].VariantID < lines[order[b]].VariantID
	})

	res := make([]Reservation, len(lines))
	for _, idx := range order {
		l := lines[idx]
		v, err := Reserve(ctx, variants, l.VariantID, l.Quantity)
		if err != nil {
			return nil, err
		}
		res[idx] = Reservation{Line: l, Variant: v}
	}
	return res, nil
}
