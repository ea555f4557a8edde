package checkout

import (
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/branlog/split-payment/apperr"
	"github.com/branlog/split-payment/model"
)

// Split is a cart partitioned by payment method. Invariant: CardCents plus
// CODCents equals the sum of every item's subtotal, and each item lands in
// exactly one branch.
type Split struct {
	Card      []model.CartItem
	COD       []model.CartItem
	CardCents int64
	CODCents  int64
}

// SplitItems partitions items into the card and cash-on-delivery branches and
// totals each branch in minor currency units. Items tagged "cod" go to the
// delivery branch; everything else pays by card.
func SplitItems(items []model.CartItem) (*Split, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeNoItems, fiber.StatusBadRequest, "cart is empty")
	}

	sp := &Split{}
	for i, it := range items {
		sub, err := itemSubtotalCents(it)
		if err != nil {
			return nil, apperr.New(apperr.CodeInvalidItem, fiber.StatusBadRequest,
				fmt.Sprintf("item %d (variant %d): %v", i, it.VariantID, err))
		}
		if it.PayMethod == model.PayMethodCOD {
			sp.COD = append(sp.COD, it)
			sp.CODCents += sub
		} else {
			sp.Card = append(sp.Card, it)
			sp.CardCents += sub
		}
	}
	return sp, nil
}

// itemSubtotalCents resolves an item's subtotal using the first usable price
// field: explicit line total, then unit price x qty, then the legacy per-unit
// field x qty.
func itemSubtotalCents(it model.CartItem) (int64, error) {
	if it.Qty < 1 {
		return 0, fmt.Errorf("qty must be at least 1")
	}
	if v, ok := usableCents(it.LineTotalCents); ok {
		return v, nil
	}
	if v, ok := usableCents(it.UnitPriceCents); ok {
		return v * int64(it.Qty), nil
	}
	if v, ok := usableCents(it.PriceCents); ok {
		return v * int64(it.Qty), nil
	}
	return 0, fmt.Errorf("no usable price field")
}

// itemUnitCents is the per-unit price used when an order line has to be sent
// as an explicit title/price pair instead of a catalog variant reference.
func itemUnitCents(it model.CartItem) int64 {
	if v, ok := usableCents(it.UnitPriceCents); ok {
		return v
	}
	if v, ok := usableCents(it.PriceCents); ok {
		return v
	}
	if v, ok := usableCents(it.LineTotalCents); ok && it.Qty > 0 {
		return v / int64(it.Qty)
	}
	return 0
}

func usableCents(p *float64) (int64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return int64(math.Round(v)), true
}
