package service

import (
	"github.com/comanda-app/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// resolvedItem is a menu item snapshot frozen at order time: the value the
// customer pays never changes afterward, even if the menu price does.
type resolvedItem struct {
	menuItemID uuid.UUID
	payedValue decimal.Decimal
}

// resolveOrderItems maps the requested menu item IDs onto the currently
// active menu, preserving request order and duplicates (ordering two beers
// means two order items). IDs that do not resolve to an active item are
// skipped; the caller decides whether an empty result is an error.
func resolveOrderItems(menu []database.MenuItem, itemIDs []string) []resolvedItem {
	byID := make(map[uuid.UUID]database.MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}

	var resolved []resolvedItem
	for _, raw := range itemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		m, ok := byID[id]
		if !ok {
			continue
		}
		resolved = append(resolved, resolvedItem{
			menuItemID: id,
			payedValue: capturedValue(m),
		})
	}
	return resolved
}

// capturedValue computes price minus discount, floored at zero.
func capturedValue(m database.MenuItem) decimal.Decimal {
	value := numericToDecimal(m.PriceValue)
	discount := numericToDecimal(m.PriceDiscount)
	payed := value.Sub(discount)
	if payed.IsNegative() {
		return decimal.Zero
	}
	return payed
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
