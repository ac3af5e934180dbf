package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, organization_id, name, description, price_value, price_discount, is_active, created_at`

// ListActiveMenuItemsByOrganization returns the menu items currently
// orderable. Deactivated items stay referenced by past order items but cannot
// be added to new orders.
func (q *Queries) ListActiveMenuItemsByOrganization(ctx context.Context, organizationID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE organization_id = $1 AND is_active
		ORDER BY name`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.Name, &m.Description, &m.PriceValue, &m.PriceDiscount, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

type CreateMenuItemParams struct {
	OrganizationID uuid.UUID
	Name           string
	Description    pgtype.Text
	PriceValue     pgtype.Numeric
	PriceDiscount  pgtype.Numeric
	IsActive       bool
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO menu_items (organization_id, name, description, price_value, price_discount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+menuItemColumns,
		arg.OrganizationID, arg.Name, arg.Description, arg.PriceValue, arg.PriceDiscount, arg.IsActive)
	var m MenuItem
	err := row.Scan(&m.ID, &m.OrganizationID, &m.Name, &m.Description, &m.PriceValue, &m.PriceDiscount, &m.IsActive, &m.CreatedAt)
	return m, err
}
