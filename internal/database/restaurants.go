package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO organizations (name)
		VALUES ($1)
		RETURNING id, name, created_at`, name)
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.CreatedAt)
	return o, err
}

func (q *Queries) GetRestaurant(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, organization_id, name, service_fee_in_percentage, created_at
		FROM restaurants
		WHERE id = $1`, id)
	var r Restaurant
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.ServiceFeeInPercentage, &r.CreatedAt)
	return r, err
}

// GetRestaurantByOrganization resolves the single restaurant owned by an
// organization. Authenticated callers address their restaurant this way.
func (q *Queries) GetRestaurantByOrganization(ctx context.Context, organizationID uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, organization_id, name, service_fee_in_percentage, created_at
		FROM restaurants
		WHERE organization_id = $1`, organizationID)
	var r Restaurant
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.ServiceFeeInPercentage, &r.CreatedAt)
	return r, err
}

type GetTableParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, restaurant_id, name, created_at
		FROM tables
		WHERE id = $1 AND restaurant_id = $2`, arg.ID, arg.RestaurantID)
	var t Table
	err := row.Scan(&t.ID, &t.RestaurantID, &t.Name, &t.CreatedAt)
	return t, err
}

type CreateRestaurantParams struct {
	OrganizationID         uuid.UUID
	Name                   string
	ServiceFeeInPercentage pgtype.Numeric
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO restaurants (organization_id, name, service_fee_in_percentage)
		VALUES ($1, $2, $3)
		RETURNING id, organization_id, name, service_fee_in_percentage, created_at`,
		arg.OrganizationID, arg.Name, arg.ServiceFeeInPercentage)
	var r Restaurant
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.ServiceFeeInPercentage, &r.CreatedAt)
	return r, err
}

type CreateTableParams struct {
	RestaurantID uuid.UUID
	Name         string
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO tables (restaurant_id, name)
		VALUES ($1, $2)
		RETURNING id, restaurant_id, name, created_at`,
		arg.RestaurantID, arg.Name)
	var t Table
	err := row.Scan(&t.ID, &t.RestaurantID, &t.Name, &t.CreatedAt)
	return t, err
}
