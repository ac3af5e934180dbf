package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}

type Restaurant struct {
	ID                     uuid.UUID
	OrganizationID         uuid.UUID
	Name                   string
	ServiceFeeInPercentage pgtype.Numeric
	CreatedAt              time.Time
}

type Table struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	CreatedAt    time.Time
}

type MenuItem struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Description    pgtype.Text
	PriceValue     pgtype.Numeric
	PriceDiscount  pgtype.Numeric
	IsActive       bool
	CreatedAt      time.Time
}

type Bill struct {
	ID                          uuid.UUID
	RestaurantID                uuid.UUID
	TableID                     pgtype.UUID
	Status                      string
	PayedServiceFeeInPercentage pgtype.Numeric
	CreatedAt                   time.Time
	ClosedAt                    pgtype.Timestamptz
}

type Order struct {
	ID           uuid.UUID
	BillID       uuid.UUID
	CustomerName string
	CreatedAt    time.Time
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	PayedValue pgtype.Numeric
	Status     string
	CreatedAt  time.Time
}
