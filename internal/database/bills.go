package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const billColumns = `id, restaurant_id, table_id, status, payed_service_fee_in_percentage, created_at, closed_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.RestaurantID, &b.TableID, &b.Status, &b.PayedServiceFeeInPercentage, &b.CreatedAt, &b.ClosedAt)
	return b, err
}

func collectBills(rows pgx.Rows) ([]Bill, error) {
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

type CreateBillParams struct {
	RestaurantID                uuid.UUID
	TableID                     pgtype.UUID
	Status                      string
	PayedServiceFeeInPercentage pgtype.Numeric
	ClosedAt                    pgtype.Timestamptz
}

// CreateBill inserts a bill row. The partial unique index bills_open_table_key
// rejects a second open bill for the same table with a 23505.
func (q *Queries) CreateBill(ctx context.Context, arg CreateBillParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO bills (restaurant_id, table_id, status, payed_service_fee_in_percentage, closed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+billColumns,
		arg.RestaurantID, arg.TableID, arg.Status, arg.PayedServiceFeeInPercentage, arg.ClosedAt)
	return scanBill(row)
}

type CreateOrderParams struct {
	BillID       uuid.UUID
	CustomerName string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (bill_id, customer_name)
		VALUES ($1, $2)
		RETURNING id, bill_id, customer_name, created_at`,
		arg.BillID, arg.CustomerName)
	var o Order
	err := row.Scan(&o.ID, &o.BillID, &o.CustomerName, &o.CreatedAt)
	return o, err
}

type CreateOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	PayedValue pgtype.Numeric
	Status     string
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, payed_value, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, menu_item_id, payed_value, status, created_at`,
		arg.OrderID, arg.MenuItemID, arg.PayedValue, arg.Status)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.PayedValue, &i.Status, &i.CreatedAt)
	return i, err
}

type GetBillParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
}

// GetBill fetches a bill scoped to the owning organization.
func (q *Queries) GetBill(ctx context.Context, arg GetBillParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		SELECT b.id, b.restaurant_id, b.table_id, b.status, b.payed_service_fee_in_percentage, b.created_at, b.closed_at
		FROM bills b
		JOIN restaurants r ON r.id = b.restaurant_id
		WHERE b.id = $1 AND r.organization_id = $2`,
		arg.ID, arg.OrganizationID)
	return scanBill(row)
}

type GetBillByRestaurantParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetBillByRestaurant(ctx context.Context, arg GetBillByRestaurantParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE id = $1 AND restaurant_id = $2`,
		arg.ID, arg.RestaurantID)
	return scanBill(row)
}

type FindOpenBillForTableParams struct {
	RestaurantID uuid.UUID
	TableID      uuid.UUID
}

// FindOpenBillForTable returns the pending/active bill currently occupying a
// table, or pgx.ErrNoRows when the table is free.
func (q *Queries) FindOpenBillForTable(ctx context.Context, arg FindOpenBillForTableParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE restaurant_id = $1 AND table_id = $2 AND status IN ('pending', 'active')`,
		arg.RestaurantID, arg.TableID)
	return scanBill(row)
}

type FindOpenBillForTableByOrganizationParams struct {
	OrganizationID uuid.UUID
	TableID        uuid.UUID
}

func (q *Queries) FindOpenBillForTableByOrganization(ctx context.Context, arg FindOpenBillForTableByOrganizationParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		SELECT b.id, b.restaurant_id, b.table_id, b.status, b.payed_service_fee_in_percentage, b.created_at, b.closed_at
		FROM bills b
		JOIN restaurants r ON r.id = b.restaurant_id
		WHERE r.organization_id = $1 AND b.table_id = $2 AND b.status IN ('pending', 'active')`,
		arg.OrganizationID, arg.TableID)
	return scanBill(row)
}

type FindActiveBillForTableParams struct {
	OrganizationID uuid.UUID
	TableID        uuid.UUID
	ExcludeBillID  uuid.UUID
}

// FindActiveBillForTable looks for another bill already serving the table,
// used by the confirm re-check.
func (q *Queries) FindActiveBillForTable(ctx context.Context, arg FindActiveBillForTableParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		SELECT b.id, b.restaurant_id, b.table_id, b.status, b.payed_service_fee_in_percentage, b.created_at, b.closed_at
		FROM bills b
		JOIN restaurants r ON r.id = b.restaurant_id
		WHERE r.organization_id = $1 AND b.table_id = $2 AND b.status = 'active' AND b.id <> $3`,
		arg.OrganizationID, arg.TableID, arg.ExcludeBillID)
	return scanBill(row)
}

type UpdateBillStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateBillStatus flips a bill's status only when it is still in FromStatus.
// Returns pgx.ErrNoRows when a concurrent writer got there first.
func (q *Queries) UpdateBillStatus(ctx context.Context, arg UpdateBillStatusParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE bills
		SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING `+billColumns,
		arg.ID, arg.Status, arg.FromStatus)
	return scanBill(row)
}

type CloseBillParams struct {
	ID                          uuid.UUID
	PayedServiceFeeInPercentage pgtype.Numeric
}

// CloseBill stamps the service-fee snapshot and closed_at while flipping an
// active bill to closed, all in one guarded statement.
func (q *Queries) CloseBill(ctx context.Context, arg CloseBillParams) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE bills
		SET status = 'closed', closed_at = now(), payed_service_fee_in_percentage = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+billColumns,
		arg.ID, arg.PayedServiceFeeInPercentage)
	return scanBill(row)
}

// DeclineBill flips a pending bill to declined and stamps closed_at.
func (q *Queries) DeclineBill(ctx context.Context, id uuid.UUID) (Bill, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE bills
		SET status = 'declined', closed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+billColumns, id)
	return scanBill(row)
}

type ListBillsByRangeParams struct {
	OrganizationID uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	StatusList     []string
}

func (q *Queries) ListBillsByRange(ctx context.Context, arg ListBillsByRangeParams) ([]Bill, error) {
	rows, err := q.db.Query(ctx, `
		SELECT b.id, b.restaurant_id, b.table_id, b.status, b.payed_service_fee_in_percentage, b.created_at, b.closed_at
		FROM bills b
		JOIN restaurants r ON r.id = b.restaurant_id
		WHERE r.organization_id = $1
		  AND b.created_at >= $2 AND b.created_at <= $3
		  AND b.status = ANY($4)
		ORDER BY b.created_at`,
		arg.OrganizationID, arg.StartDate, arg.EndDate, arg.StatusList)
	if err != nil {
		return nil, err
	}
	return collectBills(rows)
}

func (q *Queries) ListOrdersByBill(ctx context.Context, billID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, bill_id, customer_name, created_at
		FROM orders
		WHERE bill_id = $1
		ORDER BY created_at`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BillID, &o.CustomerName, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type GetOrderByCustomerParams struct {
	BillID       uuid.UUID
	CustomerName string
}

// GetOrderByCustomer finds the order grouping items for a customer name on a
// bill, or pgx.ErrNoRows when that customer has no order yet.
func (q *Queries) GetOrderByCustomer(ctx context.Context, arg GetOrderByCustomerParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, bill_id, customer_name, created_at
		FROM orders
		WHERE bill_id = $1 AND customer_name = $2
		ORDER BY created_at
		LIMIT 1`, arg.BillID, arg.CustomerName)
	var o Order
	err := row.Scan(&o.ID, &o.BillID, &o.CustomerName, &o.CreatedAt)
	return o, err
}

// ListVisibleOrderItemsByOrder returns an order's items, hiding declined and
// removed ones the way normal bill reads do.
func (q *Queries) ListVisibleOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, payed_value, status, created_at
		FROM order_items
		WHERE order_id = $1 AND status NOT IN ('declined', 'removed')
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.PayedValue, &i.Status, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type CountOrderItemsByStatusParams struct {
	BillID uuid.UUID
	Status string
}

func (q *Queries) CountOrderItemsByStatus(ctx context.Context, arg CountOrderItemsByStatusParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.bill_id = $1 AND oi.status = $2`,
		arg.BillID, arg.Status).Scan(&count)
	return count, err
}

type UpdateOrderItemsStatusParams struct {
	BillID         uuid.UUID
	OrganizationID uuid.UUID
	ItemIDs        []uuid.UUID
	FromStatuses   []string
	Status         string
}

// UpdateOrderItemsStatus transitions the requested items in one conditional
// statement: only items under the scoped bill and currently in one of
// FromStatuses are touched. The returned count tells the caller how many of
// the requested items actually matched.
func (q *Queries) UpdateOrderItemsStatus(ctx context.Context, arg UpdateOrderItemsStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE order_items oi
		SET status = $5
		FROM orders o
		JOIN bills b ON b.id = o.bill_id
		JOIN restaurants r ON r.id = b.restaurant_id
		WHERE oi.order_id = o.id
		  AND oi.id = ANY($3)
		  AND b.id = $1
		  AND r.organization_id = $2
		  AND oi.status = ANY($4)`,
		arg.BillID, arg.OrganizationID, arg.ItemIDs, arg.FromStatuses, arg.Status)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type UpdateAllOrderItemsStatusParams struct {
	BillID     uuid.UUID
	FromStatus string
	Status     string
}

// UpdateAllOrderItemsStatus transitions every item on a bill currently in
// FromStatus. Used by the bill-level confirm, decline, and close cascades.
func (q *Queries) UpdateAllOrderItemsStatus(ctx context.Context, arg UpdateAllOrderItemsStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE order_items oi
		SET status = $3
		FROM orders o
		WHERE oi.order_id = o.id
		  AND o.bill_id = $1
		  AND oi.status = $2`,
		arg.BillID, arg.FromStatus, arg.Status)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
