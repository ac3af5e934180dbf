package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comanda-app/api/internal/database"
	"github.com/comanda-app/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Errors returned by the bill service.
var (
	ErrEmptyItems         = errors.New("at least one menu item is required")
	ErrEmptyCustomerName  = errors.New("customer_name is required")
	ErrEmptyOrders        = errors.New("at least one order is required")
	ErrInvalidItemID      = errors.New("invalid order item id")
	ErrEmptyStatusList    = errors.New("status_list is required")
	ErrInvalidStatus      = errors.New("invalid bill status")
	ErrInvalidDateRange   = errors.New("end_date must not be before start_date")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrTableNotFound      = errors.New("table not found")
	ErrBillNotFound       = errors.New("bill not found")
	ErrMenuItemsNotFound  = errors.New("no menu item resolved for this restaurant")
	ErrTableOccupied      = errors.New("table already has an open bill")
	ErrBillNotPending     = errors.New("bill is not pending")
	ErrBillNotActive      = errors.New("bill is not active")
	ErrBillNotOpen        = errors.New("bill is already settled")
	ErrHasPendingItems    = errors.New("bill has pending order items")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BillStore defines the DB methods needed by the bill lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type BillStore interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	GetRestaurantByOrganization(ctx context.Context, organizationID uuid.UUID) (database.Restaurant, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.Table, error)
	ListActiveMenuItemsByOrganization(ctx context.Context, organizationID uuid.UUID) ([]database.MenuItem, error)

	CreateBill(ctx context.Context, arg database.CreateBillParams) (database.Bill, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)

	GetBill(ctx context.Context, arg database.GetBillParams) (database.Bill, error)
	GetBillByRestaurant(ctx context.Context, arg database.GetBillByRestaurantParams) (database.Bill, error)
	FindOpenBillForTable(ctx context.Context, arg database.FindOpenBillForTableParams) (database.Bill, error)
	FindOpenBillForTableByOrganization(ctx context.Context, arg database.FindOpenBillForTableByOrganizationParams) (database.Bill, error)
	FindActiveBillForTable(ctx context.Context, arg database.FindActiveBillForTableParams) (database.Bill, error)
	UpdateBillStatus(ctx context.Context, arg database.UpdateBillStatusParams) (database.Bill, error)
	CloseBill(ctx context.Context, arg database.CloseBillParams) (database.Bill, error)
	DeclineBill(ctx context.Context, id uuid.UUID) (database.Bill, error)
	ListBillsByRange(ctx context.Context, arg database.ListBillsByRangeParams) ([]database.Bill, error)

	ListOrdersByBill(ctx context.Context, billID uuid.UUID) ([]database.Order, error)
	GetOrderByCustomer(ctx context.Context, arg database.GetOrderByCustomerParams) (database.Order, error)
	ListVisibleOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	CountOrderItemsByStatus(ctx context.Context, arg database.CountOrderItemsByStatusParams) (int64, error)
	UpdateOrderItemsStatus(ctx context.Context, arg database.UpdateOrderItemsStatusParams) (int64, error)
	UpdateAllOrderItemsStatus(ctx context.Context, arg database.UpdateAllOrderItemsStatusParams) (int64, error)
}

// NewBillStore creates a BillStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewBillStore func(db database.DBTX) BillStore

// OrderRequest is one customer's batch of menu item IDs.
type OrderRequest struct {
	CustomerName string
	MenuItemIDs  []string
}

// OpenPendingRequest opens a customer-facing bill on a table.
type OpenPendingRequest struct {
	RestaurantID uuid.UUID
	TableID      uuid.UUID
	Orders       []OrderRequest
}

// OpenConfirmedRequest opens a staff-confirmed bill on a table, with no
// items yet.
type OpenConfirmedRequest struct {
	OrganizationID uuid.UUID
	TableID        uuid.UUID
}

// OpenInstantRequest opens a settled counter sale with no table.
type OpenInstantRequest struct {
	OrganizationID uuid.UUID
	Role           string
	CustomerName   string
	MenuItemIDs    []string
}

// AddPendingItemsRequest appends customer-submitted items to an open bill.
type AddPendingItemsRequest struct {
	RestaurantID uuid.UUID
	BillID       uuid.UUID
	CustomerName string
	MenuItemIDs  []string
}

// AddConfirmedItemsRequest appends staff-confirmed items to an open bill.
type AddConfirmedItemsRequest struct {
	OrganizationID uuid.UUID
	Role           string
	BillID         uuid.UUID
	CustomerName   string
	MenuItemIDs    []string
}

// TransitionItemsRequest is a bulk order-item status transition.
type TransitionItemsRequest struct {
	OrganizationID uuid.UUID
	BillID         uuid.UUID
	OrderItemIDs   []string
}

// ListByRangeRequest filters bills by organization, date window, and status.
type ListByRangeRequest struct {
	OrganizationID uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	StatusList     []string
}

// OrderDetail is an order with its visible items.
type OrderDetail struct {
	Order database.Order
	Items []database.OrderItem
}

// BillDetail is a bill with its nested orders, filtered to exclude declined
// and removed items.
type BillDetail struct {
	Bill   database.Bill
	Orders []OrderDetail
}

// BillService owns the bill and order-item state machines.
type BillService struct {
	pool     TxBeginner
	store    BillStore
	newStore NewBillStore
}

// NewBillService creates a new BillService. store reads outside
// transactions; newStore builds transaction-scoped stores.
func NewBillService(pool TxBeginner, store BillStore, newStore NewBillStore) *BillService {
	return &BillService{pool: pool, store: store, newStore: newStore}
}

// OpenPending creates a pending bill on a free table, one order per customer
// group, every item's payed value frozen from the active menu. Public:
// callers identify the restaurant and table explicitly.
func (s *BillService) OpenPending(ctx context.Context, req OpenPendingRequest) (*BillDetail, error) {
	if len(req.Orders) == 0 {
		return nil, ErrEmptyOrders
	}
	for _, o := range req.Orders {
		if o.CustomerName == "" {
			return nil, ErrEmptyCustomerName
		}
		if len(o.MenuItemIDs) == 0 {
			return nil, ErrEmptyItems
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	restaurant, err := store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if _, err := store.GetTable(ctx, database.GetTableParams{ID: req.TableID, RestaurantID: restaurant.ID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	if err := ensureTableFree(ctx, store, restaurant.ID, req.TableID); err != nil {
		return nil, err
	}

	menu, err := store.ListActiveMenuItemsByOrganization(ctx, restaurant.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	resolved := make([][]resolvedItem, len(req.Orders))
	for i, o := range req.Orders {
		resolved[i] = resolveOrderItems(menu, o.MenuItemIDs)
		if len(resolved[i]) == 0 {
			return nil, ErrMenuItemsNotFound
		}
	}

	bill, err := store.CreateBill(ctx, database.CreateBillParams{
		RestaurantID: restaurant.ID,
		TableID:      pgtype.UUID{Bytes: req.TableID, Valid: true},
		Status:       enum.BillStatusPending,
	})
	if err != nil {
		if isOpenTableConflict(err) {
			return nil, ErrTableOccupied
		}
		return nil, fmt.Errorf("create bill: %w", err)
	}

	for i, o := range req.Orders {
		order, err := store.CreateOrder(ctx, database.CreateOrderParams{
			BillID:       bill.ID,
			CustomerName: o.CustomerName,
		})
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		if err := createOrderItems(ctx, store, order.ID, resolved[i], enum.OrderItemStatusPending); err != nil {
			return nil, err
		}
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// OpenConfirmed creates an active bill on a free table with no items; staff
// append items afterward.
func (s *BillService) OpenConfirmed(ctx context.Context, req OpenConfirmedRequest) (*BillDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	restaurant, err := store.GetRestaurantByOrganization(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if _, err := store.GetTable(ctx, database.GetTableParams{ID: req.TableID, RestaurantID: restaurant.ID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	_, err = store.FindOpenBillForTableByOrganization(ctx, database.FindOpenBillForTableByOrganizationParams{
		OrganizationID: req.OrganizationID,
		TableID:        req.TableID,
	})
	if err == nil {
		return nil, ErrTableOccupied
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find open bill: %w", err)
	}

	bill, err := store.CreateBill(ctx, database.CreateBillParams{
		RestaurantID: restaurant.ID,
		TableID:      pgtype.UUID{Bytes: req.TableID, Valid: true},
		Status:       enum.BillStatusActive,
	})
	if err != nil {
		if isOpenTableConflict(err) {
			return nil, ErrTableOccupied
		}
		return nil, fmt.Errorf("create bill: %w", err)
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// OpenInstant creates an immediately-settled counter sale: no table, the
// bill born closed with its fee snapshot stamped, the items active.
// Requires the admin or cook role.
func (s *BillService) OpenInstant(ctx context.Context, req OpenInstantRequest) (*BillDetail, error) {
	if err := authorize(req.Role, OpOpenInstantBill); err != nil {
		return nil, err
	}
	if req.CustomerName == "" {
		return nil, ErrEmptyCustomerName
	}
	if len(req.MenuItemIDs) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	restaurant, err := store.GetRestaurantByOrganization(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	menu, err := store.ListActiveMenuItemsByOrganization(ctx, restaurant.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	resolved := resolveOrderItems(menu, req.MenuItemIDs)
	if len(resolved) == 0 {
		return nil, ErrMenuItemsNotFound
	}

	bill, err := store.CreateBill(ctx, database.CreateBillParams{
		RestaurantID:                restaurant.ID,
		Status:                      enum.BillStatusClosed,
		PayedServiceFeeInPercentage: restaurant.ServiceFeeInPercentage,
		ClosedAt:                    pgtype.Timestamptz{Time: time.Now(), Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		BillID:       bill.ID,
		CustomerName: req.CustomerName,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := createOrderItems(ctx, store, order.ID, resolved, enum.OrderItemStatusActive); err != nil {
		return nil, err
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// AddPendingItems appends pending items to an open bill, grouped under the
// customer's existing order when one matches by name. Public: the caller
// identifies the restaurant explicitly.
func (s *BillService) AddPendingItems(ctx context.Context, req AddPendingItemsRequest) (*BillDetail, error) {
	if req.CustomerName == "" {
		return nil, ErrEmptyCustomerName
	}
	if len(req.MenuItemIDs) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	restaurant, err := store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	bill, err := store.GetBillByRestaurant(ctx, database.GetBillByRestaurantParams{
		ID:           req.BillID,
		RestaurantID: restaurant.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusPending && bill.Status != enum.BillStatusActive {
		return nil, ErrBillNotOpen
	}

	menu, err := store.ListActiveMenuItemsByOrganization(ctx, restaurant.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	resolved := resolveOrderItems(menu, req.MenuItemIDs)
	if len(resolved) == 0 {
		return nil, ErrMenuItemsNotFound
	}

	if err := appendItems(ctx, store, bill.ID, req.CustomerName, resolved, enum.OrderItemStatusPending); err != nil {
		return nil, err
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// AddConfirmedItems appends already-active items to an open bill. Requires
// the admin or cook role.
func (s *BillService) AddConfirmedItems(ctx context.Context, req AddConfirmedItemsRequest) (*BillDetail, error) {
	if err := authorize(req.Role, OpAddConfirmedItems); err != nil {
		return nil, err
	}
	if req.CustomerName == "" {
		return nil, ErrEmptyCustomerName
	}
	if len(req.MenuItemIDs) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetBill(ctx, database.GetBillParams{ID: req.BillID, OrganizationID: req.OrganizationID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusPending && bill.Status != enum.BillStatusActive {
		return nil, ErrBillNotOpen
	}

	menu, err := store.ListActiveMenuItemsByOrganization(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	resolved := resolveOrderItems(menu, req.MenuItemIDs)
	if len(resolved) == 0 {
		return nil, ErrMenuItemsNotFound
	}

	if err := appendItems(ctx, store, bill.ID, req.CustomerName, resolved, enum.OrderItemStatusActive); err != nil {
		return nil, err
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// Confirm flips a pending bill to active and every pending item with it.
// The table is re-checked: another bill may have gone active for it since
// this one was opened without one.
func (s *BillService) Confirm(ctx context.Context, billID, organizationID uuid.UUID) (*BillDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetBill(ctx, database.GetBillParams{ID: billID, OrganizationID: organizationID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusPending {
		return nil, ErrBillNotPending
	}

	if bill.TableID.Valid {
		_, err := store.FindActiveBillForTable(ctx, database.FindActiveBillForTableParams{
			OrganizationID: organizationID,
			TableID:        bill.TableID.Bytes,
			ExcludeBillID:  bill.ID,
		})
		if err == nil {
			return nil, ErrTableOccupied
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find active bill: %w", err)
		}
	}

	if _, err := store.UpdateAllOrderItemsStatus(ctx, database.UpdateAllOrderItemsStatusParams{
		BillID:     bill.ID,
		FromStatus: enum.OrderItemStatusPending,
		Status:     enum.OrderItemStatusActive,
	}); err != nil {
		return nil, fmt.Errorf("confirm order items: %w", err)
	}
	updated, err := store.UpdateBillStatus(ctx, database.UpdateBillStatusParams{
		ID:         bill.ID,
		Status:     enum.BillStatusActive,
		FromStatus: enum.BillStatusPending,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotPending
		}
		return nil, fmt.Errorf("confirm bill: %w", err)
	}

	detail, err := billDetail(ctx, store, updated)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// Decline rejects a pending bill: every pending item is declined, then the
// bill itself, stamping closed_at. Requires the admin or cook role.
func (s *BillService) Decline(ctx context.Context, billID, organizationID uuid.UUID, role string) (*BillDetail, error) {
	if err := authorize(role, OpDeclineBill); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetBill(ctx, database.GetBillParams{ID: billID, OrganizationID: organizationID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusPending {
		return nil, ErrBillNotPending
	}

	if _, err := store.UpdateAllOrderItemsStatus(ctx, database.UpdateAllOrderItemsStatusParams{
		BillID:     bill.ID,
		FromStatus: enum.OrderItemStatusPending,
		Status:     enum.OrderItemStatusDeclined,
	}); err != nil {
		return nil, fmt.Errorf("decline order items: %w", err)
	}
	updated, err := store.DeclineBill(ctx, bill.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotPending
		}
		return nil, fmt.Errorf("decline bill: %w", err)
	}

	detail, err := billDetail(ctx, store, updated)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// Close settles an active bill: verifies no item is still pending, flips
// every active item to closed, and stamps the bill with closed_at plus the
// restaurant's service fee as it stands right now.
func (s *BillService) Close(ctx context.Context, billID, organizationID uuid.UUID) (*BillDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetBill(ctx, database.GetBillParams{ID: billID, OrganizationID: organizationID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusActive {
		return nil, ErrBillNotActive
	}
	pending, err := store.CountOrderItemsByStatus(ctx, database.CountOrderItemsByStatusParams{
		BillID: bill.ID,
		Status: enum.OrderItemStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("count pending items: %w", err)
	}
	if pending > 0 {
		return nil, ErrHasPendingItems
	}

	restaurant, err := store.GetRestaurant(ctx, bill.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}

	if _, err := store.UpdateAllOrderItemsStatus(ctx, database.UpdateAllOrderItemsStatusParams{
		BillID:     bill.ID,
		FromStatus: enum.OrderItemStatusActive,
		Status:     enum.OrderItemStatusClosed,
	}); err != nil {
		return nil, fmt.Errorf("close order items: %w", err)
	}
	updated, err := store.CloseBill(ctx, database.CloseBillParams{
		ID:                          bill.ID,
		PayedServiceFeeInPercentage: restaurant.ServiceFeeInPercentage,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotActive
		}
		return nil, fmt.Errorf("close bill: %w", err)
	}

	detail, err := billDetail(ctx, store, updated)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// ConfirmItems transitions the requested pending items to active.
func (s *BillService) ConfirmItems(ctx context.Context, req TransitionItemsRequest) (*BillDetail, error) {
	return s.transitionItems(ctx, req, []string{enum.OrderItemStatusPending}, enum.OrderItemStatusActive)
}

// DeclineItems transitions the requested pending items to declined.
func (s *BillService) DeclineItems(ctx context.Context, req TransitionItemsRequest) (*BillDetail, error) {
	return s.transitionItems(ctx, req, []string{enum.OrderItemStatusPending}, enum.OrderItemStatusDeclined)
}

// RemoveItems transitions the requested open items to removed.
func (s *BillService) RemoveItems(ctx context.Context, req TransitionItemsRequest) (*BillDetail, error) {
	return s.transitionItems(ctx, req, []string{enum.OrderItemStatusPending, enum.OrderItemStatusActive}, enum.OrderItemStatusRemoved)
}

// transitionItems applies a bulk status transition in one conditional
// statement. Requested items outside the source statuses are silently
// skipped; callers diff the returned bill to see what changed.
func (s *BillService) transitionItems(ctx context.Context, req TransitionItemsRequest, from []string, to string) (*BillDetail, error) {
	if len(req.OrderItemIDs) == 0 {
		return nil, ErrEmptyItems
	}
	itemIDs := make([]uuid.UUID, 0, len(req.OrderItemIDs))
	for _, raw := range req.OrderItemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrInvalidItemID
		}
		itemIDs = append(itemIDs, id)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	bill, err := store.GetBill(ctx, database.GetBillParams{ID: req.BillID, OrganizationID: req.OrganizationID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill.Status != enum.BillStatusActive {
		return nil, ErrBillNotActive
	}

	if _, err := store.UpdateOrderItemsStatus(ctx, database.UpdateOrderItemsStatusParams{
		BillID:         bill.ID,
		OrganizationID: req.OrganizationID,
		ItemIDs:        itemIDs,
		FromStatuses:   from,
		Status:         to,
	}); err != nil {
		return nil, fmt.Errorf("update order items: %w", err)
	}

	detail, err := billDetail(ctx, store, bill)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return detail, nil
}

// GetActiveForTable returns the open bill currently occupying a table.
func (s *BillService) GetActiveForTable(ctx context.Context, restaurantID, tableID uuid.UUID) (*BillDetail, error) {
	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if _, err := s.store.GetTable(ctx, database.GetTableParams{ID: tableID, RestaurantID: restaurant.ID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	bill, err := s.store.FindOpenBillForTable(ctx, database.FindOpenBillForTableParams{
		RestaurantID: restaurant.ID,
		TableID:      tableID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, fmt.Errorf("find open bill: %w", err)
	}
	return billDetail(ctx, s.store, bill)
}

// ListByRange returns an organization's bills within a date window,
// filtered by status.
func (s *BillService) ListByRange(ctx context.Context, req ListByRangeRequest) ([]BillDetail, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, ErrInvalidDateRange
	}
	if len(req.StatusList) == 0 {
		return nil, ErrEmptyStatusList
	}
	for _, status := range req.StatusList {
		if !enum.IsBillStatus(status) {
			return nil, ErrInvalidStatus
		}
	}

	bills, err := s.store.ListBillsByRange(ctx, database.ListBillsByRangeParams{
		OrganizationID: req.OrganizationID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		StatusList:     req.StatusList,
	})
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	details := make([]BillDetail, 0, len(bills))
	for _, bill := range bills {
		detail, err := billDetail(ctx, s.store, bill)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

// --- Helpers ---

// ensureTableFree is the advisory occupancy pre-check. The partial unique
// index on bills is the real enforcement under concurrency; isOpenTableConflict
// catches the losing writer.
func ensureTableFree(ctx context.Context, store BillStore, restaurantID, tableID uuid.UUID) error {
	_, err := store.FindOpenBillForTable(ctx, database.FindOpenBillForTableParams{
		RestaurantID: restaurantID,
		TableID:      tableID,
	})
	if err == nil {
		return ErrTableOccupied
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("find open bill: %w", err)
	}
	return nil
}

// isOpenTableConflict checks if the error is a unique constraint violation
// on the open-bill-per-table index (pgconn error code 23505).
func isOpenTableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "bills_open_table_key"
	}
	return false
}

// appendItems attaches resolved items to the customer's existing order on
// the bill, or to a new order when the name is unseen.
func appendItems(ctx context.Context, store BillStore, billID uuid.UUID, customerName string, items []resolvedItem, status string) error {
	order, err := store.GetOrderByCustomer(ctx, database.GetOrderByCustomerParams{
		BillID:       billID,
		CustomerName: customerName,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		order, err = store.CreateOrder(ctx, database.CreateOrderParams{
			BillID:       billID,
			CustomerName: customerName,
		})
	}
	if err != nil {
		return fmt.Errorf("get or create order: %w", err)
	}
	return createOrderItems(ctx, store, order.ID, items, status)
}

func createOrderItems(ctx context.Context, store BillStore, orderID uuid.UUID, items []resolvedItem, status string) error {
	for _, item := range items {
		if _, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    orderID,
			MenuItemID: item.menuItemID,
			PayedValue: decimalToNumeric(item.payedValue),
			Status:     status,
		}); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

// billDetail re-reads the bill with its orders and visible items.
func billDetail(ctx context.Context, store BillStore, bill database.Bill) (*BillDetail, error) {
	orders, err := store.ListOrdersByBill(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	details := make([]OrderDetail, 0, len(orders))
	for _, order := range orders {
		items, err := store.ListVisibleOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		details = append(details, OrderDetail{Order: order, Items: items})
	}
	return &BillDetail{Bill: bill, Orders: details}, nil
}
