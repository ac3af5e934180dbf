package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-app/api/internal/middleware"
	"github.com/comanda-app/api/internal/service"
)

// BillServicer defines the service methods needed by bill handlers.
// Satisfied by *service.BillService; narrow interface for testability.
type BillServicer interface {
	OpenPending(ctx context.Context, req service.OpenPendingRequest) (*service.BillDetail, error)
	OpenConfirmed(ctx context.Context, req service.OpenConfirmedRequest) (*service.BillDetail, error)
	OpenInstant(ctx context.Context, req service.OpenInstantRequest) (*service.BillDetail, error)
	AddPendingItems(ctx context.Context, req service.AddPendingItemsRequest) (*service.BillDetail, error)
	AddConfirmedItems(ctx context.Context, req service.AddConfirmedItemsRequest) (*service.BillDetail, error)
	Confirm(ctx context.Context, billID, organizationID uuid.UUID) (*service.BillDetail, error)
	Decline(ctx context.Context, billID, organizationID uuid.UUID, role string) (*service.BillDetail, error)
	Close(ctx context.Context, billID, organizationID uuid.UUID) (*service.BillDetail, error)
	ConfirmItems(ctx context.Context, req service.TransitionItemsRequest) (*service.BillDetail, error)
	DeclineItems(ctx context.Context, req service.TransitionItemsRequest) (*service.BillDetail, error)
	RemoveItems(ctx context.Context, req service.TransitionItemsRequest) (*service.BillDetail, error)
	GetActiveForTable(ctx context.Context, restaurantID, tableID uuid.UUID) (*service.BillDetail, error)
	ListByRange(ctx context.Context, req service.ListByRangeRequest) ([]service.BillDetail, error)
}

// BillHandler handles bill lifecycle endpoints.
type BillHandler struct {
	service BillServicer
}

// NewBillHandler creates a new BillHandler.
func NewBillHandler(service BillServicer) *BillHandler {
	return &BillHandler{service: service}
}

// RegisterPublicRoutes registers the guest-facing endpoints. Guests are
// anonymous; they address the restaurant and table by ID (from a QR code).
func (h *BillHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/restaurants/{restaurantID}/tables/{tableID}/bills", h.OpenPending)
	r.Get("/restaurants/{restaurantID}/tables/{tableID}/bills/active", h.GetActiveForTable)
	r.Post("/restaurants/{restaurantID}/bills/{billID}/items", h.AddPendingItems)
}

// RegisterRoutes registers the staff endpoints. These run behind the
// Authenticate middleware; the restaurant is resolved from the JWT claims.
func (h *BillHandler) RegisterRoutes(r chi.Router) {
	r.Post("/bills", h.OpenConfirmed)
	r.Post("/bills/instant", h.OpenInstant)
	r.Get("/bills", h.ListByRange)
	r.Post("/bills/{billID}/items", h.AddConfirmedItems)
	r.Patch("/bills/{billID}/confirm", h.Confirm)
	r.Patch("/bills/{billID}/decline", h.Decline)
	r.Patch("/bills/{billID}/close", h.Close)
	r.Patch("/bills/{billID}/items/confirm", h.ConfirmItems)
	r.Patch("/bills/{billID}/items/decline", h.DeclineItems)
	r.Patch("/bills/{billID}/items/remove", h.RemoveItems)
}

// --- Request / Response types ---

type orderRequest struct {
	CustomerName string   `json:"customer_name"`
	MenuItemIDs  []string `json:"menu_item_ids"`
}

type openPendingRequest struct {
	Orders []orderRequest `json:"orders"`
}

type openConfirmedRequest struct {
	TableID string `json:"table_id"`
}

type openInstantRequest struct {
	CustomerName string   `json:"customer_name"`
	MenuItemIDs  []string `json:"menu_item_ids"`
}

type addItemsRequest struct {
	CustomerName string   `json:"customer_name"`
	MenuItemIDs  []string `json:"menu_item_ids"`
}

type transitionItemsRequest struct {
	OrderItemIDs []string `json:"order_item_ids"`
}

type orderItemResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	PayedValue string    `json:"payed_value"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type orderResponse struct {
	ID           uuid.UUID           `json:"id"`
	CustomerName string              `json:"customer_name"`
	Items        []orderItemResponse `json:"items"`
	CreatedAt    time.Time           `json:"created_at"`
}

type billResponse struct {
	ID                          uuid.UUID       `json:"id"`
	RestaurantID                uuid.UUID       `json:"restaurant_id"`
	TableID                     *uuid.UUID      `json:"table_id"`
	Status                      string          `json:"status"`
	PayedServiceFeeInPercentage *string         `json:"payed_service_fee_in_percentage"`
	Orders                      []orderResponse `json:"orders"`
	CreatedAt                   time.Time       `json:"created_at"`
	ClosedAt                    *time.Time      `json:"closed_at"`
}

// --- Guest handlers ---

// OpenPending opens a pending bill on a table with one or more guest orders.
func (h *BillHandler) OpenPending(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant id"})
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table id"})
		return
	}

	var req openPendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	orders := make([]service.OrderRequest, 0, len(req.Orders))
	for _, o := range req.Orders {
		orders = append(orders, service.OrderRequest{
			CustomerName: o.CustomerName,
			MenuItemIDs:  o.MenuItemIDs,
		})
	}

	detail, err := h.service.OpenPending(r.Context(), service.OpenPendingRequest{
		RestaurantID: restaurantID,
		TableID:      tableID,
		Orders:       orders,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBillResponse(detail))
}

// GetActiveForTable returns the open (pending or active) bill on a table.
func (h *BillHandler) GetActiveForTable(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant id"})
		return
	}
	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table id"})
		return
	}

	detail, err := h.service.GetActiveForTable(r.Context(), restaurantID, tableID)
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBillResponse(detail))
}

// AddPendingItems appends pending items to an open bill on behalf of a guest.
func (h *BillHandler) AddPendingItems(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant id"})
		return
	}
	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill id"})
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.service.AddPendingItems(r.Context(), service.AddPendingItemsRequest{
		RestaurantID: restaurantID,
		BillID:       billID,
		CustomerName: req.CustomerName,
		MenuItemIDs:  req.MenuItemIDs,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBillResponse(detail))
}

// --- Staff handlers ---

// OpenConfirmed opens an already-active bill on a table, skipping the
// pending stage. Used when a waiter seats guests directly.
func (h *BillHandler) OpenConfirmed(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openConfirmedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
		return
	}

	detail, err := h.service.OpenConfirmed(r.Context(), service.OpenConfirmedRequest{
		OrganizationID: claims.OrganizationID,
		TableID:        tableID,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBillResponse(detail))
}

// OpenInstant opens a bill that is settled on the spot: born closed, with
// its items active. Used for counter sales without a table.
func (h *BillHandler) OpenInstant(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req openInstantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.service.OpenInstant(r.Context(), service.OpenInstantRequest{
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
		CustomerName:   req.CustomerName,
		MenuItemIDs:    req.MenuItemIDs,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBillResponse(detail))
}

// AddConfirmedItems appends already-active items to an open bill.
func (h *BillHandler) AddConfirmedItems(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill id"})
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.service.AddConfirmedItems(r.Context(), service.AddConfirmedItemsRequest{
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
		BillID:         billID,
		CustomerName:   req.CustomerName,
		MenuItemIDs:    req.MenuItemIDs,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBillResponse(detail))
}

// Confirm activates a pending bill and its pending items.
func (h *BillHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, func(ctx context.Context, billID, orgID uuid.UUID, _ string) (*service.BillDetail, error) {
		return h.service.Confirm(ctx, billID, orgID)
	})
}

// Decline rejects a pending bill, freeing its table.
func (h *BillHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, func(ctx context.Context, billID, orgID uuid.UUID, role string) (*service.BillDetail, error) {
		return h.service.Decline(ctx, billID, orgID, role)
	})
}

// Close settles an active bill, snapshotting the restaurant service fee.
func (h *BillHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, func(ctx context.Context, billID, orgID uuid.UUID, _ string) (*service.BillDetail, error) {
		return h.service.Close(ctx, billID, orgID)
	})
}

func (h *BillHandler) transitionBill(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, billID, orgID uuid.UUID, role string) (*service.BillDetail, error)) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill id"})
		return
	}

	detail, err := fn(r.Context(), billID, claims.OrganizationID, claims.Role)
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBillResponse(detail))
}

// ConfirmItems activates the given pending items on an active bill.
func (h *BillHandler) ConfirmItems(w http.ResponseWriter, r *http.Request) {
	h.transitionItems(w, r, h.service.ConfirmItems)
}

// DeclineItems rejects the given pending items on an active bill.
func (h *BillHandler) DeclineItems(w http.ResponseWriter, r *http.Request) {
	h.transitionItems(w, r, h.service.DeclineItems)
}

// RemoveItems removes the given open items from an active bill.
func (h *BillHandler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	h.transitionItems(w, r, h.service.RemoveItems)
}

func (h *BillHandler) transitionItems(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, req service.TransitionItemsRequest) (*service.BillDetail, error)) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill id"})
		return
	}

	var req transitionItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := fn(r.Context(), service.TransitionItemsRequest{
		OrganizationID: claims.OrganizationID,
		BillID:         billID,
		OrderItemIDs:   req.OrderItemIDs,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBillResponse(detail))
}

// ListByRange lists the organization's bills created within a date range,
// filtered by status. All three filters are required.
func (h *BillHandler) ListByRange(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	q := r.URL.Query()

	startDate, err := time.Parse("2006-01-02", q.Get("start_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
		return
	}
	endDate, err := time.Parse("2006-01-02", q.Get("end_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
		return
	}

	var statusList []string
	if s := q.Get("status_list"); s != "" {
		statusList = strings.Split(s, ",")
	}

	// end_date is inclusive: cover the whole final day.
	details, err := h.service.ListByRange(r.Context(), service.ListByRangeRequest{
		OrganizationID: claims.OrganizationID,
		StartDate:      startDate,
		EndDate:        endDate.Add(24*time.Hour - time.Second),
		StatusList:     statusList,
	})
	if err != nil {
		respondBillError(w, err)
		return
	}

	responses := make([]billResponse, 0, len(details))
	for i := range details {
		responses = append(responses, toBillResponse(&details[i]))
	}
	writeJSON(w, http.StatusOK, responses)
}

// --- Helpers ---

func respondBillError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrEmptyCustomerName),
		errors.Is(err, service.ErrEmptyOrders),
		errors.Is(err, service.ErrInvalidItemID),
		errors.Is(err, service.ErrEmptyStatusList),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidDateRange):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrRestaurantNotFound),
		errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrBillNotFound),
		errors.Is(err, service.ErrMenuItemsNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTableOccupied),
		errors.Is(err, service.ErrBillNotPending),
		errors.Is(err, service.ErrBillNotActive),
		errors.Is(err, service.ErrBillNotOpen),
		errors.Is(err, service.ErrHasPendingItems):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: bill operation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toBillResponse(detail *service.BillDetail) billResponse {
	resp := billResponse{
		ID:           detail.Bill.ID,
		RestaurantID: detail.Bill.RestaurantID,
		Status:       detail.Bill.Status,
		Orders:       make([]orderResponse, 0, len(detail.Orders)),
		CreatedAt:    detail.Bill.CreatedAt,
	}
	if detail.Bill.TableID.Valid {
		id := uuid.UUID(detail.Bill.TableID.Bytes)
		resp.TableID = &id
	}
	if detail.Bill.PayedServiceFeeInPercentage.Valid {
		fee := numericToString(detail.Bill.PayedServiceFeeInPercentage)
		resp.PayedServiceFeeInPercentage = &fee
	}
	if detail.Bill.ClosedAt.Valid {
		closedAt := detail.Bill.ClosedAt.Time
		resp.ClosedAt = &closedAt
	}
	for _, o := range detail.Orders {
		items := make([]orderItemResponse, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, orderItemResponse{
				ID:         item.ID,
				MenuItemID: item.MenuItemID,
				PayedValue: numericToString(item.PayedValue),
				Status:     item.Status,
				CreatedAt:  item.CreatedAt,
			})
		}
		resp.Orders = append(resp.Orders, orderResponse{
			ID:           o.Order.ID,
			CustomerName: o.Order.CustomerName,
			Items:        items,
			CreatedAt:    o.Order.CreatedAt,
		})
	}
	return resp
}

// numericToString renders a pgtype.Numeric with two decimal places.
func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return d.StringFixed(2)
}
