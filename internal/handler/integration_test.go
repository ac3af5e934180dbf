//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/comanda-app/api/internal/config"
	"github.com/comanda-app/api/internal/database"
	"github.com/comanda-app/api/internal/router"
)

// TestIntegrationFlow exercises the full bill lifecycle against a real
// PostgreSQL database: guest opens a pending bill, a second bill on the
// same table is rejected, staff confirms, pending items block closing,
// and closing snapshots the restaurant service fee.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8082",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	r := router.New(cfg, queries, pool)

	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Seed organization, restaurant, tables, menu, admin user ---
	orgID := seedOrganization(t, ctx, pool)
	restaurantID := seedRestaurant(t, ctx, pool, orgID, "10.00")
	table1 := seedTable(t, ctx, pool, restaurantID, "T1")
	table2 := seedTable(t, ctx, pool, restaurantID, "T2")
	pizzaID := seedMenuItem(t, ctx, pool, orgID, "Margherita Pizza", "10.00", "0.00")
	lemonadeID := seedMenuItem(t, ctx, pool, orgID, "House Lemonade", "7.50", "2.00")
	seedAdmin(t, ctx, pool, orgID)

	// --- 2. Guest opens a pending bill on T1 ---
	billResp := httpPostJSON(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills", restaurantID, table1), map[string]interface{}{
		"orders": []map[string]interface{}{
			{"customer_name": "Alice", "menu_item_ids": []string{pizzaID.String(), lemonadeID.String()}},
		},
	}, "")
	billID := uuid.MustParse(billResp["id"].(string))
	if billResp["status"] != "pending" {
		t.Fatalf("bill status: got %v, want pending", billResp["status"])
	}

	// payed_value is frozen at creation: price minus discount.
	items := billItems(t, billResp)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	wantValues := map[string]bool{"10.00": false, "5.50": false}
	for _, item := range items {
		v := item["payed_value"].(string)
		if _, ok := wantValues[v]; !ok {
			t.Fatalf("unexpected payed_value %q", v)
		}
		wantValues[v] = true
		if item["status"] != "pending" {
			t.Fatalf("item status: got %v, want pending", item["status"])
		}
	}
	for v, seen := range wantValues {
		if !seen {
			t.Fatalf("missing item with payed_value %q", v)
		}
	}

	// --- 3. A second bill on the same table is rejected ---
	status := httpPostStatus(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills", restaurantID, table1), map[string]interface{}{
		"orders": []map[string]interface{}{
			{"customer_name": "Mallory", "menu_item_ids": []string{pizzaID.String()}},
		},
	}, "")
	if status != http.StatusConflict {
		t.Fatalf("second bill on occupied table: got %d, want %d", status, http.StatusConflict)
	}

	// A different table is still free.
	httpPostJSON(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills", restaurantID, table2), map[string]interface{}{
		"orders": []map[string]interface{}{
			{"customer_name": "Bob", "menu_item_ids": []string{pizzaID.String()}},
		},
	}, "")

	// --- 4. The pending bill is visible to other guests on the table ---
	activeResp := httpGetJSON(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills/active", restaurantID, table1), "")
	if activeResp["id"] != billID.String() {
		t.Fatalf("active bill: got %v, want %s", activeResp["id"], billID)
	}

	// --- 5. Staff logs in and confirms the bill ---
	token := login(t, server, "admin@test.com", "password123")

	confirmResp := httpPatchJSON(t, server, fmt.Sprintf("/bills/%s/confirm", billID), nil, token)
	if confirmResp["status"] != "active" {
		t.Fatalf("confirmed bill status: got %v, want active", confirmResp["status"])
	}
	for _, item := range billItems(t, confirmResp) {
		if item["status"] != "active" {
			t.Fatalf("item status after confirm: got %v, want active", item["status"])
		}
	}

	// --- 6. A guest orders another round ---
	httpPostJSON(t, server, fmt.Sprintf("/restaurants/%s/bills/%s/items", restaurantID, billID), map[string]interface{}{
		"customer_name": "Alice",
		"menu_item_ids": []string{lemonadeID.String()},
	}, "")

	// --- 7. Closing is blocked while items are still pending ---
	status = httpPatchStatus(t, server, fmt.Sprintf("/bills/%s/close", billID), nil, token)
	if status != http.StatusConflict {
		t.Fatalf("close with pending items: got %d, want %d", status, http.StatusConflict)
	}

	// --- 8. Staff confirms the pending round, then closes the bill ---
	detail := httpGetJSON(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills/active", restaurantID, table1), "")
	var pendingIDs []string
	for _, item := range billItems(t, detail) {
		if item["status"] == "pending" {
			pendingIDs = append(pendingIDs, item["id"].(string))
		}
	}
	if len(pendingIDs) != 1 {
		t.Fatalf("pending items before close: got %d, want 1", len(pendingIDs))
	}
	httpPatchJSON(t, server, fmt.Sprintf("/bills/%s/items/confirm", billID), map[string]interface{}{
		"order_item_ids": pendingIDs,
	}, token)

	closeResp := httpPatchJSON(t, server, fmt.Sprintf("/bills/%s/close", billID), nil, token)
	if closeResp["status"] != "closed" {
		t.Fatalf("closed bill status: got %v, want closed", closeResp["status"])
	}
	if closeResp["payed_service_fee_in_percentage"] != "10.00" {
		t.Fatalf("service fee snapshot: got %v, want 10.00", closeResp["payed_service_fee_in_percentage"])
	}
	if closeResp["closed_at"] == nil {
		t.Fatal("closed_at should be set")
	}
	for _, item := range billItems(t, closeResp) {
		if item["status"] != "closed" {
			t.Fatalf("item status after close: got %v, want closed", item["status"])
		}
	}

	// --- 9. Closing released the table ---
	httpPostJSON(t, server, fmt.Sprintf("/restaurants/%s/tables/%s/bills", restaurantID, table1), map[string]interface{}{
		"orders": []map[string]interface{}{
			{"customer_name": "Carol", "menu_item_ids": []string{pizzaID.String()}},
		},
	}, "")

	// --- 10. The closed bill shows up in the staff range listing ---
	today := time.Now().UTC().Format("2006-01-02")
	listReq, err := http.NewRequest("GET", server.URL+"/bills?start_date="+today+"&end_date="+today+"&status_list=closed", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	listReq.Header.Set("Authorization", "Bearer "+token)
	listRespRaw, err := http.DefaultClient.Do(listReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer listRespRaw.Body.Close()
	if listRespRaw.StatusCode != http.StatusOK {
		t.Fatalf("list bills: status %d", listRespRaw.StatusCode)
	}
	var listed []map[string]interface{}
	if err := json.NewDecoder(listRespRaw.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	found := false
	for _, b := range listed {
		if b["id"] == billID.String() {
			found = true
		}
		if b["status"] != "closed" {
			t.Fatalf("listed bill status: got %v, want closed", b["status"])
		}
	}
	if !found {
		t.Fatalf("closed bill %s not in range listing", billID)
	}

	// --- 11. Instant bill is born settled ---
	instantResp := httpPostJSON(t, server, "/bills/instant", map[string]interface{}{
		"customer_name": "Walk-in",
		"menu_item_ids": []string{pizzaID.String()},
	}, token)
	if instantResp["status"] != "closed" {
		t.Fatalf("instant bill status: got %v, want closed", instantResp["status"])
	}
	if instantResp["table_id"] != nil {
		t.Fatalf("instant bill table: got %v, want null", instantResp["table_id"])
	}
	for _, item := range billItems(t, instantResp) {
		if item["status"] != "active" {
			t.Fatalf("instant item status: got %v, want active", item["status"])
		}
	}

	t.Logf("Integration test passed: container=%s, restaurant=%s, bill=%s",
		pgContainer.GetContainerID(), restaurantID, billID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("comanda_test"),
		tcpostgres.WithUsername("comanda"),
		tcpostgres.WithPassword("comanda"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func seedOrganization(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`,
		"Test Organization",
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id
}

func seedRestaurant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, fee string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO restaurants (organization_id, name, service_fee_in_percentage)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		orgID, "Test Restaurant", fee,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}
	return id
}

func seedTable(t *testing.T, ctx context.Context, pool *pgxpool.Pool, restaurantID uuid.UUID, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO tables (restaurant_id, name) VALUES ($1, $2) RETURNING id`,
		restaurantID, name,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed table %s: %v", name, err)
	}
	return id
}

func seedMenuItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, name, price, discount string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO menu_items (organization_id, name, price_value, price_discount, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id`,
		orgID, name, price, discount,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed menu item %s: %v", name, err)
	}
	return id
}

func seedAdmin(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID) uuid.UUID {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (organization_id, full_name, email, hashed_password, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		orgID, "Test Admin", "admin@test.com", string(hashedPassword), "admin",
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed admin user: %v", err)
	}
	return id
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

// billItems flattens the orders of a bill response into a single item list.
func billItems(t *testing.T, bill map[string]interface{}) []map[string]interface{} {
	t.Helper()
	orders, ok := bill["orders"].([]interface{})
	if !ok {
		t.Fatalf("bill response missing orders: %+v", bill)
	}
	var items []map[string]interface{}
	for _, o := range orders {
		for _, item := range o.(map[string]interface{})["items"].([]interface{}) {
			items = append(items, item.(map[string]interface{}))
		}
	}
	return items
}

// --- HTTP helpers ---

func httpDoJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	resp, result := httpDoJSON(t, server, "POST", path, body, token)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}

func httpPostStatus(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) int {
	t.Helper()
	resp, _ := httpDoJSON(t, server, "POST", path, body, token)
	return resp.StatusCode
}

func httpPatchJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	resp, result := httpDoJSON(t, server, "PATCH", path, body, token)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("PATCH %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}

func httpPatchStatus(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) int {
	t.Helper()
	resp, _ := httpDoJSON(t, server, "PATCH", path, body, token)
	return resp.StatusCode
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	resp, result := httpDoJSON(t, server, "GET", path, nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, result)
	}
	return result
}
