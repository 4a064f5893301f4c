package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"medistore/m/domain"
	"medistore/m/internal/cart"
	"medistore/m/internal/migrations"
	"medistore/m/internal/order"
)

func newTestAPI(t *testing.T) (http.Handler, *sqlx.DB) {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, migrations.Run(db))
	t.Cleanup(func() { db.Close() })

	h := New(db, "test-secret", cart.NewMemoryStore(), zerolog.Nop())
	return h.Router(), db
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, router http.Handler, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec.Code, resp
}

// signup registers and logs in a user, returning the bearer token and id.
func signup(t *testing.T, router http.Handler, name, role string) (string, int64) {
	t.Helper()
	code, resp := call(t, router, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret1",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email":    name + "@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)

	var data struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token, data.User.ID
}

func seedMedicine(t *testing.T, db *sqlx.DB, name, category, price string, stock, sellerID int64) int64 {
	t.Helper()
	var categoryID int64
	err := db.QueryRowx(
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO UPDATE SET name = excluded.name RETURNING id`,
		category).Scan(&categoryID)
	require.NoError(t, err)

	var id int64
	err = db.QueryRowx(
		`INSERT INTO medicines (name, description, manufacturer, price, stock, category_id, seller_id)
         VALUES (?, '', '', ?, ?, ?, ?) RETURNING id`,
		name, price, stock, categoryID, sellerID).Scan(&id)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, db *sqlx.DB, id int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, db.Get(&stock, `SELECT stock FROM medicines WHERE id = ?`, id))
	return stock
}

func TestRegisterLoginFlow(t *testing.T) {
	router, _ := newTestAPI(t)

	token, _ := signup(t, router, "alice", domain.RoleCustomer)

	// duplicate email
	code, resp := call(t, router, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name":     "alice again",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already in use", resp.Message)

	// wrong password
	code, resp = call(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email":    "alice@example.com",
		"password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", resp.Message)

	code, resp = call(t, router, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me domain.User
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "alice", me.Name)
	assert.Equal(t, domain.RoleCustomer, me.Role)
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestAPI(t)

	code, resp := call(t, router, http.MethodGet, "/api/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", resp.Message)

	code, resp = call(t, router, http.MethodGet, "/api/user/profile", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid token", resp.Message)
}

func TestBannedUserRejected(t *testing.T) {
	router, db := newTestAPI(t)

	token, id := signup(t, router, "bob", domain.RoleCustomer)
	_, err := db.Exec(`UPDATE users SET status = ? WHERE id = ?`, domain.StatusBanned, id)
	require.NoError(t, err)

	// an already issued token stops working
	code, resp := call(t, router, http.MethodGet, "/api/user/profile", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account is banned", resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email":    "bob@example.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account is banned", resp.Message)
}

func TestUpdateProfile(t *testing.T) {
	router, _ := newTestAPI(t)

	token, _ := signup(t, router, "carol", domain.RoleCustomer)

	code, resp := call(t, router, http.MethodPut, "/api/user/profile", token, map[string]interface{}{
		"newPassword": "longenough",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Current password is required to change password", resp.Message)

	code, resp = call(t, router, http.MethodPut, "/api/user/profile", token, map[string]interface{}{
		"currentPassword": "wrong",
		"newPassword":     "longenough",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Current password is incorrect", resp.Message)

	code, resp = call(t, router, http.MethodPut, "/api/user/profile", token, map[string]interface{}{
		"name":            "Carol D",
		"currentPassword": "secret1",
		"newPassword":     "secret2",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, _ = call(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email":    "carol@example.com",
		"password": "secret2",
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestMedicineListing(t *testing.T) {
	router, db := newTestAPI(t)

	_, sellerID := signup(t, router, "seller", domain.RoleSeller)
	seedMedicine(t, db, "Napa", "Painkiller", "10.00", 5, sellerID)
	seedMedicine(t, db, "Seclo", "Gastric", "7.50", 8, sellerID)
	seedMedicine(t, db, "Monas", "Respiratory", "18.00", 0, sellerID) // out of stock

	code, resp := call(t, router, http.MethodGet, "/api/medicines/", "", nil)
	require.Equal(t, http.StatusOK, code)

	var listing struct {
		Medicines []json.RawMessage `json:"medicines"`
		Meta      listMeta          `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Len(t, listing.Medicines, 2)
	assert.EqualValues(t, 2, listing.Meta.Total)
	assert.EqualValues(t, 1, listing.Meta.TotalPage)

	// search by name
	code, resp = call(t, router, http.MethodGet, "/api/medicines/?searchTerm=Napa", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Len(t, listing.Medicines, 1)

	// price range
	code, resp = call(t, router, http.MethodGet, "/api/medicines/?minPrice=8", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Len(t, listing.Medicines, 1)

	// category filter
	code, resp = call(t, router, http.MethodGet, "/api/medicines/?category=Gastric", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Len(t, listing.Medicines, 1)
}

func TestCartFlow(t *testing.T) {
	router, db := newTestAPI(t)

	_, sellerID := signup(t, router, "seller", domain.RoleSeller)
	token, _ := signup(t, router, "dave", domain.RoleCustomer)
	napa := seedMedicine(t, db, "Napa", "Painkiller", "10.00", 3, sellerID)

	code, resp := call(t, router, http.MethodPost, fmt.Sprintf("/api/cart/%d", napa), token,
		map[string]interface{}{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Quantity must be greater than 0", resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/cart/9999", token,
		map[string]interface{}{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Medicine not found", resp.Message)

	code, resp = call(t, router, http.MethodPost, fmt.Sprintf("/api/cart/%d", napa), token,
		map[string]interface{}{"quantity": 5})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Insufficient stock. Available: 3, Requested: 5", resp.Message)

	code, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/cart/%d", napa), token,
		map[string]interface{}{"quantity": 2})
	require.Equal(t, http.StatusOK, code)

	// cumulative quantity is bounded by stock too
	code, resp = call(t, router, http.MethodPost, fmt.Sprintf("/api/cart/%d", napa), token,
		map[string]interface{}{"quantity": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Total quantity exceeds stock. Available: 3, Total requested: 4", resp.Message)

	code, resp = call(t, router, http.MethodGet, "/api/cart/", token, nil)
	require.Equal(t, http.StatusOK, code)
	var lines []struct {
		ID           int64 `json:"id"`
		CartQuantity int64 `json:"cartQuantity"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, napa, lines[0].ID)
	assert.EqualValues(t, 2, lines[0].CartQuantity)

	code, _ = call(t, router, http.MethodDelete, fmt.Sprintf("/api/cart/%d", napa), token, nil)
	require.Equal(t, http.StatusOK, code)
	code, resp = call(t, router, http.MethodGet, "/api/cart/", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &lines))
	assert.Empty(t, lines)
}

func TestOrderOverHTTP(t *testing.T) {
	router, db := newTestAPI(t)

	_, sellerID := signup(t, router, "seller", domain.RoleSeller)
	token, _ := signup(t, router, "erin", domain.RoleCustomer)
	napa := seedMedicine(t, db, "Napa", "Painkiller", "10.00", 5, sellerID)

	code, _ := call(t, router, http.MethodPost, fmt.Sprintf("/api/cart/%d", napa), token,
		map[string]interface{}{"quantity": 2})
	require.Equal(t, http.StatusOK, code)

	code, resp := call(t, router, http.MethodPost, "/api/orders/", token, createOrderRequest{
		ShippingAddress: "12 Lake Road",
		Items:           []order.Item{{MedicineID: napa, Quantity: 2}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	assert.Equal(t, "Order created successfully", resp.Message)

	var placed domain.Order
	require.NoError(t, json.Unmarshal(resp.Data, &placed))
	assert.Equal(t, domain.OrderStatusPlaced, placed.Status)
	require.Len(t, placed.Items, 1)
	assert.EqualValues(t, 3, stockOf(t, db, napa))

	// placing the order cleared the cart
	code, resp = call(t, router, http.MethodGet, "/api/cart/", token, nil)
	require.Equal(t, http.StatusOK, code)
	var lines []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &lines))
	assert.Empty(t, lines)

	code, resp = call(t, router, http.MethodPatch, fmt.Sprintf("/api/orders/%d/cancel", placed.ID), token, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.EqualValues(t, 5, stockOf(t, db, napa))
}

func TestReviewRequiresDelivery(t *testing.T) {
	router, db := newTestAPI(t)

	_, sellerID := signup(t, router, "seller", domain.RoleSeller)
	token, _ := signup(t, router, "frank", domain.RoleCustomer)
	napa := seedMedicine(t, db, "Napa", "Painkiller", "10.00", 5, sellerID)

	code, resp := call(t, router, http.MethodPost, fmt.Sprintf("/api/reviews/%d", napa), token,
		createReviewRequest{Rating: 4, Comment: "works"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You can only review medicines you have ordered and received", resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/orders/", token, createOrderRequest{
		ShippingAddress: "12 Lake Road",
		Items:           []order.Item{{MedicineID: napa, Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var placed domain.Order
	require.NoError(t, json.Unmarshal(resp.Data, &placed))

	_, err := db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, domain.OrderStatusDelivered, placed.ID)
	require.NoError(t, err)

	code, resp = call(t, router, http.MethodPost, fmt.Sprintf("/api/reviews/%d", napa), token,
		createReviewRequest{Rating: 4, Comment: "works"})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	// resubmitting updates the existing review instead of duplicating it
	code, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/reviews/%d", napa), token,
		createReviewRequest{Rating: 5})
	require.Equal(t, http.StatusCreated, code)

	code, resp = call(t, router, http.MethodGet, fmt.Sprintf("/api/reviews/%d", napa), "", nil)
	require.Equal(t, http.StatusOK, code)
	var listing reviewListResponse
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Equal(t, 1, listing.TotalReviews)
	assert.Equal(t, 5.0, listing.AverageRating)
}

func TestAdminEndpoints(t *testing.T) {
	router, db := newTestAPI(t)

	hashed, err := bcrypt.GenerateFromPassword([]byte("adminpw"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO users (name, email, password, role) VALUES ('root', 'root@example.com', ?, ?)`,
		hashed, domain.RoleAdmin)
	require.NoError(t, err)

	code, resp := call(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email":    "root@example.com",
		"password": "adminpw",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))

	customerToken, customerID := signup(t, router, "grace", domain.RoleCustomer)

	// customers cannot reach admin routes
	code, resp = call(t, router, http.MethodGet, "/api/admin/users", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", resp.Message)

	code, resp = call(t, router, http.MethodGet, "/api/admin/users", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var users []domain.User
	require.NoError(t, json.Unmarshal(resp.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "grace", users[0].Name)

	code, resp = call(t, router, http.MethodPatch, fmt.Sprintf("/api/admin/users/%d/status", customerID),
		login.Token, map[string]interface{}{"status": domain.StatusBanned})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = call(t, router, http.MethodGet, "/api/user/profile", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account is banned", resp.Message)
}

func TestSellerCatalogManagement(t *testing.T) {
	router, db := newTestAPI(t)

	sellerToken, _ := signup(t, router, "seller", domain.RoleSeller)
	otherToken, _ := signup(t, router, "rival", domain.RoleSeller)
	customerToken, _ := signup(t, router, "henry", domain.RoleCustomer)

	var categoryID int64
	require.NoError(t, db.QueryRowx(
		`INSERT INTO categories (name) VALUES ('Painkiller') RETURNING id`).Scan(&categoryID))

	// customers cannot create medicines
	code, resp := call(t, router, http.MethodPost, "/api/seller/medicines", customerToken, medicineRequest{
		Name: "Napa", Price: decimal.RequireFromString("10.00"), Stock: 5, CategoryID: categoryID,
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/seller/medicines", sellerToken, medicineRequest{
		Name: "Napa", Price: decimal.RequireFromString("10.00"), Stock: 5, CategoryID: 999,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Category not found", resp.Message)

	code, resp = call(t, router, http.MethodPost, "/api/seller/medicines", sellerToken, medicineRequest{
		Name: "Napa", Price: decimal.RequireFromString("10.00"), Stock: 5, CategoryID: categoryID,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var created domain.Medicine
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	// only the owner can update or delete
	code, resp = call(t, router, http.MethodPut, fmt.Sprintf("/api/seller/medicines/%d", created.ID),
		otherToken, medicineRequest{Name: "Napa", Price: decimal.RequireFromString("1.00"), Stock: 1, CategoryID: categoryID})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You can only manage your own medicines", resp.Message)

	code, resp = call(t, router, http.MethodDelete, fmt.Sprintf("/api/seller/medicines/%d", created.ID),
		sellerToken, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = call(t, router, http.MethodGet, fmt.Sprintf("/api/medicines/%d", created.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Medicine not found", resp.Message)
}
