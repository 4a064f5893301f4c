package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"medistore/m/domain"
)

// sortColumns whitelists the sortable medicine columns. Prices are stored as
// decimal text, so ordering and range filters go through CAST.
var sortColumns = map[string]string{
	"created_at": "m.created_at",
	"name":       "m.name",
	"price":      "CAST(m.price AS REAL)",
}

type listMeta struct {
	Page      int   `json:"page"`
	Limit     int   `json:"limit"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

type medicineListResponse struct {
	Medicines []medicineRow `json:"medicines"`
	Meta      listMeta      `json:"meta"`
}

type medicineRow struct {
	domain.Medicine
	CategoryName string `db:"category_name" json:"category_name"`
}

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	where := []string{"m.is_deleted = 0", "m.stock > 0"}
	args := []interface{}{}

	if term := strings.TrimSpace(q.Get("searchTerm")); term != "" {
		pattern := "%" + term + "%"
		where = append(where,
			"(m.name LIKE ? OR m.description LIKE ? OR m.manufacturer LIKE ? OR c.name LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if category := strings.TrimSpace(q.Get("category")); category != "" {
		where = append(where, "c.name = ?")
		args = append(args, category)
	}
	if raw := q.Get("minPrice"); raw != "" {
		min, err := decimal.NewFromString(raw)
		if err != nil {
			fail(w, http.StatusBadRequest, "minPrice must be a number")
			return
		}
		where = append(where, "CAST(m.price AS REAL) >= ?")
		args = append(args, min.InexactFloat64())
	}
	if raw := q.Get("maxPrice"); raw != "" {
		max, err := decimal.NewFromString(raw)
		if err != nil {
			fail(w, http.StatusBadRequest, "maxPrice must be a number")
			return
		}
		where = append(where, "CAST(m.price AS REAL) <= ?")
		args = append(args, max.InexactFloat64())
	}

	page := queryInt(q.Get("page"), 1)
	limit := queryInt(q.Get("limit"), 10)
	if limit > 100 {
		limit = 100
	}

	sortBy, ok := sortColumns[q.Get("sortBy")]
	if !ok {
		sortBy = sortColumns["created_at"]
	}
	sortOrder := "DESC"
	if strings.EqualFold(q.Get("sortOrder"), "asc") {
		sortOrder = "ASC"
	}

	condition := strings.Join(where, " AND ")

	var total int64
	err := h.db.GetContext(r.Context(), &total, fmt.Sprintf(
		`SELECT COUNT(*) FROM medicines m
         JOIN categories c ON c.id = m.category_id
         WHERE %s`, condition), args...)
	if err != nil {
		h.respondError(w, err)
		return
	}

	medicines := []medicineRow{}
	query := fmt.Sprintf(
		`SELECT m.id, m.name, m.description, m.manufacturer, m.price, m.stock,
                m.category_id, m.seller_id, m.is_deleted, m.created_at,
                c.name AS category_name
         FROM medicines m
         JOIN categories c ON c.id = m.category_id
         WHERE %s
         ORDER BY %s %s, m.id DESC
         LIMIT ? OFFSET ?`, condition, sortBy, sortOrder)
	args = append(args, limit, (page-1)*limit)
	if err := h.db.SelectContext(r.Context(), &medicines, query, args...); err != nil {
		h.respondError(w, err)
		return
	}

	totalPage := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPage++
	}

	respond(w, http.StatusOK, "Medicines fetched successfully", medicineListResponse{
		Medicines: medicines,
		Meta:      listMeta{Page: page, Limit: limit, Total: total, TotalPage: totalPage},
	})
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

type medicineDetail struct {
	medicineRow
	Seller  domain.UserSummary `json:"seller"`
	Reviews []domain.Review    `json:"reviews"`
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return
	}

	var detail medicineDetail
	err = h.db.GetContext(r.Context(), &detail.medicineRow,
		`SELECT m.id, m.name, m.description, m.manufacturer, m.price, m.stock,
                m.category_id, m.seller_id, m.is_deleted, m.created_at,
                c.name AS category_name
         FROM medicines m
         JOIN categories c ON c.id = m.category_id
         WHERE m.id = ? AND m.is_deleted = 0`, id)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Medicine not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	err = h.db.GetContext(r.Context(), &detail.Seller,
		`SELECT id, name, email FROM users WHERE id = ?`, detail.SellerID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	detail.Reviews = []domain.Review{}
	err = h.db.SelectContext(r.Context(), &detail.Reviews,
		`SELECT r.id, r.medicine_id, r.customer_id, r.rating, r.comment,
                r.created_at, r.updated_at, u.name AS customer_name
         FROM reviews r
         JOIN users u ON u.id = r.customer_id
         WHERE r.medicine_id = ?
         ORDER BY r.created_at DESC, r.id DESC`, id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respond(w, http.StatusOK, "Medicine fetched successfully", detail)
}

// Categories

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories := []domain.Category{}
	err := h.db.SelectContext(r.Context(), &categories,
		`SELECT id, name, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Categories fetched successfully", categories)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, domain.RoleAdmin); !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		fail(w, http.StatusBadRequest, "Category name is required")
		return
	}

	var category domain.Category
	err := h.db.QueryRowxContext(r.Context(),
		`INSERT INTO categories (name) VALUES (?) RETURNING id, name, created_at`,
		req.Name).StructScan(&category)
	if err != nil {
		fail(w, http.StatusBadRequest, "Category already exists")
		return
	}
	respond(w, http.StatusCreated, "Category created successfully", category)
}

// Seller catalog management

type medicineRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Manufacturer string          `json:"manufacturer"`
	Price        decimal.Decimal `json:"price"`
	Stock        int64           `json:"stock"`
	CategoryID   int64           `json:"category_id"`
}

func (req *medicineRequest) validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "Medicine name is required"
	case req.Price.IsNegative() || req.Price.IsZero():
		return "Price must be greater than 0"
	case req.Stock < 0:
		return "Stock cannot be negative"
	case req.CategoryID == 0:
		return "Category is required"
	}
	return ""
}

func (h *Handler) addMedicine(w http.ResponseWriter, r *http.Request) {
	seller, ok := h.requireRole(w, r, domain.RoleSeller)
	if !ok {
		return
	}

	var req medicineRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		fail(w, http.StatusBadRequest, msg)
		return
	}

	var categoryID int64
	err := h.db.GetContext(r.Context(), &categoryID,
		`SELECT id FROM categories WHERE id = ?`, req.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Category not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	var medicine domain.Medicine
	err = h.db.QueryRowxContext(r.Context(),
		`INSERT INTO medicines (name, description, manufacturer, price, stock, category_id, seller_id)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         RETURNING id, name, description, manufacturer, price, stock, category_id, seller_id, is_deleted, created_at`,
		strings.TrimSpace(req.Name), req.Description, req.Manufacturer,
		req.Price, req.Stock, req.CategoryID, seller.ID).StructScan(&medicine)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, "Medicine created successfully", medicine)
}

// ownedMedicine loads a live medicine and enforces seller ownership.
func (h *Handler) ownedMedicine(w http.ResponseWriter, r *http.Request, sellerID int64) (*domain.Medicine, bool) {
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return nil, false
	}

	var medicine domain.Medicine
	err = h.db.GetContext(r.Context(), &medicine,
		`SELECT id, name, description, manufacturer, price, stock, category_id, seller_id, is_deleted, created_at
         FROM medicines WHERE id = ? AND is_deleted = 0`, id)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Medicine not found")
		return nil, false
	}
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	if medicine.SellerID != sellerID {
		fail(w, http.StatusForbidden, "You can only manage your own medicines")
		return nil, false
	}
	return &medicine, true
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	seller, ok := h.requireRole(w, r, domain.RoleSeller)
	if !ok {
		return
	}
	medicine, ok := h.ownedMedicine(w, r, seller.ID)
	if !ok {
		return
	}

	var req medicineRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		fail(w, http.StatusBadRequest, msg)
		return
	}

	var categoryID int64
	err := h.db.GetContext(r.Context(), &categoryID,
		`SELECT id FROM categories WHERE id = ?`, req.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Category not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	var updated domain.Medicine
	err = h.db.QueryRowxContext(r.Context(),
		`UPDATE medicines
         SET name = ?, description = ?, manufacturer = ?, price = ?, stock = ?, category_id = ?
         WHERE id = ?
         RETURNING id, name, description, manufacturer, price, stock, category_id, seller_id, is_deleted, created_at`,
		strings.TrimSpace(req.Name), req.Description, req.Manufacturer,
		req.Price, req.Stock, req.CategoryID, medicine.ID).StructScan(&updated)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Medicine updated successfully", updated)
}

// deleteMedicine soft-deletes, so past order items keep their reference.
func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	seller, ok := h.requireRole(w, r, domain.RoleSeller)
	if !ok {
		return
	}
	medicine, ok := h.ownedMedicine(w, r, seller.ID)
	if !ok {
		return
	}

	_, err := h.db.ExecContext(r.Context(),
		`UPDATE medicines SET is_deleted = 1 WHERE id = ?`, medicine.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Medicine deleted successfully", nil)
}
