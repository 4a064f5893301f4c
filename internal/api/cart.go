package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"

	"medistore/m/domain"
	"medistore/m/internal/cart"
)

type cartLine struct {
	domain.Medicine
	CartQuantity int64 `db:"-" json:"cartQuantity"`
}

// getCart enriches the stored quantities with the live catalog rows. Lines
// whose medicine has since been deleted are skipped.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	items, err := h.carts.Get(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	lines := []cartLine{}
	if len(items) > 0 {
		ids := make([]int64, 0, len(items))
		quantities := make(map[int64]int64, len(items))
		for _, item := range items {
			ids = append(ids, item.MedicineID)
			quantities[item.MedicineID] = item.Quantity
		}

		query, args, err := sqlx.In(
			`SELECT id, name, description, manufacturer, price, stock, category_id, seller_id, is_deleted, created_at
             FROM medicines WHERE id IN (?) AND is_deleted = 0`, ids)
		if err != nil {
			h.respondError(w, err)
			return
		}

		medicines := []domain.Medicine{}
		if err := h.db.SelectContext(r.Context(), &medicines, h.db.Rebind(query), args...); err != nil {
			h.respondError(w, err)
			return
		}
		for _, medicine := range medicines {
			lines = append(lines, cartLine{Medicine: medicine, CartQuantity: quantities[medicine.ID]})
		}
	}

	respond(w, http.StatusOK, "Cart fetched successfully", lines)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	medicineID, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return
	}

	var req struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity <= 0 {
		fail(w, http.StatusBadRequest, "Quantity must be greater than 0")
		return
	}

	var medicine domain.Medicine
	err = h.db.GetContext(r.Context(), &medicine,
		`SELECT id, stock, is_deleted FROM medicines WHERE id = ?`, medicineID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Medicine not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if medicine.IsDeleted {
		fail(w, http.StatusBadRequest, "Cannot add deleted medicine to cart")
		return
	}
	if req.Quantity > medicine.Stock {
		fail(w, http.StatusBadRequest, fmt.Sprintf(
			"Insufficient stock. Available: %d, Requested: %d", medicine.Stock, req.Quantity))
		return
	}

	var held int64
	if items, err := h.carts.Get(r.Context(), user.ID); err == nil {
		for _, item := range items {
			if item.MedicineID == medicineID {
				held = item.Quantity
				break
			}
		}
	}
	if held+req.Quantity > medicine.Stock {
		fail(w, http.StatusBadRequest, fmt.Sprintf(
			"Total quantity exceeds stock. Available: %d, Total requested: %d",
			medicine.Stock, held+req.Quantity))
		return
	}

	total, err := h.carts.Add(r.Context(), user.ID, medicineID, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Medicine added to cart", cart.Item{MedicineID: medicineID, Quantity: total})
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	medicineID, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return
	}
	if err := h.carts.Remove(r.Context(), user.ID, medicineID); err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Medicine removed from cart", nil)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	if err := h.carts.Clear(r.Context(), user.ID); err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Cart cleared", nil)
}
