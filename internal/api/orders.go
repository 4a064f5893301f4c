package api

import (
	"net/http"

	"medistore/m/domain"
	"medistore/m/internal/order"
)

type createOrderRequest struct {
	ShippingAddress string       `json:"shippingAddress"`
	Items           []order.Item `json:"items"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleCustomer)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	placed, err := h.ledger.CreateOrder(r.Context(), user.ID, req.ShippingAddress, req.Items)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// a placed order supersedes whatever the cart held
	if err := h.carts.Clear(r.Context(), user.ID); err != nil {
		h.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to clear cart after order")
	}

	respond(w, http.StatusCreated, "Order created successfully", placed)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleCustomer)
	if !ok {
		return
	}

	orders, err := h.ledger.ListCustomerOrders(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Orders fetched successfully", orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleCustomer)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	fetched, err := h.ledger.GetOrder(r.Context(), id, user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Order fetched successfully", fetched)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleCustomer)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	cancelled, err := h.ledger.CancelOrder(r.Context(), id, user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Order cancelled successfully", cancelled)
}

// Seller order surface

func (h *Handler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleSeller)
	if !ok {
		return
	}

	orders, err := h.ledger.ListSellerOrders(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Orders fetched successfully", orders)
}

func (h *Handler) sellerUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleSeller)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Status domain.OrderStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.ledger.UpdateSellerOrderStatus(r.Context(), id, user.ID, req.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Order status updated successfully", updated)
}
