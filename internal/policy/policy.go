// Package policy centralizes the authorization predicates and the order
// status transition rules. Predicates operate on in-memory snapshots only, so
// they carry no store dependency.
package policy

import (
	"medistore/m/domain"
	"medistore/m/internal/apperr"
)

// ActiveCustomer requires an existing, unbanned CUSTOMER account. The action
// phrase completes the role-mismatch message, e.g. "place orders".
func ActiveCustomer(u *domain.User, action string) error {
	if u == nil {
		return apperr.NotFound("Customer not found")
	}
	if u.Role != domain.RoleCustomer {
		return apperr.Forbidden("Only customers can %s", action)
	}
	if u.Status == domain.StatusBanned {
		return apperr.Forbidden("Customer account is banned")
	}
	return nil
}

// ActiveSeller requires an existing, unbanned SELLER account.
func ActiveSeller(u *domain.User, action string) error {
	if u == nil {
		return apperr.NotFound("Seller not found")
	}
	if u.Role != domain.RoleSeller {
		return apperr.Forbidden("Only sellers can %s", action)
	}
	if u.Status == domain.StatusBanned {
		return apperr.Forbidden("Seller account is banned")
	}
	return nil
}

// ActiveAdmin requires an existing, unbanned ADMIN account.
func ActiveAdmin(u *domain.User, action string) error {
	if u == nil {
		return apperr.NotFound("Admin not found")
	}
	if u.Role != domain.RoleAdmin {
		return apperr.Forbidden("Only admins can %s", action)
	}
	if u.Status == domain.StatusBanned {
		return apperr.Forbidden("Admin account is banned")
	}
	return nil
}

// CanCancel reports whether an order in the given status may still be
// cancelled. This is the sole stock-restoring transition gate.
func CanCancel(status domain.OrderStatus) bool {
	return status.CanTransitionTo(domain.OrderStatusCancelled)
}

// SellerTransition validates a seller-initiated status change. Sellers only
// move orders forward; CANCELLED is reserved for the customer cancel
// operation, which restores stock.
func SellerTransition(from, to domain.OrderStatus) error {
	if !to.Valid() {
		return apperr.Invalid("Invalid order status: %s", to)
	}
	if to == domain.OrderStatusCancelled {
		return apperr.Forbidden("Only customers can cancel orders")
	}
	if !from.CanTransitionTo(to) {
		return apperr.Invalid("Cannot change order status from %s to %s", from, to)
	}
	return nil
}
