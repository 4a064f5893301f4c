package api

import (
	"database/sql"
	"errors"
	"math"
	"net/http"
	"strings"

	"medistore/m/domain"
)

type reviewListResponse struct {
	Reviews       []domain.Review `json:"reviews"`
	TotalReviews  int             `json:"totalReviews"`
	AverageRating float64         `json:"averageRating"`
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	medicineID, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return
	}

	reviews := []domain.Review{}
	err = h.db.SelectContext(r.Context(), &reviews,
		`SELECT r.id, r.medicine_id, r.customer_id, r.rating, r.comment,
                r.created_at, r.updated_at, u.name AS customer_name
         FROM reviews r
         JOIN users u ON u.id = r.customer_id
         WHERE r.medicine_id = ?
         ORDER BY r.created_at DESC, r.id DESC`, medicineID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var average float64
	if len(reviews) > 0 {
		var sum int
		for _, review := range reviews {
			sum += review.Rating
		}
		average = math.Round(float64(sum)/float64(len(reviews))*10) / 10
	}

	respond(w, http.StatusOK, "Reviews fetched successfully", reviewListResponse{
		Reviews:       reviews,
		TotalReviews:  len(reviews),
		AverageRating: average,
	})
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireRole(w, r, domain.RoleCustomer)
	if !ok {
		return
	}
	medicineID, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid medicine id")
		return
	}

	var req createReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		fail(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if len(req.Comment) > 500 {
		fail(w, http.StatusBadRequest, "Comment cannot exceed 500 characters")
		return
	}

	var exists int64
	err = h.db.GetContext(r.Context(), &exists,
		`SELECT m.id FROM medicines m WHERE m.id = ? AND m.is_deleted = 0`, medicineID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Medicine not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	// reviews are gated on a completed purchase
	var delivered int64
	err = h.db.GetContext(r.Context(), &delivered,
		`SELECT COUNT(*)
         FROM orders o
         JOIN order_items oi ON oi.order_id = o.id
         WHERE o.customer_id = ? AND oi.medicine_id = ? AND o.status = ?`,
		user.ID, medicineID, domain.OrderStatusDelivered)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if delivered == 0 {
		fail(w, http.StatusForbidden, "You can only review medicines you have ordered and received")
		return
	}

	var review domain.Review
	err = h.db.QueryRowxContext(r.Context(),
		`INSERT INTO reviews (medicine_id, customer_id, rating, comment)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(medicine_id, customer_id)
         DO UPDATE SET rating = excluded.rating, comment = excluded.comment, updated_at = CURRENT_TIMESTAMP
         RETURNING id, medicine_id, customer_id, rating, comment, created_at, updated_at`,
		medicineID, user.ID, req.Rating, req.Comment).StructScan(&review)
	if err != nil {
		h.respondError(w, err)
		return
	}
	review.CustomerName = user.Name

	respond(w, http.StatusCreated, "Review submitted successfully", review)
}
