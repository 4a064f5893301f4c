package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"medistore/m/domain"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if len(req.Password) < 6 {
		fail(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleCustomer
	}
	if req.Role != domain.RoleCustomer && req.Role != domain.RoleSeller {
		fail(w, http.StatusBadRequest, "role must be CUSTOMER or SELLER")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var user domain.User
	err = h.db.QueryRowxContext(r.Context(),
		`INSERT INTO users (name, email, password, phone, address, role, status)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         RETURNING id, name, email, phone, address, role, status, created_at, updated_at`,
		req.Name, strings.ToLower(req.Email), hashed, req.Phone, req.Address,
		req.Role, domain.StatusActive).StructScan(&user)
	if err != nil {
		fail(w, http.StatusBadRequest, "Email already in use")
		return
	}

	respond(w, http.StatusCreated, "User created successfully", user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.GetContext(r.Context(), &user,
		`SELECT id, name, email, password, phone, address, role, status, created_at, updated_at
         FROM users WHERE email = ?`, strings.ToLower(req.Email))
	if err != nil {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user.Status == domain.StatusBanned {
		fail(w, http.StatusForbidden, "Account is banned")
		return
	}

	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})

	user.Password = ""
	respond(w, http.StatusOK, "User logged in successfully", loginResponse{Token: token, User: user})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "User fetched successfully", h.currentUser(r))
}

// Profile

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "Profile fetched successfully", h.currentUser(r))
}

type updateProfileRequest struct {
	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Address         *string `json:"address,omitempty"`
	CurrentPassword string  `json:"currentPassword,omitempty"`
	NewPassword     string  `json:"newPassword,omitempty"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.NewPassword != "" {
		if req.CurrentPassword == "" {
			fail(w, http.StatusBadRequest, "Current password is required to change password")
			return
		}
		var stored string
		if err := h.db.GetContext(r.Context(), &stored, `SELECT password FROM users WHERE id = ?`, user.ID); err != nil {
			h.respondError(w, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(req.CurrentPassword)) != nil {
			fail(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		if len(req.NewPassword) < 6 {
			fail(w, http.StatusBadRequest, "New password must be at least 6 characters long")
			return
		}
	}

	if req.Email != nil && strings.ToLower(*req.Email) != user.Email {
		if h.fieldTaken(r, "email", strings.ToLower(*req.Email)) {
			fail(w, http.StatusBadRequest, "Email already in use")
			return
		}
	}
	if req.Phone != nil && *req.Phone != user.Phone && *req.Phone != "" {
		if h.fieldTaken(r, "phone", *req.Phone) {
			fail(w, http.StatusBadRequest, "Phone number already in use")
			return
		}
	}

	var (
		clauses []string
		args    []interface{}
	)
	if req.Name != nil {
		clauses = append(clauses, "name = ?")
		args = append(args, strings.TrimSpace(*req.Name))
	}
	if req.Email != nil {
		clauses = append(clauses, "email = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(*req.Email)))
	}
	if req.Phone != nil {
		clauses = append(clauses, "phone = ?")
		args = append(args, strings.TrimSpace(*req.Phone))
	}
	if req.Address != nil {
		clauses = append(clauses, "address = ?")
		args = append(args, strings.TrimSpace(*req.Address))
	}
	if req.NewPassword != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			h.respondError(w, err)
			return
		}
		clauses = append(clauses, "password = ?")
		args = append(args, hashed)
	}
	if len(clauses) == 0 {
		respond(w, http.StatusOK, "Profile updated successfully", user)
		return
	}
	clauses = append(clauses, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, user.ID)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = ?", strings.Join(clauses, ", "))
	if _, err := h.db.ExecContext(r.Context(), query, args...); err != nil {
		h.respondError(w, err)
		return
	}

	var updated domain.User
	err := h.db.GetContext(r.Context(), &updated,
		`SELECT id, name, email, phone, address, role, status, created_at, updated_at
         FROM users WHERE id = ?`, user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Profile updated successfully", updated)
}

func (h *Handler) fieldTaken(r *http.Request, column, value string) bool {
	var id int64
	err := h.db.GetContext(r.Context(),
		&id, fmt.Sprintf(`SELECT id FROM users WHERE %s = ?`, column), value)
	return err == nil
}

// Admin

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, domain.RoleAdmin); !ok {
		return
	}

	users := []domain.User{}
	err := h.db.SelectContext(r.Context(), &users,
		`SELECT id, name, email, phone, address, role, status, created_at, updated_at
         FROM users WHERE role IN (?, ?) ORDER BY created_at DESC, id DESC`,
		domain.RoleCustomer, domain.RoleSeller)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "Users fetched successfully", users)
}

func (h *Handler) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, domain.RoleAdmin); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status != domain.StatusActive && req.Status != domain.StatusBanned {
		fail(w, http.StatusBadRequest, "status must be BAN or UNBAN")
		return
	}

	var target domain.User
	err = h.db.GetContext(r.Context(), &target, `SELECT id, role FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if target.Role == domain.RoleAdmin {
		fail(w, http.StatusForbidden, "Cannot change status of an admin")
		return
	}

	_, err = h.db.ExecContext(r.Context(),
		`UPDATE users SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, req.Status, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "User status updated successfully", map[string]interface{}{
		"id":     id,
		"status": req.Status,
	})
}
