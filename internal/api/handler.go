package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"medistore/m/domain"
	"medistore/m/internal/apperr"
	"medistore/m/internal/cart"
	"medistore/m/internal/order"
)

type ctxKey string

const (
	ctxUser      ctxKey = "user"
	ctxRequestID ctxKey = "requestID"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db     *sqlx.DB
	secret string
	ledger *order.Ledger
	carts  cart.Store
	logger zerolog.Logger
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, carts cart.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		db:     db,
		secret: secret,
		ledger: order.NewLedger(db),
		carts:  carts,
		logger: logger,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.With(h.authMiddleware).Get("/me", h.me)
		})

		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.listMedicines)
			r.Get("/{id}", h.getMedicine)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.listCategories)
			r.With(h.authMiddleware).Post("/", h.createCategory)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/{id}", h.listReviews)
			r.With(h.authMiddleware).Post("/{id}", h.createReview)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.authMiddleware)

			pr.Route("/user", func(r chi.Router) {
				r.Get("/profile", h.getProfile)
				r.Put("/profile", h.updateProfile)
			})

			pr.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Post("/{id}", h.addToCart)
				r.Delete("/{id}", h.removeFromCart)
				r.Delete("/", h.clearCart)
			})

			pr.Route("/orders", func(r chi.Router) {
				r.Post("/", h.createOrder)
				r.Get("/", h.listOrders)
				r.Get("/{id}", h.getOrder)
				r.Patch("/{id}/cancel", h.cancelOrder)
			})

			pr.Route("/seller", func(r chi.Router) {
				r.Post("/medicines", h.addMedicine)
				r.Put("/medicines/{id}", h.updateMedicine)
				r.Delete("/medicines/{id}", h.deleteMedicine)
				r.Get("/orders", h.sellerOrders)
				r.Patch("/orders/{id}/status", h.sellerUpdateOrderStatus)
			})

			pr.Route("/admin", func(r chi.Router) {
				r.Get("/users", h.listUsers)
				r.Patch("/users/{id}/status", h.updateUserStatus)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "ok", nil)
}

// Authentication

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

// authMiddleware verifies the bearer token (or cookie) and re-resolves the
// account so stale tokens for deleted or banned users are rejected.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			fail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			fail(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		var user domain.User
		err = h.db.GetContext(r.Context(), &user,
			`SELECT id, name, email, phone, address, role, status, created_at, updated_at
             FROM users WHERE id = ?`, claims.UserID)
		if err != nil {
			fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if user.Status == domain.StatusBanned {
			fail(w, http.StatusForbidden, "Account is banned")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUser, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *Handler) currentUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(ctxUser).(*domain.User)
	return user
}

// requireRole returns the authenticated user when their role is in the
// allowed set, or writes a 403 and returns false.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) (*domain.User, bool) {
	user := h.currentUser(r)
	if user == nil {
		fail(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	for _, role := range allowed {
		if user.Role == role {
			return user, true
		}
	}
	fail(w, http.StatusForbidden, "Forbidden")
	return nil, false
}

// Response envelope

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respond(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// respondError maps business errors to their HTTP status; anything outside
// the taxonomy is an internal failure.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		h.logger.Error().Err(err).Msg("request failed")
		fail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	status := http.StatusBadRequest
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	}
	fail(w, status, err.Error())
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
