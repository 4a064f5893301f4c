package seed

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"medistore/m/domain"
	"medistore/m/internal/config"
)

// EnsureAdmin creates or refreshes the platform admin account from the
// environment. Skipped when the admin variables are not set.
func EnsureAdmin(db *sqlx.DB, cfg config.Config, logger zerolog.Logger) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" || cfg.AdminName == "" {
		logger.Info().Msg("admin seed skipped: ADMIN_EMAIL, ADMIN_PASSWORD and ADMIN_NAME not all set")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error().Err(err).Msg("unable to hash admin password")
		return
	}

	_, err = db.Exec(`INSERT INTO users (name, email, password, phone, address, role, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(email) DO UPDATE SET
            name = excluded.name,
            password = excluded.password,
            phone = excluded.phone,
            address = excluded.address,
            role = excluded.role,
            status = excluded.status,
            updated_at = CURRENT_TIMESTAMP`,
		cfg.AdminName, cfg.AdminEmail, hashed, cfg.AdminPhone, cfg.AdminAddress,
		domain.RoleAdmin, domain.StatusActive)
	if err != nil {
		logger.Error().Err(err).Msg("unable to seed admin account")
		return
	}
	logger.Info().Str("email", cfg.AdminEmail).Msg("admin account seeded")
}
