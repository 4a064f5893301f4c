package domain

// Roles and account statuses as stored in the users table.
const (
	RoleCustomer = "CUSTOMER"
	RoleSeller   = "SELLER"
	RoleAdmin    = "ADMIN"

	StatusActive = "UNBAN"
	StatusBanned = "BAN"
)

type User struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Email     string `db:"email" json:"email"`
	Password  string `db:"password" json:"password,omitempty"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Address   string `db:"address" json:"address,omitempty"`
	Role      string `db:"role" json:"role"`
	Status    string `db:"status" json:"status"`
	CreatedAt string `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt string `db:"updated_at" json:"updated_at,omitempty"`
}

// UserSummary is the slice of a user embedded in order responses.
type UserSummary struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}
