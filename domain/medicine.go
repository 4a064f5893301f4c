package domain

import "github.com/shopspring/decimal"

type Medicine struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Manufacturer string          `db:"manufacturer" json:"manufacturer"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int64           `db:"stock" json:"stock"`
	CategoryID   int64           `db:"category_id" json:"category_id"`
	SellerID     int64           `db:"seller_id" json:"seller_id"`
	IsDeleted    bool            `db:"is_deleted" json:"-"`
	CreatedAt    string          `db:"created_at" json:"created_at"`
}

type Category struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
