package domain

type Review struct {
	ID           int64  `db:"id" json:"id"`
	MedicineID   int64  `db:"medicine_id" json:"medicine_id"`
	CustomerID   int64  `db:"customer_id" json:"customer_id"`
	Rating       int    `db:"rating" json:"rating"`
	Comment      string `db:"comment" json:"comment,omitempty"`
	CreatedAt    string `db:"created_at" json:"created_at"`
	UpdatedAt    string `db:"updated_at" json:"updated_at"`
	CustomerName string `db:"customer_name" json:"customer_name,omitempty"`
}
