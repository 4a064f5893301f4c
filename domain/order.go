package domain

import "github.com/shopspring/decimal"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "PLACED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentMethodCOD is the only payment method the marketplace supports.
const PaymentMethodCOD = "COD"

// transitions is the full set of permitted status changes. DELIVERED and
// CANCELLED are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:     {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// Valid reports whether s names a known status.
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the status change s -> next is in the
// transition table.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID              int64           `db:"id" json:"id"`
	CustomerID      int64           `db:"customer_id" json:"customer_id"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	CreatedAt       string          `db:"created_at" json:"created_at"`
	Items           []OrderItem     `db:"-" json:"items"`
	Customer        *UserSummary    `db:"-" json:"customer,omitempty"`
}

// OrderItem is one line of an order. Price is snapshotted at order time and
// stays authoritative over later catalog price changes.
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	MedicineID   int64           `db:"medicine_id" json:"medicine_id"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	Price        decimal.Decimal `db:"price" json:"price"`
	MedicineName string          `db:"medicine_name" json:"medicine_name,omitempty"`
	Manufacturer string          `db:"manufacturer" json:"manufacturer,omitempty"`
}
