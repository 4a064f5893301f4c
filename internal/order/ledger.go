// Package order owns the order ledger: every mutation that must keep orders,
// order items and medicine stock consistent happens inside a single
// transaction here.
package order

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"medistore/m/domain"
	"medistore/m/internal/apperr"
	"medistore/m/internal/policy"
)

// Item is one requested order line.
type Item struct {
	MedicineID int64 `json:"medicineId"`
	Quantity   int64 `json:"quantity"`
}

type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// CreateOrder validates the actor and the requested items, then commits the
// order row, its items and the stock decrements as one atomic unit. Item
// prices are frozen from the catalog's current prices; the total is computed
// server-side. Quantities are re-validated by the guarded decrement inside
// the transaction, so a lost race surfaces as the same insufficient-stock
// error instead of oversold stock.
func (l *Ledger) CreateOrder(ctx context.Context, customerID int64, shippingAddress string, items []Item) (*domain.Order, error) {
	customer, err := l.loadUser(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := policy.ActiveCustomer(customer, "place orders"); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, apperr.Invalid("Order must contain at least one item")
	}
	if strings.TrimSpace(shippingAddress) == "" {
		return nil, apperr.Invalid("Shipping address is required")
	}

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.MedicineID]; ok {
			continue
		}
		seen[item.MedicineID] = struct{}{}
		ids = append(ids, item.MedicineID)
	}

	query, args, err := sqlx.In(`SELECT id, name, price, stock FROM medicines WHERE id IN (?) AND is_deleted = 0`, ids)
	if err != nil {
		return nil, err
	}
	var medicines []domain.Medicine
	if err := l.db.SelectContext(ctx, &medicines, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	if len(medicines) != len(ids) {
		return nil, apperr.Invalid("Some medicines not found or unavailable")
	}
	byID := make(map[int64]domain.Medicine, len(medicines))
	for _, m := range medicines {
		byID[m.ID] = m
	}

	total := decimal.Zero
	for _, item := range items {
		medicine := byID[item.MedicineID]
		if item.Quantity <= 0 {
			return nil, apperr.Invalid("Invalid quantity for %s", medicine.Name)
		}
		if medicine.Stock < item.Quantity {
			return nil, apperr.Invalid("Insufficient stock for %s. Available: %d", medicine.Name, medicine.Stock)
		}
		total = total.Add(medicine.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}

	tx, err := l.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO orders (customer_id, shipping_address, total_amount, status, payment_method)
         VALUES (?, ?, ?, ?, ?) RETURNING id`,
		customerID, shippingAddress, total, domain.OrderStatusPlaced, domain.PaymentMethodCOD).Scan(&orderID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		medicine := byID[item.MedicineID]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, medicine_id, quantity, price) VALUES (?, ?, ?, ?)`,
			orderID, item.MedicineID, item.Quantity, medicine.Price); err != nil {
			return nil, err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE medicines SET stock = stock - ? WHERE id = ? AND stock >= ?`,
			item.Quantity, item.MedicineID, item.Quantity)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Another order won the race since the pre-check; report the
			// stock as it stands now. The deferred rollback undoes the rows
			// written above.
			var stock int64
			if err := tx.GetContext(ctx, &stock, `SELECT stock FROM medicines WHERE id = ?`, item.MedicineID); err != nil {
				return nil, err
			}
			return nil, apperr.Invalid("Insufficient stock for %s. Available: %d", medicine.Name, stock)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return l.GetOrder(ctx, orderID, customerID)
}

// CancelOrder flips an owned PLACED or PROCESSING order to CANCELLED and
// restores every item's quantity to its medicine's stock, atomically.
func (l *Ledger) CancelOrder(ctx context.Context, orderID, customerID int64) (*domain.Order, error) {
	ord, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.CustomerID != customerID {
		return nil, apperr.Forbidden("You can only cancel your own orders")
	}
	if !policy.CanCancel(ord.Status) {
		return nil, apperr.Invalid("Cannot cancel order with status %s. Only PLACED or PROCESSING orders can be cancelled.", ord.Status)
	}

	items, err := l.loadItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Guard on the status read above so a concurrent transition cannot lead
	// to a double restore.
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		domain.OrderStatusCancelled, orderID, ord.Status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var current domain.OrderStatus
		if err := tx.GetContext(ctx, &current, `SELECT status FROM orders WHERE id = ?`, orderID); err != nil {
			return nil, err
		}
		return nil, apperr.Invalid("Cannot cancel order with status %s. Only PLACED or PROCESSING orders can be cancelled.", current)
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE medicines SET stock = stock + ? WHERE id = ?`,
			item.Quantity, item.MedicineID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return l.GetOrder(ctx, orderID, customerID)
}

// GetOrder returns a single order with items and customer summary, enforcing
// ownership.
func (l *Ledger) GetOrder(ctx context.Context, orderID, customerID int64) (*domain.Order, error) {
	ord, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.CustomerID != customerID {
		return nil, apperr.Forbidden("You can only view your own orders")
	}
	if ord.Items, err = l.loadItems(ctx, orderID); err != nil {
		return nil, err
	}
	if ord.Customer, err = l.loadUserSummary(ctx, ord.CustomerID); err != nil {
		return nil, err
	}
	return ord, nil
}

// ListCustomerOrders returns the customer's orders, newest first.
func (l *Ledger) ListCustomerOrders(ctx context.Context, customerID int64) ([]domain.Order, error) {
	customer, err := l.loadUser(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperr.NotFound("Customer not found")
	}
	if customer.Role != domain.RoleCustomer {
		return nil, apperr.Forbidden("Only customers can view orders")
	}

	orders := []domain.Order{}
	err = l.db.SelectContext(ctx, &orders,
		`SELECT id, customer_id, shipping_address, total_amount, status, payment_method, created_at
         FROM orders WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	if err := l.attachItems(ctx, orders, 0); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListSellerOrders projects orders down to the line items belonging to one
// seller. An order shows up when at least one of its items references the
// seller's medicines, and only those items are included. The projection is
// recomputed per call.
func (l *Ledger) ListSellerOrders(ctx context.Context, sellerID int64) ([]domain.Order, error) {
	seller, err := l.loadUser(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if err := policy.ActiveSeller(seller, "view orders"); err != nil {
		return nil, err
	}

	orders := []domain.Order{}
	err = l.db.SelectContext(ctx, &orders,
		`SELECT DISTINCT o.id, o.customer_id, o.shipping_address, o.total_amount, o.status, o.payment_method, o.created_at
         FROM orders o
         JOIN order_items oi ON oi.order_id = o.id
         JOIN medicines m ON m.id = oi.medicine_id
         WHERE m.seller_id = ?
         ORDER BY o.created_at DESC, o.id DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	if err := l.attachItems(ctx, orders, sellerID); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateSellerOrderStatus applies a seller-initiated forward transition. The
// seller must own at least one medicine on the order; cancellation is not
// reachable through this path.
func (l *Ledger) UpdateSellerOrderStatus(ctx context.Context, orderID, sellerID int64, next domain.OrderStatus) (*domain.Order, error) {
	seller, err := l.loadUser(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if err := policy.ActiveSeller(seller, "update orders"); err != nil {
		return nil, err
	}

	ord, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var ownedItems int64
	err = l.db.GetContext(ctx, &ownedItems,
		`SELECT COUNT(*) FROM order_items oi
         JOIN medicines m ON m.id = oi.medicine_id
         WHERE oi.order_id = ? AND m.seller_id = ?`, orderID, sellerID)
	if err != nil {
		return nil, err
	}
	if ownedItems == 0 {
		return nil, apperr.Forbidden("You can only update orders containing your own medicines")
	}

	if err := policy.SellerTransition(ord.Status, next); err != nil {
		return nil, err
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		next, orderID, ord.Status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, err := l.loadOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Invalid("Cannot change order status from %s to %s", current.Status, next)
	}

	updated, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if updated.Items, err = l.loadSellerItems(ctx, orderID, sellerID); err != nil {
		return nil, err
	}
	return updated, nil
}

// query helpers

func (l *Ledger) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := l.db.GetContext(ctx, &u,
		`SELECT id, name, email, role, status FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *Ledger) loadUserSummary(ctx context.Context, id int64) (*domain.UserSummary, error) {
	var u domain.UserSummary
	if err := l.db.GetContext(ctx, &u, `SELECT id, name, email FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *Ledger) loadOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var ord domain.Order
	err := l.db.GetContext(ctx, &ord,
		`SELECT id, customer_id, shipping_address, total_amount, status, payment_method, created_at
         FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (l *Ledger) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	items := []domain.OrderItem{}
	err := l.db.SelectContext(ctx, &items,
		`SELECT oi.id, oi.order_id, oi.medicine_id, oi.quantity, oi.price, m.name AS medicine_name, m.manufacturer
         FROM order_items oi
         JOIN medicines m ON m.id = oi.medicine_id
         WHERE oi.order_id = ?
         ORDER BY oi.id`, orderID)
	return items, err
}

func (l *Ledger) loadSellerItems(ctx context.Context, orderID, sellerID int64) ([]domain.OrderItem, error) {
	items := []domain.OrderItem{}
	err := l.db.SelectContext(ctx, &items,
		`SELECT oi.id, oi.order_id, oi.medicine_id, oi.quantity, oi.price, m.name AS medicine_name, m.manufacturer
         FROM order_items oi
         JOIN medicines m ON m.id = oi.medicine_id
         WHERE oi.order_id = ? AND m.seller_id = ?
         ORDER BY oi.id`, orderID, sellerID)
	return items, err
}

// attachItems loads the items for every order in one query. When sellerID is
// non-zero the items are filtered to that seller's medicines.
func (l *Ledger) attachItems(ctx context.Context, orders []domain.Order, sellerID int64) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	for i, ord := range orders {
		ids[i] = ord.ID
	}

	base := `SELECT oi.id, oi.order_id, oi.medicine_id, oi.quantity, oi.price, m.name AS medicine_name, m.manufacturer
         FROM order_items oi
         JOIN medicines m ON m.id = oi.medicine_id
         WHERE oi.order_id IN (?)`
	args := []interface{}{ids}
	if sellerID != 0 {
		base += ` AND m.seller_id = ?`
		args = append(args, sellerID)
	}
	base += ` ORDER BY oi.id`

	query, inArgs, err := sqlx.In(base, args...)
	if err != nil {
		return err
	}
	var rows []domain.OrderItem
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), inArgs...); err != nil {
		return err
	}

	byOrder := make(map[int64][]domain.OrderItem)
	for _, row := range rows {
		byOrder[row.OrderID] = append(byOrder[row.OrderID], row)
	}
	for i := range orders {
		items := byOrder[orders[i].ID]
		if items == nil {
			items = []domain.OrderItem{}
		}
		orders[i].Items = items
	}
	return nil
}
