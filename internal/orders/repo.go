package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOnHold = errors.New("order is on hold awaiting prescription verification")

type Repository interface {
	// Place writes the order, its items and its payment, decrements stock and
	// empties the owner's cart in one transaction. A known external id returns
	// the stored order with existed=true.
	Place(ctx context.Context, o *Order) (placed *Order, existed bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	// Transition moves the order along the status graph; cancelling restocks.
	Transition(ctx context.Context, id uuid.UUID, to Status) (*Order, error)
	SettlePayment(ctx context.Context, orderID uuid.UUID, status PaymentStatus, transactionID string) (*Order, error)
	SetFulfillmentHold(ctx context.Context, id uuid.UUID, hold bool) (*Order, error)
	ListHeldByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]uuid.UUID, error)
}

type Repo struct {
	DB      *pgxpool.Pool
	Pricing Pricing
}

func NewRepo(db *pgxpool.Pool, pricing Pricing) *Repo {
	return &Repo{DB: db, Pricing: pricing}
}

// awaitingPrescription is true while a line of order $1 references a
// prescription that is not verified.
const awaitingPrescription = `EXISTS (
	SELECT 1 FROM order_items oi JOIN prescriptions p ON p.id = oi.prescription_id
	WHERE oi.order_id = $1 AND p.status <> 'verified')`

const orderColumns = `id, external_id, user_id, order_number, subtotal, shipping_amount, total_amount,
	currency, shipping_address, status, fulfillment_hold, created_at, updated_at`

func orderTargets(o *Order) []any {
	return []any{&o.ID, &o.ExternalID, &o.UserID, &o.OrderNumber, &o.Subtotal, &o.ShippingAmount, &o.TotalAmount,
		&o.Currency, &o.ShippingAddress, &o.Status, &o.FulfillmentHold, &o.CreatedAt, &o.UpdatedAt}
}

func (r *Repo) Place(ctx context.Context, o *Order) (*Order, bool, error) {
	// cek existing by external_id
	if existing, err := r.GetByExternalID(ctx, o.ExternalID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := reserveStock(ctx, tx, o); err != nil {
			return err
		}
		// harga dari table products di dalam tx, bukan dari client
		o.Reprice(r.Pricing)

		err := tx.QueryRow(ctx, `
			INSERT INTO orders (id, external_id, user_id, order_number, subtotal, shipping_amount, total_amount,
				currency, shipping_address, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at`,
			o.ID, o.ExternalID, o.UserID, o.OrderNumber, o.Subtotal, o.ShippingAmount, o.TotalAmount,
			o.Currency, o.ShippingAddress, string(StatusPending),
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		o.Status = StatusPending

		for i := range o.Items {
			it := &o.Items[i]
			it.ID = uuid.New()
			it.OrderID = o.ID
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, product_id, product_name, prescription_id, quantity, unit_price, total_price)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				it.ID, it.OrderID, it.ProductID, it.ProductName, it.PrescriptionID, it.Quantity, it.UnitPrice, it.TotalPrice,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		// hold sejak awal selama ada resep yang belum verified
		if err := tx.QueryRow(ctx, `UPDATE orders SET fulfillment_hold = `+awaitingPrescription+` WHERE id = $1
			RETURNING fulfillment_hold`, o.ID).Scan(&o.FulfillmentHold); err != nil {
			return fmt.Errorf("set fulfillment hold: %w", err)
		}

		pay := o.Payment
		pay.OrderID = o.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO payments (id, order_id, payment_method, amount, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`,
			pay.ID, pay.OrderID, string(pay.Method), pay.Amount, pay.Currency, string(PaymentPending),
		).Scan(&pay.CreatedAt, &pay.UpdatedAt); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		pay.Status = PaymentPending

		// bayar di tempat: langsung confirmed, payment tetap pending sampai uang diterima
		if pay.Method == PaymentCashOnDelivery {
			if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
				o.ID, string(StatusConfirmed)); err != nil {
				return fmt.Errorf("confirm order: %w", err)
			}
			o.Status = StatusConfirmed
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, o.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if postgres.IsUniqueViolation(err, "orders_external_id_key") {
		// request kembar yang menang duluan
		existing, getErr := r.GetByExternalID(ctx, o.ExternalID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (r *Repo) getWhere(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg).Scan(orderTargets(&o)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get order: %w", err)
	}
	list := []Order{o}
	if err := r.attach(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getWhere(ctx, `id = $1`, id)
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.getWhere(ctx, `external_id = $1`, externalID)
}

func (r *Repo) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(orderTargets(&o)...); err != nil {
			return nil, fmt.Errorf("repository: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: list orders: %w", err)
	}
	if err := r.attach(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attach loads items and payments for a batch of orders, two queries total.
func (r *Repo) attach(ctx context.Context, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	pos := make(map[uuid.UUID]int, len(list))
	for i := range list {
		ids[i] = list[i].ID.String()
		pos[list[i].ID] = i
		list[i].Items = []Item{}
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, prescription_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY product_name, id`, ids)
	if err != nil {
		return fmt.Errorf("repository: load order items: %w", err)
	}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.PrescriptionID,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			rows.Close()
			return fmt.Errorf("repository: scan order item: %w", err)
		}
		o := &list[pos[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: load order items: %w", err)
	}

	rows, err = r.DB.Query(ctx, `
		SELECT id, order_id, payment_method, amount, currency, status, transaction_id, created_at, updated_at
		FROM payments WHERE order_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return fmt.Errorf("repository: load payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.Currency, &p.Status,
			&p.TransactionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("repository: scan payment: %w", err)
		}
		list[pos[p.OrderID]].Payment = &p
	}
	return rows.Err()
}

func (r *Repo) Transition(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		var (
			cur  Status
			hold bool
		)
		err := tx.QueryRow(ctx, `SELECT status, fulfillment_hold FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&cur, &hold)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !CanTransition(cur, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
		}
		if to == StatusProcessing {
			if hold {
				return ErrOnHold
			}
			// flag diisi async oleh worker; status resep dicek langsung di tx
			var awaiting bool
			if err := tx.QueryRow(ctx, `SELECT `+awaitingPrescription, id).Scan(&awaiting); err != nil {
				return fmt.Errorf("check prescriptions: %w", err)
			}
			if awaiting {
				return ErrOnHold
			}
		}
		return applyStatus(ctx, tx, id, to)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// applyStatus writes the status and its side effects on stock and payment.
func applyStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, to Status) error {
	switch to {
	case StatusCancelled:
		if err := releaseStock(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE order_id = $1 AND status = $3`,
			id, string(PaymentFailed), string(PaymentPending)); err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
	case StatusDelivered:
		// cash on delivery is collected by the courier
		if _, err := tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW()
			WHERE order_id = $1 AND status = $3 AND payment_method = $4`,
			id, string(PaymentCompleted), string(PaymentPending), string(PaymentCashOnDelivery)); err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(to)); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *Repo) SettlePayment(ctx context.Context, orderID uuid.UUID, status PaymentStatus, transactionID string) (*Order, error) {
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		var (
			payStatus   PaymentStatus
			orderStatus Status
		)
		err := tx.QueryRow(ctx, `
			SELECT p.status, o.status FROM payments p JOIN orders o ON o.id = p.order_id
			WHERE p.order_id = $1 FOR UPDATE`, orderID).Scan(&payStatus, &orderStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if payStatus != PaymentPending {
			return ErrPaymentSettled
		}

		if _, err := tx.Exec(ctx, `
			UPDATE payments SET status = $2, transaction_id = NULLIF($3, ''), updated_at = NOW()
			WHERE order_id = $1`, orderID, string(status), transactionID); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		switch {
		case status == PaymentCompleted && orderStatus == StatusPending:
			return applyStatus(ctx, tx, orderID, StatusConfirmed)
		case status == PaymentFailed && CanTransition(orderStatus, StatusCancelled):
			return applyStatus(ctx, tx, orderID, StatusCancelled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, orderID)
}

func (r *Repo) SetFulfillmentHold(ctx context.Context, id uuid.UUID, hold bool) (*Order, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET fulfillment_hold = $2, updated_at = NOW() WHERE id = $1`, id, hold)
	if err != nil {
		return nil, fmt.Errorf("repository: set fulfillment hold: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *Repo) ListHeldByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT o.id FROM orders o JOIN order_items oi ON oi.order_id = o.id
		WHERE oi.prescription_id = $1 AND o.fulfillment_hold AND o.status NOT IN ('cancelled', 'delivered')`,
		prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("repository: held orders: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: scan held order: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
