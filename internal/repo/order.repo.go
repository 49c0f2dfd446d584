package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sciventures/bitmarket-gateway/internal/domain"
)

type OrderRepo interface {
	FindById(ctx context.Context, id string) (*domain.Order, error)
	FindByKey(ctx context.Context, key string) (*domain.Order, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	// MarkPaid flips the order to completed unless it already is. The guard
	// lives in the statement itself so concurrent duplicate callbacks race at
	// the storage layer and exactly one of them wins.
	MarkPaid(ctx context.Context, tx *sql.Tx, id string) (bool, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.OrderStatus) error
	// FailIfPending only fails orders still awaiting payment, so a sweep
	// cannot clobber a completion that landed after the order was selected.
	FailIfPending(ctx context.Context, tx *sql.Tx, id string) (bool, error)
	AddNote(ctx context.Context, tx *sql.Tx, id string, note string) error
	SetBitmarketMeta(ctx context.Context, id string, bitmarketID, payerEmail string) error
	Notes(ctx context.Context, id string) ([]domain.OrderNote, error)
	FindStuckOrders(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_key, amount, currency, status, bitmarket_id, payer_email, created_at, updated_at`

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.Key,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.BitmarketID,
		&order.PayerEmail,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}
	return &order, nil
}

func (r *orderRepo) FindById(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *orderRepo) FindByKey(ctx context.Context, key string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_key = $1`, key)
	return scanOrder(row)
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, order_key, amount, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.Key, order.Amount, order.Currency, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status <> $2`,
		id, domain.OrderCompleted,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status domain.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	return err
}

func (r *orderRepo) FailIfPending(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, domain.OrderFailed, domain.OrderPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) AddNote(ctx context.Context, tx *sql.Tx, id string, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_notes (id, order_id, note, created_at) VALUES ($1, $2, $3, now())`,
		uuid.New(), id, note,
	)
	return err
}

func (r *orderRepo) SetBitmarketMeta(ctx context.Context, id string, bitmarketID, payerEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET bitmarket_id = $2, payer_email = CASE WHEN $3 = '' THEN payer_email ELSE $3 END, updated_at = now() WHERE id = $1`,
		id, bitmarketID, payerEmail,
	)
	return err
}

func (r *orderRepo) Notes(ctx context.Context, id string) ([]domain.OrderNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id, note, created_at FROM order_notes WHERE order_id = $1 ORDER BY created_at`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.OrderNote
	for rows.Next() {
		var n domain.OrderNote
		if err := rows.Scan(&n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *orderRepo) FindStuckOrders(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND updated_at < $2`,
		domain.OrderPending, time.Now().Add(-olderThan),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.Key,
			&order.Amount,
			&order.Currency,
			&order.Status,
			&order.BitmarketID,
			&order.PayerEmail,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
