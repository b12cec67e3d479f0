package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	if errs := (&order).ValidateInvariants(); len(errs) > 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, notified, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5)
	`,
		order.ID, order.CustomerID, order.Notified, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, d := range order.Domains {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_domains (
				order_id, domain_name, price_minor, currency, registration_years,
				status, error, expires_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			order.ID, d.DomainName, d.PriceMinor, d.Currency, d.RegistrationYears,
			string(d.Status), d.Error, d.ExpiresAt, d.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order domain: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var order domain.Order

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, notified, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &order.Notified, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	domains, err := r.loadDomains(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Domains = domains

	return order, nil
}

// SetDomainStatus записывает статус доменной позиции заказа.
func (r *orderRepository) SetDomainStatus(orderID, domainName string, status domain.DomainStatus, errText string, expiresAt *time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE order_domains
		SET status = $3,
		    error = $4,
		    expires_at = COALESCE($5, expires_at)
		WHERE order_id = $1 AND domain_name = $2
	`, orderID, domainName, string(status), errText, expiresAt)
	if err != nil {
		return fmt.Errorf("update order domain: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		exists, err = r.orderExistsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		err = nil
		_ = tx.Rollback()
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderDomainNotFound
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE orders SET updated_at = $2 WHERE id = $1
	`, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set domain status: %w", err)
	}

	return nil
}

// MarkNotified атомарно взводит флаг уведомления одним условным UPDATE.
// true получает только тот вызов, который реально переключил false → true.
func (r *orderRepository) MarkNotified(orderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET notified = TRUE, updated_at = $2
		WHERE id = $1 AND notified = FALSE
	`, orderID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark order notified: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists string
	err = r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}

	return false, nil
}

func (r *orderRepository) loadDomains(ctx context.Context, orderID string) ([]domain.OrderDomain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain_name, price_minor, currency, registration_years, status, error, expires_at, created_at
		FROM order_domains
		WHERE order_id = $1
		ORDER BY created_at ASC, domain_name ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order domains: %w", err)
	}
	defer rows.Close()

	domains := make([]domain.OrderDomain, 0)
	for rows.Next() {
		var (
			d         domain.OrderDomain
			status    string
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&d.DomainName, &d.PriceMinor, &d.Currency, &d.RegistrationYears, &status, &d.Error, &expiresAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order domain: %w", err)
		}
		d.Status = domain.DomainStatus(status)
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			d.ExpiresAt = &t
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order domains: %w", err)
	}

	return domains, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
