package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

const pendingColumns = `
	id, order_id, domain_name, price_minor, currency, registration_years,
	user_id, customer_id, contact_id, admin_contact_id, tech_contact_id, billing_contact_id,
	name_servers, registrar_order_id, status, reason,
	verification_attempts, needs_review, last_verified_at,
	registered_at, expires_at, admin_notes, created_at, updated_at`

type pendingRepository struct {
	db *sql.DB
}

// NewPendingRepository создаёт PostgreSQL-реализацию PendingDomainRepository.
func NewPendingRepository(store *Store) domain.PendingDomainRepository {
	return &pendingRepository{db: store.DB()}
}

// Upsert создаёт запись либо обновляет существующую нетерминальную запись пары.
// Единственность нетерминальной записи держит частичный уникальный индекс:
// при гонке двух вставок вторая сходится в ON CONFLICT-ветку.
func (r *pendingRepository) Upsert(p domain.PendingDomain) (domain.PendingDomain, error) {
	if errs := (&p).ValidateInvariants(); len(errs) > 0 {
		return domain.PendingDomain{}, errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PendingStatusPending
	}
	now := time.Now().UTC()

	nameServers, err := json.Marshal(p.NameServers)
	if err != nil {
		return domain.PendingDomain{}, fmt.Errorf("marshal name servers: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO pending_domains (
			id, order_id, domain_name, price_minor, currency, registration_years,
			user_id, customer_id, contact_id, admin_contact_id, tech_contact_id, billing_contact_id,
			name_servers, registrar_order_id, status, reason,
			verification_attempts, needs_review, admin_notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,0,FALSE,'',$17,$17)
		ON CONFLICT (order_id, domain_name) WHERE status IN ('pending', 'processing')
		DO UPDATE SET
			reason = EXCLUDED.reason,
			price_minor = EXCLUDED.price_minor,
			currency = EXCLUDED.currency,
			registration_years = EXCLUDED.registration_years,
			name_servers = EXCLUDED.name_servers,
			registrar_order_id = CASE
				WHEN EXCLUDED.registrar_order_id <> '' THEN EXCLUDED.registrar_order_id
				ELSE pending_domains.registrar_order_id
			END,
			updated_at = EXCLUDED.updated_at
		RETURNING `+pendingColumns,
		p.ID, p.OrderID, p.DomainName, p.PriceMinor, p.Currency, p.RegistrationYears,
		p.UserID, p.CustomerID, p.ContactID, p.AdminContactID, p.TechContactID, p.BillingContactID,
		nameServers, p.RegistrarOrderID, string(p.Status), p.Reason, now,
	)

	stored, err := scanPending(row)
	if err != nil {
		return domain.PendingDomain{}, fmt.Errorf("upsert pending domain: %w", err)
	}
	return stored, nil
}

func (r *pendingRepository) Get(id string) (domain.PendingDomain, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_domains WHERE id = $1`, id)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingDomain{}, domain.ErrPendingNotFound
		}
		return domain.PendingDomain{}, fmt.Errorf("select pending domain: %w", err)
	}
	return p, nil
}

func (r *pendingRepository) GetByOrderDomain(orderID, domainName string) (domain.PendingDomain, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_domains
		WHERE order_id = $1 AND domain_name = $2 AND status IN ('pending', 'processing')
	`, orderID, domainName)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingDomain{}, domain.ErrPendingNotFound
		}
		return domain.PendingDomain{}, fmt.Errorf("select pending domain by pair: %w", err)
	}
	return p, nil
}

// GetByRegistrarOrderID возвращает нетерминальную запись по идентификатору
// заказа на стороне регистратора.
func (r *pendingRepository) GetByRegistrarOrderID(registrarOrderID string) (domain.PendingDomain, error) {
	if registrarOrderID == "" {
		return domain.PendingDomain{}, domain.ErrPendingNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_domains
		WHERE registrar_order_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at ASC
		LIMIT 1
	`, registrarOrderID)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingDomain{}, domain.ErrPendingNotFound
		}
		return domain.PendingDomain{}, fmt.Errorf("select pending domain by registrar order: %w", err)
	}
	return p, nil
}

func (r *pendingRepository) List(filter domain.PendingFilter) ([]domain.PendingDomain, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.NeedsReview != nil {
		args = append(args, *filter.NeedsReview)
		conditions = append(conditions, "needs_review = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := strconv.Itoa(len(args))
		conditions = append(conditions, "(LOWER(domain_name) LIKE $"+n+" OR LOWER(order_id) LIKE $"+n+")")
	}

	query := `SELECT ` + pendingColumns + ` FROM pending_domains`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending domains: %w", err)
	}
	defer rows.Close()

	return collectPending(rows)
}

// ListEligible выбирает кандидатов для планировщика: pending, ниже лимита
// проверок, без флага ручной верификации. Старые записи первыми.
func (r *pendingRepository) ListEligible(maxAttempts, limit int) ([]domain.PendingDomain, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_domains
		WHERE status = 'pending'
		  AND needs_review = FALSE
		  AND ($1 <= 0 OR verification_attempts < $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible pending domains: %w", err)
	}
	defer rows.Close()

	return collectPending(rows)
}

// Claim атомарно переводит pending → processing одним условным UPDATE.
// Ровно один из конкурирующих вызовов получает затронутую строку.
func (r *pendingRepository) Claim(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_domains
		SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim pending domain: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for claim: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrPendingNotFound
		}
		return domain.ErrPendingNotClaimable
	}

	return nil
}

// Transition применяет валидируемый переход под строчной блокировкой.
// Повторный переход в уже достигнутый терминальный статус — no-op.
func (r *pendingRepository) Transition(id string, in domain.TransitionInput) (domain.PendingDomain, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PendingDomain{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM pending_domains WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			_ = tx.Rollback()
			return domain.PendingDomain{}, false, domain.ErrPendingNotFound
		}
		return domain.PendingDomain{}, false, fmt.Errorf("lock pending domain: %w", err)
	}

	from := domain.PendingStatus(current)
	if from == in.Status && in.Status.Terminal() {
		_ = tx.Rollback()
		p, getErr := r.Get(id)
		return p, false, getErr
	}
	if !from.CanTransitionTo(in.Status) {
		err = nil
		_ = tx.Rollback()
		return domain.PendingDomain{}, false, domain.ErrPendingInvalidTransition
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE pending_domains
		SET status = $2,
		    reason = CASE WHEN $3 <> '' THEN $3 ELSE reason END,
		    registered_at = COALESCE($4, registered_at),
		    expires_at = COALESCE($5, expires_at),
		    registrar_order_id = CASE WHEN $6 <> '' THEN $6 ELSE registrar_order_id END,
		    updated_at = $7
		WHERE id = $1
		RETURNING `+pendingColumns,
		id, string(in.Status), in.Reason, in.RegisteredAt, in.ExpiresAt, in.RegistrarOrderID, time.Now().UTC(),
	)

	var p domain.PendingDomain
	p, err = scanPending(row)
	if err != nil {
		return domain.PendingDomain{}, false, fmt.Errorf("transition pending domain: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.PendingDomain{}, false, fmt.Errorf("commit transition: %w", err)
	}

	return p, true, nil
}

// RecordAttempt атомарно инкрементирует счётчик проверок.
func (r *pendingRepository) RecordAttempt(id string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE pending_domains
		SET verification_attempts = verification_attempts + 1,
		    last_verified_at = $2,
		    updated_at = $2
		WHERE id = $1
		RETURNING verification_attempts
	`, id, time.Now().UTC()).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrPendingNotFound
		}
		return 0, fmt.Errorf("record verification attempt: %w", err)
	}

	return attempts, nil
}

func (r *pendingRepository) SetNeedsReview(id string, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_domains
		SET needs_review = TRUE,
		    reason = CASE WHEN $2 <> '' THEN $2 ELSE reason END,
		    updated_at = $3
		WHERE id = $1
	`, id, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set needs review: %w", err)
	}
	return requireAffected(res, domain.ErrPendingNotFound)
}

func (r *pendingRepository) AppendAdminNote(id string, note string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_domains
		SET admin_notes = CASE WHEN admin_notes = '' THEN $2 ELSE admin_notes || E'\n' || $2 END,
		    updated_at = $3
		WHERE id = $1
	`, id, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append admin note: %w", err)
	}
	return requireAffected(res, domain.ErrPendingNotFound)
}

// Override принудительно выставляет статус в обход state machine.
func (r *pendingRepository) Override(id string, status domain.PendingStatus, reason string) (domain.PendingDomain, error) {
	if !status.Valid() {
		return domain.PendingDomain{}, domain.ErrPendingStatusInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE pending_domains
		SET status = $2,
		    reason = CASE WHEN $3 <> '' THEN $3 ELSE reason END,
		    updated_at = $4
		WHERE id = $1
		RETURNING `+pendingColumns,
		id, string(status), reason, time.Now().UTC(),
	)

	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingDomain{}, domain.ErrPendingNotFound
		}
		return domain.PendingDomain{}, fmt.Errorf("override pending domain: %w", err)
	}
	return p, nil
}

func (r *pendingRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_domains WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pending domain: %w", err)
	}
	return requireAffected(res, domain.ErrPendingNotFound)
}

func (r *pendingRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM pending_domains WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check pending domain exists: %w", err)
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPending(row rowScanner) (domain.PendingDomain, error) {
	var (
		p            domain.PendingDomain
		status       string
		nameServers  []byte
		lastVerified sql.NullTime
		registeredAt sql.NullTime
		expiresAt    sql.NullTime
	)

	if err := row.Scan(
		&p.ID, &p.OrderID, &p.DomainName, &p.PriceMinor, &p.Currency, &p.RegistrationYears,
		&p.UserID, &p.CustomerID, &p.ContactID, &p.AdminContactID, &p.TechContactID, &p.BillingContactID,
		&nameServers, &p.RegistrarOrderID, &status, &p.Reason,
		&p.VerificationAttempts, &p.NeedsReview, &lastVerified,
		&registeredAt, &expiresAt, &p.AdminNotes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.PendingDomain{}, err
	}

	p.Status = domain.PendingStatus(status)
	if len(nameServers) > 0 {
		if err := json.Unmarshal(nameServers, &p.NameServers); err != nil {
			return domain.PendingDomain{}, fmt.Errorf("unmarshal name servers: %w", err)
		}
	}
	if lastVerified.Valid {
		t := lastVerified.Time.UTC()
		p.LastVerifiedAt = &t
	}
	if registeredAt.Valid {
		t := registeredAt.Time.UTC()
		p.RegisteredAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		p.ExpiresAt = &t
	}

	return p, nil
}

func collectPending(rows *sql.Rows) ([]domain.PendingDomain, error) {
	result := make([]domain.PendingDomain, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending domain row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending domain rows: %w", err)
	}
	return result, nil
}

var _ domain.PendingDomainRepository = (*pendingRepository)(nil)
