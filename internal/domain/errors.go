package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего имени домена.
	ErrDomainNameRequired = errors.New("domain_name is required")
	// Ошибка отрицательной цены регистрации.
	ErrPriceNegative = errors.New("price_minor must be non-negative")
	// Ошибка некорректного срока регистрации (<= 0 лет).
	ErrRegistrationPeriodInvalid = errors.New("registration period must be greater than zero")
	// Ошибка отсутствующего идентификатора клиента в заказе.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной доменной позиции в заказе.
	ErrDomainsRequired = errors.New("order must contain at least one domain")
	// Ошибка неподдерживаемого статуса pending-записи.
	ErrPendingStatusInvalid = errors.New("pending status is invalid")
	// Ошибка отрицательного счётчика проверок.
	ErrAttemptsNegative = errors.New("verification_attempts must be non-negative")

	// ErrPendingNotFound возвращается, если pending-запись не найдена в репозитории.
	ErrPendingNotFound = errors.New("pending domain not found")
	// ErrPendingNotClaimable сигнализирует о проигранной гонке за запись:
	// условный переход pending → processing не сработал, запись обрабатывает другой процессор.
	ErrPendingNotClaimable = errors.New("pending domain is not claimable")
	// ErrPendingInvalidTransition — запрошенный переход не разрешён state machine.
	ErrPendingInvalidTransition = errors.New("invalid pending domain status transition")
	// ErrPendingDuplicate — обнаружена вторая нетерминальная запись для пары (order, domain).
	ErrPendingDuplicate = errors.New("duplicate non-terminal pending domain")
	// ErrPendingAlreadyCompleted — ручной retry запрещён для уже зарегистрированного домена.
	ErrPendingAlreadyCompleted = errors.New("pending domain is already completed")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — попытка создать заказ с занятым идентификатором.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderDomainNotFound — в заказе нет позиции с таким именем домена.
	ErrOrderDomainNotFound = errors.New("order domain entry not found")

	// ErrRegistrarUnavailable — транспортная недоступность регистратора после всех retry.
	ErrRegistrarUnavailable = errors.New("registrar is unavailable")
	// ErrVerificationInconclusive — проверка доступности завершилась, но не дала
	// однозначного ответа; попытка засчитывается, запись остаётся нетерминальной.
	ErrVerificationInconclusive = errors.New("availability check is inconclusive")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки идемпотентного intake-эндпоинта.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request payload")
)

// IsNotClaimable проверяет, является ли ошибка проигранной гонкой за запись.
func IsNotClaimable(err error) bool {
	return errors.Is(err, ErrPendingNotClaimable)
}
