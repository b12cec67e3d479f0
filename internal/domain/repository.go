package domain

import "time"

// PendingFilter задаёт выборку pending-записей для админ-листинга и планировщика.
type PendingFilter struct {
	// Status пустой — без фильтра по статусу.
	Status PendingStatus
	// Search ищет по подстроке в domain_name и order_id.
	Search string
	// NeedsReview nil — без фильтра по флагу ручной верификации.
	NeedsReview *bool
	Limit       int
	Offset      int
}

// TransitionInput описывает один валидируемый переход state machine.
type TransitionInput struct {
	Status PendingStatus
	Reason string
	// Поля результата регистрации, применяются при переходе в completed.
	RegisteredAt     *time.Time
	ExpiresAt        *time.Time
	RegistrarOrderID string
}

// PendingDomainRepository описывает требования к хранилищу pending-записей.
type PendingDomainRepository interface {
	// Upsert создаёт запись либо обновляет существующую нетерминальную запись
	// той же пары (order_id, domain_name): дубликат нетерминальной записи
	// не появляется даже при гонке.
	Upsert(p PendingDomain) (PendingDomain, error)
	// Get возвращает запись по идентификатору или ErrPendingNotFound.
	Get(id string) (PendingDomain, error)
	// GetByOrderDomain возвращает нетерминальную запись пары, если она есть.
	GetByOrderDomain(orderID, domainName string) (PendingDomain, error)
	// GetByRegistrarOrderID возвращает нетерминальную запись по идентификатору
	// заказа на стороне регистратора (путь разрешения через callback).
	GetByRegistrarOrderID(registrarOrderID string) (PendingDomain, error)
	// List возвращает записи по фильтру с пагинацией.
	List(filter PendingFilter) ([]PendingDomain, error)
	// ListEligible возвращает записи, доступные планировщику: status=pending,
	// verification_attempts < maxAttempts, needs_review=false.
	ListEligible(maxAttempts, limit int) ([]PendingDomain, error)
	// Claim атомарно переводит pending → processing; ErrPendingNotClaimable,
	// если запись уже захвачена или терминальна. Это единственный механизм
	// взаимного исключения между планировщиком и ручным retry.
	Claim(id string) error
	// Transition применяет валидируемый переход. Возвращает changed=false без
	// ошибки, если запись уже находится в запрошенном терминальном статусе —
	// повторное применение терминального перехода обязано быть no-op.
	Transition(id string, in TransitionInput) (PendingDomain, bool, error)
	// RecordAttempt атомарно инкрементирует verification_attempts и обновляет
	// last_verified_at; возвращает новое значение счётчика.
	RecordAttempt(id string) (int, error)
	// SetNeedsReview помечает запись для ручной верификации (исчерпание лимита).
	SetNeedsReview(id string, reason string) error
	// AppendAdminNote дописывает строку в admin_notes (аудит ручных действий).
	AppendAdminNote(id string, note string) error
	// Override принудительно выставляет статус в обход state machine.
	// Используется только администратором для корректировки терминальных записей.
	Override(id string, status PendingStatus, reason string) (PendingDomain, error)
	// Delete физически удаляет запись — явная админ-операция вне reconciliation-флоу.
	Delete(id string) error
}

// OrderRepository описывает доступ к заказам со стороны reconciliation engine.
type OrderRepository interface {
	// Create сохраняет новый заказ (используется order-processing флоу и тестами).
	Create(order Order) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(id string) (Order, error)
	// SetDomainStatus записывает терминальный или промежуточный статус доменной
	// позиции. После появления PendingDomain для пары это делает только sync.
	SetDomainStatus(orderID, domainName string, status DomainStatus, errText string, expiresAt *time.Time) error
	// MarkNotified атомарно взводит флаг уведомления; возвращает true только
	// тому вызову, который реально переключил false → true.
	MarkNotified(orderID string) (bool, error)
}
