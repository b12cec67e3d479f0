package domain

import (
	"strings"
	"time"
)

// PendingStatus описывает жизненный цикл записи о неподтверждённой регистрации.
type PendingStatus string

const (
	// PendingStatusPending — зафиксирован неоднозначный ответ регистратора, проверка ещё не начата.
	PendingStatusPending PendingStatus = "pending"
	// PendingStatusProcessing — запись захвачена обработчиком, проверка выполняется прямо сейчас.
	PendingStatusProcessing PendingStatus = "processing"
	// PendingStatusCompleted — домен подтверждённо зарегистрирован (терминальный статус).
	PendingStatusCompleted PendingStatus = "completed"
	// PendingStatusFailed — домен подтверждённо не зарегистрирован либо закрыт администратором (терминальный статус).
	PendingStatusFailed PendingStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PendingStatus) Valid() bool {
	switch s {
	case PendingStatusPending, PendingStatusProcessing, PendingStatusCompleted, PendingStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным: из completed/failed
// автоматических переходов не существует.
func (s PendingStatus) Terminal() bool {
	return s == PendingStatusCompleted || s == PendingStatusFailed
}

// CanTransitionTo проверяет допустимость перехода по state machine:
// pending → processing, processing → completed|failed|pending, pending → failed.
// Переходы из терминальных статусов запрещены — корректировка терминальной
// записи выполняется отдельной операцией override, а не переходом.
func (s PendingStatus) CanTransitionTo(next PendingStatus) bool {
	switch s {
	case PendingStatusPending:
		return next == PendingStatusProcessing || next == PendingStatusFailed
	case PendingStatusProcessing:
		return next == PendingStatusCompleted || next == PendingStatusFailed || next == PendingStatusPending
	default:
		return false
	}
}

// PendingDomain — запись о домене, исход регистрации которого неизвестен.
// Уникальна по паре (OrderID, DomainName) среди нетерминальных записей.
type PendingDomain struct {
	ID         string
	OrderID    string
	DomainName string

	// PriceMinor — цена регистрации в минимальных денежных единицах.
	PriceMinor int64
	Currency   string
	// RegistrationYears — срок регистрации в годах.
	RegistrationYears int32

	// Ссылки на владельца и идентификаторы на стороне регистратора.
	UserID           string
	CustomerID       string
	ContactID        string
	AdminContactID   string
	TechContactID    string
	BillingContactID string
	NameServers      []string
	RegistrarOrderID string

	Status PendingStatus
	// Reason — человекочитаемое объяснение текущего статуса (текст регистратора или вердикт проверки).
	Reason string

	// VerificationAttempts — монотонно неубывающий счётчик завершённых проверок доступности.
	VerificationAttempts int
	// NeedsReview выставляется при исчерпании лимита проверок: запись исключается
	// из автоматического планировщика и ждёт ручной верификации.
	NeedsReview    bool
	LastVerifiedAt *time.Time

	RegisteredAt *time.Time
	ExpiresAt    *time.Time

	AdminNotes string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты записи и возвращает список замечаний.
func (p *PendingDomain) ValidateInvariants() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if strings.TrimSpace(p.DomainName) == "" {
		errs = append(errs, ErrDomainNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if p.RegistrationYears <= 0 {
		errs = append(errs, ErrRegistrationPeriodInvalid)
	}
	if !p.Status.Valid() {
		errs = append(errs, ErrPendingStatusInvalid)
	}
	if p.VerificationAttempts < 0 {
		errs = append(errs, ErrAttemptsNegative)
	}

	return errs
}

// SplitDomain разбивает полное имя домена на базовое имя и TLD.
// Проверка доступности обязана запрашивать именно эту пару, а не общий поиск.
func SplitDomain(domainName string) (sld, tld string, ok bool) {
	name := strings.ToLower(strings.TrimSpace(domainName))
	idx := strings.Index(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
