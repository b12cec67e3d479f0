package domain

import "time"

// DomainStatus описывает статус доменной позиции внутри заказа.
type DomainStatus string

const (
	// DomainStatusProcessing — исход регистрации ещё не определён; клиенту показывается "being processed".
	DomainStatusProcessing DomainStatus = "processing"
	// DomainStatusRegistered — домен подтверждённо зарегистрирован.
	DomainStatusRegistered DomainStatus = "registered"
	// DomainStatusFailed — регистрация подтверждённо не состоялась.
	DomainStatusFailed DomainStatus = "failed"
)

// Terminal сообщает, достигла ли позиция конечного состояния.
func (s DomainStatus) Terminal() bool {
	return s == DomainStatusRegistered || s == DomainStatusFailed
}

// OrderDomain представляет одну доменную позицию заказа.
type OrderDomain struct {
	DomainName string
	PriceMinor int64
	Currency   string
	// RegistrationYears — срок регистрации в годах.
	RegistrationYears int32
	Status            DomainStatus
	// Error заполняется только для failed-позиций.
	Error     string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Order агрегирует покупку доменов одним клиентом. Заказ создаётся внешним
// order-processing флоу; статусы позиций после появления PendingDomain пишет
// только reconciliation sync.
type Order struct {
	ID         string
	CustomerID string
	Domains    []OrderDomain
	// Notified — durable-флаг "клиент уведомлён"; гарантирует exactly-once
	// для уведомления даже при повторных прогонах sync.
	Notified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SuccessfulDomains возвращает имена подтверждённо зарегистрированных доменов.
func (o *Order) SuccessfulDomains() []string {
	result := make([]string, 0, len(o.Domains))
	for _, d := range o.Domains {
		if d.Status == DomainStatusRegistered {
			result = append(result, d.DomainName)
		}
	}
	return result
}

// AllResolved сообщает, что каждая позиция заказа достигла терминального статуса.
func (o *Order) AllResolved() bool {
	if len(o.Domains) == 0 {
		return false
	}
	for _, d := range o.Domains {
		if !d.Status.Terminal() {
			return false
		}
	}
	return true
}

// NotificationDue проверяет условие клиентского уведомления: все позиции
// терминальны, хотя бы одна зарегистрирована и уведомление ещё не отправлялось.
func (o *Order) NotificationDue() bool {
	return !o.Notified && o.AllResolved() && len(o.SuccessfulDomains()) > 0
}

// FindDomain возвращает позицию по имени домена.
func (o *Order) FindDomain(domainName string) (OrderDomain, bool) {
	for _, d := range o.Domains {
		if d.DomainName == domainName {
			return d, true
		}
	}
	return OrderDomain{}, false
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Domains) == 0 {
		errs = append(errs, ErrDomainsRequired)
	}
	for _, d := range o.Domains {
		if d.DomainName == "" {
			errs = append(errs, ErrDomainNameRequired)
		}
		if d.PriceMinor < 0 {
			errs = append(errs, ErrPriceNegative)
		}
		if d.RegistrationYears <= 0 {
			errs = append(errs, ErrRegistrationPeriodInvalid)
		}
	}

	return errs
}
