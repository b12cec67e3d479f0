package memory

import (
	"sync"
	"time"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	if errs := (&order).ValidateInvariants(); len(errs) > 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// SetDomainStatus записывает статус доменной позиции заказа.
func (r *orderRepositoryInMemory) SetDomainStatus(orderID, domainName string, status domain.DomainStatus, errText string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}

	for i := range order.Domains {
		if order.Domains[i].DomainName != domainName {
			continue
		}
		order.Domains[i].Status = status
		order.Domains[i].Error = errText
		if expiresAt != nil {
			order.Domains[i].ExpiresAt = expiresAt
		}
		order.UpdatedAt = time.Now().UTC()
		r.items[orderID] = order
		return nil
	}

	return domain.ErrOrderDomainNotFound
}

// MarkNotified атомарно взводит флаг уведомления. true получает только тот
// вызов, который реально переключил false → true: на этом держится
// exactly-once клиентского уведомления.
func (r *orderRepositoryInMemory) MarkNotified(orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if order.Notified {
		return false, nil
	}

	order.Notified = true
	order.UpdatedAt = time.Now().UTC()
	r.items[orderID] = order
	return true, nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Domains = make([]domain.OrderDomain, len(src.Domains))
	copy(dst.Domains, src.Domains)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
