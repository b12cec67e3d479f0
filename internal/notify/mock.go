package notify

import (
	"context"
	"sync"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// MockNotifier — конфигурируемая заглушка Notifier для тестов.
type MockNotifier struct {
	mu sync.Mutex

	Err error

	Calls  int
	Orders []domain.Order
}

// NewMockNotifier возвращает mock с успешным сценарием по умолчанию.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// NotifyOrderResolved возвращает настроенный результат и запоминает заказы.
func (m *MockNotifier) NotifyOrderResolved(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err == nil {
		m.Orders = append(m.Orders, order)
	}
	return m.Err
}

// NotifiedOrderIDs возвращает идентификаторы заказов из успешных вызовов.
func (m *MockNotifier) NotifiedOrderIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Orders))
	for _, o := range m.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}

var _ domain.Notifier = (*MockNotifier)(nil)
