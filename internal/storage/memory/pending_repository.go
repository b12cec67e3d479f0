package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// pendingRepositoryInMemory — in-memory реализация PendingDomainRepository.
// Держит те же инварианты, что и postgres-реализация: одна нетерминальная
// запись на пару (order_id, domain_name), атомарный claim, идемпотентные
// терминальные переходы.
type pendingRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.PendingDomain
}

// NewPendingRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewPendingRepository() domain.PendingDomainRepository {
	return &pendingRepositoryInMemory{
		items: make(map[string]domain.PendingDomain),
	}
}

// Upsert создаёт запись либо обновляет существующую нетерминальную запись
// той же пары (order_id, domain_name). Вся операция под одним мьютексом —
// конкурентные вызовы для одной пары сойдутся в одну запись.
func (r *pendingRepositoryInMemory) Upsert(p domain.PendingDomain) (domain.PendingDomain, error) {
	if errs := (&p).ValidateInvariants(); len(errs) > 0 {
		return domain.PendingDomain{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := r.findNonTerminal(p.OrderID, p.DomainName); ok {
		existing.Reason = p.Reason
		existing.PriceMinor = p.PriceMinor
		existing.Currency = p.Currency
		existing.RegistrationYears = p.RegistrationYears
		existing.NameServers = append([]string(nil), p.NameServers...)
		if p.RegistrarOrderID != "" {
			existing.RegistrarOrderID = p.RegistrarOrderID
		}
		existing.UpdatedAt = now
		r.items[existing.ID] = existing
		return existing, nil
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PendingStatusPending
	}
	p.NameServers = append([]string(nil), p.NameServers...)
	p.CreatedAt = now
	p.UpdatedAt = now
	r.items[p.ID] = p
	return p, nil
}

// Get возвращает запись или ErrPendingNotFound.
func (r *pendingRepositoryInMemory) Get(id string) (domain.PendingDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.PendingDomain{}, domain.ErrPendingNotFound
	}
	return p, nil
}

// GetByOrderDomain возвращает нетерминальную запись пары, если она есть.
func (r *pendingRepositoryInMemory) GetByOrderDomain(orderID, domainName string) (domain.PendingDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.findNonTerminal(orderID, domainName)
	if !ok {
		return domain.PendingDomain{}, domain.ErrPendingNotFound
	}
	return p, nil
}

// GetByRegistrarOrderID возвращает нетерминальную запись по идентификатору
// заказа на стороне регистратора.
func (r *pendingRepositoryInMemory) GetByRegistrarOrderID(registrarOrderID string) (domain.PendingDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if registrarOrderID == "" {
		return domain.PendingDomain{}, domain.ErrPendingNotFound
	}
	for _, p := range r.items {
		if p.RegistrarOrderID == registrarOrderID && !p.Status.Terminal() {
			return p, nil
		}
	}
	return domain.PendingDomain{}, domain.ErrPendingNotFound
}

// List возвращает записи по фильтру, отсортированные по времени создания (новые первыми).
func (r *pendingRepositoryInMemory) List(filter domain.PendingFilter) ([]domain.PendingDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.PendingDomain, 0, len(r.items))
	for _, p := range r.items {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.NeedsReview != nil && p.NeedsReview != *filter.NeedsReview {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.DomainName), needle) &&
				!strings.Contains(strings.ToLower(p.OrderID), needle) {
				continue
			}
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return paginate(result, filter.Limit, filter.Offset), nil
}

// ListEligible возвращает записи, доступные планировщику: status=pending,
// счётчик проверок ниже лимита, без флага ручной верификации.
func (r *pendingRepositoryInMemory) ListEligible(maxAttempts, limit int) ([]domain.PendingDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.PendingDomain, 0, limit)
	for _, p := range r.items {
		if p.Status != domain.PendingStatusPending {
			continue
		}
		if p.NeedsReview {
			continue
		}
		if maxAttempts > 0 && p.VerificationAttempts >= maxAttempts {
			continue
		}
		result = append(result, p)
	}

	// Старые записи первыми: планировщик не должен морить голодом давние пары.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Claim атомарно переводит pending → processing. Проигравший гонку вызов
// получает ErrPendingNotClaimable, а не второй registrar-вызов.
func (r *pendingRepositoryInMemory) Claim(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ErrPendingNotFound
	}
	if p.Status != domain.PendingStatusPending {
		return domain.ErrPendingNotClaimable
	}

	p.Status = domain.PendingStatusProcessing
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return nil
}

// Transition применяет валидируемый переход state machine. Повторный переход
// в уже достигнутый терминальный статус — no-op с changed=false.
func (r *pendingRepositoryInMemory) Transition(id string, in domain.TransitionInput) (domain.PendingDomain, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.PendingDomain{}, false, domain.ErrPendingNotFound
	}

	if p.Status == in.Status && in.Status.Terminal() {
		return p, false, nil
	}
	if !p.Status.CanTransitionTo(in.Status) {
		return domain.PendingDomain{}, false, domain.ErrPendingInvalidTransition
	}

	p.Status = in.Status
	if in.Reason != "" {
		p.Reason = in.Reason
	}
	if in.RegisteredAt != nil {
		p.RegisteredAt = in.RegisteredAt
	}
	if in.ExpiresAt != nil {
		p.ExpiresAt = in.ExpiresAt
	}
	if in.RegistrarOrderID != "" {
		p.RegistrarOrderID = in.RegistrarOrderID
	}
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return p, true, nil
}

// RecordAttempt атомарно инкрементирует счётчик проверок и метку времени.
func (r *pendingRepositoryInMemory) RecordAttempt(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return 0, domain.ErrPendingNotFound
	}

	now := time.Now().UTC()
	p.VerificationAttempts++
	p.LastVerifiedAt = &now
	p.UpdatedAt = now
	r.items[id] = p
	return p.VerificationAttempts, nil
}

// SetNeedsReview помечает запись для ручной верификации.
func (r *pendingRepositoryInMemory) SetNeedsReview(id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ErrPendingNotFound
	}

	p.NeedsReview = true
	if reason != "" {
		p.Reason = reason
	}
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return nil
}

// AppendAdminNote дописывает строку в admin_notes.
func (r *pendingRepositoryInMemory) AppendAdminNote(id string, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ErrPendingNotFound
	}

	if p.AdminNotes == "" {
		p.AdminNotes = note
	} else {
		p.AdminNotes += "\n" + note
	}
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return nil
}

// Override принудительно выставляет статус в обход state machine.
func (r *pendingRepositoryInMemory) Override(id string, status domain.PendingStatus, reason string) (domain.PendingDomain, error) {
	if !status.Valid() {
		return domain.PendingDomain{}, domain.ErrPendingStatusInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.PendingDomain{}, domain.ErrPendingNotFound
	}

	p.Status = status
	if reason != "" {
		p.Reason = reason
	}
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return p, nil
}

// Delete физически удаляет запись.
func (r *pendingRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrPendingNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *pendingRepositoryInMemory) findNonTerminal(orderID, domainName string) (domain.PendingDomain, bool) {
	for _, p := range r.items {
		if p.OrderID == orderID && p.DomainName == domainName && !p.Status.Terminal() {
			return p, true
		}
	}
	return domain.PendingDomain{}, false
}

func paginate(items []domain.PendingDomain, limit, offset int) []domain.PendingDomain {
	if offset > 0 {
		if offset >= len(items) {
			return []domain.PendingDomain{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var _ domain.PendingDomainRepository = (*pendingRepositoryInMemory)(nil)
