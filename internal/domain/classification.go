package domain

// Outcome — закрытый набор вердиктов классификатора ответов регистратора.
type Outcome string

const (
	// OutcomeSuccess — явный признак успеха без противоречащего текста ошибки.
	OutcomeSuccess Outcome = "success"
	// OutcomeHardFailure — однозначный отказ без признаков асинхронной обработки.
	OutcomeHardFailure Outcome = "hard_failure"
	// OutcomeAmbiguousPending — истинный исход неизвестен на момент ответа;
	// запись уходит в pending-хранилище и разрешается верификацией.
	OutcomeAmbiguousPending Outcome = "ambiguous_pending"
)

// Valid проверяет принадлежность вердикта закрытому набору.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeHardFailure, OutcomeAmbiguousPending:
		return true
	default:
		return false
	}
}

// Classification — результат разбора одного сырого ответа регистратора.
type Classification struct {
	Outcome Outcome
	// Reason — извлечённое человекочитаемое объяснение; для ambiguous-вердиктов
	// сохраняется в PendingDomain.Reason как provisional-текст.
	Reason string
}
