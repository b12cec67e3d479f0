package domain

import "time"

// IdempotencyStatus — жизненный цикл ключа идемпотентности на intake-эндпоинте.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — попытка принята и классифицируется прямо сейчас.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — попытка обработана, сохранённый ответ отдаётся на повтор.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка упала, повтор с тем же ключом разрешён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord фиксирует обработку запроса с Idempotency-Key: повтор
// того же запроса получает сохранённый ответ вместо второй классификации.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid сообщает, относится ли статус к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
