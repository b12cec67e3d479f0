package registrar

import (
	"strings"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// Маркеры асинхронной обработки на стороне регистратора: истинный исход
// на момент ответа неизвестен и станет известен позже.
var ambiguousMarkers = []string{
	"order locked for processing",
	"order is locked",
	"already exists in database",
	"already exists",
	"is currently being processed",
	"request queued",
}

// Маркеры однозначного отказа: регистратор отклонил запрос и точно
// не продолжит его обрабатывать.
var hardFailureMarkers = []string{
	"invalid domain name",
	"domain name is invalid",
	"payment declined",
	"payment was rejected",
	"insufficient funds in debit account",
	"premium domain",
	"tld is not supported",
}

// Маркеры явного успеха.
var successMarkers = []string{
	"\"status\":\"success\"",
	"\"status\": \"success\"",
	"status=success",
	"registration successful",
}

// Маркеры error-образного текста. Встречаются и внутри ответов с успешным
// HTTP-кодом: регистратор умеет возвращать 200 с ошибкой в теле.
var errorShapedMarkers = []string{
	"\"status\":\"error\"",
	"\"status\": \"error\"",
	"status=error",
	"error",
	"failed",
	"failure",
	"rejected",
	"declined",
	"invalid",
}

// Classify разбирает один сырой ответ регистратора в вердикт закрытого набора
// {success, hard_failure, ambiguous_pending}. Функция чистая: никаких сайд-эффектов,
// только текст и HTTP-код.
//
// Политика при сомнении между hard_failure и ambiguous_pending — всегда
// ambiguous_pending: ложный «failed» клиенту, чей домен на самом деле
// зарегистрировался, дороже временного «being processed».
func Classify(resp domain.RegistrarResponse) domain.Classification {
	body := strings.ToLower(resp.Body)

	// Асинхронные и «already exists»-ответы проверяются первыми: такой текст
	// может сопровождаться любым HTTP-кодом, включая успешный.
	if marker, ok := containsAny(body, ambiguousMarkers); ok {
		return domain.Classification{
			Outcome: domain.OutcomeAmbiguousPending,
			Reason:  reasonFor(resp, marker),
		}
	}

	if marker, ok := containsAny(body, hardFailureMarkers); ok {
		return domain.Classification{
			Outcome: domain.OutcomeHardFailure,
			Reason:  reasonFor(resp, marker),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Успешный HTTP-код ничего не гарантирует: тело обязано пройти
		// проверку на error-образный текст.
		if marker, ok := containsAny(body, errorShapedMarkers); ok {
			return domain.Classification{
				Outcome: domain.OutcomeAmbiguousPending,
				Reason:  reasonFor(resp, marker),
			}
		}
		if _, ok := containsAny(body, successMarkers); ok {
			return domain.Classification{
				Outcome: domain.OutcomeSuccess,
				Reason:  "registration confirmed by registrar",
			}
		}
		// 2xx без явного маркера успеха не считается успехом.
		return domain.Classification{
			Outcome: domain.OutcomeAmbiguousPending,
			Reason:  reasonFor(resp, "no explicit success marker"),
		}
	}

	// Не-2xx без однозначного текста отказа: регистратор мог принять заказ
	// до того, как вернул ошибку.
	return domain.Classification{
		Outcome: domain.OutcomeAmbiguousPending,
		Reason:  reasonFor(resp, "non-success status without explicit rejection"),
	}
}

func containsAny(body string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(body, m) {
			return m, true
		}
	}
	return "", false
}

const maxReasonLen = 256

// reasonFor собирает человекочитаемое объяснение вердикта из сработавшего
// маркера и усечённого фрагмента тела ответа.
func reasonFor(resp domain.RegistrarResponse, marker string) string {
	snippet := strings.TrimSpace(resp.Body)
	if len(snippet) > maxReasonLen {
		snippet = snippet[:maxReasonLen]
	}
	if snippet == "" {
		return marker
	}
	return marker + ": " + snippet
}
