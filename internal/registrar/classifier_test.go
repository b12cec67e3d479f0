package registrar

import (
	"testing"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

func TestClassifyExplicitSuccess(t *testing.T) {
	c := Classify(domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"Success","entityid":"81230045","description":"example.com"}`,
	})

	if c.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", c.Outcome, c.Reason)
	}
}

func TestClassifyLockedForProcessingIsNeverHardFailure(t *testing.T) {
	bodies := []string{
		`{"status":"error","message":"Order locked for processing"}`,
		`The Order is locked for processing`,
		`{"status":"ERROR","message":"Domain example.com already exists in database"}`,
		`Website already exists`,
	}

	for _, body := range bodies {
		c := Classify(domain.RegistrarResponse{StatusCode: 200, Body: body})
		if c.Outcome != domain.OutcomeAmbiguousPending {
			t.Fatalf("body %q: expected ambiguous_pending, got %s", body, c.Outcome)
		}
	}
}

func TestClassifySuccessStatusWithErrorBody(t *testing.T) {
	// Регистратор возвращает 200 с ошибкой в теле — классификатор обязан
	// смотреть в тело даже при успешном HTTP-коде.
	c := Classify(domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Something went wrong while processing"}`,
	})

	if c.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("expected ambiguous_pending, got %s", c.Outcome)
	}
}

func TestClassifyHardFailure(t *testing.T) {
	bodies := []string{
		`{"status":"error","message":"Invalid Domain Name"}`,
		`{"status":"error","message":"Payment declined by processor"}`,
		`{"status":"error","message":"This is a premium domain and cannot be registered through this channel"}`,
	}

	for _, body := range bodies {
		c := Classify(domain.RegistrarResponse{StatusCode: 400, Body: body})
		if c.Outcome != domain.OutcomeHardFailure {
			t.Fatalf("body %q: expected hard_failure, got %s", body, c.Outcome)
		}
	}
}

func TestClassifyAmbiguousMarkerBeatsHardFailureMarker(t *testing.T) {
	// Сомнение между отказом и асинхронной обработкой решается в пользу
	// ambiguous: оба маркера в одном теле — вердикт ambiguous_pending.
	c := Classify(domain.RegistrarResponse{
		StatusCode: 400,
		Body:       `{"status":"error","message":"Invalid Domain Name: order locked for processing"}`,
	})

	if c.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("expected ambiguous_pending, got %s", c.Outcome)
	}
}

func TestClassifySuccessCodeWithoutMarkerIsAmbiguous(t *testing.T) {
	c := Classify(domain.RegistrarResponse{StatusCode: 200, Body: `{"entityid":"81230045"}`})

	if c.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("expected ambiguous_pending, got %s", c.Outcome)
	}
}

func TestClassifyNonSuccessWithoutRejectionIsAmbiguous(t *testing.T) {
	c := Classify(domain.RegistrarResponse{StatusCode: 409, Body: `temporary condition`})

	if c.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("expected ambiguous_pending, got %s", c.Outcome)
	}
}

func TestClassifyReasonIsTruncated(t *testing.T) {
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'x'
	}

	c := Classify(domain.RegistrarResponse{StatusCode: 200, Body: "error " + string(long)})
	if len(c.Reason) > maxReasonLen+len("error")+2 {
		t.Fatalf("reason not truncated: %d chars", len(c.Reason))
	}
}
