package registrar

import (
	"context"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// MockClient — конфигурируемая заглушка RegistrarClient для тестов.
type MockClient struct {
	RegisterResp domain.RegistrarResponse
	RegisterErr  error

	AvailabilityResult domain.AvailabilityResult
	AvailabilityErr    error

	RegisterCalls     int
	AvailabilityCalls int
}

// NewMockClient возвращает mock с успешным сценарием по умолчанию.
func NewMockClient() *MockClient {
	return &MockClient{
		RegisterResp: domain.RegistrarResponse{
			StatusCode: 200,
			Body:       `{"status":"Success","entityid":"mock-1"}`,
		},
		AvailabilityResult: domain.AvailabilityResult{
			State:  domain.AvailabilityTaken,
			Detail: "regthroughus",
		},
	}
}

// Register возвращает заранее настроенный ответ и считает вызовы.
func (m *MockClient) Register(ctx context.Context, req domain.RegistrationRequest) (domain.RegistrarResponse, error) {
	m.RegisterCalls++
	if m.RegisterErr != nil {
		return domain.RegistrarResponse{}, m.RegisterErr
	}
	return m.RegisterResp, nil
}

// CheckAvailability возвращает заранее настроенный результат и считает вызовы.
func (m *MockClient) CheckAvailability(ctx context.Context, sld, tld string) (domain.AvailabilityResult, error) {
	m.AvailabilityCalls++
	if m.AvailabilityErr != nil {
		return domain.AvailabilityResult{}, m.AvailabilityErr
	}
	return m.AvailabilityResult, nil
}

var _ domain.RegistrarClient = (*MockClient)(nil)
