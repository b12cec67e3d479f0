package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama/mocks"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Domains: []domain.OrderDomain{
			{DomainName: "a.com", Status: domain.DomainStatusRegistered},
			{DomainName: "b.io", Status: domain.DomainStatusFailed},
		},
	}
}

func TestKafkaNotifierPublishes(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	notifier := NewKafkaNotifier(kafka.NewProducerWithSync(mockProducer))
	if err := notifier.NotifyOrderResolved(context.Background(), sampleOrder()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKafkaNotifierNilProducer(t *testing.T) {
	notifier := NewKafkaNotifier(nil)
	if err := notifier.NotifyOrderResolved(context.Background(), sampleOrder()); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestKafkaNotifierCanceledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	notifier := NewKafkaNotifier(kafka.NewProducerWithSync(mockProducer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := notifier.NotifyOrderResolved(ctx, sampleOrder()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMockNotifier(t *testing.T) {
	mock := NewMockNotifier()

	if err := mock.NotifyOrderResolved(context.Background(), sampleOrder()); err != nil {
		t.Fatalf("unexpected notify error: %v", err)
	}

	mock.Err = errors.New("smtp down")
	if err := mock.NotifyOrderResolved(context.Background(), sampleOrder()); err == nil {
		t.Fatal("expected notify error")
	}

	if mock.Calls != 2 {
		t.Fatalf("unexpected call counter: %d", mock.Calls)
	}
	if ids := mock.NotifiedOrderIDs(); len(ids) != 1 || ids[0] != "order-1" {
		t.Fatalf("unexpected notified order ids: %v", ids)
	}
}
