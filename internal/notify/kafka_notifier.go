package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
)

// KafkaNotifier публикует запрос клиентского уведомления в Kafka.
// Фактическую доставку (email, SMS) выполняет отдельный notification-сервис,
// читающий topic notification requests.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	logger   *log.Entry
}

// NewKafkaNotifier создаёт notifier поверх Kafka producer.
func NewKafkaNotifier(producer *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    kafka.TopicNotificationRequests,
		logger:   log.WithField("component", "kafka-notifier"),
	}
}

// NotifyOrderResolved публикует событие notification.requested для заказа.
// Дедупликация обеспечивается вызывающей стороной через durable-флаг
// Order.Notified, поэтому здесь повторная публикация не проверяется.
func (n *KafkaNotifier) NotifyOrderResolved(ctx context.Context, order domain.Order) error {
	if n == nil || n.producer == nil {
		return fmt.Errorf("kafka notifier is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	event := kafka.NewNotificationEvent(order.ID, order.CustomerID, order.SuccessfulDomains())
	if err := n.producer.PublishEvent(n.topic, order.ID, event); err != nil {
		return fmt.Errorf("failed to publish notification request: %w", err)
	}

	n.logger.WithFields(log.Fields{
		"order_id":           order.ID,
		"successful_domains": len(event.SuccessfulDomains),
	}).Info("notification request published")
	return nil
}

var _ domain.Notifier = (*KafkaNotifier)(nil)
