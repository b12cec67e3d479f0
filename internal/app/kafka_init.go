package app

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
)

const callbackConsumerGroup = "dreg-reconciler"

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startCallbackConsumer подписывается на отложенные callback регистратора.
// Callback с определённым статусом разрешает pending-запись через тот же
// reconcile-путь, что и верификация; сбойные сообщения уходят в DLQ.
func startCallbackConsumer(
	ctx context.Context,
	brokers string,
	syncSvc *reconcile.Sync,
	dlqProducer *kafka.Producer,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	if brokers == "" {
		return nil, nil
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseRegistrarCallbackEvent(message)
		if err != nil {
			return err
		}
		return syncSvc.ResolveFromCallback(ctx, *event)
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		strings.Split(brokers, ","),
		callbackConsumerGroup,
		[]string{kafka.TopicRegistrarCallbacks},
		handler,
		dlqProducer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create registrar callback consumer")
		return nil, err
	}

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start registrar callback consumer")
		return nil, err
	}
	return consumer, nil
}
