package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
)

// publishers получают события outbox.
type publishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initPublishers подключает Kafka, если заданы брокеры. Без брокеров или при
// ошибке подключения события пишутся в лог.
func initPublishers(cfg Config, logger *log.Entry) publishers {
	eventsTopic := topicOrDefault(cfg.KafkaTopic, kafka.TopicOrderEvents)
	dlqTopic := topicOrDefault(cfg.KafkaDLQTopic, kafka.TopicDeadLetterQueue)
	fallback := publishers{
		events: outbox.NewLogPublisher(eventsTopic),
		dlq:    outbox.NewLogPublisher(dlqTopic),
	}

	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not set, outbox events are logged")
		return fallback
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return fallback
	}

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     eventsTopic,
		"dlq_topic": dlqTopic,
	}).Info("kafka producer initialized")
	return publishers{
		events:   kafka.NewOutboxPublisher(producer, eventsTopic),
		dlq:      kafka.NewOutboxPublisher(producer, dlqTopic),
		producer: producer,
	}
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func topicOrDefault(topic, fallback string) string {
	if topic = strings.TrimSpace(topic); topic != "" {
		return topic
	}
	return fallback
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
