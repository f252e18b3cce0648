package usecase

import (
	"context"
	"time"

	domrepo "speedliner/internal/domain/repository"
	pkgkafka "speedliner/pkg/kafka"
)

// KafkaRoutesHandler applies route documents published on a Kafka topic.
// Every message carries the complete collection.
type KafkaRoutesHandler struct {
	topic   string
	hub     *SessionHub
	metrics domrepo.Metrics
}

func NewKafkaRoutesHandler(topic string, hub *SessionHub, metrics domrepo.Metrics) *KafkaRoutesHandler {
	return &KafkaRoutesHandler{topic: topic, hub: hub, metrics: metricsOrNop(metrics)}
}

func (h *KafkaRoutesHandler) Topic() string { return h.topic }

func (h *KafkaRoutesHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	if _, err := h.hub.SetRoutesData(b); err != nil {
		h.metrics.RecordError("consumer_routes")
		return err
	}
	h.metrics.RecordLatency("routes_consume", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRoutesHandler)(nil)
