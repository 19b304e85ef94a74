package repository

import (
	"context"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
)

type keyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
}

// KafkaResultPublisher writes detections to the result topic keyed by symbol,
// so results of one symbol stay on one partition.
type KafkaResultPublisher struct {
	producer keyedPublisher
	topic    string
}

func NewKafkaResultPublisher(producer keyedPublisher, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishDetection(ctx context.Context, d models.Detection) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Symbol), d)
}

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
