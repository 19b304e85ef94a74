package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	domsvc "FinShock/internal/domain/service"
	xhttp "FinShock/pkg/http"
	pkgkafka "FinShock/pkg/kafka"
)

// KafkaDetectHandler consumes DetectRequest messages and publishes each
// Detection to the result topic.
type KafkaDetectHandler struct {
	topic     string
	uc        *AnomalyUseCase
	publisher domrepo.ResultPublisher
}

func NewKafkaDetectHandler(topic string, uc *AnomalyUseCase, publisher domrepo.ResultPublisher) *KafkaDetectHandler {
	return &KafkaDetectHandler{topic: topic, uc: uc, publisher: publisher}
}

func (h *KafkaDetectHandler) Topic() string { return h.topic }

// Handle marks malformed and invalid requests permanent so they go to the DLQ
// without retries. Detector and publish failures are retried.
func (h *KafkaDetectHandler) Handle(ctx context.Context, b []byte) error {
	var req models.DetectRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.uc.Metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode request: %w", err))
	}
	if err := xhttp.ValidateStruct(&req); err != nil {
		h.uc.Metrics.RecordError("invalid_input")
		return pkgkafka.Permanent(fmt.Errorf("validate request: %w", err))
	}
	if req.RequestID == "" {
		req.RequestID = pkgkafka.TraceIDFrom(ctx)
	}

	d, err := h.uc.Detect(ctx, req, models.SourceKafka)
	if err != nil {
		if errors.Is(err, domsvc.ErrInvalidSeries) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	if err := h.publisher.PublishDetection(ctx, d); err != nil {
		h.uc.Metrics.RecordError("publish")
		return fmt.Errorf("publish detection: %w", err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaDetectHandler)(nil)
