package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ai-image-detector/internal/model"
)

// DetectionPublisher hands finished detections to the persist worker.
type DetectionPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewDetectionPublisher(conn *amqp.Connection, queueName string) *DetectionPublisher {
	return &DetectionPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *DetectionPublisher) Record(ctx context.Context, detection model.Detection) error {
	payload, err := EncodeDetection(detection)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    detection.DetectionID,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish detection failed: %w", err)
	}
	return nil
}

func EncodeDetection(detection model.Detection) ([]byte, error) {
	payload, err := json.Marshal(detection)
	if err != nil {
		return nil, fmt.Errorf("marshal detection payload failed: %w", err)
	}
	return payload, nil
}

func DecodeDetection(body []byte) (model.Detection, error) {
	var detection model.Detection
	if err := json.Unmarshal(body, &detection); err != nil {
		return model.Detection{}, fmt.Errorf("unmarshal detection payload failed: %w", err)
	}
	if detection.DetectionID == "" {
		return model.Detection{}, fmt.Errorf("detection payload has no detection_id")
	}
	return detection, nil
}
