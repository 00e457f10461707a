package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"ai-image-detector/internal/model"
	"ai-image-detector/internal/platform/rabbitmq"
)

var errMalformedPayload = errors.New("malformed detection payload")

// DetectionStore is the persistence the worker writes to.
type DetectionStore interface {
	Create(detection *model.Detection) error
	ExistsByDetectionID(detectionID string) (bool, error)
}

// DetectionPersistWorker consumes published detections and stores them.
type DetectionPersistWorker struct {
	conn      *amqp.Connection
	store     DetectionStore
	queueName string
	log       logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDetectionPersistWorker(conn *amqp.Connection, store DetectionStore, queueName string, log logrus.FieldLogger) *DetectionPersistWorker {
	return &DetectionPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		log:       log,
	}
}

func (w *DetectionPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(d.Body); err != nil {
					requeue := shouldRequeue(err)
					w.log.WithError(err).WithFields(logrus.Fields{"message_id": d.MessageId, "requeue": requeue}).Warn("worker nack detection")
					_ = d.Nack(false, requeue)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// handle stores one payload. Redelivered detections are acknowledged without
// a second insert.
func (w *DetectionPersistWorker) handle(body []byte) error {
	detection, err := rabbitmq.DecodeDetection(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	exists, err := w.store.ExistsByDetectionID(detection.DetectionID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return w.store.Create(&detection)
}

// shouldRequeue keeps store failures on the queue; malformed payloads are dropped.
func shouldRequeue(err error) bool {
	return !errors.Is(err, errMalformedPayload)
}

func (w *DetectionPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
