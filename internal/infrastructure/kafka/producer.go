package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

// Producer публикует события конвейера в Kafka в виде JSON.
type Producer struct {
	writer *kafka.Writer
	logger logger.Logger
	cfg    *cfg.KafkaCfg
}

func NewProducer(logger logger.Logger, cfg *cfg.KafkaCfg) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              10,
		BatchTimeout:           500 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warnf("Kafka producer error: %s", err.Error())
			}
		},
	}

	return &Producer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
	}
}

// eventMessage — формат события в топике.
type eventMessage struct {
	EventID    string         `json:"event_id"`
	Type       string         `json:"type"`
	ProductID  int64          `json:"product_id,omitempty"`
	JobID      int64          `json:"job_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publish отправляет событие. Ключом сообщения служит id товара или задания, чтобы события одной записи шли по порядку.
func (p *Producer) Publish(ctx context.Context, event *usecase.ConveyorEvent) error {
	key, value, err := encodeEvent(event)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeEvent(event *usecase.ConveyorEvent) ([]byte, []byte, error) {
	value, err := json.Marshal(eventMessage{
		EventID:    uuid.NewString(),
		Type:       event.Type,
		ProductID:  event.ProductID,
		JobID:      event.JobID,
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return nil, nil, err
	}

	key := "product-" + strconv.FormatInt(event.ProductID, 10)
	if event.ProductID == 0 {
		key = "job-" + strconv.FormatInt(event.JobID, 10)
	}

	return []byte(key), value, nil
}

// NopPublisher используется, когда Kafka выключена: события только пишутся в debug-лог.
type NopPublisher struct {
	logger logger.Logger
}

func NewNopPublisher(logger logger.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(_ context.Context, event *usecase.ConveyorEvent) error {
	p.logger.Debugf("event %s (product=%d job=%d) not published: kafka disabled", event.Type, event.ProductID, event.JobID)
	return nil
}
