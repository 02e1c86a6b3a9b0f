package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"vereinsportal/internal/transport/producer"
)

// Kafka отдаёт письмо почтовому шлюзу объединения через топик
type Kafka struct {
	producer producer.Producer
}

func NewKafka(p producer.Producer) *Kafka {
	return &Kafka{producer: p}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}
	// ключ по id письма: повторы одного письма попадают в одну партицию
	return k.producer.ProduceMessage(ctx, strconv.FormatInt(msg.ID, 10), payload)
}
