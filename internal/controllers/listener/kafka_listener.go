package listener

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/use-cases"
	"vereinsportal/pkg/metrics"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	processAttempts = 3
	retryBase       = 500 * time.Millisecond
	retryMax        = 5 * time.Second
)

// KafkaBrokerConsumer принимает заявки на письма от других сервисов объединения
type KafkaBrokerConsumer struct {
	usecase   use_cases.UseCaser
	logger    *zap.SugaredLogger
	m         *metrics.Metrics
	retryBase time.Duration
	retryMax  time.Duration
}

func NewKafkaBrokerConsumer(usecase use_cases.UseCaser, logger *zap.SugaredLogger, m *metrics.Metrics) *KafkaBrokerConsumer {
	return &KafkaBrokerConsumer{
		logger:    logger,
		usecase:   usecase,
		m:         m,
		retryBase: retryBase,
		retryMax:  retryMax,
	}
}

func (k *KafkaBrokerConsumer) Setup(session sarama.ConsumerGroupSession) error {
	k.logger.Infof("kafka setup, claims: %v", session.Claims())
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("setup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("kafka cleanup")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("cleanup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()
	ctx := session.Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			start := time.Now()
			k.logger.Debugf("message topic:%q partition:%d offset:%d", msg.Topic, msg.Partition, msg.Offset)

			result := k.process(ctx, msg)
			if result == "" {
				// ребаланс или остановка: оффсет не коммитим, сообщение получит следующий владелец партиции
				return nil
			}
			if k.m != nil {
				k.m.Kafka.ConsumerMessagesTotal.WithLabelValues(topic, result).Inc()
				k.m.Kafka.ConsumerProcessDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
			}
			if result == "error" {
				// оффсет не двигаем: выход из ConsumeClaim завершает сессию,
				// после переподключения сообщение придёт снова
				return fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, errNotProcessed)
			}

			session.MarkMessage(msg, "")
		}
	}
}

var errNotProcessed = errors.New("mail request not processed, left for redelivery")

// process возвращает метку результата: enqueued | rejected | error; "" — контекст отменён
func (k *KafkaBrokerConsumer) process(ctx context.Context, msg *sarama.ConsumerMessage) string {
	var err error
	for attempt := 0; attempt < processAttempts; attempt++ {
		err = k.usecase.ConsumeMailRequest(ctx, msg.Value, msg.Timestamp)
		if err == nil {
			return "enqueued"
		}

		var verr appers.ValidationError
		if errors.As(err, &verr) {
			k.logger.Warnf("[partition %d offset %d] mail request rejected: %v", msg.Partition, msg.Offset, verr.Details)
			return "rejected"
		}

		k.logger.Warnf("[partition %d offset %d] mail request failed, attempt %d: %v", msg.Partition, msg.Offset, attempt+1, err)
		if attempt+1 == processAttempts {
			break
		}
		if sleepErr := common.SleepCtx(ctx, common.NextBackoffWithJitter(attempt, k.retryBase, k.retryMax)); sleepErr != nil {
			return ""
		}
	}

	k.logger.Errorf("[partition %d offset %d] mail request failed %d times, offset not committed: %v", msg.Partition, msg.Offset, processAttempts, err)
	return "error"
}
