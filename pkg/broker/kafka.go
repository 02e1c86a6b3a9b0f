package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"vereinsportal/pkg/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	_consumerGroup = "vereinsportal-mail"
	_clientID      = "vereinsportal"
)

var errNoBrokers = errors.New("broker.kafka.brokers is empty")

type KafkaBroker struct {
	ConsumerTopic string
	ProducerTopic string
	ConsumerGroup sarama.ConsumerGroup
	SyncProducer  sarama.SyncProducer
	Brokers       []string
	conf          config.Kafka
	logger        *zap.SugaredLogger
}

// credentials — SASL-учётка. Читатель заявок и писатель исходящих писем — разные учётки.
type credentials struct {
	user, password string
}

func readerCredentials(conf config.Kafka) credentials {
	return credentials{conf.ReaderUsr, conf.ReaderUsrPwd}
}

func writerCredentials(conf config.Kafka) credentials {
	return credentials{conf.WriterUsr, conf.WriterUsrPwd}
}

func (c credentials) set() bool { return c.user != "" && c.password != "" }

func NewKafkaBroker(conf config.Kafka, logger *zap.SugaredLogger) (*KafkaBroker, error) {
	brokers := splitBrokers(conf.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}

	logger.Debugf("создание consumer group %s для brokers: %v", _consumerGroup, brokers)
	consumerGroup, err := sarama.NewConsumerGroup(brokers, _consumerGroup, consumerConfig(conf))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}

	logger.Debugf("создание producer для brokers: %v", brokers)
	syncProducer, err := sarama.NewSyncProducer(brokers, producerConfig(conf))
	if err != nil {
		_ = consumerGroup.Close()
		return nil, fmt.Errorf("kafka sync producer: %w", err)
	}

	return &KafkaBroker{
		ConsumerTopic: conf.ReaderTopic,
		ProducerTopic: conf.WriterTopic,
		ConsumerGroup: consumerGroup,
		SyncProducer:  syncProducer,
		Brokers:       brokers,
		conf:          conf,
		logger:        logger,
	}, nil
}

// HealthCheck проверяет, что producer и consumer group созданы и брокеры отвечают.
// client.Partitions() не используем: он требует Describe в ACL, а у сервисных учёток его может не быть.
func (kb *KafkaBroker) HealthCheck(ctx context.Context) error {
	if kb.SyncProducer == nil || kb.ConsumerGroup == nil {
		return errors.New("kafka broker is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	creds := writerCredentials(kb.conf)
	if !creds.set() {
		creds = readerCredentials(kb.conf)
	}
	cfg := baseConfig(creds, 2*time.Second)
	cfg.Metadata.Retry.Max = 1

	client, err := sarama.NewClient(kb.Brokers, cfg)
	if err != nil {
		return fmt.Errorf("kafka brokers unreachable: %w", err)
	}
	defer client.Close()

	if len(client.Brokers()) == 0 {
		return errors.New("no kafka brokers available")
	}
	return nil
}

// Close закрывает producer и consumer group, ошибки собираются в одну
func (kb *KafkaBroker) Close() error {
	var errs []error
	if kb.SyncProducer != nil {
		if err := kb.SyncProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer: %w", err))
		}
	}
	if kb.ConsumerGroup != nil {
		if err := kb.ConsumerGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer group: %w", err))
		}
	}
	return errors.Join(errs...)
}

func EnableSaramaZapLogs(base *zap.SugaredLogger) {
	sarama.Logger = &zapSarama{base.Named("sarama")}
}

type zapSarama struct{ l *zap.SugaredLogger }

func (z *zapSarama) Print(v ...interface{})                 { z.l.Debug(v...) }
func (z *zapSarama) Printf(format string, v ...interface{}) { z.l.Debugf(format, v...) }
func (z *zapSarama) Println(v ...interface{})               { z.l.Debug(v...) }

// splitBrokers разбирает "host1:9092, host2:9092", пустые элементы отбрасываются
func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func baseConfig(creds credentials, netTimeout time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = _clientID
	cfg.Net.DialTimeout = netTimeout
	cfg.Net.ReadTimeout = netTimeout
	cfg.Net.WriteTimeout = netTimeout
	cfg.Metadata.Timeout = netTimeout

	if creds.set() {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		cfg.Net.SASL.User = creds.user
		cfg.Net.SASL.Password = creds.password
	}
	return cfg
}

func consumerConfig(conf config.Kafka) *sarama.Config {
	cfg := baseConfig(readerCredentials(conf), 10*time.Second)
	// заявки на письма не должны теряться при рестарте до коммита оффсета
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

// producerConfig: повторы делает KafkaProducer сам, поэтому у sarama Retry.Max = 0
func producerConfig(conf config.Kafka) *sarama.Config {
	cfg := baseConfig(writerCredentials(conf), 15*time.Second)
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.KeepAlive = 30 * time.Second
	cfg.Metadata.Timeout = 10 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = time.Second
	cfg.Metadata.RefreshFrequency = time.Minute

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 0
	cfg.Producer.Timeout = 10 * time.Second
	// ключ сообщения — адрес получателя, письма одному адресату идут в одну партицию
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}
