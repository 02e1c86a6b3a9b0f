package application

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/internal/application/service"
	"vereinsportal/internal/application/use-cases"
	"vereinsportal/internal/controllers/cron"
	"vereinsportal/internal/controllers/handler"
	"vereinsportal/internal/controllers/listener"
	"vereinsportal/internal/transport/geocode"
	"vereinsportal/internal/transport/mailer"
	"vereinsportal/internal/transport/producer"
	"vereinsportal/pkg/broker"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/db"
	"vereinsportal/pkg/httpclient"
	"vereinsportal/pkg/metrics"
	"vereinsportal/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const csrfKeyPrefix = "vereinsportal:csrf:"

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	redis          *redis.Client
	httpServer     *fiber.App
	httpClient     *httpclient.Client
	kafka          *broker.KafkaBroker
	dispatcher     *service.Dispatcher
	cronController *cron.Controller
}

// NewApp собирает зависимости. kafkaBroker и redisClient могут быть nil.
func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	redisClient *redis.Client,
	httpServer *fiber.App,
	kafkaBroker *broker.KafkaBroker,
	m *metrics.Metrics) (*App, error) {
	//Логируем версию приложения
	logger.Infof("Запуск Vereinsportal версии: %s", common.Version)

	loc, err := time.LoadLocation(conf.Reminders.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone %q: %w", conf.Reminders.TimeZone, err)
	}

	clock := clockwork.NewRealClock()

	// Хранилище лимитера: Redis общий для всех реплик, memory только для одной
	var (
		counters ratelimit.Store
		sweeper  use_cases.Sweeper
	)
	switch conf.RateLimit.Store {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("ratelimit.store=redis, but redis client is not configured")
		}
		counters = ratelimit.NewRedisStore(redisClient)
	case "memory", "":
		mem := ratelimit.NewMemoryStore(clock)
		counters, sweeper = mem, mem
		logger.Warn("rate limit counters are kept in process memory; do not run more than one replica")
	default:
		return nil, fmt.Errorf("unknown ratelimit.store %q", conf.RateLimit.Store)
	}
	limiter := ratelimit.NewLimiter(counters, ratelimit.Config{
		MaxAttempts:  conf.RateLimit.MaxAttempts,
		Window:       conf.RateLimit.Window,
		Lockout:      conf.RateLimit.Lockout,
		StoreTimeout: conf.RateLimit.StoreTimeout,
	}, clock, logger, m)

	renderer, err := mailtemplate.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("mail templates: %w", err)
	}

	var (
		kafkaProducer producer.Producer
		kafkaHealth   service.HealthChecker
	)
	if kafkaBroker != nil {
		kafkaProducer = producer.NewProducer(kafkaBroker, logger, conf.Broker.Kafka.MaxAttempts, m)
		kafkaHealth = kafkaBroker
	}

	transport, err := mailer.New(conf.Mail, kafkaProducer, logger, m)
	if err != nil {
		return nil, err
	}

	httpClient := httpclient.NewClient(conf.HTTPClient)
	geocoder := geocode.NewNominatim(
		httpclient.NewRetryClient(httpClient, "nominatim", conf.HTTPClient.MaxRetries, logger, m),
		conf.Geocode.BaseURL, conf.Geocode.RequestsPerSecond, logger)

	repository := repo.NewRepo(postgres, logger)
	tx := repo.NewTransactions(repository, logger)

	srv := service.NewService(service.Deps{
		Repo:         repository,
		Transactions: tx,
		Limiter:      limiter,
		Renderer:     renderer,
		Geocoder:     geocoder,
		Kafka:        kafkaHealth,
		Clock:        clock,
		Logger:       logger,
		Config:       conf,
		Metrics:      m,
	})
	uc := use_cases.NewUseCase(srv, sweeper, logger, conf)

	dispatcher := service.NewDispatcher(repository, tx, renderer, transport, clock, logger, conf.Relay, m)

	cronController := cron.NewController(ctx, loc, logger)
	if err := cronController.RegisterReminderJob(uc, conf.Cron); err != nil {
		return nil, fmt.Errorf("cron reminders: %w", err)
	}
	if err := cronController.RegisterCleanupJob(uc, conf.Cron); err != nil {
		return nil, fmt.Errorf("cron cleanup: %w", err)
	}

	var csrfStorage fiber.Storage
	if redisClient != nil {
		csrfStorage = db.NewFiberStorage(redisClient, csrfKeyPrefix)
	}
	h := handler.NewHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, logger, csrfStorage)
	if err := r.RegisterRouter(); err != nil {
		return nil, err
	}

	dispatcher.Start(ctx)
	cronController.Start()

	app := &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		redis:          redisClient,
		httpServer:     httpServer,
		httpClient:     httpClient,
		kafka:          kafkaBroker,
		dispatcher:     dispatcher,
		cronController: cronController,
	}

	if kafkaBroker != nil {
		go app.runConsumer(ctx, uc, m)
	}

	return app, nil
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

// Shutdown: сначала HTTP, потом фоновые задачи, потом внешние соединения
func (a *App) Shutdown() error {
	err := a.httpServer.Shutdown()

	// Останавливаем cron задачи
	if a.cronController != nil {
		a.cronController.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.kafka != nil {
		if cerr := a.kafka.Close(); cerr != nil {
			a.logger.Errorf("kafka close: %v", cerr)
		}
	}
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.logger.Errorf("redis close: %v", cerr)
		}
	}
	a.httpClient.CloseIdle()

	return err
}

func (a *App) runConsumer(ctx context.Context, usecase use_cases.UseCaser, m *metrics.Metrics) {
	a.logger.Infof("🚀 Запуск consumer для топика: %s", a.kafka.ConsumerTopic)

	kafkaBrokerConsumer := listener.NewKafkaBrokerConsumer(usecase, a.logger, m)

	for {
		a.logger.Infof("🔄 Попытка подключения к consumer group...")
		err := a.kafka.ConsumerGroup.Consume(ctx, []string{a.kafka.ConsumerTopic}, kafkaBrokerConsumer)
		if err != nil {
			a.logger.Errorf("Ошибка consumer: %v", err)
		}
		if ctx.Err() != nil {
			a.logger.Info("Consumer остановлен по контексту")
			return
		}
		// consumer group закрыта или брокер недоступен — не крутимся вхолостую
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
