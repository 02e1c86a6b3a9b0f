package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"
	"vereinsportal/docs"
	"vereinsportal/internal/application"
	"vereinsportal/pkg/broker"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/db"
	"vereinsportal/pkg/httpserver"
	"vereinsportal/pkg/metrics"
	"vereinsportal/pkg/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// @title           Vereinsportal Mail API
// @version         1.0
// @description     Почтовое ядро портала объединения: outbox, ссылки с токенами, напоминания о терминах

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @BasePath /api

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.InitLogger(conf.LoggingLevel, "vereinsportal")
	defer func() { _ = logger.Sync() }()

	logger.Infof("LOGGING_LEVEL = %s", conf.LoggingLevel)
	if strings.ToLower(conf.LoggingLevel) == "debug" {
		broker.EnableSaramaZapLogs(logger)
	}

	docs.SwaggerInfo.Host = conf.Server.SwaggerHost
	docs.SwaggerInfo.Schemes = []string{conf.Server.SwaggerSchema}

	m := metrics.New(prometheus.DefaultRegisterer)

	fiberServer := httpserver.NewFiber(conf, m)
	if fiberServer == nil {
		logger.Fatal(errors.New("fiber server is nil"))
	}

	store, err := db.NewPostgres(ctx, conf.Postgres)
	if err != nil {
		logger.Fatal(err)
	}

	// Redis нужен для общего лимитера и CSRF-токенов нескольких реплик
	var redisClient *redis.Client
	if conf.RateLimit.Store == "redis" {
		redisClient, err = db.NewRedis(ctx, conf.Redis)
		if err != nil {
			logger.Fatal(err)
		}
	}

	var kafka *broker.KafkaBroker
	if conf.Broker.Kafka.Enabled {
		kafka, err = broker.NewKafkaBroker(conf.Broker.Kafka, logger)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("🚀 Kafka broker создан успешно. Consumer topic: %s, Producer topic: %s", kafka.ConsumerTopic, kafka.ProducerTopic)
	} else {
		logger.Info("kafka disabled: mail requests topic is not consumed")
	}

	server, err := application.NewApp(ctx, &conf, logger, store, redisClient, fiberServer, kafka, m)
	if err != nil {
		logger.Fatal(err)
	}

	logger.Info("Vereinsportal started successfully")
	logger.Info(fmt.Sprintf("Server config: port=%s trusted_proxies=%v", conf.Server.Port, conf.Server.TrustedProxies))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("error listening for server: %v", err)
				return
			}

			logger.Infof("server %v closed", conf.Server.Port)
		}
	}()

	//graceful shutdown
	osSignal := <-interrupt
	switch osSignal {
	case os.Interrupt:
		logger.Infof("%v Got SIGINT...", conf.Server.Port)
	case syscall.SIGTERM:
		logger.Infof("%v Got SIGTERM...", conf.Server.Port)
	}

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Errorf("server %v forced to shutdown: %v", conf.Server.Port, err)
	}

	store.Close()
	logger.Infof("postgres db connection closed")

	logger.Infof("server shutdown %v done", conf.Server.Port)
}
