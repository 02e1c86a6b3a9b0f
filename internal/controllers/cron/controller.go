package cron

import (
	"context"
	"fmt"
	"time"
	"vereinsportal/internal/application/use-cases"
	"vereinsportal/pkg/config"

	"go.uber.org/zap"
)

const (
	defaultReminderSchedule = "0 0 8 * * *"
	defaultCleanupSchedule  = "0 30 3 * * *"
)

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

// NewController: расписания считаются в часовом поясе объединения
func NewController(ctx context.Context, loc *time.Location, logger *zap.SugaredLogger) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	return &Controller{
		scheduler: NewScheduler(ctx, loc),
		logger:    logger,
	}
}

// Поддерживает два режима:
// 1. По расписанию (cron с секундами): "0 0 8 * * *" - каждый день в 08:00
// 2. По интервалу: "@every 1h"
func (c *Controller) RegisterReminderJob(usecase use_cases.UseCaser, conf config.Cron) error {
	return c.register("напоминаний", conf.ReminderSchedule, defaultReminderSchedule, NewReminderJob(usecase, c.logger))
}

func (c *Controller) RegisterCleanupJob(usecase use_cases.UseCaser, conf config.Cron) error {
	return c.register("очистки токенов", conf.CleanupSchedule, defaultCleanupSchedule, NewCleanupJob(usecase, c.logger))
}

func (c *Controller) register(name, spec, fallback string, job Job) error {
	if spec == "" {
		spec = fallback
		c.logger.Warnf("Расписание задачи %s не указано, используется по умолчанию: %s", name, spec)
	}

	entryID, err := c.scheduler.Add(spec, job)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать задачу %s: %w", name, err)
	}

	c.logger.Infof("Задача %s зарегистрирована с ID: %d, расписание: %s", name, entryID, spec)
	return nil
}

// Start запускает планировщик задач
func (c *Controller) Start() {
	c.logger.Info("Запуск планировщика cron задач")
	c.scheduler.Start()
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (c *Controller) Stop() {
	c.logger.Info("Остановка планировщика cron задач")
	c.scheduler.Stop()
	c.logger.Info("Планировщик cron задач остановлен")
}
