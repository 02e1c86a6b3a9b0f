package cron

import (
	"context"
	"vereinsportal/internal/application/use-cases"

	"go.uber.org/zap"
)

// ReminderJob ставит в outbox напоминания о ближайших терминах
type ReminderJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewReminderJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *ReminderJob {
	return &ReminderJob{
		usecase: usecase,
		logger:  logger,
	}
}

func (j *ReminderJob) Run(ctx context.Context) {
	j.logger.Info("Запуск задачи напоминаний о терминах")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("Паника при выполнении задачи напоминаний: %v", r)
		}
	}()

	j.usecase.SendEventReminders(ctx)
	j.logger.Info("Задача напоминаний о терминах завершена")
}

// CleanupJob удаляет истёкшие токены и чистит in-memory лимитер
type CleanupJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewCleanupJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *CleanupJob {
	return &CleanupJob{
		usecase: usecase,
		logger:  logger,
	}
}

func (j *CleanupJob) Run(ctx context.Context) {
	j.logger.Info("Запуск задачи очистки токенов")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("Паника при очистке токенов: %v", r)
		}
	}()

	j.usecase.CleanupExpiredTokens(ctx)
	j.logger.Info("Задача очистки токенов завершена")
}
