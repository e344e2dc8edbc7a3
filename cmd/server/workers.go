package main

import (
	"github.com/openctemio/authz/internal/config"
	"github.com/openctemio/authz/internal/infra/jobs"
	"github.com/openctemio/authz/pkg/email"
	"github.com/openctemio/authz/pkg/logger"
)

// NewJobClient creates the asynq enqueuer used as the services' notifier.
// It returns nil when jobs are disabled.
func NewJobClient(cfg *config.Config, log *logger.Logger) *jobs.Client {
	if !cfg.Jobs.Enabled {
		log.Info("job queue disabled, notifications are dropped")
		return nil
	}
	return jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
}

// NewJobWorker creates the in-process notification worker, or nil when the
// worker runs elsewhere.
func NewJobWorker(cfg *config.Config, log *logger.Logger) *jobs.Worker {
	if !cfg.Jobs.Enabled || !cfg.Jobs.InlineWorker {
		return nil
	}

	var sender email.Sender = email.NewNoOpSender()
	if cfg.SMTP.IsConfigured() {
		sender = email.NewSMTPSender(email.Config{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			User:       cfg.SMTP.User,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			FromName:   cfg.SMTP.FromName,
			TLS:        cfg.SMTP.TLS,
			SkipVerify: cfg.SMTP.SkipVerify,
			Timeout:    cfg.SMTP.Timeout,
		})
	} else {
		log.Warn("SMTP not configured, notification emails will be skipped")
	}

	handler := jobs.NewNotificationTaskHandler(sender, cfg.App.Name, log)
	return jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Jobs.Concurrency,
	}, handler, log)
}
