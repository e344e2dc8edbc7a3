package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RedisOpt converts the config into an asynq connection option.
func (c ClientConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	return NewClientFromOpt(cfg.RedisOpt(), log)
}

// NewClientFromOpt creates a job client over an existing connection option.
func NewClientFromOpt(opt asynq.RedisConnOpt, log *logger.Logger) *Client {
	return &Client{
		client: asynq.NewClient(opt),
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Send implements app.Notifier by queueing the notification for the worker.
func (c *Client) Send(ctx context.Context, n app.Notification) error {
	task, err := NewNotificationTask(n)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue notification",
			"type", n.Type,
			"user_id", n.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("notification queued",
		"task_id", info.ID,
		"type", n.Type,
		"queue", info.Queue,
	)
	return nil
}

var _ app.Notifier = (*Client)(nil)
