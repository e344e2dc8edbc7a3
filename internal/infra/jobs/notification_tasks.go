// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/pkg/email"
	"github.com/openctemio/authz/pkg/logger"
)

// TypeNotificationSend delivers one app.Notification by email.
const TypeNotificationSend = "notification:send"

// QueueNotifications is the queue notification tasks run on.
const QueueNotifications = "notifications"

// NewNotificationTask creates a notification delivery task.
func NewNotificationTask(n app.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	return asynq.NewTask(
		TypeNotificationSend,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Queue(QueueNotifications),
	), nil
}

// NotificationTaskHandler renders notifications and hands them to the mail
// sender.
type NotificationTaskHandler struct {
	sender  email.Sender
	appName string
	logger  *logger.Logger
}

// NewNotificationTaskHandler creates a new notification task handler.
func NewNotificationTaskHandler(sender email.Sender, appName string, log *logger.Logger) *NotificationTaskHandler {
	return &NotificationTaskHandler{
		sender:  sender,
		appName: appName,
		logger:  log.With("handler", "notification_tasks"),
	}
}

// RegisterHandlers registers the notification handlers on the mux.
func (h *NotificationTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeNotificationSend, h.HandleSend)
}

// HandleSend processes a notification delivery task.
func (h *NotificationTaskHandler) HandleSend(ctx context.Context, t *asynq.Task) error {
	var n app.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if n.UserEmail == "" {
		return fmt.Errorf("notification without recipient: %w", asynq.SkipRetry)
	}

	tmpl, data, err := h.templateFor(n)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if !h.sender.IsConfigured() {
		h.logger.Warn("mail sender not configured, dropping notification",
			"type", n.Type,
			"user_id", n.UserID.String(),
		)
		return nil
	}

	if err := h.sender.SendTemplate(ctx, n.UserEmail, tmpl, data); err != nil {
		h.logger.Error("failed to send notification",
			"type", n.Type,
			"user_id", n.UserID.String(),
			"error", err,
		)
		if errors.Is(err, email.ErrInvalidRecipient) {
			return fmt.Errorf("failed to send notification: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to send notification: %w", err)
	}

	h.logger.Info("notification sent",
		"type", n.Type,
		"user_id", n.UserID.String(),
	)
	return nil
}

func (h *NotificationTaskHandler) templateFor(n app.Notification) (email.Template, any, error) {
	name := n.Params["user_name"]
	if name == "" {
		name, _, _ = strings.Cut(n.UserEmail, "@")
	}

	switch n.Type {
	case app.NotificationCollaborationInvite:
		return email.TemplateCollaborationInvite, email.CollaborationInviteData{
			UserName:         name,
			OrganizationName: n.Params["organization_name"],
			Message:          n.Message,
			AcceptURL:        n.Params["accept_url"],
			ExpiresAt:        n.Params["expires_at"],
			AppName:          h.appName,
		}, nil
	case app.NotificationAccessChanged:
		return email.TemplateAccessChanged, email.AccessChangedData{
			UserName: name,
			Feature:  n.Feature,
			Message:  n.Message,
			AppName:  h.appName,
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown notification type %q", n.Type)
	}
}
