package app

import (
	"context"

	"github.com/openctemio/authz/internal/metrics"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
)

// Notification types understood by the delivery worker.
const (
	NotificationCollaborationInvite = "collaboration_invite"
	NotificationAccessChanged       = "access_changed"
)

// Notification is a fire-and-forget message to a user about a change in
// their authority.
type Notification struct {
	UserID    shared.ID         `json:"user_id"`
	UserEmail string            `json:"user_email"`
	Feature   string            `json:"feature"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Params    map[string]string `json:"params,omitempty"`
}

// Notifier hands notifications to a delivery channel. Delivery retries
// belong to the channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification. Used when jobs are disabled.
type NopNotifier struct{}

// Send implements Notifier.
func (NopNotifier) Send(context.Context, Notification) error { return nil }

// dispatch sends a notification and swallows the failure. A failed
// notification never fails the mutation that triggered it.
func dispatch(ctx context.Context, n Notifier, log *logger.Logger, msg Notification) {
	if n == nil || msg.UserEmail == "" {
		return
	}
	err := n.Send(ctx, msg)
	metrics.RecordNotification(err)
	if err != nil {
		log.Warn("failed to dispatch notification",
			"type", msg.Type,
			"user_id", msg.UserID.String(),
			"error", err,
		)
	}
}
