// Package notify alerts administrators about comments waiting for review.
package notify

import (
	"context"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// TemplateCommentNotification renders the admin email for a comment ready for review.
const TemplateCommentNotification = "comment_notification"

// AdminNotification is an interactive alert for a comment awaiting review.
type AdminNotification struct {
	Subject   string
	Comment   *model.Comment
	ReviewURL string
	// PhotoURL is a temporary link to the attachment, empty when there is none
	PhotoURL string
}

// Email is a templated message.
type Email struct {
	Subject  string
	Template string
	To       string
	Payload  map[string]any
}

// AdminNotifier delivers interactive notifications to every administrator.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, n *AdminNotification) error
}

// EmailSender delivers templated email.
type EmailSender interface {
	SendEmail(ctx context.Context, e *Email) error
}

// Gateway is both channels used when a comment is handed to a human.
type Gateway interface {
	AdminNotifier
	EmailSender
}

// Multi fans out to several notifiers and senders.
// Every channel is tried; the first failure is returned after all have run.
type Multi struct {
	Notifiers []AdminNotifier
	Senders   []EmailSender
	logger    logSDK.Logger
}

// NewMulti builds a Gateway from separate channels. Nil entries are skipped.
func NewMulti(notifiers []AdminNotifier, senders []EmailSender) *Multi {
	m := &Multi{logger: log.Logger.Named("notify")}
	for _, n := range notifiers {
		if n != nil {
			m.Notifiers = append(m.Notifiers, n)
		}
	}
	for _, s := range senders {
		if s != nil {
			m.Senders = append(m.Senders, s)
		}
	}

	return m
}

// NotifyAdmins implements AdminNotifier.
func (m *Multi) NotifyAdmins(ctx context.Context, n *AdminNotification) (err error) {
	for i, notifier := range m.Notifiers {
		if nerr := notifier.NotifyAdmins(ctx, n); nerr != nil {
			m.logger.Warn("admin notifier failed", zap.Int("notifier", i), zap.Error(nerr))
			if err == nil {
				err = errors.Wrapf(nerr, "notifier %d", i)
			}
		}
	}

	return err
}

// SendEmail implements EmailSender.
func (m *Multi) SendEmail(ctx context.Context, e *Email) (err error) {
	for i, sender := range m.Senders {
		if serr := sender.SendEmail(ctx, e); serr != nil {
			m.logger.Warn("email sender failed", zap.Int("sender", i), zap.Error(serr))
			if err == nil {
				err = errors.Wrapf(serr, "sender %d", i)
			}
		}
	}

	return err
}

// Log only writes notifications to the logger, for dry runs.
type Log struct {
	logger logSDK.Logger
}

// NewLog creates a logging gateway.
func NewLog(logger logSDK.Logger) *Log {
	if logger == nil {
		logger = log.Logger.Named("notify_dry")
	}

	return &Log{logger: logger}
}

// NotifyAdmins implements AdminNotifier.
func (l *Log) NotifyAdmins(_ context.Context, n *AdminNotification) error {
	l.logger.Info("admin notification",
		zap.String("subject", n.Subject),
		zap.String("comment_id", n.Comment.ID),
		zap.String("review_url", n.ReviewURL))
	return nil
}

// SendEmail implements EmailSender.
func (l *Log) SendEmail(_ context.Context, e *Email) error {
	l.logger.Info("email",
		zap.String("subject", e.Subject),
		zap.String("template", e.Template),
		zap.String("to", e.To))
	return nil
}
