package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const maxPreviewRunes = 1000

// botSender is the part of *tb.Bot used here.
type botSender interface {
	Send(to tb.Recipient, what any, opts ...any) (*tb.Message, error)
}

// Telegram sends review requests to the admin chats.
type Telegram struct {
	bot    botSender
	chats  []tb.ChatID
	logger logSDK.Logger
}

// NewTelegram connects a bot that only sends, it never polls for updates.
func NewTelegram(token, api string, adminChats []int64) (*Telegram, error) {
	if len(adminChats) == 0 {
		return nil, errors.New("at least one admin chat is required")
	}

	bot, err := tb.NewBot(tb.Settings{
		Token: token,
		URL:   api,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new telegram bot")
	}

	return newTelegram(bot, adminChats, nil), nil
}

func newTelegram(bot botSender, adminChats []int64, logger logSDK.Logger) *Telegram {
	if logger == nil {
		logger = log.Logger.Named("telegram")
	}

	chats := make([]tb.ChatID, 0, len(adminChats))
	for _, id := range adminChats {
		chats = append(chats, tb.ChatID(id))
	}

	return &Telegram{bot: bot, chats: chats, logger: logger}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// renderTelegram builds the HTML message body.
func renderTelegram(n *AdminNotification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(n.Subject))
	fmt.Fprintf(&sb, "post: <code>%s</code>\n", html.EscapeString(n.Comment.PostName))
	fmt.Fprintf(&sb, "author: %s\n", html.EscapeString(n.Comment.Author))
	if n.Comment.SpamScore != nil {
		fmt.Fprintf(&sb, "spam score: %d\n", *n.Comment.SpamScore)
	}
	fmt.Fprintf(&sb, "\n%s", html.EscapeString(truncateRunes(n.Comment.Text, maxPreviewRunes)))
	if n.PhotoURL != "" {
		fmt.Fprintf(&sb, "\n\n<a href=\"%s\">attachment</a>", html.EscapeString(n.PhotoURL))
	}

	return sb.String()
}

// NotifyAdmins implements AdminNotifier. Every chat is tried.
func (t *Telegram) NotifyAdmins(_ context.Context, n *AdminNotification) error {
	markup := &tb.ReplyMarkup{}
	markup.Inline(markup.Row(markup.URL("Review", n.ReviewURL)))

	text := renderTelegram(n)
	var firstErr error
	for _, chat := range t.chats {
		if _, err := t.bot.Send(chat, text, &tb.SendOptions{
			ParseMode:             tb.ModeHTML,
			ReplyMarkup:           markup,
			DisableWebPagePreview: true,
		}); err != nil {
			t.logger.Error("failed to send review notification to telegram",
				zap.Error(err),
				zap.Int64("chat", int64(chat)),
				zap.String("comment_id", n.Comment.ID))
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "send to chat %d", int64(chat))
			}
		}
	}

	return firstErr
}
