package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
)

type sentMessage struct {
	to   tb.Recipient
	text string
	opts *tb.SendOptions
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor string
}

func (b *fakeBot) Send(to tb.Recipient, what any, opts ...any) (*tb.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if to.Recipient() == b.failFor {
		return nil, errors.New("chat not found")
	}

	msg := sentMessage{to: to, text: what.(string)}
	if len(opts) > 0 {
		msg.opts = opts[0].(*tb.SendOptions)
	}
	b.sent = append(b.sent, msg)
	return &tb.Message{}, nil
}

type fakeDialer struct {
	msgs []*mail.Msg
	err  error
}

func (d *fakeDialer) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func testNotification() *AdminNotification {
	score := model.ScoreHam
	return &AdminNotification{
		Subject: "New comment posted",
		Comment: &model.Comment{
			ID:        "c1",
			PostName:  "hello-world",
			Author:    "<script>alert(1)</script>",
			Email:     "laisky@laisky.com",
			Text:      "first & best",
			SpamScore: &score,
			AuthorContext: model.AuthorContext{
				UserIP: "1.2.3.4",
			},
		},
		ReviewURL: "https://blog.laisky.com/admin/comment/review/c1",
	}
}

func TestTelegramNotifyAdmins(t *testing.T) {
	bot := &fakeBot{}
	tel := newTelegram(bot, []int64{1, 2}, nil)

	require.NoError(t, tel.NotifyAdmins(context.Background(), testNotification()))
	require.Len(t, bot.sent, 2)

	msg := bot.sent[0]
	require.Equal(t, "1", msg.to.Recipient())
	require.Contains(t, msg.text, "<b>New comment posted</b>")
	require.Contains(t, msg.text, "&lt;script&gt;")
	require.Contains(t, msg.text, "first &amp; best")
	require.Contains(t, msg.text, "spam score: 1")
	require.Equal(t, tb.ModeHTML, msg.opts.ParseMode)

	require.Len(t, msg.opts.ReplyMarkup.InlineKeyboard, 1)
	btn := msg.opts.ReplyMarkup.InlineKeyboard[0][0]
	require.Equal(t, "Review", btn.Text)
	require.Equal(t, "https://blog.laisky.com/admin/comment/review/c1", btn.URL)
}

func TestTelegramKeepsSendingAfterFailure(t *testing.T) {
	bot := &fakeBot{failFor: "1"}
	tel := newTelegram(bot, []int64{1, 2}, nil)

	err := tel.NotifyAdmins(context.Background(), testNotification())
	require.Error(t, err)
	require.Len(t, bot.sent, 1)
	require.Equal(t, "2", bot.sent[0].to.Recipient())
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", truncateRunes("abc", 3))
	require.Equal(t, "你好…", truncateRunes("你好世界", 2))
}

func TestMailerRender(t *testing.T) {
	m := newMailer(&fakeDialer{}, "admin@laisky.com", nil)
	n := testNotification()

	htmlBody, textBody, err := m.Render(TemplateCommentNotification, map[string]any{
		"comment":    n.Comment,
		"review_url": n.ReviewURL,
		"photo_url":  "https://s3.laisky.com/photos/a.png?sig=1&x=2",
	})
	require.NoError(t, err)

	require.Contains(t, htmlBody, "<b>hello-world</b>")
	require.Contains(t, htmlBody, "&lt;script&gt;", "html part must escape user input")
	require.Contains(t, htmlBody, `href="https://blog.laisky.com/admin/comment/review/c1"`)
	require.Contains(t, htmlBody, "(1.2.3.4)")
	require.Contains(t, htmlBody, "<img")

	require.Contains(t, textBody, "first & best")
	require.Contains(t, textBody, "Review: https://blog.laisky.com/admin/comment/review/c1")
	require.Contains(t, textBody, "sig=1&x=2")

	_, _, err = m.Render("missing", nil)
	require.Error(t, err)
}

func TestMailerSendEmail(t *testing.T) {
	dialer := &fakeDialer{}
	m := newMailer(dialer, "admin@laisky.com", nil)
	n := testNotification()

	err := m.SendEmail(context.Background(), &Email{
		Subject:  "New comment posted",
		Template: TemplateCommentNotification,
		To:       "admin@laisky.com",
		Payload:  map[string]any{"comment": n.Comment, "review_url": n.ReviewURL},
	})
	require.NoError(t, err)
	require.Len(t, dialer.msgs, 1)

	msg := dialer.msgs[0]
	require.Equal(t, []string{"New comment posted"}, msg.GetGenHeader(mail.HeaderSubject))
	require.Equal(t, "<admin@laisky.com>", msg.GetToString()[0])

	dialer.err = errors.New("connection refused")
	err = m.SendEmail(context.Background(), &Email{
		Subject:  "x",
		Template: TemplateCommentNotification,
		To:       "admin@laisky.com",
		Payload:  map[string]any{"comment": n.Comment},
	})
	require.Error(t, err)

	dialer.err = nil
	err = m.SendEmail(context.Background(), &Email{
		Template: TemplateCommentNotification,
		To:       "not an address",
		Payload:  map[string]any{"comment": n.Comment},
	})
	require.Error(t, err)
}

type countingGateway struct {
	notified, emailed int
	err               error
}

func (g *countingGateway) NotifyAdmins(context.Context, *AdminNotification) error {
	g.notified++
	return g.err
}

func (g *countingGateway) SendEmail(context.Context, *Email) error {
	g.emailed++
	return g.err
}

func TestMultiTriesEveryChannel(t *testing.T) {
	failing := &countingGateway{err: errors.New("down")}
	ok := &countingGateway{}
	m := NewMulti([]AdminNotifier{failing, nil, ok}, []EmailSender{ok, failing})

	err := m.NotifyAdmins(context.Background(), testNotification())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "down"))
	require.Equal(t, 1, failing.notified)
	require.Equal(t, 1, ok.notified)

	err = m.SendEmail(context.Background(), &Email{})
	require.Error(t, err)
	require.Equal(t, 1, ok.emailed)
	require.Equal(t, 1, failing.emailed)

	require.NoError(t, NewMulti([]AdminNotifier{ok}, nil).NotifyAdmins(context.Background(), testNotification()))
}

func TestLogGateway(t *testing.T) {
	g := NewLog(nil)
	require.NoError(t, g.NotifyAdmins(context.Background(), testNotification()))
	require.NoError(t, g.SendEmail(context.Background(), &Email{Subject: "s"}))
}

func TestMinioPhotoLinker(t *testing.T) {
	linker, err := NewMinioPhotoLinker(MinioConfig{
		Endpoint:  "s3.laisky.com",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "photos",
		Secure:    true,
		Expiry:    time.Hour,
	})
	require.NoError(t, err)

	u, err := linker.PhotoURL(context.Background(), "3f2a.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "https://s3.laisky.com/photos/3f2a.png?"), u)
	require.Contains(t, u, "X-Amz-Expires=3600")

	_, err = NewMinioPhotoLinker(MinioConfig{Endpoint: "s3.laisky.com"})
	require.Error(t, err)
}
