package notify

import (
	"context"
	"embed"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/flosch/pongo2/v6"
	"github.com/wneessen/go-mail"

	"github.com/Laisky/laisky-blog-moderation/library/log"
)

//go:embed templates
var templateFS embed.FS

// SMTPConfig configures the outgoing mail server.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pwd  string
	// From is the sender address
	From string
}

// mailDialer is the part of *mail.Client used here.
type mailDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer renders pongo2 email templates and sends them over SMTP.
//
// A template named X is made of templates/X.html and templates/X.txt.
type Mailer struct {
	client    mailDialer
	from      string
	templates *pongo2.TemplateSet
	logger    logSDK.Logger
}

// NewMailer creates a Mailer for the given server.
func NewMailer(cfg SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}

	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Pwd),
		)
	}

	cli, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "new smtp client")
	}

	return newMailer(cli, cfg.From, nil), nil
}

func newMailer(client mailDialer, from string, logger logSDK.Logger) *Mailer {
	if logger == nil {
		logger = log.Logger.Named("mailer")
	}

	return &Mailer{
		client:    client,
		from:      from,
		templates: pongo2.NewSet("email", pongo2.NewFSLoader(templateFS)),
		logger:    logger,
	}
}

// Render executes both parts of the named template.
func (m *Mailer) Render(name string, payload map[string]any) (htmlBody, textBody string, err error) {
	ctx := pongo2.Context(payload)

	tpl, err := m.templates.FromCache("templates/" + name + ".html")
	if err != nil {
		return "", "", errors.Wrapf(err, "load template %q", name)
	}
	if htmlBody, err = tpl.Execute(ctx); err != nil {
		return "", "", errors.Wrapf(err, "render template %q", name)
	}

	tpl, err = m.templates.FromCache("templates/" + name + ".txt")
	if err != nil {
		return "", "", errors.Wrapf(err, "load template %q", name)
	}
	if textBody, err = tpl.Execute(ctx); err != nil {
		return "", "", errors.Wrapf(err, "render template %q", name)
	}

	return htmlBody, textBody, nil
}

func (m *Mailer) buildMsg(e *Email) (*mail.Msg, error) {
	htmlBody, textBody, err := m.Render(e.Template, e.Payload)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err = msg.From(m.from); err != nil {
		return nil, errors.Wrap(err, "set sender")
	}
	if err = msg.To(e.To); err != nil {
		return nil, errors.Wrapf(err, "set recipient %q", e.To)
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, textBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	return msg, nil
}

// SendEmail implements EmailSender.
func (m *Mailer) SendEmail(ctx context.Context, e *Email) error {
	msg, err := m.buildMsg(e)
	if err != nil {
		return err
	}

	if err = m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, "send email")
	}

	m.logger.Debug("email sent",
		zap.String("template", e.Template),
		zap.String("subject", e.Subject))
	return nil
}
