package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/fault"
	"github.com/docship/docship/agent/internal/retry"
)

const (
	implicitTLSPort = 465
	mailTimeout     = 2 * time.Minute
)

// Mail sends the artifact and the run log as attachments of one message.
type Mail struct {
	host     string
	subject  string
	sender   string
	receiver string

	// send delivers a composed message; injectable for tests.
	send func(ctx context.Context, m *mail.Msg) error
}

// NewMail configures an authenticated SMTP client that refuses to send
// without TLS. Port 465 uses implicit TLS, any other port STARTTLS.
func NewMail(cfg config.MailConfig, creds config.Credentials) (*Mail, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("delivery: mail host is required")
	}
	if creds.Sender == "" || creds.Secret == "" || creds.Receiver == "" {
		return nil, fmt.Errorf("delivery: mail sender, secret and receiver are required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.Sender),
		mail.WithPassword(creds.Secret),
		mail.WithTimeout(mailTimeout),
	}
	if cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("delivery: init smtp client: %w", err)
	}

	return &Mail{
		host:     host,
		subject:  cfg.Subject,
		sender:   creds.Sender,
		receiver: creds.Receiver,
		send: func(ctx context.Context, m *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, m)
		},
	}, nil
}

func (c *Mail) Kind() string { return "mail" }

// Prepare is a no-op: the mailbox is only known to exist once the server
// accepts the message.
func (c *Mail) Prepare(context.Context) error { return nil }

// Plan returns a single unit carrying every attachment: the whole message
// is retried, not its parts.
func (c *Mail) Plan(p Payload) []Unit {
	if p.Empty() {
		return nil
	}
	var attachments []string
	if p.Artifact != nil {
		attachments = append(attachments, p.Artifact.Path)
	} else {
		for _, f := range p.Files {
			attachments = append(attachments, f.Path)
		}
	}
	if p.LogPath != "" {
		attachments = append(attachments, p.LogPath)
	}

	subject := c.subject
	if p.RunID != "" {
		subject = fmt.Sprintf("%s [%s]", c.subject, p.RunID)
	}
	return []Unit{{Name: "message", Key: subject, Attachments: attachments}}
}

// Send composes and submits the message for u.
func (c *Mail) Send(ctx context.Context, u Unit) error {
	m, err := c.compose(u)
	if err != nil {
		// A malformed address or a missing attachment will not fix itself.
		return retry.Permanent(fault.New(fault.KindDelivery, "compose "+u.Name, err))
	}
	if err := c.send(ctx, m); err != nil {
		return fault.New(fault.KindDelivery, "send via "+c.host, err)
	}
	slog.Info("delivery: message sent",
		"host", c.host, "receiver", c.receiver, "attachments", len(u.Attachments))
	return nil
}

func (c *Mail) compose(u Unit) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(c.sender); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := m.To(c.receiver); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	m.Subject(u.Key)

	var body strings.Builder
	body.WriteString("Attached files:\n")
	for _, a := range u.Attachments {
		if _, err := os.Stat(a); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		m.AttachFile(a)
		fmt.Fprintf(&body, "- %s\n", filepath.Base(a))
	}
	m.SetBodyString(mail.TypeTextPlain, body.String())
	return m, nil
}
