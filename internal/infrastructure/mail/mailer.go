package mail

import (
	"gopkg.in/gomail.v2"

	"github.com/foraling/foraling-server/internal/config"
)

// Mailer sends emails. Delivery is best-effort: a returned error means the
// message was not handed off and the caller must not proceed as if it was.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(cfg *config.Config) Mailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return &mailer{dialer: d, from: cfg.SMTPFrom}
}

func (m *mailer) SendEmail(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}
