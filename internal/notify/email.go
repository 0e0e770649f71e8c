package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/domain"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewEmailSender returns nil when no SMTP host is configured.
func NewEmailSender(cfg config.NotificationConfig) *EmailSender {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil
	}
	s := &EmailSender{
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host:     cfg.SMTPHost,
		from:     cfg.EmailFrom,
		sendMail: smtp.SendMail,
	}
	if cfg.SMTPUsername != "" {
		s.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return s
}

// Send writes a plain-text message. net/smtp has no context support, so ctx
// is only checked before dialing.
func (s *EmailSender) Send(ctx context.Context, to Recipient, data TemplateData) (DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, err
	}
	if strings.TrimSpace(to.Email) == "" {
		return DeliveryResult{}, fmt.Errorf("recipient %s has no email address", to.UserID)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	if err := s.sendMail(s.addr, s.auth, s.from, []string{to.Email}, s.compose(to, data, messageID)); err != nil {
		return DeliveryResult{}, fmt.Errorf("smtp send: %w", err)
	}
	return DeliveryResult{Channel: domain.ChannelEmail, Recipient: to.Email, MessageID: messageID}, nil
}

func (s *EmailSender) compose(to Recipient, data TemplateData, messageID string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	if to.Name != "" {
		fmt.Fprintf(&b, "To: %s <%s>\r\n", sanitizeHeader(to.Name), to.Email)
	} else {
		fmt.Fprintf(&b, "To: %s\r\n", to.Email)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(data.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(data.Body, "\n", "\r\n"))
	if data.Link != "" {
		fmt.Fprintf(&b, "\r\n\r\n%s\r\n", data.Link)
	}
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
