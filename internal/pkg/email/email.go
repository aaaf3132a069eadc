package email

import (
	"fmt"
	"mime"
	"net/smtp"
	"sort"
	"strings"

	"github.com/qs3c/inkpress/config"
)

// Mailer 通过 SMTP 投递已渲染的邮件
type Mailer struct {
	cfg  *config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg *config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Send 发送 HTML 邮件，extra 中的头（如 List-Unsubscribe）原样附加
func (m *Mailer) Send(to, subject, html string, extra map[string]string) error {
	if to == "" {
		return fmt.Errorf("missing recipient")
	}

	msg := m.buildMessage(to, subject, html, extra)

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *Mailer) buildMessage(to, subject, html string, extra map[string]string) []byte {
	headers := map[string]string{
		"From":         m.cfg.From,
		"To":           to,
		"Subject":      mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}
	for k, v := range extra {
		// 防止头注入
		headers[k] = strings.NewReplacer("\r", "", "\n", "").Replace(v)
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	for _, k := range keys {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, headers[k]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(html)

	return []byte(msg.String())
}
