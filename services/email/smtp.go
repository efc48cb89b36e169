package emailsvc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/mail"

	"gopkg.in/gomail.v2"

	"github.com/niat-ops/opsboard/core"
)

type smtpService struct {
	dialer     *gomail.Dialer
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	return &smtpService{
		dialer:     gomail.NewDialer(conf.Mail.SMTPHost, conf.Mail.SMTPPort, conf.Mail.SMTPUsername, conf.Mail.SMTPPassword),
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
				return
			}
			if err := svc.dialer.DialAndSend(svc.prepare(*msg)); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc smtpService) prepare(msg core.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", svc.from.String())
	m.SetHeader("To", addressList(msg.To)...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", addressList(msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", addressList(msg.Bcc)...)
	}
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)

	m.SetBody("text/plain", msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternative("text/html", msg.HTMLContent)
	}

	for _, at := range msg.Attachments {
		// gomail encodes attachments itself
		encoded := at.Content.Bytes()
		m.Attach(at.Filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {at.ContentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, base64.NewDecoder(base64.StdEncoding, bytes.NewReader(encoded)))
				return err
			}),
		)
	}
	return m
}

func addressList(addrs []mail.Address) []string {
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, a.String())
	}
	return list
}

// NewService picks the email backend configured by MAIL_BACKEND.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Mail.Backend {
	case core.MailBackendSendgrid:
		return NewSendgridService(conf, logger)
	case core.MailBackendSMTP:
		return NewSMTPService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
