package mailer

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"github.com/pulsecrm/backend/internal/models"
)

// SMTPSender is the development fallback transport, used for accounts that
// have an SMTP hostname configured instead of provider credentials.
type SMTPSender struct{}

// Send builds a MIME message and hands it to the account's SMTP host.
func (SMTPSender) Send(addr, from, fromName, to, toName, subject, bodyHTML string, attachments []models.Attachment) error {
	builder := enmime.Builder().
		From(fromName, from).
		To(toName, to).
		Subject(subject).
		HTML([]byte(bodyHTML))

	for _, att := range attachments {
		builder = builder.AddAttachment(att.Content, att.ContentType, att.Name)
	}

	part, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return fmt.Errorf("failed to encode MIME message: %w", err)
	}

	if err := smtp.SendMail(addr, nil, from, []string{to}, &buf); err != nil {
		return fmt.Errorf("SMTP send failed: %w", err)
	}

	return nil
}
