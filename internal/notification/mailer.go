// Package notification delivers alert mail through shoutrrr's SMTP service.
package notification

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/errors"
)

// Mail is one outgoing message.
type Mail struct {
	To      []string
	Subject string
	Body    string
	HTML    bool
}

// Mailer sends mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPMailer sends each message through a shoutrrr smtp:// sender.
type SMTPMailer struct {
	settings conf.SMTPSettings
}

// NewSMTPMailer validates the SMTP settings and returns a mailer.
func NewSMTPMailer(settings conf.SMTPSettings) (*SMTPMailer, error) {
	if settings.Host == "" {
		return nil, configError("smtp.host must be set to send mail")
	}
	if settings.From == "" {
		return nil, configError("smtp.from must be set to send mail")
	}
	if settings.Port == 0 {
		settings.Port = 587
	}
	return &SMTPMailer{settings: settings}, nil
}

// URL builds the shoutrrr service URL delivering to recipients.
func (m *SMTPMailer) URL(recipients []string, html bool) string {
	s := m.settings
	u := url.URL{
		Scheme: "smtp",
		Host:   s.Host + ":" + strconv.Itoa(s.Port),
		Path:   "/",
	}
	if s.Username != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}

	q := url.Values{}
	q.Set("from", s.From)
	q.Set("to", strings.Join(recipients, ","))
	q.Set("usehtml", strconv.FormatBool(html))
	if s.Encryption != "" {
		q.Set("encryption", s.Encryption)
	}
	if s.Username == "" {
		q.Set("auth", "None")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Send implements Mailer. Cancelling ctx abandons the wait, not the
// in-flight SMTP exchange.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if len(mail.To) == 0 {
		return deliveryError(fmt.Errorf("no recipients"), mail)
	}

	sender, err := shoutrrr.CreateSender(m.URL(mail.To, mail.HTML))
	if err != nil {
		return deliveryError(fmt.Errorf("failed to create smtp sender: %w", err), mail)
	}
	if m.settings.Timeout > 0 {
		sender.Timeout = m.settings.Timeout.Std()
	}

	done := make(chan error, 1)
	go func() {
		params := types.Params{"subject": mail.Subject}
		done <- errors.Join(sender.Send(mail.Body, &params)...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return deliveryError(err, mail)
		}
		return nil
	case <-ctx.Done():
		return deliveryError(ctx.Err(), mail)
	}
}

// DefaultSendTimeout bounds a single delivery when the caller has no deadline.
const DefaultSendTimeout = 30 * time.Second

func deliveryError(err error, mail Mail) error {
	return errors.New(err).
		Component("notification").
		Category(errors.CategoryDelivery).
		Context("recipients", strings.Join(mail.To, ",")).
		Context("subject", mail.Subject).
		Build()
}

func configError(msg string) error {
	return errors.Newf("%s", msg).
		Component("notification").
		Category(errors.CategoryConfiguration).
		Build()
}
