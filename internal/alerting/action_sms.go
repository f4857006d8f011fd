package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/notification"
)

// SMSAction sends a short plain-text mail to a carrier's SMS gateway.
type SMSAction struct {
	mailer notification.Mailer
	suffix string
}

// NewSMSAction creates an SMSAction for the gateway domain suffix.
func NewSMSAction(mailer notification.Mailer, suffix string) *SMSAction {
	return &SMSAction{mailer: mailer, suffix: suffix}
}

// Address returns the gateway address for a phone number.
func (a *SMSAction) Address(number string) string {
	return strings.TrimSpace(number) + a.suffix
}

// Send implements Action.
func (a *SMSAction) Send(ctx context.Context, s metric.Sample, def *Definition, destination string) error {
	if a.mailer == nil {
		return missingMailer("SMS")
	}
	if strings.TrimSpace(destination) == "" {
		return errors.Newf("empty SMS destination").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return a.mailer.Send(ctx, notification.Mail{
		To:      []string{a.Address(destination)},
		Subject: smsSubject,
		Body:    fmt.Sprintf("%s = %g triggered %s", s.Identity, s.Value, def.Text),
	})
}
