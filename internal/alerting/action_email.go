package alerting

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/notification"
)

const graphTimeLayout = "2006-01-02 15:04"

var emailTemplate = template.Must(template.New("alert").Parse(`<html>
<body>
<h2>Alert for {{.Identity}}</h2>
<p>The alert <code>{{.Definition}}</code> was triggered.</p>
<table>
<tr><td>Value</td><td>{{.Value}}{{with .Unit}} {{.}}{{end}}</td></tr>
<tr><td>Time</td><td>{{.Time}}</td></tr>
</table>
<p><a href="{{.GraphLink}}">Graph the last {{.WindowMinutes}} minutes</a></p>
<p><a href="{{.CorrelatedLink}}">Correlate with other metrics</a></p>
</body>
</html>
`))

type emailData struct {
	Identity       string
	Definition     string
	Value          string
	Unit           string
	Time           string
	GraphLink      string
	CorrelatedLink string
	WindowMinutes  int
}

// EmailAction mails an HTML summary with a link to a graph of the series.
type EmailAction struct {
	mailer   notification.Mailer
	baseURL  string
	useHTML  bool
	location *time.Location
}

// NewEmailAction creates an EmailAction.
func NewEmailAction(d ActionDeps) *EmailAction {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &EmailAction{mailer: d.Mailer, baseURL: d.GraphBaseURL, useHTML: d.UseHTML, location: loc}
}

// Send implements Action.
func (a *EmailAction) Send(ctx context.Context, s metric.Sample, def *Definition, destination string) error {
	if a.mailer == nil {
		return missingMailer(ActionTypeEmail)
	}
	body, err := a.Render(s, def)
	if err != nil {
		return err
	}
	mail := notification.Mail{
		To:      []string{strings.TrimSpace(destination)},
		Subject: emailSubjectPrefix + s.Identity.String(),
		Body:    body,
		HTML:    a.useHTML,
	}
	if !a.useHTML {
		mail.Body = html2text.HTML2Text(body)
	}
	return a.mailer.Send(ctx, mail)
}

// Render returns the HTML body for a fired alert.
func (a *EmailAction) Render(s metric.Sample, def *Definition) (string, error) {
	query := GraphQuery(s, a.location)
	data := emailData{
		Identity:       s.Identity.String(),
		Definition:     def.Text,
		Value:          fmt.Sprintf("%g", s.Value),
		Unit:           s.Unit,
		Time:           s.Time().In(a.location).Format(time.RFC1123),
		GraphLink:      a.link(query),
		CorrelatedLink: a.link(query + " | corr"),
		WindowMinutes:  graphWindowMinutes,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render alert email: %w", err)
	}
	return buf.String(), nil
}

func (a *EmailAction) link(query string) string {
	return a.baseURL + url.PathEscape(query)
}

// GraphQuery builds the graph query covering the window before a sample:
//
//	2024-03-01 11:30 to 2024-03-01 12:00 m("web1", "cpu", "load")
func GraphQuery(s metric.Sample, loc *time.Location) string {
	end := s.Time().In(loc)
	start := end.Add(-graphWindowMinutes * time.Minute)
	return fmt.Sprintf("%s to %s m(%q, %q, %q)",
		start.Format(graphTimeLayout), end.Format(graphTimeLayout),
		s.Identity.Device, s.Identity.Group, s.Identity.Name)
}
