//go:build integration

package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MailpitContainer is an SMTP sink with an HTTP API for reading what it received.
type MailpitContainer struct {
	container testcontainers.Container
	host      string
	smtpPort  int
	apiURL    string
}

// MailpitMessage is the summary Mailpit returns for a stored message.
type MailpitMessage struct {
	ID      string `json:"ID"`
	Subject string `json:"Subject"`
	Snippet string `json:"Snippet"`
	To      []struct {
		Address string `json:"Address"`
	} `json:"To"`
}

// NewMailpitContainer starts Mailpit accepting unauthenticated plain SMTP.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "axllent/mailpit:latest",
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			Env: map[string]string{
				"MP_SMTP_AUTH_ACCEPT_ANY":     "true",
				"MP_SMTP_AUTH_ALLOW_INSECURE": "true",
			},
			WaitingFor: wait.ForHTTP("/api/v1/messages").
				WithPort("8025/tcp").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Mailpit container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	smtpPort, err := container.MappedPort(ctx, "1025")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get SMTP port: %w", err)
	}
	apiPort, err := container.MappedPort(ctx, "8025")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get API port: %w", err)
	}

	return &MailpitContainer{
		container: container,
		host:      host,
		smtpPort:  smtpPort.Int(),
		apiURL:    fmt.Sprintf("http://%s:%d", host, apiPort.Int()),
	}, nil
}

// SMTPHost returns the host SMTP clients should dial.
func (c *MailpitContainer) SMTPHost() string { return c.host }

// SMTPPort returns the mapped SMTP port.
func (c *MailpitContainer) SMTPPort() int { return c.smtpPort }

// Messages returns every stored message, newest first.
func (c *MailpitContainer) Messages(ctx context.Context) ([]MailpitMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/api/v1/messages", http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status listing messages: %s", resp.Status)
	}
	var body struct {
		Messages []MailpitMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return body.Messages, nil
}

// WaitForMessages polls until at least n messages are stored.
func (c *MailpitContainer) WaitForMessages(ctx context.Context, n int, timeout time.Duration) ([]MailpitMessage, error) {
	var msgs []MailpitMessage
	err := RetryWithBackoff(ctx, int(timeout/(250*time.Millisecond))+1, 250*time.Millisecond, 250*time.Millisecond, func() error {
		var err error
		msgs, err = c.Messages(ctx)
		if err != nil {
			return err
		}
		if len(msgs) < n {
			return fmt.Errorf("have %d messages, want %d", len(msgs), n)
		}
		return nil
	})
	return msgs, err
}

// Terminate stops and removes the container.
func (c *MailpitContainer) Terminate(ctx context.Context) error {
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Mailpit container: %w", err)
	}
	return nil
}
