//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoAnonymousConfig = `listener 1883
allow_anonymous true
`

// MosquittoContainer wraps an Eclipse Mosquitto broker that accepts
// anonymous clients.
type MosquittoContainer struct {
	container  testcontainers.Container
	brokerURL  string
	configFile string
}

// MosquittoConfig holds configuration for Mosquitto container creation.
type MosquittoConfig struct {
	ImageTag string // default "2.0"
}

// NewMosquittoContainer starts a broker and verifies a client can connect.
// If config is nil, image tag 2.0 is used.
func NewMosquittoContainer(ctx context.Context, config *MosquittoConfig) (*MosquittoContainer, error) {
	tag := "2.0"
	if config != nil && config.ImageTag != "" {
		tag = config.ImageTag
	}

	configFile, err := writeTempFile("mosquitto-*.conf", mosquittoAnonymousConfig)
	if err != nil {
		return nil, err
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:" + tag,
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-test.conf"},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      configFile,
				ContainerFilePath: "/mosquitto-test.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForLog("mosquitto version").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		_ = os.Remove(configFile)
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	mc := &MosquittoContainer{container: container, configFile: configFile}
	host, err := container.Host(ctx)
	if err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}
	mc.brokerURL = "tcp://" + net.JoinHostPort(host, strconv.Itoa(port.Int()))

	client, err := mc.Connect("healthcheck")
	if err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	client.Disconnect(250)
	return mc, nil
}

// BrokerURL returns the broker address, e.g. "tcp://localhost:49153".
func (c *MosquittoContainer) BrokerURL() string {
	return c.brokerURL
}

// Connect returns a client connected to the broker. The caller disconnects it.
func (c *MosquittoContainer) Connect(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect client %s: %w", clientID, err)
	}
	return client, nil
}

// Publish sends one message at QoS 1 from a short-lived client.
func (c *MosquittoContainer) Publish(topic string, payload []byte) error {
	client, err := c.Connect("publisher-" + strconv.FormatInt(time.Now().UnixNano(), 36))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	return token.Error()
}

// Terminate stops the container and removes its temporary config file.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	var err error
	if c.container != nil {
		if termErr := c.container.Terminate(ctx); termErr != nil {
			err = fmt.Errorf("failed to terminate Mosquitto container: %w", termErr)
		}
	}
	if c.configFile != "" {
		_ = os.Remove(c.configFile)
	}
	return err
}

func writeTempFile(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}
