//go:build integration

package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQLContainer wraps a testcontainers MySQL instance.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	dsn       string
}

// MySQLConfig holds configuration for MySQL container creation.
type MySQLConfig struct {
	Database string // default "metrink_test"
	Username string // default "metrink"
	Password string // default "metrink"
	ImageTag string // default "8.0"
}

// DefaultMySQLConfig returns the configuration used by metrink tests.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "metrink_test",
		Username: "metrink",
		Password: "metrink",
		ImageTag: "8.0",
	}
}

// NewMySQLContainer starts MySQL and waits until it accepts connections.
// If config is nil, DefaultMySQLConfig is used.
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		defaultCfg := DefaultMySQLConfig()
		config = &defaultCfg
	}

	container, err := mysql.Run(ctx, "mysql:"+config.ImageTag,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	if err != nil {
		// Background context so cleanup succeeds even if ctx expired.
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	c := &MySQLContainer{container: container, dsn: dsn}
	if err := RetryWithBackoff(ctx, 5, 500*time.Millisecond, 4*time.Second, func() error {
		return PingTCP(host, port.Int())
	}); err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("MySQL never became reachable: %w", err)
	}
	return c, nil
}

// DSN returns a go-sql-driver DSN for the test database.
func (c *MySQLContainer) DSN() string {
	return c.dsn
}

// Terminate stops and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate MySQL container: %w", err)
	}
	return nil
}
