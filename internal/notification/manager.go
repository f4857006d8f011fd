package notification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/metrink/metrink-go/internal/logger"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// Service wraps a Mailer with logging, a default deadline and delivery counters.
type Service struct {
	mailer Mailer
	log    logger.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

// NewService creates a Service around mailer.
func NewService(mailer Mailer, log logger.Logger) *Service {
	return &Service{mailer: mailer, log: log.Module("notification")}
}

// Send implements Mailer.
func (s *Service) Send(ctx context.Context, m Mail) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendTimeout)
		defer cancel()
	}

	if err := s.mailer.Send(ctx, m); err != nil {
		s.failed.Add(1)
		s.log.Error("mail delivery failed",
			logger.Any("to", m.To),
			logger.String("subject", m.Subject),
			logger.Error(err))
		return err
	}
	s.sent.Add(1)
	s.log.Debug("mail delivered", logger.Any("to", m.To), logger.String("subject", m.Subject))
	return nil
}

// Stats returns how many messages were delivered and how many failed.
func (s *Service) Stats() (sent, failed int64) {
	return s.sent.Load(), s.failed.Load()
}

// Initialize sets up the global notification service instance.
func Initialize(mailer Mailer, log logger.Logger) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = NewService(mailer, log)
	})
}

// GetService returns the global notification service instance, or nil.
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetServiceForTesting installs a service instance for tests. It fails if
// the service is already initialized.
func SetServiceForTesting(service *Service) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return fmt.Errorf("notification service already initialized")
	}
	instance = service
	return nil
}

// IsInitialized checks if the notification service has been initialized.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
