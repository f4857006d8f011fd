// Package ingest receives metric payloads from an MQTT broker and feeds
// them into the aggregation buffer and alert engine.
package ingest

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

const (
	sourceMQTT        = "mqtt"
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Buffer accepts raw samples for aggregation.
type Buffer interface {
	Enqueue(samples []metric.Sample)
}

// Processor evaluates samples against live alerts.
type Processor interface {
	ProcessSamples(samples []metric.Sample) int
}

// Subscriber consumes the ingest payload format from an MQTT topic.
type Subscriber struct {
	settings conf.MQTTSettings
	buffer   Buffer
	engine   Processor
	log      logger.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu     sync.Mutex
	client paho.Client
}

// NewSubscriber creates a subscriber. It does not connect until Start.
func NewSubscriber(settings conf.MQTTSettings, buffer Buffer, engine Processor, log logger.Logger, metrics *observability.Metrics) *Subscriber {
	if log == nil {
		log = logger.Global()
	}
	return &Subscriber{
		settings: settings,
		buffer:   buffer,
		engine:   engine,
		log:      log.Module("mqtt"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// HandlePayload parses one message and passes accepted samples on.
// A malformed envelope counts as a single rejection.
func (s *Subscriber) HandlePayload(payload []byte) (accepted, rejected int) {
	batch, err := metric.ParsePayload(payload, s.now())
	if err != nil {
		s.log.Warn("discarding malformed payload",
			logger.Int("bytes", len(payload)),
			logger.Error(err))
		s.metrics.RecordIngested(sourceMQTT, 0, 1)
		return 0, 1
	}

	for _, r := range batch.Rejected {
		s.log.Debug("rejected metric", logger.Error(r))
	}
	if len(batch.Samples) > 0 {
		s.buffer.Enqueue(batch.Samples)
		if s.engine != nil {
			s.engine.ProcessSamples(batch.Samples)
		}
	}
	s.metrics.RecordIngested(sourceMQTT, len(batch.Samples), len(batch.Rejected))
	return len(batch.Samples), len(batch.Rejected)
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	s.HandlePayload(msg.Payload())
}

// subscribe runs on every (re)connect since clean sessions drop subscriptions.
func (s *Subscriber) subscribe(client paho.Client) {
	token := client.Subscribe(s.settings.Topic, s.settings.QoS, s.onMessage)
	if !token.WaitTimeout(connectTimeout) {
		s.log.Error("subscribe timed out", logger.String("topic", s.settings.Topic))
		return
	}
	if err := token.Error(); err != nil {
		s.log.Error("subscribe failed",
			logger.String("topic", s.settings.Topic),
			logger.Error(err))
		return
	}
	s.log.Info("subscribed",
		logger.String("topic", s.settings.Topic),
		logger.Int("qos", int(s.settings.QoS)))
}

// ClientID returns the configured client id with a random suffix so that
// several metrink processes can share one broker.
func (s *Subscriber) ClientID() string {
	prefix := s.settings.ClientID
	if prefix == "" {
		prefix = "metrink"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Start connects to the broker and subscribes. The client reconnects on
// its own after a lost connection.
func (s *Subscriber) Start(ctx context.Context) error {
	clientID := s.ClientID()
	opts := paho.NewClientOptions().
		AddBroker(s.settings.Broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Warn("connection lost", logger.Error(err))
		})
	if s.settings.Username != "" {
		opts.SetUsername(s.settings.Username)
		opts.SetPassword(s.settings.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", s.settings.Broker).
			Build()
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.log.Info("connected",
		logger.String("broker", s.settings.Broker),
		logger.String("client_id", clientID))
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return
	}
	client.Disconnect(disconnectQuiesce)
	s.log.Info("disconnected")
}

// IsConnected reports whether the broker connection is up.
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}
