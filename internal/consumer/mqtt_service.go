package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
	"github.com/noeljp/GMAO-sub000/internal/repository"
)

// BrokerStore is the broker-facing slice of the persistent store.
type BrokerStore interface {
	GetBroker(ctx context.Context, brokerID string) (*models.Broker, error)
	GetActiveBrokers(ctx context.Context) ([]*models.Broker, error)
	SetConnected(ctx context.Context, brokerID string, at time.Time) error
	SetDisconnected(ctx context.Context, brokerID string) error
	SetLastError(ctx context.Context, brokerID string, errText string) error
	ResetAllConnected(ctx context.Context) error
}

const defaultPublishTimeout = 10 * time.Second

// MQTTService owns the live broker connections and their subscription
// state. It is an explicitly constructed instance handed to the
// composition root; tests build isolated instances with a fake client
// factory and fake stores.
type MQTTService struct {
	brokers   BrokerStore
	subs      MappingStore
	processor *Processor
	logger    *zap.Logger

	mu     sync.Mutex
	conns  map[string]mqtt.Client
	topics map[string][]string // broker id -> currently subscribed filters

	// newClient is swapped for a fake in tests.
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	publishTimeout time.Duration
}

// NewMQTTService creates the connection manager.
func NewMQTTService(brokers BrokerStore, subs MappingStore, processor *Processor, logger *zap.Logger) *MQTTService {
	return &MQTTService{
		brokers:        brokers,
		subs:           subs,
		processor:      processor,
		logger:         logger,
		conns:          make(map[string]mqtt.Client),
		topics:         make(map[string][]string),
		newClient:      mqtt.NewClient,
		publishTimeout: defaultPublishTimeout,
	}
}

// SetPublishTimeout overrides the timeout used when waiting on publish
// and subscribe tokens.
func (s *MQTTService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// StartAll connects every broker flagged active. Brokers connect
// independently: one failure is logged and the rest still start.
func (s *MQTTService) StartAll(ctx context.Context) error {
	brokers, err := s.brokers.GetActiveBrokers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active brokers: %w", err)
	}

	for _, broker := range brokers {
		if err := s.ConnectBroker(ctx, broker.BrokerID); err != nil {
			s.logger.Error("Failed to connect broker on startup",
				zap.String("broker_id", broker.BrokerID),
				zap.String("name", broker.Name),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("MQTT service started", zap.Int("brokers", len(brokers)))
	return nil
}

// StopAll force-closes every live connection, clears the in-memory maps
// and bulk-resets is_connected in one statement.
func (s *MQTTService) StopAll(ctx context.Context) error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]mqtt.Client)
	s.topics = make(map[string][]string)
	s.mu.Unlock()

	for brokerID, client := range conns {
		client.Disconnect(250)
		s.logger.Info("Broker disconnected", zap.String("broker_id", brokerID))
	}

	if err := s.brokers.ResetAllConnected(ctx); err != nil {
		return fmt.Errorf("failed to reset broker statuses: %w", err)
	}

	s.logger.Info("MQTT service stopped")
	return nil
}

// ConnectBroker establishes (or re-establishes) the connection for one
// broker. An existing live connection is torn down first, so reconnecting
// is idempotent.
func (s *MQTTService) ConnectBroker(ctx context.Context, brokerID string) error {
	broker, err := s.brokers.GetBroker(ctx, brokerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if existing, ok := s.conns[brokerID]; ok {
		existing.Disconnect(250)
		delete(s.conns, brokerID)
		delete(s.topics, brokerID)
	}
	s.mu.Unlock()

	opts := s.clientOptions(broker)
	client := s.newClient(opts)

	s.mu.Lock()
	s.conns[brokerID] = client
	s.mu.Unlock()

	connectTimeout := time.Duration(broker.ConnectTimeout) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		err := fmt.Errorf("connect to %s timed out after %s", broker.BrokerURL(), connectTimeout)
		s.recordBrokerError(brokerID, err)
		return err
	}
	if err := token.Error(); err != nil {
		s.recordBrokerError(brokerID, err)
		return fmt.Errorf("failed to connect to %s: %w", broker.BrokerURL(), err)
	}

	return nil
}

// DisconnectBroker force-closes one broker's transport and drops it from
// the live map.
func (s *MQTTService) DisconnectBroker(ctx context.Context, brokerID string) error {
	s.mu.Lock()
	client, ok := s.conns[brokerID]
	delete(s.conns, brokerID)
	delete(s.topics, brokerID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("broker %s is not connected", brokerID)
	}

	client.Disconnect(250)
	if err := s.brokers.SetDisconnected(ctx, brokerID); err != nil {
		s.logger.Error("Failed to persist broker disconnect",
			zap.String("broker_id", brokerID),
			zap.Error(err),
		)
	}

	s.logger.Info("Broker disconnected", zap.String("broker_id", brokerID))
	return nil
}

// ReloadBroker re-reads a broker's configuration and reconnects it, used
// when configuration changed without a full service restart.
func (s *MQTTService) ReloadBroker(ctx context.Context, brokerID string) error {
	s.logger.Info("Reloading broker", zap.String("broker_id", brokerID))
	return s.ConnectBroker(ctx, brokerID)
}

// Publish sends one outbound message through an already-connected broker.
// It fails fast when no live connection exists.
func (s *MQTTService) Publish(ctx context.Context, brokerID, topic string, qos byte, retained bool, payload []byte) error {
	s.mu.Lock()
	client, ok := s.conns[brokerID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("broker %s is not connected", brokerID)
	}
	if !client.IsConnected() {
		return fmt.Errorf("broker %s connection is down", brokerID)
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(s.publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// ConnectedBrokers returns the ids of brokers with a live connection.
func (s *MQTTService) ConnectedBrokers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// clientOptions builds paho options from the persisted broker row. The
// client id defaults to a value derived from the broker id; credentials
// are attached only when both username and password are present.
func (s *MQTTService) clientOptions(broker *models.Broker) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker.BrokerURL())

	clientID := fmt.Sprintf("gmao-mqtt-%s", shortID(broker.BrokerID))
	if broker.ClientID != nil && *broker.ClientID != "" {
		clientID = *broker.ClientID
	}
	opts.SetClientID(clientID)

	if broker.Username != nil && broker.Password != nil {
		opts.SetUsername(*broker.Username)
		opts.SetPassword(*broker.Password)
	}

	if broker.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(broker.KeepAlive) * time.Second)
	}
	opts.SetCleanSession(broker.CleanSession)
	opts.SetAutoReconnect(true)
	if broker.ReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(time.Duration(broker.ReconnectInterval) * time.Second)
	}
	if broker.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(broker.ConnectTimeout) * time.Second)
	}

	brokerID := broker.BrokerID
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.onConnect(brokerID, c)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		s.onConnectionLost(brokerID, err)
	})

	return opts
}

// onConnect runs on every (re)connect: persist the connected status, then
// subscribe every active subscription. Each subscription failure is logged
// individually and does not prevent the others.
func (s *MQTTService) onConnect(brokerID string, client mqtt.Client) {
	ctx := context.Background()

	if err := s.brokers.SetConnected(ctx, brokerID, time.Now()); err != nil {
		s.logger.Error("Failed to persist broker connect",
			zap.String("broker_id", brokerID),
			zap.Error(err),
		)
	}

	subs, err := s.subs.GetActiveSubscriptions(ctx, brokerID)
	if err != nil {
		s.logger.Error("Failed to load subscriptions on connect",
			zap.String("broker_id", brokerID),
			zap.Error(err),
		)
		return
	}

	var subscribed []string
	for _, sub := range subs {
		handler := s.messageHandler(brokerID)
		token := client.Subscribe(sub.TopicFilter, byte(sub.QoS), handler)
		if !token.WaitTimeout(s.publishTimeout) || token.Error() != nil {
			s.logger.Error("Failed to subscribe",
				zap.String("broker_id", brokerID),
				zap.String("topic_filter", sub.TopicFilter),
				zap.Error(token.Error()),
			)
			continue
		}
		subscribed = append(subscribed, sub.TopicFilter)
	}

	s.mu.Lock()
	s.topics[brokerID] = subscribed
	s.mu.Unlock()

	s.logger.Info("Broker connected",
		zap.String("broker_id", brokerID),
		zap.Int("subscriptions", len(subscribed)),
	)
}

// onConnectionLost persists the error and the disconnected flag. Paho
// fires one callback for both transport errors and closes; its
// auto-reconnect drives the reconnect and onConnect re-subscribes.
func (s *MQTTService) onConnectionLost(brokerID string, err error) {
	ctx := context.Background()

	s.logger.Warn("Broker connection lost",
		zap.String("broker_id", brokerID),
		zap.Error(err),
	)

	if err != nil {
		if dbErr := s.brokers.SetLastError(ctx, brokerID, err.Error()); dbErr != nil {
			s.logger.Error("Failed to persist broker error",
				zap.String("broker_id", brokerID),
				zap.Error(dbErr),
			)
		}
	}
	if dbErr := s.brokers.SetDisconnected(ctx, brokerID); dbErr != nil {
		s.logger.Error("Failed to persist broker disconnect",
			zap.String("broker_id", brokerID),
			zap.Error(dbErr),
		)
	}
}

// messageHandler adapts a paho delivery into the processor pipeline. A
// recover barrier keeps one poisoned message from taking down the
// delivery goroutine.
func (s *MQTTService) messageHandler(brokerID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic while processing message",
					zap.String("broker_id", brokerID),
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r),
				)
			}
		}()

		s.processor.Process(context.Background(), brokerID, InboundMessage{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			QoS:      msg.Qos(),
			Retained: msg.Retained(),
		})
	}
}

func (s *MQTTService) recordBrokerError(brokerID string, err error) {
	if dbErr := s.brokers.SetLastError(context.Background(), brokerID, err.Error()); dbErr != nil {
		s.logger.Error("Failed to persist broker error",
			zap.String("broker_id", brokerID),
			zap.Error(dbErr),
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return uuid.New().String()[:8]
	}
	return id
}

var _ BrokerStore = (*repository.BrokersRepository)(nil)
