package models

import (
	"fmt"
	"time"
)

// Broker is a configured MQTT endpoint. Connection status fields are
// maintained by the MQTT service on every connect/disconnect/error event.
type Broker struct {
	BrokerID          string
	Name              string
	Host              string
	Port              int
	Protocol          string // mqtt, mqtts, ws, wss
	Username          *string
	Password          *string
	ClientID          *string
	KeepAlive         int // seconds
	CleanSession      bool
	ReconnectInterval int // seconds
	ConnectTimeout    int // seconds
	IsActive          bool
	IsConnected       bool
	LastConnection    *time.Time
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BrokerURL builds the paho broker URL from protocol/host/port.
// mqtt/mqtts map to the tcp/ssl schemes paho expects; ws/wss pass through.
func (b *Broker) BrokerURL() string {
	scheme := b.Protocol
	switch scheme {
	case "mqtt", "":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// Subscription belongs to exactly one broker and carries a topic filter
// (MQTT wildcards allowed) plus a QoS level.
type Subscription struct {
	SubscriptionID string
	BrokerID       string
	TopicFilter    string
	QoS            int // 0, 1, 2
	IsActive       bool
	CreatedAt      time.Time
}
