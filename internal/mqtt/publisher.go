package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/planner"
)

// connection is the part of [autopaho.ConnectionManager] the publisher
// needs.
type connection interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection and publishes planner
// summaries. Its OnSave and OnDelete methods match the store's
// observer signatures.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	conn connection
	cm   *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to connect. Saves that happen before the connection is up are not
// published.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger.With("component", "mqtt"),
		now:        time.Now,
	}
}

// Start connects to the broker and blocks until ctx is cancelled. On
// every (re-)connect it publishes a birth message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(p.cfg.DeviceName, p.instanceID),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.conn = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop publishes "offline" and disconnects. ctx bounds both.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

func (p *Publisher) baseTopic() string {
	return "axis/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

// SummaryTopic is where the summary for userID is retained.
func (p *Publisher) SummaryTopic(userID string) string {
	return p.baseTopic() + "/users/" + userID + "/summary"
}

func (p *Publisher) publishAvailability(ctx context.Context, conn connection, status string) {
	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// OnSave publishes the summary of doc for userID. Failures are logged;
// a broker outage never fails the save that triggered it.
func (p *Publisher) OnSave(ctx context.Context, userID string, doc *planner.Document) {
	payload, err := json.Marshal(BuildSummary(doc, p.now()))
	if err != nil {
		p.logger.Error("mqtt marshal summary", "user_id", userID, "error", err)
		return
	}
	p.publish(ctx, userID, payload)
}

// OnDelete clears the retained summary of a deleted account.
func (p *Publisher) OnDelete(ctx context.Context, userID string) {
	p.publish(ctx, userID, nil)
}

func (p *Publisher) publish(ctx context.Context, userID string, payload []byte) {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		p.logger.Debug("mqtt not started, summary dropped", "user_id", userID)
		return
	}

	timeout := time.Duration(p.cfg.PublishTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	topic := p.SummaryTopic(userID)
	_, err := conn.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	})
	switch {
	case err == nil:
		p.logger.Debug("mqtt summary published", "topic", topic, "bytes", len(payload))
	case errors.Is(err, context.DeadlineExceeded):
		p.logger.Warn("mqtt summary publish timed out", "topic", topic, "timeout", timeout)
	default:
		p.logger.Warn("mqtt summary publish failed", "topic", topic, "error", err)
	}
}
