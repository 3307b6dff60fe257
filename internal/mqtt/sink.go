// Package mqtt bridges agent events onto an MQTT broker so external
// dashboards and automations can react to portfolio alerts. The sink
// is optional; when it is not configured the rest of the process never
// notices.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/events"
)

// Sink forwards bus events to an MQTT broker. Alerts publish to
// {prefix}/alerts/{severity}, cycle summaries to
// {prefix}/cycles/{source}, and availability to {prefix}/status as a
// retained message backed by a broker will.
type Sink struct {
	cfg    config.MQTTConfig
	bus    *events.Bus
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewSink creates a Sink but does not connect. Call [Sink.Start] to
// begin the connection and forwarding loop.
func NewSink(cfg config.MQTTConfig, bus *events.Bus, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, bus: bus, logger: logger}
}

// Start connects to the broker and forwards events until ctx is
// cancelled. On every (re-)connect it publishes an "online" status;
// the will message flips it to "offline" if the process dies without
// a clean Stop.
func (s *Sink) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   s.statusTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt connected to broker", "broker", s.cfg.Broker)
			s.publishStatus(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.cm = cm

	// Wait for the initial connection before consuming events.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		s.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	s.forward(ctx)
	return nil
}

// Stop publishes an "offline" status before disconnecting. The
// provided context bounds how long to wait for the publish and
// disconnect to complete.
func (s *Sink) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	s.publishStatus(ctx, s.cm, "offline")
	return s.cm.Disconnect(ctx)
}

// forward consumes bus events until ctx is cancelled.
func (s *Sink) forward(ctx context.Context) {
	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			topic, ok := s.eventTopic(ev)
			if !ok {
				continue
			}
			s.publishEvent(ctx, topic, ev)
		}
	}
}

// eventTopic maps an event to its topic, or reports false for kinds
// the sink does not forward.
func (s *Sink) eventTopic(ev events.Event) (string, bool) {
	switch ev.Kind {
	case events.KindAlertRaised:
		severity, _ := ev.Data["severity"].(string)
		if severity == "" {
			severity = "unknown"
		}
		return s.alertTopic(severity), true
	case events.KindCycleComplete:
		return s.cycleTopic(ev.Source), true
	}
	return "", false
}

func (s *Sink) publishEvent(ctx context.Context, topic string, ev events.Event) {
	raw, err := eventPayload(ev)
	if err != nil {
		s.logger.Error("mqtt marshal event", "kind", ev.Kind, "error", err)
		return
	}

	if _, err := s.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: raw,
		QoS:     1,
	}); err != nil {
		s.logger.Warn("mqtt event publish failed", "topic", topic, "error", err)
		return
	}
	s.logger.Debug("mqtt event published", "topic", topic, "kind", ev.Kind)
}

// eventPayload renders the event as JSON without mutating the shared
// Data map other subscribers may still be reading.
func eventPayload(ev events.Event) ([]byte, error) {
	payload := make(map[string]any, len(ev.Data)+2)
	for k, v := range ev.Data {
		payload[k] = v
	}
	payload["source"] = ev.Source
	payload["ts"] = ev.Timestamp.UTC().Format(time.RFC3339)
	return json.Marshal(payload)
}

func (s *Sink) publishStatus(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.statusTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn("mqtt status publish failed", "status", status, "error", err)
	} else {
		s.logger.Info("mqtt status published", "status", status)
	}
}

// --- Topic helpers ---

func (s *Sink) statusTopic() string {
	return s.cfg.TopicPrefix + "/status"
}

func (s *Sink) alertTopic(severity string) string {
	return s.cfg.TopicPrefix + "/alerts/" + severity
}

func (s *Sink) cycleTopic(source string) string {
	return s.cfg.TopicPrefix + "/cycles/" + source
}
