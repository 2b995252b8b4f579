package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	subscribeQoS   = 1
)

// payload is the reading message published by machines. The same shape the
// HTTP ingest endpoint accepts, except machine_id is mandatory here: an MQTT
// publisher always knows which machine it is.
type payload struct {
	MachineID    string  `json:"machine_id"`
	Health       float64 `json:"health"`
	AnomalyScore float64 `json:"anomaly_score"`
	Status       string  `json:"status"`
}

// Consumer subscribes to the reading topic and appends valid readings to the
// log.
type Consumer struct {
	cfg      config.MQTTConfig
	readings *store.ReadingLog
	client   mqtt.Client

	now func() time.Time
}

// NewConsumer builds a Consumer. It does not connect until Start.
func NewConsumer(cfg config.MQTTConfig, readings *store.ReadingLog) *Consumer {
	return &Consumer{cfg: cfg, readings: readings, now: time.Now}
}

// Start connects to the broker and subscribes. It returns an error when the
// initial connect or subscribe fails; reconnects after that are handled by
// the client. Start is a no-op when no broker is configured.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg.Broker == "" {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(cl mqtt.Client) {
			token := cl.Subscribe(c.cfg.Topic, subscribeQoS, c.handle)
			token.Wait()
			if err := token.Error(); err != nil {
				slog.Error("ingest: subscribe failed", "topic", c.cfg.Topic, "err", err)
				return
			}
			slog.Info("ingest: subscribed", "broker", c.cfg.Broker, "topic", c.cfg.Topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("ingest: connection lost", "err", err)
		})

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("ingest: connect to %s: timeout", c.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("ingest: connect to %s: %w", c.cfg.Broker, err)
	}

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

// Close disconnects from the broker.
func (c *Consumer) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// handle validates and appends one published reading.
func (c *Consumer) handle(_ mqtt.Client, msg mqtt.Message) {
	var p payload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		slog.Warn("ingest: malformed payload", "topic", msg.Topic(), "err", err)
		return
	}
	if err := p.validate(); err != nil {
		slog.Warn("ingest: rejected reading", "machine", p.MachineID, "err", err)
		return
	}

	status := p.Status
	if status == "" {
		status = health.StatusHealthy
		switch {
		case p.Health < config.DefaultHealthCriticalBelow:
			status = health.StatusCritical
		case p.Health < config.DefaultHealthWarningBelow:
			status = health.StatusWarning
		}
	}

	c.readings.Append(store.Reading{
		MachineID:    p.MachineID,
		Timestamp:    c.now().UTC(),
		Health:       p.Health,
		AnomalyScore: p.AnomalyScore,
		Status:       status,
	})
}

func (p payload) validate() error {
	if p.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}
	if p.Health < 0 || p.Health > 100 {
		return fmt.Errorf("health %.2f out of range", p.Health)
	}
	if p.AnomalyScore < 0 || p.AnomalyScore > 1 {
		return fmt.Errorf("anomaly_score %.3f out of range", p.AnomalyScore)
	}
	switch p.Status {
	case "", health.StatusHealthy, health.StatusWarning, health.StatusCritical:
		return nil
	default:
		return fmt.Errorf("unknown status %q", p.Status)
	}
}
