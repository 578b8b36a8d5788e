package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aj9599/raas-platform/metrics"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// EnergyMessage is the payload distributors publish on raas/{tenant}/energy.
type EnergyMessage struct {
	InstallationCode string `json:"installation_code"`
	EnergyRecordInput
}

type IngestorConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string

	// ConnectTimeout bounds the initial connect; defaults to 15s.
	ConnectTimeout time.Duration
}

// EnergyIngestor subscribes to the distributor feed and appends the
// reported records.
type EnergyIngestor struct {
	cfg    IngestorConfig
	energy *EnergyService
	logger *zap.Logger

	mu        sync.Mutex
	client    mqtt.Client
	isRunning bool
}

func NewEnergyIngestor(cfg IngestorConfig, energy *EnergyService, logger *zap.Logger) *EnergyIngestor {
	if cfg.Topic == "" {
		cfg.Topic = "raas/+/energy"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &EnergyIngestor{cfg: cfg, energy: energy, logger: logger}
}

func (ei *EnergyIngestor) Start() error {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if ei.isRunning {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(ei.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", ei.cfg.ClientID, time.Now().Unix()))
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetConnectTimeout(ei.cfg.ConnectTimeout)
	if ei.cfg.Username != "" {
		opts.SetUsername(ei.cfg.Username)
		opts.SetPassword(ei.cfg.Password)
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		ei.logger.Info("[MQTT] Connected, subscribing", zap.String("topic", ei.cfg.Topic))
		if token := client.Subscribe(ei.cfg.Topic, 1, ei.onMessage); token.Wait() && token.Error() != nil {
			ei.logger.Error("[MQTT] Subscribe failed", zap.String("topic", ei.cfg.Topic), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		ei.logger.Warn("[MQTT] Connection lost, will reconnect", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	ei.logger.Info("[MQTT] Connecting", zap.String("broker", ei.cfg.Broker))
	token := client.Connect()
	if !token.WaitTimeout(ei.cfg.ConnectTimeout) {
		return fmt.Errorf("failed to connect to MQTT broker %s: timed out after %s", ei.cfg.Broker, ei.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	ei.client = client
	ei.isRunning = true
	return nil
}

func (ei *EnergyIngestor) Stop() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if !ei.isRunning {
		return
	}
	if ei.client != nil && ei.client.IsConnected() {
		ei.client.Disconnect(250)
	}
	ei.isRunning = false
	ei.logger.Info("[MQTT] Energy ingestor stopped")
}

func (ei *EnergyIngestor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ei.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
		ei.logger.Warn("[MQTT] Message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// HandleMessage stores one energy message. A record that already exists for
// the period counts as delivered.
func (ei *EnergyIngestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	err := ei.handle(ctx, topic, payload)
	if errors.Is(err, ErrDuplicatePeriod) {
		ei.logger.Debug("[MQTT] Duplicate record ignored", zap.String("topic", topic))
		err = nil
	}
	metrics.IngestMessage(err)
	return err
}

func (ei *EnergyIngestor) handle(ctx context.Context, topic string, payload []byte) error {
	slug, err := tenantFromTopic(topic)
	if err != nil {
		return err
	}

	var msg EnergyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return invalidf("malformed payload: %v", err)
	}
	if msg.InstallationCode == "" {
		return invalidf("installation_code is required")
	}
	if msg.Source == "" {
		msg.Source = "mqtt"
	}

	record, err := ei.energy.AddRecordByCode(ctx, slug, msg.InstallationCode, msg.EnergyRecordInput)
	if err != nil {
		return err
	}
	ei.logger.Info("[MQTT] Energy record stored",
		zap.String("tenant", slug),
		zap.String("installation", msg.InstallationCode),
		zap.String("period", record.Period))
	return nil
}

// tenantFromTopic extracts the tenant slug from raas/{tenant}/energy.
func tenantFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] != "energy" {
		return "", invalidf("unexpected topic %q", topic)
	}
	return parts[1], nil
}
