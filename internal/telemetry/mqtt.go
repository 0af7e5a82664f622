// Package telemetry publishes backend telemetry over MQTT: session
// status transitions and periodic event counters per server.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/config"
	"github.com/squadron-project/squadron/internal/events"
	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/util"
)

// MQTT topics
const (
	TopicBackendAdmin  = "squadron/admin"
	TopicSessionStatus = "squadron/session/status"
	TopicEventCounters = "squadron/events/counters"
)

const counterInterval = 60 * time.Second

// MQTTHandler manages the MQTT connection and publishes telemetry.
type MQTTHandler struct {
	cfg    *config.Config
	hub    *feed.Hub
	client mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}

	mu       sync.Mutex
	counters map[string]map[events.Type]uint64
	subs     []*feed.Subscription
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, hub *feed.Hub) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": "1.0.0",
	}

	handler := &MQTTHandler{
		cfg:      cfg,
		hub:      hub,
		metadata: metadata,
		counters: make(map[string]map[events.Type]uint64),
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("squadron-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the MQTT broker and publishes until ctx is
// cancelled. serverIDs is the fleet to watch.
func (h *MQTTHandler) Start(ctx context.Context, serverIDs []string) error {
	mqttCfg := h.cfg.GetApplicationData().MQTT
	log.Info().
		Str("broker", mqttCfg.BrokerURL).
		Int("port", mqttCfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	for _, id := range serverIDs {
		sub := h.hub.Subscribe(id, events.KnownTypes)
		h.mu.Lock()
		h.subs = append(h.subs, sub)
		h.mu.Unlock()
		go h.consume(sub)
	}

	ticker := time.NewTicker(counterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case <-ticker.C:
			h.publishCounters()
		}
	}
}

// consume drains one server's feed, forwarding status transitions and
// tallying event counts for the periodic counter publish.
func (h *MQTTHandler) consume(sub *feed.Subscription) {
	for msg := range sub.C() {
		switch msg.Kind {
		case feed.KindStatus:
			h.publish(TopicSessionStatus, msg.Status)
		case feed.KindEvent:
			h.mu.Lock()
			byType := h.counters[msg.Event.ServerID]
			if byType == nil {
				byType = make(map[events.Type]uint64)
				h.counters[msg.Event.ServerID] = byType
			}
			byType[msg.Event.Type]++
			h.mu.Unlock()
		}
	}
}

// publishCounters emits and resets the per-server event tallies.
func (h *MQTTHandler) publishCounters() {
	h.mu.Lock()
	snapshot := h.counters
	h.counters = make(map[string]map[events.Type]uint64)
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	h.publish(TopicEventCounters, snapshot)
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

func (h *MQTTHandler) shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	h.publishCounters()
	h.publish(TopicBackendAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
}
