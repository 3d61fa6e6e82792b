/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides distributed event bus backends. Each backend
// mirrors events onto an in-process bus for same-node subscribers and falls
// back to it entirely when the broker is unreachable.
package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/events"
)

const natsSubjectPrefix = "skald.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus is a NATS-backed event bus. Events publish to one subject per
// event type; messages from this node are skipped on receive to prevent
// echo, since local delivery already happened through the in-process bus.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	local    *events.Bus
	nodeID   string
	fallback bool

	mu      sync.Mutex
	natsSub map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS. An unreachable broker degrades to the
// in-process bus with a warning instead of failing startup.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:  logger.With().Str("component", "nats_bus").Logger(),
		local:   events.NewBus(),
		nodeID:  nodeID,
		natsSub: make(map[events.EventType]*nats.Subscription),
	}
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats unavailable, using in-process bus only")
		nb.fallback = true
		return nb, nil
	}
	nb.conn = conn
	nb.logger.Info().Str("url", cfg.URL).Msg("nats event bus connected")
	return nb, nil
}

// Subscribe registers a subscriber for an event type. The first subscriber
// of a type also opens the NATS subscription feeding remote events into the
// in-process bus.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	if nb.fallback {
		return sub
	}
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, exists := nb.natsSub[eventType]; exists {
		return sub
	}
	subject := natsSubjectPrefix + string(eventType)
	natsSub, err := nb.conn.Subscribe(subject, func(m *nats.Msg) {
		msg, err := unmarshalBusMessage(m.Data)
		if err != nil {
			nb.logger.Error().Err(err).Str("subject", subject).Msg("dropping malformed nats message")
			return
		}
		if msg.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(msg.EventType, msg.Payload)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("subject", subject).Msg("nats subscribe failed")
		return sub
	}
	nb.natsSub[eventType] = natsSub
	return sub
}

// Publish sends an event to local subscribers and to the NATS subject.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.fallback {
		return
	}
	data, err := marshalBusMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal nats message")
		return
	}
	if err := nb.conn.Publish(natsSubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to nats")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	nb.mu.Lock()
	for _, s := range nb.natsSub {
		s.Unsubscribe()
	}
	nb.natsSub = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}

// busMessage is the wire form of an event crossing nodes.
type busMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalBusMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(busMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalBusMessage(data []byte) (*busMessage, error) {
	var msg busMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}
