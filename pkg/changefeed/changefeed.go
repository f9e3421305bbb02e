// Package changefeed refreshes live tables when the backend publishes change
// events on Kafka.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsgrid_changefeed_events_total",
	Help: "Total change events by entity and outcome",
}, []string{"entity", "outcome"})

// ErrInvalidEvent is returned for messages that carry no entity.
var ErrInvalidEvent = errors.New("invalid change event")

// Event is a change published by the backend.
type Event struct {
	Entity     string   `json:"entity"`
	Action     string   `json:"action"`
	TenantID   string   `json:"tenantId"`
	TenantName string   `json:"tenantName"`
	IDs        []string `json:"ids"`
}

// DecodeEvent decodes a Kafka message. The entity falls back to the topic's
// second-to-last segment ("opsgrid.orders.updated" → "orders").
func DecodeEvent(m kafka.Message) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(m.Value, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	rec := record.Record(raw)

	ev := Event{
		Entity:     strings.TrimSpace(record.Text(raw["entity"])),
		Action:     strings.TrimSpace(record.Text(raw["action"])),
		TenantID:   strings.TrimSpace(rec.TenantID()),
		TenantName: strings.TrimSpace(rec.TenantName()),
	}
	if ids, ok := raw["ids"].([]any); ok {
		for _, id := range ids {
			if s := strings.TrimSpace(record.Text(id)); s != "" {
				ev.IDs = append(ev.IDs, s)
			}
		}
	}

	if ev.Entity == "" || ev.Action == "" {
		entity, action := fromTopic(m.Topic)
		if ev.Entity == "" {
			ev.Entity = entity
		}
		if ev.Action == "" {
			ev.Action = action
		}
	}
	if ev.Entity == "" {
		return Event{}, fmt.Errorf("%w: no entity", ErrInvalidEvent)
	}
	ev.Entity = normalizeEntity(ev.Entity)
	return ev, nil
}

func fromTopic(topic string) (string, string) {
	parts := strings.Split(topic, ".")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[len(parts)-2]), strings.TrimSpace(parts[len(parts)-1])
	}
	return "", "unknown"
}

// normalizeEntity maps "Order" and "orders" to "orders".
func normalizeEntity(entity string) string {
	entity = strings.ToLower(strings.TrimSpace(entity))
	if entity != "" && !strings.HasSuffix(entity, "s") {
		entity += "s"
	}
	return entity
}

// Matches reports whether ev can affect a table over entity showing filter.
// Events without tenant information match every tenant.
func Matches(ev Event, entity string, filter pagination.Filter) bool {
	if ev.Entity != normalizeEntity(entity) {
		return false
	}
	if ev.TenantID != "" && filter.TenantID != "" && ev.TenantID != filter.TenantID {
		return false
	}
	if ev.TenantName != "" && filter.TenantName != "" && !strings.EqualFold(ev.TenantName, filter.TenantName) {
		return false
	}
	return true
}

// Refresher is a live table. *table.Controller implements it.
type Refresher interface {
	Filter() pagination.Filter
	Refresh() error
}

type subscription struct {
	entity string
	table  Refresher
}

// Hub routes events to registered tables.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscription)}
}

// Register subscribes table to events for entity. The returned function
// removes the subscription.
func (h *Hub) Register(entity string, table Refresher) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.subs[id] = subscription{entity: entity, table: table}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Dispatch refreshes every registered table the event matches and returns
// how many were refreshed.
func (h *Hub) Dispatch(ev Event) int {
	h.mu.RLock()
	targets := make([]Refresher, 0, len(h.subs))
	for _, sub := range h.subs {
		if Matches(ev, sub.entity, sub.table.Filter()) {
			targets = append(targets, sub.table)
		}
	}
	h.mu.RUnlock()

	refreshed := 0
	for _, t := range targets {
		if err := t.Refresh(); err != nil {
			log.Debug().Err(err).Str("entity", ev.Entity).Msg("Refresh skipped")
			continue
		}
		refreshed++
	}

	outcome := "refreshed"
	if refreshed == 0 {
		outcome = "ignored"
	}
	eventsTotal.WithLabelValues(ev.Entity, outcome).Inc()
	return refreshed
}

// MessageReader reads Kafka messages. *kafka.Reader implements it.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer feeds Kafka change events into a Hub.
type Consumer struct {
	reader     MessageReader
	hub        *Hub
	errorPause time.Duration
	logger     zerolog.Logger
}

// NewConsumer creates a consumer for topic in consumer group groupID.
func NewConsumer(brokers []string, groupID, topic string, hub *Hub) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	}), hub)
}

// NewConsumerWithReader creates a consumer over an existing reader.
func NewConsumerWithReader(reader MessageReader, hub *Hub) *Consumer {
	return &Consumer{
		reader:     reader,
		hub:        hub,
		errorPause: time.Second,
		logger:     log.With().Str("component", "changefeed").Logger(),
	}
}

// Run consumes until ctx is done. Read errors are logged and reading resumes
// after a short pause; undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("Change feed started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("Change feed stopped")
				return nil
			}
			c.logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-time.After(c.errorPause):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		ev, err := DecodeEvent(m)
		if err != nil {
			eventsTotal.WithLabelValues("", "invalid").Inc()
			c.logger.Warn().
				Err(err).
				Str("topic", m.Topic).
				Int("partition", m.Partition).
				Int64("offset", m.Offset).
				Msg("Skipping change event")
			continue
		}

		refreshed := c.hub.Dispatch(ev)
		c.logger.Debug().
			Str("topic", m.Topic).
			Int64("offset", m.Offset).
			Str("entity", ev.Entity).
			Str("action", ev.Action).
			Str("tenant", ev.TenantName).
			Int("ids", len(ev.IDs)).
			Int("refreshed", refreshed).
			Msg("Change event consumed")
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
