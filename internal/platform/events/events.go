// Package events publishes scheduling domain events so that downstream
// services (meeting-link notifications, calendars) can react to bookings.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event types emitted after a committed mutation.
const (
	AvailabilityCreated     = "availability.created"
	AvailabilityUpdated     = "availability.updated"
	AvailabilityDeleted     = "availability.deleted"
	TeleconsultScheduled    = "teleconsultation.scheduled"
	TeleconsultUpdated      = "teleconsultation.updated"
	TeleconsultStatusChange = "teleconsultation.status_changed"
	TeleconsultDeleted      = "teleconsultation.deleted"
	DoctorRegistered        = "doctor.registered"
)

// Event is the envelope written to the channel.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an Event, marshalling payload.
func New(eventType string, actorID uuid.UUID, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}
	if actorID != uuid.Nil {
		ev.ActorID = actorID.String()
	}
	return ev, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// redisPublisher is the subset of redis.Cmdable the publisher needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redisPublisher
	channel string
	logger  zerolog.Logger
}

func NewRedisPublisher(client redisPublisher, channel string, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, p.channel, err)
	}
	p.logger.Debug().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("channel", p.channel).
		Int64("receivers", receivers).
		Msg("event published")
	return nil
}

// NopPublisher drops every event. Used when REDIS_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
