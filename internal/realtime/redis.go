package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jouyai/dashboard-kel/internal/models"
)

const (
	sessionChannel = "chat.sessions"
	messageChannel = "chat.messages"
)

// envelope wraps a published event with the emitting instance's id so an
// instance can skip events it already delivered locally.
type envelope struct {
	Instance string          `json:"instance"`
	Payload  json.RawMessage `json:"payload"`
}

// RedisBus extends a local Hub with Redis pub/sub so mutations reach operator
// views connected to other instances. Local delivery happens first and does
// not depend on Redis being reachable.
type RedisBus struct {
	hub      *Hub
	client   *redis.Client
	pubsub   *redis.PubSub
	instance string
	logger   zerolog.Logger
}

// NewRedisBus connects to Redis and starts relaying remote events into the
// local hub.
func NewRedisBus(ctx context.Context, hub *Hub, redisURL string, logger zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	b := &RedisBus{
		hub:      hub,
		client:   client,
		instance: uuid.New().String(),
		logger:   logger,
	}

	b.pubsub = client.Subscribe(ctx, sessionChannel, messageChannel)
	go b.relay()

	return b, nil
}

// Client exposes the underlying Redis client for collaborators that share
// the connection (rate limiting).
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close tears down the subscription and the connection.
func (b *RedisBus) Close() error {
	b.pubsub.Close()
	return b.client.Close()
}

// PublishSession delivers locally, then broadcasts to other instances.
func (b *RedisBus) PublishSession(ctx context.Context, session models.Session) {
	b.hub.PublishSession(ctx, session)
	b.broadcast(ctx, sessionChannel, session)
}

// PublishMessage delivers locally, then broadcasts to other instances.
func (b *RedisBus) PublishMessage(ctx context.Context, msg models.Message) {
	b.hub.PublishMessage(ctx, msg)
	b.broadcast(ctx, messageChannel, msg)
}

func (b *RedisBus) broadcast(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env, err := json.Marshal(envelope{Instance: b.instance, Payload: data})
	if err != nil {
		return
	}
	if err := b.client.Publish(ctx, channel, env).Err(); err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("redis publish failed")
	}
}

// relay feeds remote events into the local hub, skipping our own.
func (b *RedisBus) relay() {
	ctx := context.Background()
	for m := range b.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			continue
		}
		if env.Instance == b.instance {
			continue
		}

		switch m.Channel {
		case sessionChannel:
			var session models.Session
			if err := json.Unmarshal(env.Payload, &session); err == nil {
				b.hub.PublishSession(ctx, session)
			}
		case messageChannel:
			var msg models.Message
			if err := json.Unmarshal(env.Payload, &msg); err == nil {
				b.hub.PublishMessage(ctx, msg)
			}
		}
	}
}
