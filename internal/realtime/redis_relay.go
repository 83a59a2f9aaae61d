package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/chatter/pkg/log"
)

// RedisRelayConfig holds Redis connection configuration for the relay.
type RedisRelayConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string // pub/sub channel carrying relay frames
}

// RedisRelay bridges brokers in separate processes over Redis Pub/Sub.
// Frames published by this instance are skipped on receipt by origin id.
type RedisRelay struct {
	client  *redis.Client
	channel string
	broker  *Broker
	doneCh  chan struct{}
}

// NewRedisRelay connects to Redis and wires the relay to the broker.
func NewRedisRelay(cfg RedisRelayConfig, b *Broker) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "chatter:relay"
	}

	r := &RedisRelay{
		client:  client,
		channel: channel,
		broker:  b,
		doneCh:  make(chan struct{}),
	}
	b.SetRelay(r)
	return r, nil
}

// Done returns a channel that is closed when Run() exits.
func (r *RedisRelay) Done() <-chan struct{} { return r.doneCh }

// Run subscribes to the relay channel and injects remote frames into the
// local broker until ctx is done. Reconnects on receive errors.
func (r *RedisRelay) Run(ctx context.Context) {
	defer close(r.doneCh)
	l := log.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := r.runSubscription(ctx); err != nil && ctx.Err() == nil {
				l.Warn().Err(err).Msg("relay subscription error, reconnecting in 2s")
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
					continue
				}
			}
			return
		}
	}
}

func (r *RedisRelay) runSubscription(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for subscription to be active
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *RedisRelay) handleMessage(payload string) {
	l := log.L()

	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		l.Warn().Err(err).Msg("relay: invalid frame")
		return
	}
	if f.Origin == "" || f.Origin == r.broker.InstanceID() {
		return
	}
	r.broker.inject(f)
}

// Publish sends a frame to sibling instances.
func (r *RedisRelay) Publish(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
