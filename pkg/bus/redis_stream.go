package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/pkg/jobs"
)

const payloadField = "payload"

// Message is a single delivery read from a stream.
type Message struct {
	ID      string
	Stream  string
	Payload []byte
}

// Decode unmarshals the message payload into dest.
func (m Message) Decode(dest interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("stream %s message %s has empty payload", m.Stream, m.ID)
	}
	if err := json.Unmarshal(m.Payload, dest); err != nil {
		return fmt.Errorf("decode stream %s message %s: %w", m.Stream, m.ID, err)
	}
	return nil
}

// Handler processes a message. Returning nil acknowledges it.
type Handler func(ctx context.Context, msg Message) error

// StreamConfig configures the Redis Streams bus.
type StreamConfig struct {
	Group        string
	Consumer     string
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
	BatchSize    int64
	Workers      int
	Retries      int
	Logger       *zap.Logger
}

// RedisStreams publishes and consumes JSON events on Redis Streams consumer groups.
// Delivery is at-least-once: unacknowledged messages are reclaimed after ClaimIdle.
type RedisStreams struct {
	client *redis.Client
	cfg    StreamConfig
	logger *zap.Logger
}

// NewRedisStreams builds a bus bound to the given consumer group.
func NewRedisStreams(client *redis.Client, cfg StreamConfig) *RedisStreams {
	if cfg.Group == "" {
		cfg.Group = "sma-admission"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumerName()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RedisStreams{client: client, cfg: cfg, logger: cfg.Logger}
}

// Publish appends a JSON-encoded event to the stream.
func (b *RedisStreams) Publish(ctx context.Context, stream string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", stream, err)
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: payload},
	}).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", stream, err)
	}
	return nil
}

// Subscribe consumes the stream until ctx is cancelled. Messages are dispatched to a
// worker queue; a message is acknowledged only once its handler succeeds.
func (b *RedisStreams) Subscribe(ctx context.Context, stream string, handler Handler) error {
	if err := b.ensureGroup(ctx, stream); err != nil {
		return err
	}

	queue := jobs.NewQueue(stream, func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(Message)
		if !ok {
			return fmt.Errorf("unexpected job payload %T", job.Payload)
		}
		if err := handler(ctx, msg); err != nil {
			return err
		}
		if err := b.client.XAck(ctx, stream, b.cfg.Group, msg.ID).Err(); err != nil {
			b.logger.Sugar().Warnw("stream ack failed", "stream", stream, "message_id", msg.ID, "error", err)
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    b.cfg.Workers,
		MaxRetries: b.cfg.Retries,
		Logger:     b.logger,
		OnGiveUp: func(job jobs.Job, err error) {
			b.logger.Sugar().Errorw("message left pending for redelivery", "stream", stream, "message_id", job.ID, "error", err)
		},
	})
	queue.Start(ctx)
	defer queue.Stop()

	b.logger.Sugar().Infow("stream consumer started", "stream", stream, "group", b.cfg.Group, "consumer", b.cfg.Consumer)
	lastClaim := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastClaim) >= b.cfg.ClaimIdle {
			b.reclaim(ctx, stream, queue)
			lastClaim = time.Now()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Sugar().Warnw("stream read failed", "stream", stream, "error", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		for _, s := range streams {
			for _, raw := range s.Messages {
				b.dispatch(queue, toMessage(s.Stream, raw))
			}
		}
	}
}

func (b *RedisStreams) reclaim(ctx context.Context, stream string, queue *jobs.Queue) {
	messages, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		MinIdle:  b.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    b.cfg.BatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			b.logger.Sugar().Warnw("stream reclaim failed", "stream", stream, "error", err)
		}
		return
	}
	for _, raw := range messages {
		b.logger.Sugar().Infow("redelivering pending message", "stream", stream, "message_id", raw.ID)
		b.dispatch(queue, toMessage(stream, raw))
	}
}

func (b *RedisStreams) dispatch(queue *jobs.Queue, msg Message) {
	err := queue.Enqueue(jobs.Job{ID: msg.ID, Type: msg.Stream, Payload: msg})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrInFlight):
		b.logger.Sugar().Debugw("message already being handled", "stream", msg.Stream, "message_id", msg.ID)
	default:
		b.logger.Sugar().Warnw("stream dispatch failed", "stream", msg.Stream, "message_id", msg.ID, "error", err)
	}
}

func (b *RedisStreams) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis create group %s on %s: %w", b.cfg.Group, stream, err)
	}
	return nil
}

func toMessage(stream string, raw redis.XMessage) Message {
	msg := Message{ID: raw.ID, Stream: stream}
	switch v := raw.Values[payloadField].(type) {
	case string:
		msg.Payload = []byte(v)
	case []byte:
		msg.Payload = v
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
