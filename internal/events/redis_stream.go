package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamField = "event"

// RedisStreamOptions configures the stream transport.
type RedisStreamOptions struct {
	Stream      string
	Group       string
	Consumer    string
	Concurrency int
	// Block is how long a read waits for new entries.
	Block time.Duration
}

// redisStreamDispatcher appends events to a Redis stream and consumes them
// through a consumer group, so each entry reaches exactly one consumer.
// Entries are acknowledged after their handlers return; entries left
// pending by a crashed consumer are read again when it restarts.
type redisStreamDispatcher struct {
	handlerSet
	client *redis.Client
	opts   RedisStreamOptions
	logger *zap.Logger

	stateMu sync.Mutex
	cancel  context.CancelFunc
	closed  bool
	running sync.WaitGroup
}

// NewRedisStreamDispatcher creates a dispatcher backed by a Redis stream.
func NewRedisStreamDispatcher(client *redis.Client, opts RedisStreamOptions, logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	return &redisStreamDispatcher{client: client, opts: opts, logger: logger}
}

// Publish appends the event to the stream.
func (d *redisStreamDispatcher) Publish(ctx context.Context, event Event) error {
	d.stateMu.Lock()
	closed := d.closed
	d.stateMu.Unlock()
	if closed {
		return ErrClosed
	}

	values, err := encodeEntry(event)
	if err != nil {
		return err
	}
	if err := d.client.XAdd(ctx, &redis.XAddArgs{Stream: d.opts.Stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Name, err)
	}
	return nil
}

// Start creates the consumer group if needed and launches the read loop.
func (d *redisStreamDispatcher) Start(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.opts.Stream, d.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", d.opts.Group, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.stateMu.Lock()
	d.cancel = cancel
	d.stateMu.Unlock()

	d.running.Add(1)
	go d.consume(loopCtx)
	d.logger.Info("redis stream consumer started",
		zap.String("stream", d.opts.Stream),
		zap.String("group", d.opts.Group),
		zap.String("consumer", d.opts.Consumer))
	return nil
}

func (d *redisStreamDispatcher) Close() error {
	d.stateMu.Lock()
	d.closed = true
	cancel := d.cancel
	d.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.running.Wait()
	return nil
}

// consume reads this consumer's pending entries first, then new ones.
// Each batch is fully handled before the next read.
func (d *redisStreamDispatcher) consume(ctx context.Context) {
	defer d.running.Done()
	cursor := "0"

	for ctx.Err() == nil {
		streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.opts.Group,
			Consumer: d.opts.Consumer,
			Streams:  []string{d.opts.Stream, cursor},
			Count:    int64(d.opts.Concurrency),
			Block:    d.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var batch sync.WaitGroup
		received := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				received++
				batch.Add(1)
				go func(msg redis.XMessage) {
					defer batch.Done()
					d.handle(ctx, msg)
				}(msg)
			}
		}
		batch.Wait()

		if cursor == "0" && received == 0 {
			cursor = ">"
		}
	}
}

func (d *redisStreamDispatcher) handle(ctx context.Context, msg redis.XMessage) {
	event, err := decodeEntry(msg.Values)
	if err != nil {
		d.logger.Error("dropping malformed stream entry", zap.String("entry_id", msg.ID), zap.Error(err))
	} else {
		deliver(ctx, d.logger, event, d.handlersFor(event.Name))
	}
	if ctx.Err() != nil {
		// left pending for redelivery
		return
	}
	if err := d.client.XAck(context.WithoutCancel(ctx), d.opts.Stream, d.opts.Group, msg.ID).Err(); err != nil {
		d.logger.Warn("stream ack failed", zap.String("entry_id", msg.ID), zap.Error(err))
	}
}

func encodeEntry(event Event) (map[string]any, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return map[string]any{streamField: string(raw)}, nil
}

func decodeEntry(values map[string]any) (Event, error) {
	raw, ok := values[streamField].(string)
	if !ok {
		return Event{}, fmt.Errorf("stream entry has no %q field", streamField)
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("decode stream entry: %w", err)
	}
	if event.ID == "" {
		return Event{}, errors.New("stream entry has no event id")
	}
	if !event.Name.Known() {
		return Event{}, fmt.Errorf("stream entry has unknown event %q", event.Name)
	}
	return event, nil
}
