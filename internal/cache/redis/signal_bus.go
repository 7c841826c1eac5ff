package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus carries signals from external producers over Pub/Sub and
// appends audit entries to Redis Streams.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus wraps c for pub/sub and streams.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel (a glob
// pattern uses PSUBSCRIBE). The returned channel is closed when ctx is
// cancelled or the subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the connection behind the bus.
func (sb *SignalBus) Ping(ctx context.Context) error {
	if err := sb.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends a payload to a stream, trimming it to roughly
// streamMaxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// retryMessage is published when a halted engine discards a signal so the
// scanner can forget it and re-evaluate the token later.
type retryMessage struct {
	TokenID     string `json:"token_id"`
	ConditionID string `json:"condition_id"`
	SignalID    string `json:"signal_id"`
}

// PublishRetry publishes sig's identity on channel.
func (sb *SignalBus) PublishRetry(ctx context.Context, channel string, sig domain.Signal) error {
	payload, err := json.Marshal(retryMessage{TokenID: sig.TokenID, ConditionID: sig.ConditionID, SignalID: sig.ID})
	if err != nil {
		return fmt.Errorf("redis: marshal retry: %w", err)
	}
	return sb.Publish(ctx, channel, payload)
}

// TradeStream appends every fill to a Redis stream for downstream
// consumers.
type TradeStream struct {
	bus    *SignalBus
	stream string
}

// NewTradeStream appends fills to stream on bus.
func NewTradeStream(bus *SignalBus, stream string) *TradeStream {
	return &TradeStream{bus: bus, stream: stream}
}

// Append adds rec to the stream.
func (ts *TradeStream) Append(ctx context.Context, rec domain.TradeRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal trade %s: %w", rec.ID, err)
	}
	return ts.bus.StreamAppend(ctx, ts.stream, payload)
}
