// Package buffer holds communications back during protected states. Held
// messages live in per-user Redis Streams so they survive restarts and
// drain in arrival order when the protection lifts.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "cogni:held:"

// HeldMessage is one communication waiting for the user.
type HeldMessage struct {
	UserID  string    `json:"user_id"`
	Channel string    `json:"channel"`
	Sender  string    `json:"sender,omitempty"`
	Body    string    `json:"body"`
	HeldAt  time.Time `json:"held_at"`
}

// Buffer is a Redis Streams backed message buffer.
type Buffer struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New creates a Buffer connected to Redis.
func New(redisURL string, logger *zap.Logger) (*Buffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Buffer{rdb: rdb, logger: logger}, nil
}

// Hold appends a message to the user's held stream.
func (b *Buffer) Hold(ctx context.Context, userID, channel, sender, body string) error {
	m := HeldMessage{
		UserID:  userID,
		Channel: channel,
		Sender:  sender,
		Body:    body,
		HeldAt:  time.Now(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	stream := streamPrefix + userID
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("hold message for %s: %w", userID, err)
	}

	b.logger.Debug("message held",
		zap.String("user", userID), zap.String("channel", channel))
	return nil
}

// List returns the user's held messages in arrival order without
// removing them.
func (b *Buffer) List(ctx context.Context, userID string) ([]HeldMessage, error) {
	stream := streamPrefix + userID
	entries, err := b.rdb.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("list held for %s: %w", userID, err)
	}

	out := make([]HeldMessage, 0, len(entries))
	for _, e := range entries {
		data, ok := e.Values["data"].(string)
		if !ok {
			continue
		}
		var m HeldMessage
		if json.Unmarshal([]byte(data), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Drain returns the user's held messages in arrival order and clears the
// stream. Called when the protected state ends.
func (b *Buffer) Drain(ctx context.Context, userID string) ([]HeldMessage, error) {
	msgs, err := b.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := b.rdb.Del(ctx, streamPrefix+userID).Err(); err != nil {
		return nil, fmt.Errorf("clear held for %s: %w", userID, err)
	}
	b.logger.Info("held messages drained",
		zap.String("user", userID), zap.Int("count", len(msgs)))
	return msgs, nil
}

// Close shuts down the Redis connection.
func (b *Buffer) Close() error {
	return b.rdb.Close()
}
