package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel is the redis pub/sub channel carrying game-created notifications.
const Channel = "basefair:game-created"

// RedisBridge relays notifications between processes.
type RedisBridge struct {
	rdb    *redis.Client
	origin string
	log    log.Logger
}

func NewRedisBridge(rdb *redis.Client, l log.Logger) *RedisBridge {
	if l == nil {
		l = log.Root()
	}
	return &RedisBridge{rdb: rdb, origin: uuid.NewString(), log: l.New("component", "redis-bridge")}
}

// Publish sends n to the channel, stamped with this bridge's origin.
func (r *RedisBridge) Publish(ctx context.Context, n Notification) error {
	if n.Origin == "" {
		n.Origin = r.origin
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel, err)
	}
	return nil
}

// Forward delivers notifications published by other processes to dst until
// ctx is done.
func (r *RedisBridge) Forward(ctx context.Context, dst Publisher) error {
	pubsub := r.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	r.log.Info("Subscribed to notifications", "channel", Channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				r.log.Warn("Invalid notification payload", "err", err)
				continue
			}
			if n.Origin == r.origin {
				continue
			}
			if err := dst.Publish(ctx, n); err != nil {
				r.log.Warn("Forwarding notification failed", "game", n.GameID, "err", err)
			}
		}
	}
}
