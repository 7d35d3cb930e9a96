package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "notify:room:"

// Bridge replicates hub emits across instances through Redis pub/sub. Emits
// go to the room's channel instead of the local hub; every instance,
// including the publisher, delivers subscribed messages to its own hub, so
// each session receives the event exactly once. A Redis outage degrades to
// local-only delivery.
type Bridge struct {
	hub    *Hub
	client *redis.Client
	logger *slog.Logger
}

func NewBridge(hub *Hub, client *redis.Client, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{hub: hub, client: client, logger: logger}
}

// Emit publishes the envelope to the user's room channel. When the publish
// fails the event is handed to the local hub instead: a failed publish
// reached no subscriber, so local delivery cannot double-send, and sessions
// on this instance still see the event while Redis is down.
func (b *Bridge) Emit(ctx context.Context, uid, event string, payload any) error {
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, roomChannelPrefix+uid, raw).Err(); err != nil {
		b.logger.Warn("bridge publish failed, delivering locally",
			"uid", uid,
			"event", event,
			"error", err,
		)
		b.hub.deliver(uid, raw)
	}
	return nil
}

// Run subscribes to all room channels and delivers messages to the local hub
// until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed so emits published right
	// after startup are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			uid := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			if uid == "" || uid == msg.Channel {
				b.logger.Warn("bridge received message on unexpected channel", "channel", msg.Channel)
				continue
			}
			b.hub.deliver(uid, []byte(msg.Payload))
		}
	}
}
