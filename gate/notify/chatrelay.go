package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helrift/gate/cache"
	"github.com/helrift/gate/gate"
	"go.uber.org/zap"
)

// chatChannel is the pub/sub channel chat messages travel on. With a Redis
// backend every gate instance subscribed to it delivers to its own connected
// game servers; with the local backend it collapses to an in-process hop.
const chatChannel = "gate:chat"

type chatEnvelope struct {
	Type       string          `json:"type"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// ChatRelay routes chat through the cache pub/sub channel before fan-out.
type ChatRelay struct {
	ps     cache.PubSub
	fanout Sender
	logger *zap.Logger
	cancel func()
}

// NewChatRelay creates a relay publishing to ps and delivering via fanout.
func NewChatRelay(ps cache.PubSub, fanout Sender, logger *zap.Logger) *ChatRelay {
	return &ChatRelay{ps: ps, fanout: fanout, logger: logger}
}

// Start subscribes to the chat channel and delivers incoming messages until
// Stop is called or ctx is cancelled.
func (r *ChatRelay) Start(ctx context.Context) error {
	msgs, cancel, err := r.ps.Subscribe(ctx, chatChannel)
	if err != nil {
		return fmt.Errorf("chat relay subscribe: %w", err)
	}
	r.cancel = cancel

	go func() {
		for msg := range msgs {
			var env chatEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("malformed chat envelope dropped", zap.Error(err))
				continue
			}
			r.fanout.BroadcastPayload(env.Recipients, env.Type, env.Payload)
		}
	}()
	return nil
}

// Stop detaches the subscription; messages published afterwards are not
// delivered by this instance.
func (r *ChatRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Relay publishes a chat message onto the channel. Delivery to game servers
// happens on the subscriber side of every instance.
func (r *ChatRelay) Relay(ctx context.Context, msgType string, recipients []string, payload json.RawMessage) error {
	data, err := json.Marshal(chatEnvelope{
		Type:       msgType,
		Recipients: recipients,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("chat envelope: %w", err)
	}
	if err := r.ps.Publish(ctx, chatChannel, string(data)); err != nil {
		r.logger.Error("chat publish failed", zap.Error(err))
		return fmt.Errorf("chat publish: %w", gate.ErrTransient)
	}
	return nil
}
