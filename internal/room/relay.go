package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultRelayChannel = "match:room:relay"
	DefaultRelayQueue   = 256
)

const (
	opBroadcast = "broadcast"
	opSendTo    = "to"
	opLeaveAll  = "leave_all"
)

type envelope struct {
	Instance    string `json:"instance"`
	Op          string `json:"op"`
	SessionID   string `json:"session_id"`
	Participant string `json:"participant,omitempty"`
	Frame       []byte `json:"frame,omitempty"`
}

// Relay fans room traffic out to other server instances over Redis pub/sub.
// Outbound envelopes go through a bounded queue; a full queue drops.
type Relay struct {
	rdb      *redis.Client
	channel  string
	instance string
	queue    chan envelope
}

func NewRelay(rdb *redis.Client, channel string) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{rdb: rdb, channel: channel, instance: uuid.NewString(), queue: make(chan envelope, DefaultRelayQueue)}
}

// Start subscribes and, once the subscription is confirmed, feeds remote
// frames into hub until ctx is done.
func (r *Relay) Start(ctx context.Context, hub *Hub) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("relay subscribe: %w", err)
	}
	hub.AttachRelay(r)
	go r.drain(ctx)
	go func() {
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
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					obslog.L().Warn("room_relay_decode_error", zap.Error(err))
					continue
				}
				// 자기 인스턴스가 보낸 메시지는 무시
				if env.Instance == r.instance {
					continue
				}
				hub.apply(env)
			}
		}
	}()
	obslog.L().Info("room_relay_start", zap.String("channel", r.channel), zap.String("instance", r.instance))
	return nil
}

// publish never blocks the caller.
func (r *Relay) publish(env envelope) {
	env.Instance = r.instance
	select {
	case r.queue <- env:
	default:
		obslog.L().Warn("room_relay_queue_full", zap.String("session_id", env.SessionID), zap.String("op", env.Op))
	}
}

func (r *Relay) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.queue:
			r.send(ctx, env)
		}
	}
}

func (r *Relay) send(ctx context.Context, env envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(pctx, r.channel, raw).Err(); err != nil {
		obslog.L().Warn("room_relay_publish_error", zap.String("session_id", env.SessionID), zap.Error(err))
	}
}
