package broker

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "room:"

// Redis relays frames through redis pub/sub. Every instance publishes to
// "room:<name>" and pattern-subscribes to "room:*", so a frame published on
// one instance is delivered on all of them, the publisher included.
type Redis struct {
	rdb    *redis.Client
	cancel context.CancelFunc
}

func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "broker").Str("url", url).Msg("connected to redis")
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Publish(ctx context.Context, room string, frame []byte) error {
	return r.rdb.Publish(ctx, channelPrefix+room, frame).Err()
}

func (r *Redis) Subscribe(h Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	pubsub := r.rdb.PSubscribe(ctx, channelPrefix+"*")

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn().Str("module", "broker").Msg("redis pub/sub channel closed")
					return
				}
				room := strings.TrimPrefix(msg.Channel, channelPrefix)
				h(room, []byte(msg.Payload))
			}
		}
	}()
}

func (r *Redis) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.rdb.Close()
}
