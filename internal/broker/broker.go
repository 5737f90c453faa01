// Package broker is the fan-out seam: the room router publishes every
// outbound frame through a Broker and delivers whatever comes back. The
// local broker loops frames straight back in-process; the redis broker
// relays them through pub/sub so several instances see the same stream.
package broker

import "context"

// Handler receives a published frame for a room. Implementations must be
// safe to call from multiple goroutines.
type Handler func(room string, frame []byte)

type Broker interface {
	Publish(ctx context.Context, room string, frame []byte) error
	Subscribe(h Handler)
	Close() error
}

// Local is the single-instance broker: Publish hands the frame to the
// subscribed handler synchronously, preserving per-caller ordering.
type Local struct {
	h Handler
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Subscribe(h Handler) { l.h = h }

func (l *Local) Publish(_ context.Context, room string, frame []byte) error {
	if l.h != nil {
		l.h(room, frame)
	}
	return nil
}

func (l *Local) Close() error { return nil }
