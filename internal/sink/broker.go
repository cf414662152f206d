package sink

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Subscription receives encoded frames for one stream. Frames is closed when
// the subscriber is removed.
type Subscription struct {
	ID     string
	Frames chan []byte
}

// FrameBroker fans JPEG payloads out to HTTP viewers. It implements Transport
// so a LowLatency sink can feed it directly. A slow viewer never blocks the
// stream: its oldest pending frame is dropped instead.
type FrameBroker struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // stream id -> sub id -> sub
}

// NewFrameBroker creates an empty broker.
func NewFrameBroker() *FrameBroker {
	return &FrameBroker{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a viewer for a stream's frames.
func (b *FrameBroker) Subscribe(streamID string) *Subscription {
	sub := &Subscription{
		ID:     ulid.Make().String(),
		Frames: make(chan []byte, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[streamID] == nil {
		b.subs[streamID] = make(map[string]*Subscription)
	}
	b.subs[streamID][sub.ID] = sub
	return sub
}

// Unsubscribe removes a viewer and closes its channel.
func (b *FrameBroker) Unsubscribe(streamID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	viewers := b.subs[streamID]
	sub, ok := viewers[subID]
	if !ok {
		return
	}
	delete(viewers, subID)
	if len(viewers) == 0 {
		delete(b.subs, streamID)
	}
	close(sub.Frames)
}

// SendFrame delivers a payload to every viewer of the stream. Implements
// Transport.
func (b *FrameBroker) SendFrame(_ context.Context, streamID string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[streamID] {
		select {
		case sub.Frames <- payload:
		default:
			// Viewer is behind. Replace its pending frame with the newest.
			select {
			case <-sub.Frames:
			default:
			}
			select {
			case sub.Frames <- payload:
			default:
			}
		}
	}
	return nil
}

// Viewers returns the number of subscribers for a stream.
func (b *FrameBroker) Viewers(streamID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[streamID])
}
