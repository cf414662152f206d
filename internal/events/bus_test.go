package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	b := New()
	var frames atomic.Int64
	unsub := b.Subscribe(func(e FrameProcessedEvent) {
		if e.StreamID == "s1" {
			frames.Add(1)
		}
	})
	defer unsub()

	b.Publish(FrameProcessedEvent{StreamID: "s1"})
	b.Publish(FrameProcessedEvent{StreamID: "s1"})

	require.Eventually(t, func() bool {
		return frames.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeRejectsUnknownHandler(t *testing.T) {
	b := New()
	assert.Panics(t, func() {
		b.Subscribe(func(s string) {})
	})
	assert.Panics(t, func() {
		b.Subscribe(42)
	})
}
