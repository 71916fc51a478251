package main

import "sync"

// EventHub fans runtime events out to websocket subscribers. A bounded
// replay buffer lets late subscribers catch up on recent events.
type EventHub struct {
	mu          sync.Mutex
	replay      [][]byte
	replaySize  int
	subscribers map[*Subscription]struct{}
}

// Subscription is one subscriber's view: buffered history plus a live
// channel. Slow subscribers lose frames rather than stalling the hub.
type Subscription struct {
	Replay [][]byte
	Ch     chan []byte
}

// NewEventHub creates a hub keeping up to replaySize frames of history.
func NewEventHub(replaySize int) *EventHub {
	if replaySize <= 0 {
		replaySize = 256
	}
	return &EventHub{
		replay:      make([][]byte, 0, replaySize),
		replaySize:  replaySize,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Publish records the frame and delivers it to every subscriber.
func (h *EventHub) Publish(event string, payload []byte) {
	frame := make([]byte, len(payload))
	copy(frame, payload)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.replay = append(h.replay, frame)
	if len(h.replay) > h.replaySize {
		h.replay = h.replay[len(h.replay)-h.replaySize:]
	}

	for sub := range h.subscribers {
		select {
		case sub.Ch <- frame:
		default:
			// subscriber is not keeping up; drop the frame for it
		}
	}
}

// Subscribe registers a new subscriber and hands it the replay history.
func (h *EventHub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		Replay: make([][]byte, len(h.replay)),
		Ch:     make(chan []byte, 64),
	}
	copy(sub.Replay, h.replay)
	h.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.Ch)
	}
}
