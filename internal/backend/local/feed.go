package local

import (
	"context"
	"sync"

	"github.com/avhall/taskdeck/internal/backend"
)

// feedHub fans row-level change events out to per-user subscribers,
// mirroring the hosted service's realtime channel. Events are delivered
// in emit order per subscriber; a subscriber that falls behind its
// buffer loses events rather than blocking writers.
type feedHub struct {
	mu     sync.Mutex
	subs   map[int]*feedSub
	nextID int
	closed bool
}

type feedSub struct {
	userID string
	ch     chan backend.ChangeEvent
}

const feedBuffer = 64

func newFeedHub() *feedHub {
	return &feedHub{subs: make(map[int]*feedSub)}
}

func (h *feedHub) subscribe(ctx context.Context, userID string) <-chan backend.ChangeEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan backend.ChangeEvent, feedBuffer)
	if h.closed {
		close(ch)
		return ch
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &feedSub{userID: userID, ch: ch}

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}()

	return ch
}

// emit delivers an event to every subscriber watching userID.
func (h *feedHub) emit(userID string, ev backend.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber buffer full; drop rather than block the write path.
		}
	}
}

func (h *feedHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
