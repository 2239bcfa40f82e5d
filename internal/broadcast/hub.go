// Package broadcast pushes auction events to subscribers grouped into rooms:
// one room per auction plus a global room that sees every event.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jensholdgaard/sneakerbid/internal/event"
)

// GlobalRoom receives the events of every auction.
const GlobalRoom = "global"

// endedHistory is how many ended auctions keep their final version so that
// a late event for them is still recognised as stale.
const endedHistory = 1024

// Subscription is one client's view of a room. Events arrive on C until
// the subscription is removed, at which point C is closed.
type Subscription struct {
	C    <-chan event.Event
	room string
	ch   chan event.Event
}

// Room returns the room the subscription listens to.
func (s *Subscription) Room() string { return s.room }

// Hub is an in-process room registry. Delivery is at most once: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]map[*Subscription]struct{}
	lastVersion map[string]int64
	ended       map[string]int64
	endedRing   []string
	endedNext   int
	buffer      int
	logger      *slog.Logger
}

// NewHub creates a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		rooms:       make(map[string]map[*Subscription]struct{}),
		lastVersion: make(map[string]int64),
		ended:       make(map[string]int64),
		endedRing:   make([]string, endedHistory),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe joins room. Use an auction id for one auction or GlobalRoom
// for all of them.
func (h *Hub) Subscribe(room string) *Subscription {
	ch := make(chan event.Event, h.buffer)
	s := &Subscription{C: ch, room: room, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Subscription]struct{})
	}
	h.rooms[room][s] = struct{}{}
	return s
}

// Unsubscribe leaves the room and closes the subscription channel. It is
// safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[s.room]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.ch)
	if len(subs) == 0 {
		delete(h.rooms, s.room)
	}
}

// Subscribers returns how many subscriptions room has.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Publish delivers e locally. It implements event.Publisher for
// single-replica deployments.
func (h *Hub) Publish(_ context.Context, e event.Event) error {
	h.Deliver(e)
	return nil
}

// Deliver sends e to the auction's room and the global room and returns the
// number of subscribers that received it. An event whose version is not
// newer than the last one delivered for the same auction is dropped, so
// subscribers never see an older state after a newer one.
func (h *Hub) Deliver(e event.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	last, ok := h.lastVersion[e.AuctionID]
	if !ok {
		last, ok = h.ended[e.AuctionID]
	}
	if ok && e.Version <= last {
		h.logger.Debug("dropping stale event",
			slog.String("auction_id", e.AuctionID),
			slog.Int64("version", e.Version),
			slog.Int64("last_version", last),
		)
		return 0
	}
	if e.Type == event.AuctionEnded {
		delete(h.lastVersion, e.AuctionID)
		h.retire(e.AuctionID, e.Version)
	} else {
		h.lastVersion[e.AuctionID] = e.Version
	}

	delivered := 0
	for _, room := range []string{e.AuctionID, GlobalRoom} {
		for s := range h.rooms[room] {
			select {
			case s.ch <- e:
				delivered++
			default:
				h.logger.Warn("subscriber buffer full, dropping event",
					slog.String("room", room),
					slog.String("auction_id", e.AuctionID),
					slog.String("type", string(e.Type)),
				)
			}
		}
	}
	return delivered
}

// retire records the final version of an ended auction, evicting the oldest
// entry once endedHistory auctions are remembered. Callers hold h.mu.
func (h *Hub) retire(auctionID string, version int64) {
	if old := h.endedRing[h.endedNext]; old != "" {
		delete(h.ended, old)
	}
	h.endedRing[h.endedNext] = auctionID
	h.endedNext = (h.endedNext + 1) % len(h.endedRing)
	h.ended[auctionID] = version
}
