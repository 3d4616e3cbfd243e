package lobby

import (
	"log"
	"sync"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

// RoomUpdate is the membership-change event a room emits after join,
// leave or detected disconnect. Users is omitted for disconnect-driven
// updates.
type RoomUpdate struct {
	RoomId     string                `json:"room_id"`
	UsersCount int                   `json:"users_count"`
	Users      map[string]types.User `json:"users,omitempty"`
}

// Bus receives room updates for fan-out beyond the room's own
// subscribers. Delivery is fire and forget.
type Bus interface {
	Publish(RoomUpdate)
}

const listenerBufferSize = 16

// Broadcaster fans room updates out to registered listeners. A slow
// listener never blocks publishing: events are dropped when its buffer
// is full.
type Broadcaster struct {
	log       *log.Logger
	pubChan   chan RoomUpdate
	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	listeners map[chan RoomUpdate]struct{}
}

func NewBroadcaster(logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		log:       logger,
		pubChan:   make(chan RoomUpdate, 256),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		listeners: make(map[chan RoomUpdate]struct{}),
	}
}

func (b *Broadcaster) Run() {
	go func() {
		defer close(b.done)
		for {
			select {
			case update := <-b.pubChan:
				b.fanOut(update)
			case <-b.stop:
				return
			}
		}
	}()
}

func (b *Broadcaster) fanOut(update RoomUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.listeners {
		select {
		case ch <- update:
		default:
			b.log.Printf("dropping room update for %q, listener buffer full", update.RoomId)
		}
	}
}

func (b *Broadcaster) Publish(update RoomUpdate) {
	select {
	case b.pubChan <- update:
	default:
		b.log.Printf("dropping room update for %q, publish buffer full", update.RoomId)
	}
}

// Subscribe registers a listener channel. The caller must drain it and
// call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan RoomUpdate {
	ch := make(chan RoomUpdate, listenerBufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[ch] = struct{}{}

	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan RoomUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[ch]; ok {
		delete(b.listeners, ch)
		close(ch)
	}
}

func (b *Broadcaster) Stop() {
	close(b.stop)
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.listeners {
		delete(b.listeners, ch)
		close(ch)
	}
}
