package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
	"github.com/ivanhoe/elixirconf-chat/internal/stats"
)

// ChatServer owns the room registry and the set of connected clients.
// Room actors are created lazily, one per identifier.
type ChatServer struct {
	log           *log.Logger
	directory     directory.Directory
	validator     *Validator
	bus           lobby.Bus
	stats         stats.StatsProvider
	lookupTimeout time.Duration

	roomsLock sync.Mutex
	rooms     map[string]*Room

	clientsLock sync.Mutex
	clients     map[*Client]struct{}
}

func NewChatServer(logger *log.Logger, dir directory.Directory, bus lobby.Bus, sp stats.StatsProvider, lookupTimeout time.Duration) (*ChatServer, error) {
	cs := &ChatServer{
		log:           logger,
		directory:     dir,
		validator:     NewValidator(),
		bus:           bus,
		stats:         sp,
		lookupTimeout: lookupTimeout,
		rooms:         make(map[string]*Room),
		clients:       make(map[*Client]struct{}),
	}

	for _, metric := range []string{
		stats.ActiveRooms,
		stats.ActiveConnections,
		stats.RoomSubscribers,
		stats.MessagesPosted,
		stats.MessagesDeleted,
	} {
		cs.stats.RegisterMetric(metric)
	}

	return cs, nil
}

// Room returns the actor for id, creating and starting it on first
// use. At most one actor ever exists per identifier.
func (cs *ChatServer) Room(id string) *Room {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	room, ok := cs.rooms[id]
	if !ok {
		room = newRoom(id, cs)
		cs.rooms[id] = room
		cs.stats.Incr(stats.ActiveRooms)
		go room.start()
	}

	return room
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(stats.ActiveConnections)
	}
}

// Shutdown stops all clients and room workers, waiting for each room
// to drain or the context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	for id, room := range cs.rooms {
		cs.log.Printf("shutting down room %q", id)
		close(room.exit)

		select {
		case <-room.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		delete(cs.rooms, id)
		cs.stats.Decr(stats.ActiveRooms)
	}

	return nil
}
