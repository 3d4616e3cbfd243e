package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
	"github.com/ivanhoe/elixirconf-chat/internal/stats"
	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

// ErrRoomClosed is returned for operations against a room whose worker
// has already exited.
var ErrRoomClosed = errors.New("room closed")

// subscriber is one membership entry: the resolved user plus the
// release func for the liveness hook registered on its connection.
type subscriber struct {
	user    types.User
	release func()
}

type joinReq struct {
	ctx    context.Context
	userId int
	client *Client
	reply  chan error
}

type leaveReq struct {
	client *Client
	reply  chan struct{}
}

type postReq struct {
	params PostParams
	reply  chan struct{}
}

type clearReq struct {
	reply chan []types.Message
}

type banReq struct {
	userId int
	reply  chan []uuid.UUID
}

type stateReq struct {
	reply chan types.RoomState
}

// Room holds the authoritative state of one chat room. A single worker
// goroutine owns messages and subscribers; every operation goes through
// its channels, so no two operations on the same room interleave.
type Room struct {
	id  string
	cs  *ChatServer
	log *log.Logger

	messages    []types.Message
	subscribers map[*Client]subscriber

	joinChan  chan joinReq
	leaveChan chan leaveReq
	postChan  chan postReq
	clearChan chan clearReq
	banChan   chan banReq
	stateChan chan stateReq
	termChan  chan *Client
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(id string, cs *ChatServer) *Room {
	return &Room{
		id:          id,
		cs:          cs,
		log:         cs.log,
		subscribers: make(map[*Client]subscriber),
		joinChan:    make(chan joinReq),
		leaveChan:   make(chan leaveReq),
		postChan:    make(chan postReq),
		clearChan:   make(chan clearReq),
		banChan:     make(chan banReq),
		stateChan:   make(chan stateReq),
		termChan:    make(chan *Client, 256),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *Room) Id() string {
	return r.id
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	defer close(r.done)

	for {
		select {
		case req := <-r.joinChan:
			req.reply <- r.handleJoin(req)
		case req := <-r.leaveChan:
			r.handleLeave(req.client)
			req.reply <- struct{}{}
		case req := <-r.postChan:
			r.handlePost(req.params)
			req.reply <- struct{}{}
		case req := <-r.clearChan:
			req.reply <- r.handleClear()
		case req := <-r.banChan:
			req.reply <- r.handleDeleteBanned(req.userId)
		case req := <-r.stateChan:
			req.reply <- r.snapshot()
		case c := <-r.termChan:
			r.handleTerminated(c)
		case <-r.exit:
			r.handleExit()
			return
		}
	}
}

// Join resolves the user, registers the liveness hook on the
// connection and records the subscription. Joining twice on the same
// connection replaces the previous entry.
func (r *Room) Join(ctx context.Context, userId int, c *Client) error {
	req := joinReq{ctx: ctx, userId: userId, client: c, reply: make(chan error, 1)}

	select {
	case r.joinChan <- req:
	case <-r.done:
		return ErrRoomClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Leave removes the connection's subscription. Leaving a room the
// connection never joined still emits a membership update.
func (r *Room) Leave(c *Client) {
	req := leaveReq{client: c, reply: make(chan struct{}, 1)}

	select {
	case r.leaveChan <- req:
	case <-r.done:
		return
	}

	select {
	case <-req.reply:
	case <-r.done:
	}
}

// Post validates params and appends the resulting message. Invalid
// params are dropped without surfacing an error to the caller.
func (r *Room) Post(params PostParams) {
	req := postReq{params: params, reply: make(chan struct{}, 1)}

	select {
	case r.postChan <- req:
	case <-r.done:
		return
	}

	select {
	case <-req.reply:
	case <-r.done:
	}
}

// ClearHistory empties the room's message history. The reply mirrors
// the cleared queue, not its prior contents.
func (r *Room) ClearHistory() []types.Message {
	req := clearReq{reply: make(chan []types.Message, 1)}

	select {
	case r.clearChan <- req:
	case <-r.done:
		return nil
	}

	select {
	case msgs := <-req.reply:
		return msgs
	case <-r.done:
		return nil
	}
}

// DeleteBannedMessages soft deletes every message authored by userId
// and returns the affected ids. Messages already deleted by a prior
// ban are stamped again with the new time.
func (r *Room) DeleteBannedMessages(userId int) []uuid.UUID {
	req := banReq{userId: userId, reply: make(chan []uuid.UUID, 1)}

	select {
	case r.banChan <- req:
	case <-r.done:
		return nil
	}

	select {
	case ids := <-req.reply:
		return ids
	case <-r.done:
		return nil
	}
}

// State returns a snapshot of the room's history and membership.
func (r *Room) State() types.RoomState {
	req := stateReq{reply: make(chan types.RoomState, 1)}

	select {
	case r.stateChan <- req:
	case <-r.done:
		return types.RoomState{RoomId: r.id}
	}

	select {
	case state := <-req.reply:
		return state
	case <-r.done:
		return types.RoomState{RoomId: r.id}
	}
}

// Users returns the currently connected users keyed by session id.
func (r *Room) Users() map[string]types.User {
	return r.State().Users
}

// UserCount returns the number of connected subscribers.
func (r *Room) UserCount() int {
	return len(r.State().Users)
}

func (r *Room) handleJoin(req joinReq) error {
	ctx, cancel := context.WithTimeout(req.ctx, r.cs.lookupTimeout)
	defer cancel()

	user, err := r.cs.directory.GetUser(ctx, req.userId)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", req.userId, err)
	}

	c := req.client
	if prev, ok := r.subscribers[c]; ok {
		// rejoin on the same connection: last write wins
		prev.release()
	} else {
		r.cs.stats.Incr(stats.RoomSubscribers)
	}

	release := c.onClose(func() {
		select {
		case r.termChan <- c:
		case <-r.done:
		}
	})
	r.subscribers[c] = subscriber{user: user, release: release}
	c.addRoom(r)

	r.log.Printf("user %q joined room %q", user.Username, r.id)
	r.publishUpdate(true)

	return nil
}

func (r *Room) handleLeave(c *Client) {
	if sub, ok := r.subscribers[c]; ok {
		sub.release()
		delete(r.subscribers, c)
		c.delRoom(r.id)
		r.cs.stats.Decr(stats.RoomSubscribers)
		r.log.Printf("user %q left room %q", sub.user.Username, r.id)
	}

	r.publishUpdate(true)
}

// handleTerminated runs when a subscriber's connection died without an
// explicit leave. The membership update it emits carries only the
// count, not the users payload.
func (r *Room) handleTerminated(c *Client) {
	sub, ok := r.subscribers[c]
	if !ok {
		return
	}

	delete(r.subscribers, c)
	c.delRoom(r.id)
	r.cs.stats.Decr(stats.RoomSubscribers)
	r.log.Printf("connection for user %q in room %q terminated", sub.user.Username, r.id)

	r.publishUpdate(false)
}

func (r *Room) handlePost(params PostParams) {
	msg, err := r.cs.validator.Validate(params)
	if err != nil {
		// invalid input is dropped; the caller still sees success
		r.log.Printf("room %q: discarding invalid message: %v", r.id, err)
		return
	}

	r.messages = append(r.messages, msg)
	r.cs.stats.Incr(stats.MessagesPosted)

	r.push(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		NewMessage:  &NewMessage{RoomId: r.id, Message: msg},
	})
}

func (r *Room) handleClear() []types.Message {
	r.messages = nil
	return []types.Message{}
}

func (r *Room) handleDeleteBanned(userId int) []uuid.UUID {
	banned := lo.FilterMap(r.messages, func(m types.Message, _ int) (uuid.UUID, bool) {
		return m.Id, m.UserId == userId
	})

	now := Now()
	for i := range r.messages {
		if r.messages[i].UserId == userId {
			deletedAt := now
			r.messages[i].DeletedAt = &deletedAt
		}
	}

	r.cs.stats.Add(stats.MessagesDeleted, len(banned))

	r.push(&ServerMessage{
		BaseMessage:     BaseMessage{Timestamp: now},
		MessagesDeleted: &MessagesDeleted{RoomId: r.id, Ids: banned},
	})

	return banned
}

func (r *Room) handleExit() {
	r.log.Printf("room %q is exiting", r.id)

	for c, sub := range r.subscribers {
		sub.release()
		c.delRoom(r.id)
		delete(r.subscribers, c)
		r.cs.stats.Decr(stats.RoomSubscribers)
	}
}

func (r *Room) snapshot() types.RoomState {
	messages := make([]types.Message, len(r.messages))
	copy(messages, r.messages)

	return types.RoomState{
		RoomId:   r.id,
		Messages: messages,
		Users:    r.users(),
	}
}

func (r *Room) users() map[string]types.User {
	users := make(map[string]types.User, len(r.subscribers))
	for c, sub := range r.subscribers {
		users[c.Id()] = sub.user
	}
	return users
}

// publishUpdate emits the post-mutation membership to the lobby bus,
// omitting the users payload for disconnect-driven updates.
func (r *Room) publishUpdate(includeUsers bool) {
	update := lobby.RoomUpdate{
		RoomId:     r.id,
		UsersCount: len(r.subscribers),
	}
	if includeUsers {
		update.Users = r.users()
	}

	r.cs.bus.Publish(update)
}

// push fans an event out to every current subscriber without blocking
// on slow or dead connections.
func (r *Room) push(msg *ServerMessage) {
	for c := range r.subscribers {
		if !c.queueMessage(msg) {
			r.log.Printf("dropping event for session %q in room %q", c.Id(), r.id)
		}
	}
}
