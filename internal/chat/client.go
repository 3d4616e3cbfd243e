package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is a single websocket session: the connection handle under
// which a user subscribes to rooms. The read pump doubles as the
// liveness monitor: when it exits, every close hook registered by a
// room runs exactly once.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once

	closeLock  sync.Mutex
	closed     bool
	closeHooks map[uint64]func()
	nextHookId uint64
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         shortid.MustGenerate(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
		closeHooks: make(map[uint64]func()),
	}
}

// Id is the session identifier under which the client appears in
// room membership.
func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

// onClose registers fn to run when the connection terminates. If the
// connection is already down, fn fires immediately. The returned
// release func deregisters the hook; releasing twice or after the hook
// has fired is a no-op.
func (c *Client) onClose(fn func()) func() {
	c.closeLock.Lock()
	if c.closed {
		c.closeLock.Unlock()
		go fn()
		return func() {}
	}

	id := c.nextHookId
	c.nextHookId++
	c.closeHooks[id] = fn
	c.closeLock.Unlock()

	return func() {
		c.closeLock.Lock()
		defer c.closeLock.Unlock()
		delete(c.closeHooks, id)
	}
}

// terminate fires the registered close hooks. Safe to call more than
// once; only the first call runs them.
func (c *Client) terminate() {
	c.closeLock.Lock()
	if c.closed {
		c.closeLock.Unlock()
		return
	}
	c.closed = true
	hooks := c.closeHooks
	c.closeHooks = nil
	c.closeLock.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		c.joinRoom(msg)
	case msg.Leave != nil:
		c.leaveRoom(msg)
	case msg.Publish != nil:
		c.publish(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	room := c.chatServer.Room(msg.Join.RoomId)
	if err := room.Join(context.Background(), c.user.Id, c); err != nil {
		c.log.Printf("join room %q: %v", room.Id(), err)
		c.queueMessage(ErrUserNotFound(msg.Id))
		return
	}

	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	room := c.getRoom(msg.Leave.RoomId)
	if room == nil {
		c.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	room.Leave(c)
	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) publish(msg *ClientMessage) {
	room := c.getRoom(msg.Publish.RoomId)
	if room == nil {
		c.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	room.Post(PostParams{
		UserId:   c.user.Id,
		Body:     msg.Publish.Body,
		PostedAt: msg.Timestamp,
	})

	// posts are always acknowledged, even when validation dropped them
	c.queueMessage(NoErrAccepted(msg.Id))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeregisterClient(c)
	c.terminate()
	c.stopClient()
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.Id()] = r
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
