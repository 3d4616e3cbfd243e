package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
	"github.com/ivanhoe/elixirconf-chat/internal/stats"
	"github.com/ivanhoe/elixirconf-chat/internal/testutil"
	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

// recordingBus captures lobby updates for assertions.
type recordingBus struct {
	updates chan lobby.RoomUpdate
}

func newRecordingBus() *recordingBus {
	return &recordingBus{updates: make(chan lobby.RoomUpdate, 64)}
}

func (b *recordingBus) Publish(update lobby.RoomUpdate) {
	b.updates <- update
}

func (b *recordingBus) next(t *testing.T) lobby.RoomUpdate {
	t.Helper()
	select {
	case update := <-b.updates:
		return update
	case <-time.After(time.Second):
		t.Fatal("timeout: no room update published")
		return lobby.RoomUpdate{}
	}
}

func (b *recordingBus) assertNone(t *testing.T) {
	t.Helper()
	select {
	case update := <-b.updates:
		t.Fatalf("unexpected room update: %+v", update)
	default:
	}
}

// newTestChatServer creates a ChatServer with permissive stats
// expectations for testing purposes.
func newTestChatServer(t *testing.T, dir directory.Directory, bus lobby.Bus) *ChatServer {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(5)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	su.On("Add", mock.Anything, mock.Anything).Maybe()

	cs, err := NewChatServer(testutil.TestLogger(t), dir, bus, su, time.Second)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// newTestClient builds a client without a live websocket connection.
// The send channel stands in for the subscriber push channel.
func newTestClient(t *testing.T, cs *ChatServer, userId int) *Client {
	t.Helper()

	return NewClient(
		testUser(userId),
		nil,
		cs,
		testutil.TestLogger(t),
	)
}

func testUser(id int) types.User {
	return types.User{Id: id, Username: fmt.Sprintf("user%d", id)}
}
