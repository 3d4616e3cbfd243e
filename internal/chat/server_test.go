package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanhoe/elixirconf-chat/internal/directory"
)

func TestChatServer_Room(t *testing.T) {
	t.Run("lazily creates and reuses room actors", func(t *testing.T) {
		cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())

		r1 := cs.Room("keynote")
		r2 := cs.Room("keynote")
		assert.Same(t, r1, r2, "expected one actor per room id")

		other := cs.Room("hallway")
		assert.NotSame(t, r1, other)
	})

	t.Run("concurrent access yields a single actor", func(t *testing.T) {
		cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())

		const n = 16
		rooms := make([]*Room, n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				rooms[i] = cs.Room("keynote")
			}(i)
		}
		wg.Wait()

		for i := 1; i < n; i++ {
			assert.Same(t, rooms[0], rooms[i])
		}
	})
}

func TestChatServer_RegisterDeregisterClient(t *testing.T) {
	cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())

	c := newTestClient(t, cs, 1)
	cs.RegisterClient(c)
	assert.Contains(t, cs.clients, c)

	cs.DeregisterClient(c)
	assert.NotContains(t, cs.clients, c)

	// deregistering twice must not underflow
	cs.DeregisterClient(c)
}

func TestChatServer_Shutdown(t *testing.T) {
	cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())

	room := cs.Room("keynote")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))

	select {
	case <-room.done:
	case <-time.After(time.Second):
		t.Fatal("timeout: room worker did not exit")
	}

	err := room.Join(context.Background(), 1, newTestClient(t, cs, 1))
	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.Empty(t, cs.rooms)
}
