package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ivanhoe/elixirconf-chat/internal/directory"
)

func TestClient_OnClose(t *testing.T) {
	t.Run("hooks fire once on terminate", func(t *testing.T) {
		cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())
		c := newTestClient(t, cs, 1)

		fired := 0
		c.onClose(func() { fired++ })

		c.terminate()
		c.terminate()

		assert.Equal(t, 1, fired)
	})

	t.Run("released hooks do not fire", func(t *testing.T) {
		cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())
		c := newTestClient(t, cs, 1)

		fired := false
		release := c.onClose(func() { fired = true })
		release()
		release() // double release is a no-op

		c.terminate()
		assert.False(t, fired)
	})

	t.Run("hook registered after close fires immediately", func(t *testing.T) {
		cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())
		c := newTestClient(t, cs, 1)
		c.terminate()

		fired := make(chan struct{})
		c.onClose(func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timeout: hook did not fire for already-closed connection")
		}
	})
}

func TestClient_QueueMessage(t *testing.T) {
	cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())
	c := newTestClient(t, cs, 1)

	for i := 0; i < cap(c.send); i++ {
		assert.True(t, c.queueMessage(NoErrOK(i)))
	}

	assert.False(t, c.queueMessage(NoErrOK(-1)), "full send buffer must drop, not block")
}

func TestClient_SessionIdsAreUnique(t *testing.T) {
	cs := newTestChatServer(t, &directory.MockDirectory{}, newRecordingBus())

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		c := newTestClient(t, cs, i)
		_, dup := seen[c.Id()]
		assert.False(t, dup, "duplicate session id %q", c.Id())
		seen[c.Id()] = struct{}{}
	}
}
