package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ivanhoe/elixirconf-chat/internal/chat"
	"github.com/ivanhoe/elixirconf-chat/internal/config"
	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
	"github.com/ivanhoe/elixirconf-chat/internal/stats"
	"github.com/ivanhoe/elixirconf-chat/internal/testutil"
)

func newTestApp(t *testing.T, dir directory.Directory) *ChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)

	bus := lobby.NewBroadcaster(logger)
	bus.Run()
	t.Cleanup(bus.Stop)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(5)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	su.On("Add", mock.Anything, mock.Anything).Maybe()

	cs, err := chat.NewChatServer(logger, dir, bus, su, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	return NewChatApp(http.NewServeMux(), logger, cs, dir, bus, cfg)
}
