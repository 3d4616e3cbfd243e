package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/ivanhoe/elixirconf-chat/internal/api"
	"github.com/ivanhoe/elixirconf-chat/internal/chat"
	"github.com/ivanhoe/elixirconf-chat/internal/config"
	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
	"github.com/ivanhoe/elixirconf-chat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingSecret  string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.StringVar(&signingSecret, "signing-secret", "", "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[elixirconf-chat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file loaded")
	}

	cfg, err := config.New(config.Overrides{
		ServerAddr:     addr,
		DatabaseDSN:    dsn,
		SigningSecret:  signingSecret,
		AllowedOrigins: allowedOrigins,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	dir, err := directory.NewPgDirectory(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("directory open:", err)
	}
	defer func() {
		if err := dir.Close(); err != nil {
			logger.Fatal("directory close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	bus := lobby.NewBroadcaster(logger)

	chatServer, err := chat.NewChatServer(logger, dir, bus, statsUpdater, cfg.LookupTimeout)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewChatApp(mux, logger, chatServer, dir, bus, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	bus.Run()
	defer bus.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
