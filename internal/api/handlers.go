package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ivanhoe/elixirconf-chat/internal/chat"
	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

const lobbyWriteWait = 10 * time.Second

type RoomUsersResponse struct {
	RoomId     string                `json:"room_id"`
	UsersCount int                   `json:"users_count"`
	Users      map[string]types.User `json:"users"`
}

type ClearRoomResponse struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type BanUserResponse struct {
	RoomId     string      `json:"room_id"`
	UserId     int         `json:"user_id"`
	DeletedIds []uuid.UUID `json:"deleted_ids"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) roomParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomId := r.URL.Query().Get("room")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return "", false
	}

	return roomId, true
}

func (s *ChatApp) roomState(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomParam(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, s.cs.Room(roomId).State())
}

func (s *ChatApp) roomUsers(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomParam(w, r)
	if !ok {
		return
	}

	users := s.cs.Room(roomId).Users()
	s.writeJson(w, http.StatusOK, RoomUsersResponse{
		RoomId:     roomId,
		UsersCount: len(users),
		Users:      users,
	})
}

func (s *ChatApp) clearRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomParam(w, r)
	if !ok {
		return
	}

	messages := s.cs.Room(roomId).ClearHistory()
	s.writeJson(w, http.StatusOK, ClearRoomResponse{
		RoomId:   roomId,
		Messages: messages,
	})
}

func (s *ChatApp) banUser(w http.ResponseWriter, r *http.Request) {
	roomId, ok := s.roomParam(w, r)
	if !ok {
		return
	}

	userId, err := strconv.Atoi(r.URL.Query().Get("user"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ids := s.cs.Room(roomId).DeleteBannedMessages(userId)
	s.writeJson(w, http.StatusOK, BanUserResponse{
		RoomId:     roomId,
		UserId:     userId,
		DeletedIds: ids,
	})
}

func (s *ChatApp) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.dir.GetUser(r.Context(), id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, directory.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := chat.NewClient(user, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

// serveLobby streams room membership updates to dashboard consumers.
func (s *ChatApp) serveLobby(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}
	defer conn.Close()

	updates := s.bus.Subscribe()
	defer s.bus.Unsubscribe(updates)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(lobbyWriteWait))
			if err := conn.WriteJSON(update); err != nil {
				s.log.Printf("lobby write: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
