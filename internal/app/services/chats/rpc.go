package chats

import (
	"context"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/rpc"
)

// createRequest selects the room counterpart: exactly one of the two forms.
type createRequest struct {
	WithCompany string `json:"withCompany,omitempty"`
	WithUser    *struct {
		CompanyID   string `json:"companyId"`
		OtherUserID string `json:"otherUserId"`
	} `json:"withUser,omitempty"`
}

type subscribeRequest struct {
	RoomID string `json:"roomId"`
}

type postRequest struct {
	RoomID  string      `json:"roomId"`
	Message string      `json:"message"`
	Extra   *chat.Extra `json:"extra,omitempty"`
}

type seenRequest struct {
	RoomID    string `json:"roomId"`
	MessageID int64  `json:"messageId"`
}

// RegisterRPC exposes the chat operations under the "chat" namespace.
func (s *Service) RegisterRPC(registry *rpc.Registry) {
	registry.Register("chat", "create", rpc.Typed(func(ctx context.Context, conn *rpc.Conn, req createRequest) (string, error) {
		params := CreateParams{WithCompany: req.WithCompany}
		if req.WithUser != nil {
			params.CompanyID = req.WithUser.CompanyID
			params.OtherUserID = req.WithUser.OtherUserID
		}
		room, err := s.CreateRoom(ctx, conn.UserID, params)
		if err != nil {
			return "", err
		}
		return room.ID, nil
	}))

	registry.Register("chat", "list", rpc.Typed(func(ctx context.Context, conn *rpc.Conn, _ struct{}) ([]string, error) {
		return s.ListRooms(ctx, conn.UserID)
	}))

	registry.Register("chat", "subscribe", rpc.Typed(func(ctx context.Context, conn *rpc.Conn, req subscribeRequest) (chat.RoomView, error) {
		return s.Subscribe(ctx, conn.UserID, req.RoomID)
	}))

	registry.Register("chat", "post", rpc.Notify(func(ctx context.Context, conn *rpc.Conn, req postRequest) error {
		_, err := s.PostMessage(ctx, conn.UserID, PostParams{
			RoomID:  req.RoomID,
			Content: req.Message,
			Extra:   req.Extra,
		})
		return err
	}))

	registry.Register("chat", "seen", rpc.Notify(func(ctx context.Context, conn *rpc.Conn, req seenRequest) error {
		return s.MarkSeen(ctx, conn.UserID, req.RoomID, req.MessageID)
	}))
}
