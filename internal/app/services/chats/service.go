// Package chats implements rooms, messaging and the contract-offer workflow
// between companies and creators.
package chats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/domain/notification"
	"github.com/halogen-labs/halogen/internal/app/metrics"
	"github.com/halogen-labs/halogen/internal/app/storage"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// Event kinds fanned out to room participants.
const (
	EventNewRoom = "chat.new_room"
	EventMessage = "chat.message"
)

// Stores is the persistence surface the service needs. Creator and member
// profiles feed the participant listing on subscribe.
type Stores interface {
	storage.ChatStore
	ListCompanyMemberIDs(ctx context.Context, companyID string) ([]string, error)
	IsAdmin(ctx context.Context, companyID, userID string) (bool, bool, error)
	GetCreatorProfile(ctx context.Context, userID string) (creator.Profile, error)
	GetMemberProfile(ctx context.Context, userID string) (company.MemberProfile, error)
}

// Notifier fans a payload out to every live session of a user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, payload notification.Payload) error
}

// Service implements the chat operations.
type Service struct {
	stores   Stores
	notifier Notifier
	log      *logger.Logger
}

// New creates the service.
func New(stores Stores, notifier Notifier, log *logger.Logger) *Service {
	return &Service{stores: stores, notifier: notifier, log: log}
}

// CreateParams selects the counterpart of a new room. A creator opens a room
// with a company; a company member opens one with an outside user on behalf
// of their company.
type CreateParams struct {
	// WithCompany is the company id when the caller is the outside user.
	WithCompany string
	// CompanyID and OtherUserID pair when a member opens the room.
	CompanyID   string
	OtherUserID string
}

// CreateRoom opens a room between a company and an outside user and notifies
// every participant.
func (s *Service) CreateRoom(ctx context.Context, userID string, params CreateParams) (chat.Room, error) {
	var companyID, roomUserID string
	switch {
	case params.WithCompany != "":
		companyID, roomUserID = params.WithCompany, userID
	case params.CompanyID != "" && params.OtherUserID != "":
		_, isMember, err := s.stores.IsAdmin(ctx, params.CompanyID, userID)
		if err != nil {
			return chat.Room{}, err
		}
		if !isMember {
			return chat.Room{}, apperrors.Unauthorized("not a member of this company")
		}
		companyID, roomUserID = params.CompanyID, params.OtherUserID
	default:
		return chat.Room{}, apperrors.BadRequest("room counterpart is required")
	}

	memberIDs, err := s.stores.ListCompanyMemberIDs(ctx, companyID)
	if err != nil {
		return chat.Room{}, err
	}
	for _, id := range memberIDs {
		if id == roomUserID {
			return chat.Room{}, apperrors.BadRequest("cannot open a room with a member of the same company")
		}
	}

	room, err := s.stores.CreateRoom(ctx, chat.Room{CompanyID: companyID, UserID: roomUserID})
	if err != nil {
		return chat.Room{}, err
	}
	s.log.Infof("chat room %s opened between company %s and user %s", room.ID, companyID, roomUserID)

	s.notifyParticipants(ctx, append(memberIDs, roomUserID), EventNewRoom, map[string]interface{}{
		"room_id": room.ID,
	}, notification.Payload{})
	return room, nil
}

// ListRooms returns the ids of every room the user participates in.
func (s *Service) ListRooms(ctx context.Context, userID string) ([]string, error) {
	rooms, err := s.stores.ListUserRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

// Subscribe returns the room's participants, message history and read
// markers. Non-participants get 404 so room ids stay unguessable.
func (s *Service) Subscribe(ctx context.Context, userID, roomID string) (chat.RoomView, error) {
	room, participants, err := s.roomParticipants(ctx, roomID)
	if err != nil {
		return chat.RoomView{}, err
	}
	if !contains(participants, userID) {
		return chat.RoomView{}, apperrors.NotFound("room not found")
	}

	users := make(map[string]chat.Participant, len(participants))
	for _, id := range participants {
		p, ok, err := s.participant(ctx, id)
		if err != nil {
			return chat.RoomView{}, err
		}
		if !ok {
			s.log.Warnf("room %s participant %s has no profile", room.ID, id)
			continue
		}
		users[id] = p
	}

	messages, err := s.stores.ListRoomMessages(ctx, roomID)
	if err != nil {
		return chat.RoomView{}, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	seen, err := s.stores.ListRoomLastSeen(ctx, roomID)
	if err != nil {
		return chat.RoomView{}, err
	}
	lastSeen := make(map[string]int64, len(seen))
	for _, ls := range seen {
		lastSeen[ls.UserID] = ls.LastMessageSeenID
	}

	return chat.RoomView{Users: users, Messages: messages, LastSeen: lastSeen}, nil
}

// PostParams carries a new message.
type PostParams struct {
	RoomID  string
	Content string
	Extra   *chat.Extra
}

// PostMessage stores a message, with its contract extra when present, and
// notifies every participant including the sender's other sessions.
func (s *Service) PostMessage(ctx context.Context, userID string, params PostParams) (chat.Message, error) {
	if params.RoomID == "" {
		return chat.Message{}, apperrors.MissingFields([]string{"room_id"})
	}
	if params.Extra != nil {
		if err := params.Extra.Validate(); err != nil {
			return chat.Message{}, apperrors.BadRequest(err.Error())
		}
	}

	room, participants, err := s.roomParticipants(ctx, params.RoomID)
	if err != nil {
		return chat.Message{}, err
	}
	if !contains(participants, userID) {
		return chat.Message{}, apperrors.NotFound("room not found")
	}

	msg := chat.Message{
		RoomID:     room.ID,
		FromUserID: userID,
		Content:    params.Content,
		Extra:      params.Extra,
	}
	if err := s.stores.InsertMessage(ctx, &msg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return chat.Message{}, apperrors.BadRequest("contract offer not found")
		}
		return chat.Message{}, err
	}
	metrics.RecordChatMessage()

	s.notifyParticipants(ctx, participants, EventMessage, map[string]interface{}{
		"room_id": room.ID,
		"message": msg,
	}, notification.Payload{Title: "New message", Body: params.Content})
	return msg, nil
}

// MarkSeen records the newest message the user has seen in a room.
func (s *Service) MarkSeen(ctx context.Context, userID, roomID string, messageID int64) error {
	_, participants, err := s.roomParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if !contains(participants, userID) {
		return apperrors.NotFound("room not found")
	}
	return s.stores.UpsertLastSeen(ctx, chat.LastSeen{
		RoomID:            roomID,
		UserID:            userID,
		LastMessageSeenID: messageID,
	})
}

// roomParticipants loads a room and the ids of everyone in it: the company's
// members plus the outside user. A missing room maps to 404.
func (s *Service) roomParticipants(ctx context.Context, roomID string) (chat.Room, []string, error) {
	room, err := s.stores.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return chat.Room{}, nil, apperrors.NotFound("room not found")
	}
	if err != nil {
		return chat.Room{}, nil, err
	}
	memberIDs, err := s.stores.ListCompanyMemberIDs(ctx, room.CompanyID)
	if err != nil {
		return chat.Room{}, nil, err
	}
	return room, append(memberIDs, room.UserID), nil
}

// participant resolves display info for a user, preferring the creator
// profile over the company member profile.
func (s *Service) participant(ctx context.Context, userID string) (chat.Participant, bool, error) {
	if p, err := s.stores.GetCreatorProfile(ctx, userID); err == nil {
		return chat.Participant{
			GivenName:  p.GivenName,
			FamilyName: p.FamilyName,
			Pronouns:   p.Pronouns,
			AvatarPath: p.AvatarPath,
		}, true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return chat.Participant{}, false, err
	}

	if p, err := s.stores.GetMemberProfile(ctx, userID); err == nil {
		return chat.Participant{
			GivenName:  p.GivenName,
			FamilyName: p.FamilyName,
			Pronouns:   p.Pronouns,
			AvatarPath: p.AvatarPath,
		}, true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return chat.Participant{}, false, err
	}
	return chat.Participant{}, false, nil
}

func (s *Service) notifyParticipants(ctx context.Context, userIDs []string, kind string, data interface{}, push notification.Payload) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.WithError(err).Errorf("failed to encode %s event", kind)
		return
	}
	envelope, err := json.Marshal(chat.EventEnvelope{Kind: kind, Data: raw})
	if err != nil {
		s.log.WithError(err).Errorf("failed to encode %s envelope", kind)
		return
	}
	push.Data = envelope

	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := s.notifier.NotifyUser(ctx, id, push); err != nil {
			s.log.WithError(err).Warnf("failed to notify user %s", id)
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
