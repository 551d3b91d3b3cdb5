// Package chat defines chat rooms, messages and the embedded contract-offer
// workflow between companies and creators.
package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Room pairs one company with one outside user (the creator).
type Room struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"companyId" db:"company_id"`
	UserID    string `json:"userId" db:"user_id"`
}

// OfferStatus tracks the lifecycle of a contract offer. Values match the
// Postgres enum contract_offer_status.
type OfferStatus string

const (
	OfferAcceptedByCreator  OfferStatus = "AcceptedByCreator"
	OfferWithdrawnByCompany OfferStatus = "WithdrawnByCompany"
	OfferCancelledByCreator OfferStatus = "CancelledByCreator"
	OfferFinishedByCreator  OfferStatus = "FinishedByCreator"
	OfferApprovedByCompany  OfferStatus = "ApprovedByCompany"
)

// Valid reports whether s is a known offer status.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferAcceptedByCreator, OfferWithdrawnByCompany, OfferCancelledByCreator,
		OfferFinishedByCreator, OfferApprovedByCompany:
		return true
	}
	return false
}

// ExtraKind discriminates the optional payload attached to a message.
type ExtraKind string

const (
	ExtraContractCreated      ExtraKind = "ContractCreated"
	ExtraContractStatusChange ExtraKind = "ContractStatusChange"
)

// Extra is the optional contract payload on a message: either a freshly
// created offer or a status change of an existing one.
type Extra struct {
	Kind        ExtraKind   `json:"kind"`
	OfferID     int64       `json:"offerId,omitempty"`
	PayoutCents int64       `json:"payout,omitempty"`
	NewStatus   OfferStatus `json:"newStatus,omitempty"`
}

// Validate checks the extra's internal consistency.
func (e *Extra) Validate() error {
	switch e.Kind {
	case ExtraContractCreated:
		if e.PayoutCents <= 0 {
			return fmt.Errorf("contract offer payout must be positive")
		}
	case ExtraContractStatusChange:
		if e.OfferID == 0 {
			return fmt.Errorf("contract status change requires an offer id")
		}
		if !e.NewStatus.Valid() {
			return fmt.Errorf("unknown contract offer status %q", e.NewStatus)
		}
	default:
		return fmt.Errorf("unknown message extra kind %q", e.Kind)
	}
	return nil
}

// Message is one chat message. IDs are monotonically increasing per the
// underlying bigserial, which is what last-seen tracking relies on.
type Message struct {
	ID         int64     `json:"id" db:"id"`
	RoomID     string    `json:"roomId" db:"room_id"`
	FromUserID string    `json:"fromUser" db:"from_user_id"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Extra      *Extra    `json:"extra,omitempty" db:"-"`
}

// ContractOffer is a payout offer embedded in a message.
type ContractOffer struct {
	ID          int64 `json:"id" db:"id"`
	MessageID   int64 `json:"messageId" db:"message_id"`
	PayoutCents int64 `json:"payout" db:"offered_payout_cents"`
}

// OfferUpdate is a status change of a contract offer, itself carried by a
// message.
type OfferUpdate struct {
	ID        int64       `json:"id" db:"id"`
	MessageID int64       `json:"messageId" db:"message_id"`
	OfferID   int64       `json:"offerId" db:"offer_id"`
	Status    OfferStatus `json:"status" db:"update_kind"`
}

// LastSeen records the newest message a user has seen in a room.
type LastSeen struct {
	RoomID            string `json:"roomId" db:"room_id"`
	UserID            string `json:"userId" db:"user_id"`
	LastMessageSeenID int64  `json:"lastMessageSeenId" db:"last_message_seen_id"`
}

// RoomView is the payload returned on subscribe: the room's participants,
// message history and per-user read markers.
type RoomView struct {
	Users    map[string]Participant `json:"users"`
	Messages []Message              `json:"messages"`
	LastSeen map[string]int64       `json:"lastSeenMessage"`
}

// Participant is the display info for one room participant.
type Participant struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Pronouns   string `json:"pronouns"`
	AvatarPath string `json:"pfpPath"`
}

// EventEnvelope is the push payload fanned out to room participants.
type EventEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}
