// Package storage defines the persistence interfaces implemented by the
// memory and postgres stores.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/domain/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with an existing record.
var ErrDuplicate = errors.New("record already exists")

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, sess user.Session) error
	// GetSessionUser resolves a session token to its user. Expired sessions
	// behave as if absent.
	GetSessionUser(ctx context.Context, token string, now time.Time) (user.User, error)
	DeleteSession(ctx context.Context, token string) error
	PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	// ListUserSessionTokens returns the tokens of all live sessions of a user.
	ListUserSessionTokens(ctx context.Context, userID string, now time.Time) ([]string, error)
}

// OAuthAccountStore persists linked provider identities.
type OAuthAccountStore interface {
	UpsertGoogleAccount(ctx context.Context, acct user.GoogleAccount) error
	GetGoogleAccountBySub(ctx context.Context, sub string) (user.GoogleAccount, error)
	ListGoogleAccounts(ctx context.Context, userID string) ([]user.GoogleAccount, error)
	ListGoogleEmails(ctx context.Context, userID string) ([]string, error)

	UpsertTwitchAccount(ctx context.Context, acct user.TwitchAccount) error
	GetTwitchAccountByID(ctx context.Context, id string) (user.TwitchAccount, error)
	ListTwitchAccounts(ctx context.Context, userID string) ([]user.TwitchAccount, error)
}

// DeviceTokenStore persists FCM registration tokens per session.
type DeviceTokenStore interface {
	UpsertDeviceToken(ctx context.Context, tok user.DeviceToken) error
	// GetSessionDeviceToken returns the token registered for a session, if any.
	GetSessionDeviceToken(ctx context.Context, sessionToken string) (user.DeviceToken, error)
	// ListUserDeviceTokens returns the distinct device tokens across all of a
	// user's sessions.
	ListUserDeviceTokens(ctx context.Context, userID string) ([]string, error)
	DeleteDeviceToken(ctx context.Context, token string) error
}

// CreatorStore persists creator profiles and runs similarity search.
type CreatorStore interface {
	UpsertCreatorProfile(ctx context.Context, p creator.Profile) error
	GetCreatorProfile(ctx context.Context, userID string) (creator.Profile, error)
	// SearchCreators returns up to limit profiles closest to the query
	// embedding, best first.
	SearchCreators(ctx context.Context, embedding []float32, limit int) ([]creator.Match, error)
}

// CompanyStore persists companies, memberships, member profiles and
// invitations.
type CompanyStore interface {
	CreateCompany(ctx context.Context, c company.Company) (company.Company, error)
	UpdateCompany(ctx context.Context, c company.Company) error
	GetCompany(ctx context.Context, id string) (company.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	ListUserCompanies(ctx context.Context, userID string) ([]company.Company, error)

	AddMember(ctx context.Context, m company.Member) error
	ListCompanyMemberIDs(ctx context.Context, companyID string) ([]string, error)
	ListCompanyMembers(ctx context.Context, companyID string) (map[string]company.MemberDetail, error)
	// IsAdmin returns (isAdmin, isMember).
	IsAdmin(ctx context.Context, companyID, userID string) (bool, bool, error)

	UpsertMemberProfile(ctx context.Context, p company.MemberProfile) error
	GetMemberProfile(ctx context.Context, userID string) (company.MemberProfile, error)

	CreateInvitation(ctx context.Context, inv company.Invitation) error
	DeleteInvitation(ctx context.Context, companyID, invitedEmail string) error
	ListCompanyInvitations(ctx context.Context, companyID string) ([]company.Invitation, error)
	ListInvitationsForEmails(ctx context.Context, emails []string) ([]company.InvitationDetail, error)
	// ConsumeInvitations deletes every invitation for the company addressed to
	// any of the emails and returns the grant_admin flags of the deleted rows.
	ConsumeInvitations(ctx context.Context, companyID string, emails []string) ([]bool, error)
}

// ChatStore persists rooms, messages, contract offers and read markers.
type ChatStore interface {
	CreateRoom(ctx context.Context, room chat.Room) (chat.Room, error)
	GetRoom(ctx context.Context, id string) (chat.Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]string, error)

	// InsertMessage stores the message and any contract extra in one
	// transaction, filling in ID, CreatedAt and the extra's offer ID.
	InsertMessage(ctx context.Context, msg *chat.Message) error
	ListRoomMessages(ctx context.Context, roomID string) ([]chat.Message, error)

	GetContractOffer(ctx context.Context, offerID int64) (chat.ContractOffer, error)
	ListOfferUpdates(ctx context.Context, offerID int64) ([]chat.OfferUpdate, error)

	UpsertLastSeen(ctx context.Context, seen chat.LastSeen) error
	ListRoomLastSeen(ctx context.Context, roomID string) ([]chat.LastSeen, error)
}
