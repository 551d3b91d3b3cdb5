package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu sync.RWMutex

	nextMessageID int64
	nextOfferID   int64
	nextUpdateID  int64

	users          map[string]user.User
	sessions       map[string]user.Session
	deviceTokens   map[string]user.DeviceToken
	googleAccounts map[string]user.GoogleAccount
	twitchAccounts map[string]user.TwitchAccount

	creatorProfiles map[string]creator.Profile

	companies      map[string]company.Company
	members        map[string][]company.Member
	memberProfiles map[string]company.MemberProfile
	invitations    map[string][]company.Invitation

	rooms        map[string]chat.Room
	messages     map[string][]chat.Message
	offers       map[int64]chat.ContractOffer
	offerUpdates map[int64][]chat.OfferUpdate
	lastSeen     map[string]map[string]int64
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.OAuthAccountStore = (*Store)(nil)
var _ storage.DeviceTokenStore = (*Store)(nil)
var _ storage.CreatorStore = (*Store)(nil)
var _ storage.CompanyStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextMessageID:   1,
		nextOfferID:     1,
		nextUpdateID:    1,
		users:           make(map[string]user.User),
		sessions:        make(map[string]user.Session),
		deviceTokens:    make(map[string]user.DeviceToken),
		googleAccounts:  make(map[string]user.GoogleAccount),
		twitchAccounts:  make(map[string]user.TwitchAccount),
		creatorProfiles: make(map[string]creator.Profile),
		companies:       make(map[string]company.Company),
		members:         make(map[string][]company.Member),
		memberProfiles:  make(map[string]company.MemberProfile),
		invitations:     make(map[string][]company.Invitation),
		rooms:           make(map[string]chat.Room),
		messages:        make(map[string][]chat.Message),
		offers:          make(map[int64]chat.ContractOffer),
		offerUpdates:    make(map[int64][]chat.OfferUpdate),
		lastSeen:        make(map[string]map[string]int64),
	}
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user.User{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

// SessionStore implementation -------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess user.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return fmt.Errorf("user %s not found", sess.UserID)
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSessionUser(_ context.Context, token string, now time.Time) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || sess.Expired(now) {
		return user.User{}, storage.ErrNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	delete(s.deviceTokens, token)
	return nil
}

func (s *Store) PruneExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			delete(s.deviceTokens, token)
			pruned++
		}
	}
	return pruned, nil
}

func (s *Store) ListUserSessionTokens(_ context.Context, userID string, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []string
	for token, sess := range s.sessions {
		if sess.UserID == userID && !sess.Expired(now) {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

// OAuthAccountStore implementation --------------------------------------------

func (s *Store) UpsertGoogleAccount(_ context.Context, acct user.GoogleAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.googleAccounts[acct.Sub] = acct
	return nil
}

func (s *Store) GetGoogleAccountBySub(_ context.Context, sub string) (user.GoogleAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.googleAccounts[sub]
	if !ok {
		return user.GoogleAccount{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) ListGoogleAccounts(_ context.Context, userID string) ([]user.GoogleAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accts []user.GoogleAccount
	for _, acct := range s.googleAccounts {
		if acct.UserID == userID {
			accts = append(accts, acct)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Sub < accts[j].Sub })
	return accts, nil
}

func (s *Store) ListGoogleEmails(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emails []string
	for _, acct := range s.googleAccounts {
		if acct.UserID == userID {
			emails = append(emails, acct.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (s *Store) UpsertTwitchAccount(_ context.Context, acct user.TwitchAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.twitchAccounts[acct.ID] = acct
	return nil
}

func (s *Store) GetTwitchAccountByID(_ context.Context, id string) (user.TwitchAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.twitchAccounts[id]
	if !ok {
		return user.TwitchAccount{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) ListTwitchAccounts(_ context.Context, userID string) ([]user.TwitchAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accts []user.TwitchAccount
	for _, acct := range s.twitchAccounts {
		if acct.UserID == userID {
			accts = append(accts, acct)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].ID < accts[j].ID })
	return accts, nil
}

// DeviceTokenStore implementation ---------------------------------------------

func (s *Store) UpsertDeviceToken(_ context.Context, tok user.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tok.SessionToken]; !ok {
		return fmt.Errorf("session not found")
	}
	s.deviceTokens[tok.SessionToken] = tok
	return nil
}

func (s *Store) GetSessionDeviceToken(_ context.Context, sessionToken string) (user.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.deviceTokens[sessionToken]
	if !ok {
		return user.DeviceToken{}, storage.ErrNotFound
	}
	return tok, nil
}

func (s *Store) ListUserDeviceTokens(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var tokens []string
	for sessionToken, tok := range s.deviceTokens {
		sess, ok := s.sessions[sessionToken]
		if !ok || sess.UserID != userID || seen[tok.Token] {
			continue
		}
		seen[tok.Token] = true
		tokens = append(tokens, tok.Token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *Store) DeleteDeviceToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionToken, tok := range s.deviceTokens {
		if tok.Token == token {
			delete(s.deviceTokens, sessionToken)
		}
	}
	return nil
}

// CreatorStore implementation -------------------------------------------------

func (s *Store) UpsertCreatorProfile(_ context.Context, p creator.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return fmt.Errorf("user %s not found", p.UserID)
	}
	p.Embedding = cloneFloats(p.Embedding)
	s.creatorProfiles[p.UserID] = p
	return nil
}

func (s *Store) GetCreatorProfile(_ context.Context, userID string) (creator.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.creatorProfiles[userID]
	if !ok {
		return creator.Profile{}, storage.ErrNotFound
	}
	p.Embedding = cloneFloats(p.Embedding)
	return p, nil
}

func (s *Store) SearchCreators(_ context.Context, embedding []float32, limit int) ([]creator.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []creator.Match
	for _, p := range s.creatorProfiles {
		p.Embedding = cloneFloats(p.Embedding)
		matches = append(matches, creator.Match{Profile: p, Score: innerProduct(embedding, p.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].UserID < matches[j].UserID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func innerProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CompanyStore implementation -------------------------------------------------

func (s *Store) CreateCompany(_ context.Context, c company.Company) (company.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	} else if _, exists := s.companies[c.ID]; exists {
		return company.Company{}, fmt.Errorf("company %s already exists", c.ID)
	}
	c.CreatedAt = time.Now().UTC()
	c.Industry = cloneStrings(c.Industry)
	c.Embedding = cloneFloats(c.Embedding)

	s.companies[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCompany(_ context.Context, c company.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.companies[c.ID]
	if !ok {
		return storage.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	c.Industry = cloneStrings(c.Industry)
	c.Embedding = cloneFloats(c.Embedding)

	s.companies[c.ID] = c
	return nil
}

func (s *Store) GetCompany(_ context.Context, id string) (company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companies[id]
	if !ok {
		return company.Company{}, storage.ErrNotFound
	}
	c.Industry = cloneStrings(c.Industry)
	c.Embedding = cloneFloats(c.Embedding)
	return c, nil
}

func (s *Store) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.companies, id)
	delete(s.members, id)
	delete(s.invitations, id)
	for roomID, room := range s.rooms {
		if room.CompanyID == id {
			delete(s.rooms, roomID)
			delete(s.messages, roomID)
			delete(s.lastSeen, roomID)
		}
	}
	return nil
}

func (s *Store) ListUserCompanies(_ context.Context, userID string) ([]company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []company.Company
	for companyID, members := range s.members {
		for _, m := range members {
			if m.UserID != userID {
				continue
			}
			c := s.companies[companyID]
			c.Industry = cloneStrings(c.Industry)
			c.Embedding = cloneFloats(c.Embedding)
			out = append(out, c)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddMember(_ context.Context, m company.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[m.CompanyID]; !ok {
		return storage.ErrNotFound
	}
	for i, existing := range s.members[m.CompanyID] {
		if existing.UserID == m.UserID {
			s.members[m.CompanyID][i] = m
			return nil
		}
	}
	s.members[m.CompanyID] = append(s.members[m.CompanyID], m)
	return nil
}

func (s *Store) ListCompanyMemberIDs(_ context.Context, companyID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.members[companyID] {
		ids = append(ids, m.UserID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListCompanyMembers(_ context.Context, companyID string) (map[string]company.MemberDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]company.MemberDetail)
	for _, m := range s.members[companyID] {
		out[m.UserID] = company.MemberDetail{
			MemberProfile: s.memberProfiles[m.UserID],
			IsAdmin:       m.IsAdmin,
		}
	}
	return out, nil
}

func (s *Store) IsAdmin(_ context.Context, companyID, userID string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members[companyID] {
		if m.UserID == userID {
			return m.IsAdmin, true, nil
		}
	}
	return false, false, nil
}

func (s *Store) UpsertMemberProfile(_ context.Context, p company.MemberProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return fmt.Errorf("user %s not found", p.UserID)
	}
	s.memberProfiles[p.UserID] = p
	return nil
}

func (s *Store) GetMemberProfile(_ context.Context, userID string) (company.MemberProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.memberProfiles[userID]
	if !ok {
		return company.MemberProfile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateInvitation(_ context.Context, inv company.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[inv.CompanyID]; !ok {
		return storage.ErrNotFound
	}
	for _, existing := range s.invitations[inv.CompanyID] {
		if existing.InvitedEmail == inv.InvitedEmail {
			return storage.ErrDuplicate
		}
	}
	s.invitations[inv.CompanyID] = append(s.invitations[inv.CompanyID], inv)
	return nil
}

func (s *Store) DeleteInvitation(_ context.Context, companyID, invitedEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invs := s.invitations[companyID]
	for i, inv := range invs {
		if inv.InvitedEmail == invitedEmail {
			s.invitations[companyID] = append(invs[:i:i], invs[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) ListCompanyInvitations(_ context.Context, companyID string) ([]company.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]company.Invitation, len(s.invitations[companyID]))
	copy(out, s.invitations[companyID])
	return out, nil
}

func (s *Store) ListInvitationsForEmails(_ context.Context, emails []string) ([]company.InvitationDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}

	var out []company.InvitationDetail
	for companyID, invs := range s.invitations {
		for _, inv := range invs {
			if !wanted[inv.InvitedEmail] {
				continue
			}
			c := s.companies[companyID]
			c.Industry = cloneStrings(c.Industry)
			c.Embedding = nil
			out = append(out, company.InvitationDetail{
				From:       s.memberProfiles[inv.FromUserID],
				Company:    c,
				GrantAdmin: inv.GrantAdmin,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Company.ID < out[j].Company.ID })
	return out, nil
}

func (s *Store) ConsumeInvitations(_ context.Context, companyID string, emails []string) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}

	var grants []bool
	var remaining []company.Invitation
	for _, inv := range s.invitations[companyID] {
		if wanted[inv.InvitedEmail] {
			grants = append(grants, inv.GrantAdmin)
		} else {
			remaining = append(remaining, inv)
		}
	}
	s.invitations[companyID] = remaining
	return grants, nil
}

// ChatStore implementation ----------------------------------------------------

func (s *Store) CreateRoom(_ context.Context, room chat.Room) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[room.CompanyID]; !ok {
		return chat.Room{}, storage.ErrNotFound
	}
	if _, ok := s.users[room.UserID]; !ok {
		return chat.Room{}, storage.ErrNotFound
	}
	for _, existing := range s.rooms {
		if existing.CompanyID == room.CompanyID && existing.UserID == room.UserID {
			return existing, nil
		}
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	s.rooms[room.ID] = room
	return room, nil
}

func (s *Store) GetRoom(_ context.Context, id string) (chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return chat.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (s *Store) ListUserRooms(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membership := make(map[string]bool)
	for companyID, members := range s.members {
		for _, m := range members {
			if m.UserID == userID {
				membership[companyID] = true
			}
		}
	}

	var ids []string
	for id, room := range s.rooms {
		if room.UserID == userID || membership[room.CompanyID] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) InsertMessage(_ context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[msg.RoomID]; !ok {
		return storage.ErrNotFound
	}

	msg.ID = s.nextMessageID
	s.nextMessageID++
	msg.CreatedAt = time.Now().UTC()

	if msg.Extra != nil {
		switch msg.Extra.Kind {
		case chat.ExtraContractCreated:
			offer := chat.ContractOffer{
				ID:          s.nextOfferID,
				MessageID:   msg.ID,
				PayoutCents: msg.Extra.PayoutCents,
			}
			s.nextOfferID++
			s.offers[offer.ID] = offer
			msg.Extra.OfferID = offer.ID
		case chat.ExtraContractStatusChange:
			if _, ok := s.offers[msg.Extra.OfferID]; !ok {
				return storage.ErrNotFound
			}
			update := chat.OfferUpdate{
				ID:        s.nextUpdateID,
				MessageID: msg.ID,
				OfferID:   msg.Extra.OfferID,
				Status:    msg.Extra.NewStatus,
			}
			s.nextUpdateID++
			s.offerUpdates[update.OfferID] = append(s.offerUpdates[update.OfferID], update)
		default:
			return fmt.Errorf("unknown message extra kind %q", msg.Extra.Kind)
		}
	}

	stored := *msg
	if msg.Extra != nil {
		extra := *msg.Extra
		stored.Extra = &extra
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], stored)
	return nil
}

func (s *Store) ListRoomMessages(_ context.Context, roomID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[roomID]
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		if m.Extra != nil {
			extra := *m.Extra
			m.Extra = &extra
		}
		out[i] = m
	}
	return out, nil
}

func (s *Store) GetContractOffer(_ context.Context, offerID int64) (chat.ContractOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return chat.ContractOffer{}, storage.ErrNotFound
	}
	return offer, nil
}

func (s *Store) ListOfferUpdates(_ context.Context, offerID int64) ([]chat.OfferUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.OfferUpdate, len(s.offerUpdates[offerID]))
	copy(out, s.offerUpdates[offerID])
	return out, nil
}

func (s *Store) UpsertLastSeen(_ context.Context, seen chat.LastSeen) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[seen.RoomID]; !ok {
		return storage.ErrNotFound
	}
	if s.lastSeen[seen.RoomID] == nil {
		s.lastSeen[seen.RoomID] = make(map[string]int64)
	}
	s.lastSeen[seen.RoomID][seen.UserID] = seen.LastMessageSeenID
	return nil
}

func (s *Store) ListRoomLastSeen(_ context.Context, roomID string) ([]chat.LastSeen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.LastSeen
	for userID, id := range s.lastSeen[roomID] {
		out = append(out, chat.LastSeen{RoomID: roomID, UserID: userID, LastMessageSeenID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneFloats(in []float32) []float32 {
	if in == nil {
		return nil
	}
	out := make([]float32, len(in))
	copy(out, in)
	return out
}
