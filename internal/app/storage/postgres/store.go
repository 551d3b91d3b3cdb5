// Package postgres implements the storage interfaces on PostgreSQL with the
// pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.OAuthAccountStore = (*Store)(nil)
var _ storage.DeviceTokenStore = (*Store)(nil)
var _ storage.CreatorStore = (*Store)(nil)
var _ storage.CompanyStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

const (
	pqForeignKeyViolation pq.ErrorCode = "23503"
	pqUniqueViolation     pq.ErrorCode = "23505"
)

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context) (user.User, error) {
	u := user.User{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES ($1, $2)
	`, u.ID, u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, created_at FROM users WHERE id = $1
	`, id)
	if err != nil {
		return user.User{}, notFound(err)
	}
	return u, nil
}

// --- SessionStore -----------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, sess user.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (token, expires_at, user_id)
		VALUES ($1, $2, $3)
	`, sess.Token, sess.ExpiresAt, sess.UserID)
	return err
}

func (s *Store) GetSessionUser(ctx context.Context, token string, now time.Time) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT u.id, u.created_at
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2
	`, token, now)
	if err != nil {
		return user.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE token = $1
	`, token)
	return err
}

func (s *Store) PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReindexEmbeddings rebuilds the HNSW vector indexes and refreshes planner
// statistics on the profile tables. Approximate indexes degrade as rows churn,
// so the maintenance job calls this nightly. CONCURRENTLY keeps the indexes
// readable while the rebuild runs, which can take minutes.
func (s *Store) ReindexEmbeddings(ctx context.Context) error {
	for _, stmt := range []string{
		`REINDEX INDEX CONCURRENTLY creator_profile_embedding`,
		`REINDEX INDEX CONCURRENTLY company_embedding`,
		`VACUUM ANALYZE creator_profiles`,
		`VACUUM ANALYZE companies`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("maintenance statement %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) ListUserSessionTokens(ctx context.Context, userID string, now time.Time) ([]string, error) {
	var tokens []string
	err := s.db.SelectContext(ctx, &tokens, `
		SELECT token FROM user_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY token
	`, userID, now)
	return tokens, err
}

// --- OAuthAccountStore ------------------------------------------------------

func (s *Store) UpsertGoogleAccount(ctx context.Context, acct user.GoogleAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO google_accounts (sub, email, access_token, expires_at, refresh_token, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sub) DO UPDATE SET
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			refresh_token = EXCLUDED.refresh_token,
			user_id = EXCLUDED.user_id
	`, acct.Sub, acct.Email, acct.AccessToken, acct.ExpiresAt, acct.RefreshToken, acct.UserID)
	return err
}

func (s *Store) GetGoogleAccountBySub(ctx context.Context, sub string) (user.GoogleAccount, error) {
	var acct user.GoogleAccount
	err := s.db.GetContext(ctx, &acct, `
		SELECT sub, email, access_token, expires_at, refresh_token, user_id
		FROM google_accounts WHERE sub = $1
	`, sub)
	if err != nil {
		return user.GoogleAccount{}, notFound(err)
	}
	return acct, nil
}

func (s *Store) ListGoogleAccounts(ctx context.Context, userID string) ([]user.GoogleAccount, error) {
	var accts []user.GoogleAccount
	err := s.db.SelectContext(ctx, &accts, `
		SELECT sub, email, access_token, expires_at, refresh_token, user_id
		FROM google_accounts WHERE user_id = $1
		ORDER BY sub
	`, userID)
	return accts, err
}

func (s *Store) ListGoogleEmails(ctx context.Context, userID string) ([]string, error) {
	var emails []string
	err := s.db.SelectContext(ctx, &emails, `
		SELECT email FROM google_accounts WHERE user_id = $1 ORDER BY email
	`, userID)
	return emails, err
}

func (s *Store) UpsertTwitchAccount(ctx context.Context, acct user.TwitchAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO twitch_accounts (id, login, access_token, expires_at, refresh_token, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			login = EXCLUDED.login,
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			refresh_token = EXCLUDED.refresh_token,
			user_id = EXCLUDED.user_id
	`, acct.ID, acct.Login, acct.AccessToken, acct.ExpiresAt, acct.RefreshToken, acct.UserID)
	return err
}

func (s *Store) GetTwitchAccountByID(ctx context.Context, id string) (user.TwitchAccount, error) {
	var acct user.TwitchAccount
	err := s.db.GetContext(ctx, &acct, `
		SELECT id, login, access_token, expires_at, refresh_token, user_id
		FROM twitch_accounts WHERE id = $1
	`, id)
	if err != nil {
		return user.TwitchAccount{}, notFound(err)
	}
	return acct, nil
}

func (s *Store) ListTwitchAccounts(ctx context.Context, userID string) ([]user.TwitchAccount, error) {
	var accts []user.TwitchAccount
	err := s.db.SelectContext(ctx, &accts, `
		SELECT id, login, access_token, expires_at, refresh_token, user_id
		FROM twitch_accounts WHERE user_id = $1
		ORDER BY id
	`, userID)
	return accts, err
}

// --- DeviceTokenStore -------------------------------------------------------

func (s *Store) UpsertDeviceToken(ctx context.Context, tok user.DeviceToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_device_tokens (token, session_token)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET session_token = EXCLUDED.session_token
	`, tok.Token, tok.SessionToken)
	return err
}

func (s *Store) GetSessionDeviceToken(ctx context.Context, sessionToken string) (user.DeviceToken, error) {
	var tok user.DeviceToken
	err := s.db.GetContext(ctx, &tok, `
		SELECT token, session_token FROM session_device_tokens
		WHERE session_token = $1
	`, sessionToken)
	if err != nil {
		return user.DeviceToken{}, notFound(err)
	}
	return tok, nil
}

func (s *Store) ListUserDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := s.db.SelectContext(ctx, &tokens, `
		SELECT DISTINCT d.token
		FROM session_device_tokens d
		JOIN user_sessions s ON s.token = d.session_token
		WHERE s.user_id = $1
		ORDER BY d.token
	`, userID)
	return tokens, err
}

func (s *Store) DeleteDeviceToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_device_tokens WHERE token = $1
	`, token)
	return err
}

// --- CreatorStore -----------------------------------------------------------

func (s *Store) UpsertCreatorProfile(ctx context.Context, p creator.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO creator_profiles
			(user_id, given_name, family_name, pronouns, profile_desc, content_desc, audience_desc, avatar_path, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			given_name = EXCLUDED.given_name,
			family_name = EXCLUDED.family_name,
			pronouns = EXCLUDED.pronouns,
			profile_desc = EXCLUDED.profile_desc,
			content_desc = EXCLUDED.content_desc,
			audience_desc = EXCLUDED.audience_desc,
			avatar_path = EXCLUDED.avatar_path,
			embedding = EXCLUDED.embedding
	`, p.UserID, p.GivenName, p.FamilyName, p.Pronouns,
		p.ProfileDesc, p.ContentDesc, p.AudienceDesc, p.AvatarPath, vector(p.Embedding))
	return err
}

func (s *Store) GetCreatorProfile(ctx context.Context, userID string) (creator.Profile, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT user_id, given_name, family_name, pronouns,
		       profile_desc, content_desc, audience_desc, avatar_path, embedding
		FROM creator_profiles WHERE user_id = $1
	`, userID)

	var (
		p   creator.Profile
		emb vector
	)
	err := row.Scan(&p.UserID, &p.GivenName, &p.FamilyName, &p.Pronouns,
		&p.ProfileDesc, &p.ContentDesc, &p.AudienceDesc, &p.AvatarPath, &emb)
	if err != nil {
		return creator.Profile{}, notFound(err)
	}
	p.Embedding = emb
	return p, nil
}

func (s *Store) SearchCreators(ctx context.Context, embedding []float32, limit int) ([]creator.Match, error) {
	// pgvector's <#> operator is the negated inner product, so the score
	// flips sign and sorts ascending.
	rows, err := s.db.QueryxContext(ctx, `
		SELECT user_id, given_name, family_name, pronouns,
		       profile_desc, content_desc, audience_desc, avatar_path,
		       embedding <#> $1 AS score
		FROM creator_profiles
		ORDER BY score
		LIMIT $2
	`, vector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []creator.Match
	for rows.Next() {
		var m creator.Match
		err := rows.Scan(&m.UserID, &m.GivenName, &m.FamilyName, &m.Pronouns,
			&m.ProfileDesc, &m.ContentDesc, &m.AudienceDesc, &m.AvatarPath, &m.Score)
		if err != nil {
			return nil, err
		}
		m.Score = -m.Score
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- CompanyStore -----------------------------------------------------------

func (s *Store) CreateCompany(ctx context.Context, c company.Company) (company.Company, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, full_name, banner_desc, logo_url, industry, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.FullName, c.BannerDesc, c.LogoURL, pq.Array(c.Industry), c.CreatedAt, vector(c.Embedding))
	if err != nil {
		return company.Company{}, err
	}
	return c, nil
}

func (s *Store) UpdateCompany(ctx context.Context, c company.Company) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE companies
		SET full_name = $2, banner_desc = $3, logo_url = $4, industry = $5, embedding = $6
		WHERE id = $1
	`, c.ID, c.FullName, c.BannerDesc, c.LogoURL, pq.Array(c.Industry), vector(c.Embedding))
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (company.Company, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, full_name, banner_desc, logo_url, industry, created_at, embedding
		FROM companies WHERE id = $1
	`, id)

	c, err := scanCompany(row)
	if err != nil {
		return company.Company{}, notFound(err)
	}
	return c, nil
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM companies WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListUserCompanies(ctx context.Context, userID string) ([]company.Company, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT c.id, c.full_name, c.banner_desc, c.logo_url, c.industry, c.created_at, c.embedding
		FROM companies c
		JOIN company_users m ON m.company_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []company.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompany(row rowScanner) (company.Company, error) {
	var (
		c   company.Company
		emb vector
	)
	err := row.Scan(&c.ID, &c.FullName, &c.BannerDesc, &c.LogoURL,
		pq.Array(&c.Industry), &c.CreatedAt, &emb)
	if err != nil {
		return company.Company{}, err
	}
	c.Embedding = emb
	return c, nil
}

func (s *Store) AddMember(ctx context.Context, m company.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_users (company_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, user_id) DO UPDATE SET is_admin = EXCLUDED.is_admin
	`, m.CompanyID, m.UserID, m.IsAdmin)
	return err
}

func (s *Store) ListCompanyMemberIDs(ctx context.Context, companyID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM company_users WHERE company_id = $1 ORDER BY user_id
	`, companyID)
	return ids, err
}

func (s *Store) ListCompanyMembers(ctx context.Context, companyID string) (map[string]company.MemberDetail, error) {
	var details []company.MemberDetail
	err := s.db.SelectContext(ctx, &details, `
		SELECT m.user_id, m.is_admin,
		       COALESCE(p.given_name, '') AS given_name,
		       COALESCE(p.family_name, '') AS family_name,
		       COALESCE(p.pronouns, '') AS pronouns,
		       COALESCE(p.avatar_path, '') AS avatar_path
		FROM company_users m
		LEFT JOIN company_user_profiles p ON p.user_id = m.user_id
		WHERE m.company_id = $1
	`, companyID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]company.MemberDetail, len(details))
	for _, d := range details {
		out[d.UserID] = d
	}
	return out, nil
}

func (s *Store) IsAdmin(ctx context.Context, companyID, userID string) (bool, bool, error) {
	var isAdmin bool
	err := s.db.GetContext(ctx, &isAdmin, `
		SELECT is_admin FROM company_users WHERE company_id = $1 AND user_id = $2
	`, companyID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return isAdmin, true, nil
}

func (s *Store) UpsertMemberProfile(ctx context.Context, p company.MemberProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_user_profiles (user_id, given_name, family_name, pronouns, avatar_path)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			given_name = EXCLUDED.given_name,
			family_name = EXCLUDED.family_name,
			pronouns = EXCLUDED.pronouns,
			avatar_path = EXCLUDED.avatar_path
	`, p.UserID, p.GivenName, p.FamilyName, p.Pronouns, p.AvatarPath)
	return err
}

func (s *Store) GetMemberProfile(ctx context.Context, userID string) (company.MemberProfile, error) {
	var p company.MemberProfile
	err := s.db.GetContext(ctx, &p, `
		SELECT user_id, given_name, family_name, pronouns, avatar_path
		FROM company_user_profiles WHERE user_id = $1
	`, userID)
	if err != nil {
		return company.MemberProfile{}, notFound(err)
	}
	return p, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv company.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_invitations (company_id, invited_email, grant_admin, from_user_id)
		VALUES ($1, $2, $3, $4)
	`, inv.CompanyID, inv.InvitedEmail, inv.GrantAdmin, inv.FromUserID)
	if isPQError(err, pqUniqueViolation) {
		return storage.ErrDuplicate
	}
	return err
}

func (s *Store) DeleteInvitation(ctx context.Context, companyID, invitedEmail string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM company_invitations WHERE company_id = $1 AND invited_email = $2
	`, companyID, invitedEmail)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListCompanyInvitations(ctx context.Context, companyID string) ([]company.Invitation, error) {
	var invs []company.Invitation
	err := s.db.SelectContext(ctx, &invs, `
		SELECT company_id, invited_email, grant_admin, from_user_id
		FROM company_invitations WHERE company_id = $1
		ORDER BY invited_email
	`, companyID)
	return invs, err
}

func (s *Store) ListInvitationsForEmails(ctx context.Context, emails []string) ([]company.InvitationDetail, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT i.grant_admin,
		       c.id, c.full_name, c.banner_desc, c.logo_url, c.industry, c.created_at,
		       COALESCE(p.user_id, i.from_user_id) AS from_user_id,
		       COALESCE(p.given_name, '') AS given_name,
		       COALESCE(p.family_name, '') AS family_name,
		       COALESCE(p.pronouns, '') AS pronouns,
		       COALESCE(p.avatar_path, '') AS avatar_path
		FROM company_invitations i
		JOIN companies c ON c.id = i.company_id
		LEFT JOIN company_user_profiles p ON p.user_id = i.from_user_id
		WHERE i.invited_email = ANY($1)
		ORDER BY c.id
	`, pq.Array(emails))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []company.InvitationDetail
	for rows.Next() {
		var d company.InvitationDetail
		err := rows.Scan(&d.GrantAdmin,
			&d.Company.ID, &d.Company.FullName, &d.Company.BannerDesc,
			&d.Company.LogoURL, pq.Array(&d.Company.Industry), &d.Company.CreatedAt,
			&d.From.UserID, &d.From.GivenName, &d.From.FamilyName,
			&d.From.Pronouns, &d.From.AvatarPath)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ConsumeInvitations(ctx context.Context, companyID string, emails []string) ([]bool, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	var grants []bool
	err := s.db.SelectContext(ctx, &grants, `
		DELETE FROM company_invitations
		WHERE company_id = $1 AND invited_email = ANY($2)
		RETURNING grant_admin
	`, companyID, pq.Array(emails))
	return grants, err
}

// --- ChatStore --------------------------------------------------------------

func (s *Store) CreateRoom(ctx context.Context, room chat.Room) (chat.Room, error) {
	existing := room
	err := s.db.GetContext(ctx, &existing, `
		SELECT id, company_id, user_id FROM chat_rooms
		WHERE company_id = $1 AND user_id = $2
	`, room.CompanyID, room.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return chat.Room{}, err
	}

	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, company_id, user_id) VALUES ($1, $2, $3)
	`, room.ID, room.CompanyID, room.UserID)
	if err != nil {
		return chat.Room{}, err
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (chat.Room, error) {
	var room chat.Room
	err := s.db.GetContext(ctx, &room, `
		SELECT id, company_id, user_id FROM chat_rooms WHERE id = $1
	`, id)
	if err != nil {
		return chat.Room{}, notFound(err)
	}
	return room, nil
}

func (s *Store) ListUserRooms(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT r.id FROM chat_rooms r
		WHERE r.user_id = $1
		   OR r.company_id IN (SELECT company_id FROM company_users WHERE user_id = $1)
		ORDER BY r.id
	`, userID)
	return ids, err
}

func (s *Store) InsertMessage(ctx context.Context, msg *chat.Message) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO chat_messages (room_id, from_user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, msg.RoomID, msg.FromUserID, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return err
	}

	if msg.Extra != nil {
		switch msg.Extra.Kind {
		case chat.ExtraContractCreated:
			err = tx.QueryRowxContext(ctx, `
				INSERT INTO chat_contract_offers (message_id, offered_payout_cents)
				VALUES ($1, $2)
				RETURNING id
			`, msg.ID, msg.Extra.PayoutCents).Scan(&msg.Extra.OfferID)
			if err != nil {
				return err
			}
		case chat.ExtraContractStatusChange:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO chat_contract_offer_updates (message_id, offer_id, update_kind)
				VALUES ($1, $2, $3)
			`, msg.ID, msg.Extra.OfferID, string(msg.Extra.NewStatus))
			if isPQError(err, pqForeignKeyViolation) {
				return storage.ErrNotFound
			}
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown message extra kind %q", msg.Extra.Kind)
		}
	}

	return tx.Commit()
}

func (s *Store) ListRoomMessages(ctx context.Context, roomID string) ([]chat.Message, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT m.id, m.room_id, m.from_user_id, m.content, m.created_at,
		       o.id, o.offered_payout_cents,
		       u.offer_id, u.update_kind
		FROM chat_messages m
		LEFT JOIN chat_contract_offers o ON o.message_id = m.id
		LEFT JOIN chat_contract_offer_updates u ON u.message_id = m.id
		WHERE m.room_id = $1
		ORDER BY m.id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m            chat.Message
			offerID      sql.NullInt64
			payoutCents  sql.NullInt64
			updateOffer  sql.NullInt64
			updateStatus sql.NullString
		)
		err := rows.Scan(&m.ID, &m.RoomID, &m.FromUserID, &m.Content, &m.CreatedAt,
			&offerID, &payoutCents, &updateOffer, &updateStatus)
		if err != nil {
			return nil, err
		}
		switch {
		case offerID.Valid:
			m.Extra = &chat.Extra{
				Kind:        chat.ExtraContractCreated,
				OfferID:     offerID.Int64,
				PayoutCents: payoutCents.Int64,
			}
		case updateOffer.Valid:
			m.Extra = &chat.Extra{
				Kind:      chat.ExtraContractStatusChange,
				OfferID:   updateOffer.Int64,
				NewStatus: chat.OfferStatus(updateStatus.String),
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetContractOffer(ctx context.Context, offerID int64) (chat.ContractOffer, error) {
	var offer chat.ContractOffer
	err := s.db.GetContext(ctx, &offer, `
		SELECT id, message_id, offered_payout_cents
		FROM chat_contract_offers WHERE id = $1
	`, offerID)
	if err != nil {
		return chat.ContractOffer{}, notFound(err)
	}
	return offer, nil
}

func (s *Store) ListOfferUpdates(ctx context.Context, offerID int64) ([]chat.OfferUpdate, error) {
	var updates []chat.OfferUpdate
	err := s.db.SelectContext(ctx, &updates, `
		SELECT id, message_id, offer_id, update_kind
		FROM chat_contract_offer_updates WHERE offer_id = $1
		ORDER BY id
	`, offerID)
	return updates, err
}

func (s *Store) UpsertLastSeen(ctx context.Context, seen chat.LastSeen) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_last_seen (room_id, user_id, last_message_seen_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			last_message_seen_id = EXCLUDED.last_message_seen_id
	`, seen.RoomID, seen.UserID, seen.LastMessageSeenID)
	return err
}

func (s *Store) ListRoomLastSeen(ctx context.Context, roomID string) ([]chat.LastSeen, error) {
	var out []chat.LastSeen
	err := s.db.SelectContext(ctx, &out, `
		SELECT room_id, user_id, last_message_seen_id
		FROM chat_last_seen WHERE room_id = $1
		ORDER BY user_id
	`, roomID)
	return out, err
}
