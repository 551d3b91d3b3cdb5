// Package companies manages sponsor companies, memberships and invitations.
package companies

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/storage"
	"github.com/halogen-labs/halogen/internal/embedding"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/filestore"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// Stores is the persistence surface the service needs. Google emails drive
// invitation matching.
type Stores interface {
	storage.CompanyStore
	ListGoogleEmails(ctx context.Context, userID string) ([]string, error)
}

// Service implements company management.
type Service struct {
	stores  Stores
	encoder embedding.Encoder
	files   *filestore.Store
	log     *logger.Logger
}

// New creates the service.
func New(stores Stores, encoder embedding.Encoder, files *filestore.Store, log *logger.Logger) *Service {
	return &Service{stores: stores, encoder: encoder, files: files, log: log}
}

// UpsertParams carries a company create or update.
type UpsertParams struct {
	FullName   string
	BannerDesc string
	Industry   []string

	// Logo is an uploaded image, LogoURL an externally hosted one.
	Logo    io.Reader
	LogoURL string
}

func (p UpsertParams) validate() error {
	var missing []string
	if p.FullName == "" {
		missing = append(missing, "full_name")
	}
	if p.BannerDesc == "" {
		missing = append(missing, "banner_desc")
	}
	if len(missing) > 0 {
		return apperrors.MissingFields(missing)
	}
	return nil
}

// requireAdmin checks membership and admin rights. Non-members get 401 so
// company IDs stay unguessable.
func (s *Service) requireAdmin(ctx context.Context, companyID, userID string) error {
	isAdmin, isMember, err := s.stores.IsAdmin(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return apperrors.Unauthorized("not a member of this company")
	}
	if !isAdmin {
		return apperrors.Forbidden("administrator rights required")
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, companyID, userID string) error {
	_, isMember, err := s.stores.IsAdmin(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return apperrors.Unauthorized("not a member of this company")
	}
	return nil
}

// Create registers a company with the creating user as its first admin. A
// failed membership insert rolls the company back.
func (s *Service) Create(ctx context.Context, userID string, p UpsertParams) (company.Company, error) {
	if err := p.validate(); err != nil {
		return company.Company{}, err
	}

	vec, err := s.encoder.Encode(ctx, embedding.FormatCompanyBanner(p.BannerDesc))
	if err != nil {
		return company.Company{}, apperrors.Upstream("voyage", err)
	}

	c := company.Company{
		FullName:   p.FullName,
		BannerDesc: p.BannerDesc,
		Industry:   p.Industry,
		Embedding:  vec,
	}
	c, err = s.stores.CreateCompany(ctx, c)
	if err != nil {
		return company.Company{}, fmt.Errorf("create company: %w", err)
	}

	if logo, err := s.storeLogo(ctx, c.ID, p); err != nil {
		s.rollback(ctx, c.ID)
		return company.Company{}, err
	} else if logo != "" {
		c.LogoURL = logo
		if err := s.stores.UpdateCompany(ctx, c); err != nil {
			s.rollback(ctx, c.ID)
			return company.Company{}, fmt.Errorf("store company logo path: %w", err)
		}
	}

	if err := s.stores.AddMember(ctx, company.Member{CompanyID: c.ID, UserID: userID, IsAdmin: true}); err != nil {
		s.rollback(ctx, c.ID)
		return company.Company{}, fmt.Errorf("add founding member: %w", err)
	}

	s.log.WithField("company_id", c.ID).Infof("company %q created", c.FullName)
	return c, nil
}

func (s *Service) rollback(ctx context.Context, companyID string) {
	if err := s.stores.DeleteCompany(ctx, companyID); err != nil {
		s.log.WithError(err).Errorf("rollback of company %s failed", companyID)
	}
}

func (s *Service) storeLogo(ctx context.Context, companyID string, p UpsertParams) (string, error) {
	switch {
	case p.Logo != nil:
		path, err := s.files.StoreUpload(filestore.FolderLogo, companyID, p.Logo)
		if err != nil {
			return "", apperrors.BadRequest("could not process the logo image").WithDetails("cause", err.Error())
		}
		return path, nil
	case p.LogoURL != "":
		path, err := s.files.FetchAndStore(ctx, filestore.FolderLogo, companyID, p.LogoURL)
		if err != nil {
			return "", apperrors.BadRequest("could not fetch the logo image").WithDetails("cause", err.Error())
		}
		return path, nil
	}
	return "", nil
}

// Update replaces the company profile. Admin only; the banner embedding is
// recomputed.
func (s *Service) Update(ctx context.Context, companyID, userID string, p UpsertParams) (company.Company, error) {
	if err := p.validate(); err != nil {
		return company.Company{}, err
	}
	if err := s.requireAdmin(ctx, companyID, userID); err != nil {
		return company.Company{}, err
	}

	c, err := s.stores.GetCompany(ctx, companyID)
	if errors.Is(err, storage.ErrNotFound) {
		return company.Company{}, apperrors.NotFound("company")
	}
	if err != nil {
		return company.Company{}, err
	}

	vec, err := s.encoder.Encode(ctx, embedding.FormatCompanyBanner(p.BannerDesc))
	if err != nil {
		return company.Company{}, apperrors.Upstream("voyage", err)
	}

	c.FullName = p.FullName
	c.BannerDesc = p.BannerDesc
	c.Industry = p.Industry
	c.Embedding = vec

	if logo, err := s.storeLogo(ctx, c.ID, p); err != nil {
		return company.Company{}, err
	} else if logo != "" {
		c.LogoURL = logo
	}

	if err := s.stores.UpdateCompany(ctx, c); err != nil {
		return company.Company{}, fmt.Errorf("update company: %w", err)
	}
	return c, nil
}

// Delete removes a company. Admin only.
func (s *Service) Delete(ctx context.Context, companyID, userID string) error {
	if err := s.requireAdmin(ctx, companyID, userID); err != nil {
		return err
	}
	if err := s.stores.DeleteCompany(ctx, companyID); err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	s.log.WithField("company_id", companyID).Infof("company deleted")
	return nil
}

// Get returns a company with members and outstanding invitations. Members
// only.
func (s *Service) Get(ctx context.Context, companyID, userID string) (company.Detail, error) {
	if err := s.requireMember(ctx, companyID, userID); err != nil {
		return company.Detail{}, err
	}
	return s.detail(ctx, companyID)
}

func (s *Service) detail(ctx context.Context, companyID string) (company.Detail, error) {
	c, err := s.stores.GetCompany(ctx, companyID)
	if errors.Is(err, storage.ErrNotFound) {
		return company.Detail{}, apperrors.NotFound("company")
	}
	if err != nil {
		return company.Detail{}, err
	}

	members, err := s.stores.ListCompanyMembers(ctx, companyID)
	if err != nil {
		return company.Detail{}, err
	}
	invites, err := s.stores.ListCompanyInvitations(ctx, companyID)
	if err != nil {
		return company.Detail{}, err
	}

	detail := company.Detail{Company: c, Invites: invites}
	for id, m := range members {
		m.UserID = id
		detail.Members = append(detail.Members, m)
	}
	return detail, nil
}

// BannerEmbedding returns the company's banner embedding for creator
// matching. Members only.
func (s *Service) BannerEmbedding(ctx context.Context, companyID, userID string) ([]float32, error) {
	if err := s.requireMember(ctx, companyID, userID); err != nil {
		return nil, err
	}
	c, err := s.stores.GetCompany(ctx, companyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("company")
	}
	if err != nil {
		return nil, err
	}
	return c.Embedding, nil
}

// ListForUser returns details of every company the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]company.Detail, error) {
	companies, err := s.stores.ListUserCompanies(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := make([]company.Detail, 0, len(companies))
	for _, c := range companies {
		d, err := s.detail(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

// UpsertMemberProfile stores the user's company-side profile.
func (s *Service) UpsertMemberProfile(ctx context.Context, userID string, p company.MemberProfile, avatar io.Reader) (company.MemberProfile, error) {
	var missing []string
	if p.GivenName == "" {
		missing = append(missing, "given_name")
	}
	if p.FamilyName == "" {
		missing = append(missing, "family_name")
	}
	if len(missing) > 0 {
		return company.MemberProfile{}, apperrors.MissingFields(missing)
	}

	p.UserID = userID
	if avatar != nil {
		path, err := s.files.StoreUpload(filestore.FolderProfilePicture, userID, avatar)
		if err != nil {
			return company.MemberProfile{}, apperrors.BadRequest("could not process the avatar image").WithDetails("cause", err.Error())
		}
		p.AvatarPath = path
	} else if existing, err := s.stores.GetMemberProfile(ctx, userID); err == nil {
		p.AvatarPath = existing.AvatarPath
	}

	if err := s.stores.UpsertMemberProfile(ctx, p); err != nil {
		return company.MemberProfile{}, fmt.Errorf("store member profile: %w", err)
	}
	return p, nil
}

// GetMemberProfile returns the user's company-side profile.
func (s *Service) GetMemberProfile(ctx context.Context, userID string) (company.MemberProfile, error) {
	p, err := s.stores.GetMemberProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return company.MemberProfile{}, apperrors.NotFound("member profile")
	}
	return p, err
}

// Invite adds an invitation for a Google email. Admin only.
func (s *Service) Invite(ctx context.Context, companyID, userID, email string, grantAdmin bool) error {
	if email == "" {
		return apperrors.BadRequest("invited email is required")
	}
	if err := s.requireAdmin(ctx, companyID, userID); err != nil {
		return err
	}
	err := s.stores.CreateInvitation(ctx, company.Invitation{
		CompanyID:    companyID,
		InvitedEmail: email,
		GrantAdmin:   grantAdmin,
		FromUserID:   userID,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return apperrors.Conflict("this email is already invited")
	}
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// Uninvite withdraws an invitation. Admin only.
func (s *Service) Uninvite(ctx context.Context, companyID, userID, email string) error {
	if err := s.requireAdmin(ctx, companyID, userID); err != nil {
		return err
	}
	err := s.stores.DeleteInvitation(ctx, companyID, email)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("invitation")
	}
	return err
}

// ListInvitationsFor returns the invitations addressed to any of the user's
// Google emails.
func (s *Service) ListInvitationsFor(ctx context.Context, userID string) ([]company.InvitationDetail, error) {
	emails, err := s.stores.ListGoogleEmails(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, nil
	}
	return s.stores.ListInvitationsForEmails(ctx, emails)
}

// AcceptInvitation consumes every invitation for the company addressed to
// any of the user's Google emails and adds the user as a member. Admin is
// granted when any consumed invite carried it.
func (s *Service) AcceptInvitation(ctx context.Context, companyID, userID string) error {
	grants, err := s.consume(ctx, companyID, userID)
	if err != nil {
		return err
	}

	isAdmin := false
	for _, g := range grants {
		isAdmin = isAdmin || g
	}
	if err := s.stores.AddMember(ctx, company.Member{CompanyID: companyID, UserID: userID, IsAdmin: isAdmin}); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	s.log.WithField("company_id", companyID).WithField("user_id", userID).Infof("invitation accepted")
	return nil
}

// RejectInvitation consumes the user's invitations for the company without
// joining.
func (s *Service) RejectInvitation(ctx context.Context, companyID, userID string) error {
	_, err := s.consume(ctx, companyID, userID)
	return err
}

func (s *Service) consume(ctx context.Context, companyID, userID string) ([]bool, error) {
	emails, err := s.stores.ListGoogleEmails(ctx, userID)
	if err != nil {
		return nil, err
	}

	grants, err := s.stores.ConsumeInvitations(ctx, companyID, emails)
	if err != nil {
		return nil, fmt.Errorf("consume invitations: %w", err)
	}
	if len(grants) == 0 {
		return nil, apperrors.NotFound("invitation")
	}
	return grants, nil
}
