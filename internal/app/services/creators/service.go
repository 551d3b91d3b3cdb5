// Package creators manages content-creator profiles and sponsor-side
// discovery.
package creators

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/storage"
	"github.com/halogen-labs/halogen/internal/embedding"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/filestore"
	"github.com/halogen-labs/halogen/pkg/logger"
)

const defaultSearchLimit = 20

// Service implements creator profile management.
type Service struct {
	store   storage.CreatorStore
	encoder embedding.Encoder
	files   *filestore.Store
	log     *logger.Logger
}

// New creates the service.
func New(store storage.CreatorStore, encoder embedding.Encoder, files *filestore.Store, log *logger.Logger) *Service {
	return &Service{store: store, encoder: encoder, files: files, log: log}
}

// UpsertParams carries a full profile update. Avatar and AvatarURL are
// mutually exclusive; both may be absent to keep the current avatar.
type UpsertParams struct {
	GivenName    string
	FamilyName   string
	Pronouns     string
	ProfileDesc  string
	ContentDesc  string
	AudienceDesc string

	// Avatar is an uploaded image, AvatarURL a provider-hosted one.
	Avatar    io.Reader
	AvatarURL string
}

func (p UpsertParams) validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"given_name", p.GivenName},
		{"family_name", p.FamilyName},
		{"pronouns", p.Pronouns},
		{"profile_desc", p.ProfileDesc},
		{"content_desc", p.ContentDesc},
		{"audience_desc", p.AudienceDesc},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.MissingFields(missing)
	}
	return nil
}

// Upsert creates or replaces the user's creator profile. The embedding is
// recomputed from the description fields on every call.
func (s *Service) Upsert(ctx context.Context, userID string, p UpsertParams) (creator.Profile, error) {
	if err := p.validate(); err != nil {
		return creator.Profile{}, err
	}

	vec, err := s.encoder.Encode(ctx, embedding.FormatCreatorProfile(p.ProfileDesc, p.ContentDesc, p.AudienceDesc))
	if err != nil {
		return creator.Profile{}, apperrors.Upstream("voyage", err)
	}

	profile := creator.Profile{
		UserID:       userID,
		GivenName:    p.GivenName,
		FamilyName:   p.FamilyName,
		Pronouns:     p.Pronouns,
		ProfileDesc:  p.ProfileDesc,
		ContentDesc:  p.ContentDesc,
		AudienceDesc: p.AudienceDesc,
		Embedding:    vec,
	}

	switch {
	case p.Avatar != nil:
		path, err := s.files.StoreUpload(filestore.FolderProfilePicture, userID, p.Avatar)
		if err != nil {
			return creator.Profile{}, apperrors.BadRequest("could not process the avatar image").WithDetails("cause", err.Error())
		}
		profile.AvatarPath = path
	case p.AvatarURL != "":
		path, err := s.files.FetchAndStore(ctx, filestore.FolderProfilePicture, userID, p.AvatarURL)
		if err != nil {
			return creator.Profile{}, apperrors.BadRequest("could not fetch the avatar image").WithDetails("cause", err.Error())
		}
		profile.AvatarPath = path
	default:
		if existing, err := s.store.GetCreatorProfile(ctx, userID); err == nil {
			profile.AvatarPath = existing.AvatarPath
		}
	}

	if err := s.store.UpsertCreatorProfile(ctx, profile); err != nil {
		return creator.Profile{}, fmt.Errorf("store creator profile: %w", err)
	}
	s.log.WithField("user_id", userID).Infof("creator profile updated")
	return profile, nil
}

// Get returns the user's creator profile.
func (s *Service) Get(ctx context.Context, userID string) (creator.Profile, error) {
	profile, err := s.store.GetCreatorProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return creator.Profile{}, apperrors.NotFound("creator profile")
	}
	if err != nil {
		return creator.Profile{}, err
	}
	return profile, nil
}

// Search embeds the query text and returns the closest creators.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]creator.Match, error) {
	if query == "" {
		return nil, apperrors.BadRequest("search query is required")
	}
	if limit <= 0 || limit > 100 {
		limit = defaultSearchLimit
	}

	vec, err := s.encoder.Encode(ctx, query)
	if err != nil {
		return nil, apperrors.Upstream("voyage", err)
	}

	matches, err := s.store.SearchCreators(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search creators: %w", err)
	}
	return matches, nil
}

// SearchByEmbedding returns the creators closest to a precomputed vector,
// e.g. a company's banner embedding.
func (s *Service) SearchByEmbedding(ctx context.Context, vec []float32, limit int) ([]creator.Match, error) {
	if len(vec) == 0 {
		return nil, apperrors.BadRequest("query embedding is required")
	}
	if limit <= 0 || limit > 100 {
		limit = defaultSearchLimit
	}
	matches, err := s.store.SearchCreators(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search creators: %w", err)
	}
	return matches, nil
}
