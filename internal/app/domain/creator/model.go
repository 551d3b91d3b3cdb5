// Package creator defines content-creator profiles.
package creator

// Profile is a creator's public profile. The embedding is derived from the
// three description fields and drives sponsor-side discovery.
type Profile struct {
	UserID       string    `json:"userId" db:"user_id"`
	GivenName    string    `json:"givenName" db:"given_name"`
	FamilyName   string    `json:"familyName" db:"family_name"`
	Pronouns     string    `json:"pronouns" db:"pronouns"`
	ProfileDesc  string    `json:"profileDesc" db:"profile_desc"`
	ContentDesc  string    `json:"contentDesc" db:"content_desc"`
	AudienceDesc string    `json:"audienceDesc" db:"audience_desc"`
	AvatarPath   string    `json:"pfpPath" db:"avatar_path"`
	Embedding    []float32 `json:"-" db:"embedding"`
}

// Match is a search hit: a profile with its similarity score.
type Match struct {
	Profile
	Score float64 `json:"score"`
}
