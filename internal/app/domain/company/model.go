// Package company defines sponsor companies, their members and invitations.
package company

import "time"

// Company is a sponsor organisation.
type Company struct {
	ID         string    `json:"id" db:"id"`
	FullName   string    `json:"fullName" db:"full_name"`
	BannerDesc string    `json:"bannerDesc" db:"banner_desc"`
	LogoURL    string    `json:"logoUrl" db:"logo_url"`
	Industry   []string  `json:"industry" db:"industry"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Embedding  []float32 `json:"-" db:"embedding"`
}

// Member links a user to a company.
type Member struct {
	CompanyID string `json:"companyId" db:"company_id"`
	UserID    string `json:"userId" db:"user_id"`
	IsAdmin   bool   `json:"isAdmin" db:"is_admin"`
}

// MemberProfile is the public profile a user presents inside companies.
// Distinct from the creator profile: one user can act in both roles.
type MemberProfile struct {
	UserID     string `json:"userId" db:"user_id"`
	GivenName  string `json:"givenName" db:"given_name"`
	FamilyName string `json:"familyName" db:"family_name"`
	Pronouns   string `json:"pronouns" db:"pronouns"`
	AvatarPath string `json:"pfpPath" db:"avatar_path"`
}

// MemberDetail is a member profile joined with the membership flags, used in
// company member listings.
type MemberDetail struct {
	MemberProfile
	IsAdmin bool `json:"isAdmin" db:"is_admin"`
}

// Invitation invites a Google email into a company. It is consumed when the
// invited user accepts or rejects.
type Invitation struct {
	CompanyID    string `json:"companyId" db:"company_id"`
	InvitedEmail string `json:"googleEmail" db:"invited_email"`
	GrantAdmin   bool   `json:"isAdmin" db:"grant_admin"`
	FromUserID   string `json:"fromUser" db:"from_user_id"`
}

// Detail is a company with its members and outstanding invitations, as
// returned to members of the company.
type Detail struct {
	Company
	Members []MemberDetail `json:"users"`
	Invites []Invitation   `json:"invites"`
}

// InvitationDetail is an invitation as seen by the invited user: who sent it
// and into which company.
type InvitationDetail struct {
	From       MemberProfile `json:"from"`
	Company    Company       `json:"company"`
	GrantAdmin bool          `json:"isAdmin"`
}
