// Package model defines the data structures used throughout the application.
package model

import "time"

// Skill levels shared by profiles and jam sessions.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// ValidSkillLevel reports whether s is one of the known skill levels.
func ValidSkillLevel(s string) bool {
	switch s {
	case SkillBeginner, SkillIntermediate, SkillAdvanced:
		return true
	}
	return false
}

// Account is a local user account.
//
// PasswordHash is empty for accounts created through social login; the store
// persists that as NULL. Username is assigned once at creation time.
type Account struct {
	ID           string    `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name"  db:"last_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// Profile holds the musician attributes of an account. Every account has
// exactly one, created in the same transaction.
//
// AvatarKey is the storage key of an uploaded avatar; AvatarURL is an external
// picture (usually seeded from a social login) used only when no upload exists.
type Profile struct {
	AccountID       string `json:"-"                db:"account_id"`
	Instruments     string `json:"instruments"      db:"instruments"`
	Genres          string `json:"genres"           db:"genres"`
	SkillLevel      string `json:"skill_level"      db:"skill_level"`
	Bio             string `json:"bio"              db:"bio"`
	Location        string `json:"location"         db:"location"`
	AvatarKey       string `json:"-"                db:"avatar_key"`
	AvatarURL       string `json:"avatar_url"       db:"avatar_url"`
	InstagramHandle string `json:"instagram_handle" db:"instagram_handle"`
	TikTokHandle    string `json:"tiktok_handle"    db:"tiktok_handle"`
}

// HasUploadedAvatar reports whether the user uploaded their own avatar.
func (p *Profile) HasUploadedAvatar() bool {
	return p.AvatarKey != ""
}

// User is the account as the API shows it: identity, profile, and the avatar
// URL clients should display (nil when there is none).
type User struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Avatar    *string  `json:"avatar"`
	Profile   *Profile `json:"profile"`
}
