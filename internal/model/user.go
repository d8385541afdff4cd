package model

import "time"

// Operator is a GitHub account that has signed in to the admin panel.
//
// Signing in does not grant anything: write capability is decided per request
// by the access verifier. The row only remembers who has used the panel and
// when, for the publication history page.
//
// GitHubID is the stable numeric account ID; Login can change on GitHub, so
// the row is keyed on GitHubID and Login is refreshed on every sign-in.
type Operator struct {
	ID          string    `json:"id"          db:"id"`
	GitHubID    int64     `json:"githubId"    db:"github_id"`
	Login       string    `json:"login"       db:"login"`
	AvatarURL   string    `json:"avatarUrl"   db:"avatar_url"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	LastLoginAt time.Time `json:"lastLoginAt" db:"last_login_at"`
}
