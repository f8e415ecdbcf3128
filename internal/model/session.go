package model

import "time"

// User is the authenticated Liman account.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Status      int    `json:"status"`
	LastLoginAt string `json:"last_login_at"`
	LastLoginIP string `json:"last_login_ip"`
	ForceChange bool   `json:"forceChange"`
	AuthType    string `json:"auth_type"`
	Username    string `json:"username"`
	Locale      string `json:"locale"`
}

// AccessToken is the login response of the Liman API.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds from issue.
	ExpiresIn int  `json:"expires_in"`
	User      User `json:"user"`

	// IssuedAt is stamped locally when the token is received; the server
	// does not send it.
	IssuedAt time.Time `json:"issued_at"`
}
