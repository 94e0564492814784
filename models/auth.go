package models

// User is the identity attached to a stored session.
type User struct {
	ID      string `json:"id"      yaml:"id"`
	Email   string `json:"email"   yaml:"email"`
	Tier    string `json:"tier"    yaml:"tier"`
	IsAdmin bool   `json:"isAdmin" yaml:"is_admin"`
}

// Tokens is an access/refresh token pair issued by the remote service.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse is returned by the login and OAuth exchange endpoints.
type LoginResponse struct {
	Success bool    `json:"success"`
	User    *User   `json:"user,omitempty"`
	Tokens  *Tokens `json:"tokens,omitempty"`
}

// RefreshResponse is returned by the token refresh endpoint.
type RefreshResponse struct {
	Success bool    `json:"success"`
	Tokens  *Tokens `json:"tokens,omitempty"`
}

// StoredAuth is the persisted session. It is the sole source of truth for
// whether the user is logged in.
type StoredAuth struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// OAuthProvider is a third-party identity provider offered by the service.
type OAuthProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebLoginURL is returned by the web login token endpoint.
type WebLoginURL struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}
