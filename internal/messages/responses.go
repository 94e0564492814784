package messages

import "github.com/siteray/siteray-agent/models"

// Result is the generic response: success, plus an error text on failure.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the plain success response.
func OK() Result { return Result{Success: true} }

// Fail returns a failure response carrying msg.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

// Invalid is the response to a request that could not be decoded.
func Invalid() Result { return Fail(ErrInvalidMessage.Error()) }

// LoginResult answers LOGIN.
type LoginResult struct {
	Success bool           `json:"success"`
	User    *models.User   `json:"user,omitempty"`
	Tokens  *models.Tokens `json:"tokens,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ScanResult answers TRIGGER_SCAN and TRIGGER_RESCAN.
type ScanResult struct {
	Success bool   `json:"success"`
	ScanID  string `json:"scanId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StreamTokenResult answers GET_STREAM_TOKEN.
type StreamTokenResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// URLResult answers GET_WEB_LOGIN_URL.
type URLResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProvidersResult answers GET_OAUTH_PROVIDERS.
type ProvidersResult struct {
	Success   bool                   `json:"success"`
	Providers []models.OAuthProvider `json:"providers"`
	Error     string                 `json:"error,omitempty"`
}
