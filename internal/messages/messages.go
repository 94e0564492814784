// Package messages defines the request/response contract between the popup,
// content scripts and the background coordinator. Every request is one
// variant of a closed set, tagged by its "type" field.
package messages

import (
	"encoding/json"
	"errors"
)

// Type is the discriminant of a request.
type Type string

const (
	TypeLogin              Type = "LOGIN"
	TypeLogout             Type = "LOGOUT"
	TypeGetAuth            Type = "GET_AUTH"
	TypeGetLookup          Type = "GET_LOOKUP"
	TypeTriggerScan        Type = "TRIGGER_SCAN"
	TypeTriggerRescan      Type = "TRIGGER_RESCAN"
	TypeCheckRescan        Type = "CHECK_RESCAN"
	TypeGetStreamToken     Type = "GET_STREAM_TOKEN"
	TypeInvalidateCache    Type = "INVALIDATE_CACHE"
	TypeGetWebLoginURL     Type = "GET_WEB_LOGIN_URL"
	TypeGetSettings        Type = "GET_SETTINGS"
	TypeSetSettings        Type = "SET_SETTINGS"
	TypeGetBarData         Type = "GET_BAR_DATA"
	TypeBarSettingsChanged Type = "BAR_SETTINGS_CHANGED"
	TypeGetOAuthProviders  Type = "GET_OAUTH_PROVIDERS"
	TypeStartOAuth         Type = "START_OAUTH"
)

// ErrInvalidMessage is returned by Decode for anything that is not a
// well-formed request.
var ErrInvalidMessage = errors.New("Invalid message") //nolint:staticcheck // shown to the user verbatim

// Message is implemented by every request variant.
type Message interface {
	Type() Type
}

type (
	Login struct {
		Email    string `json:"email"    validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	Logout  struct{}
	GetAuth struct{}
	GetLookup struct {
		Domain string `json:"domain" validate:"required,hostname_rfc1123"`
	}
	TriggerScan struct {
		Domain string `json:"domain" validate:"required,hostname_rfc1123"`
	}
	TriggerRescan struct {
		Domain string `json:"domain" validate:"required,hostname_rfc1123"`
	}
	CheckRescan struct {
		ScanID string `json:"scanId" validate:"required"`
	}
	GetStreamToken struct {
		ScanID string `json:"scanId" validate:"required"`
	}
	InvalidateCache struct {
		Domain string `json:"domain" validate:"required,hostname_rfc1123"`
	}
	GetWebLoginURL struct {
		// Redirect is the site path to land on after login. Optional.
		Redirect string `json:"redirect" validate:"omitempty,startswith=/"`
	}
	GetSettings struct{}
	SetSettings struct {
		// Settings is a partial settings object merged over the defaults.
		Settings json.RawMessage `json:"settings" validate:"required"`
	}
	GetBarData struct {
		Domain string `json:"domain" validate:"required,hostname_rfc1123"`
	}
	BarSettingsChanged struct{}
	GetOAuthProviders  struct{}
	StartOAuth         struct {
		Provider string `json:"provider" validate:"required,alphanum"`
	}
)

func (Login) Type() Type              { return TypeLogin }
func (Logout) Type() Type             { return TypeLogout }
func (GetAuth) Type() Type            { return TypeGetAuth }
func (GetLookup) Type() Type          { return TypeGetLookup }
func (TriggerScan) Type() Type        { return TypeTriggerScan }
func (TriggerRescan) Type() Type      { return TypeTriggerRescan }
func (CheckRescan) Type() Type        { return TypeCheckRescan }
func (GetStreamToken) Type() Type     { return TypeGetStreamToken }
func (InvalidateCache) Type() Type    { return TypeInvalidateCache }
func (GetWebLoginURL) Type() Type     { return TypeGetWebLoginURL }
func (GetSettings) Type() Type        { return TypeGetSettings }
func (SetSettings) Type() Type        { return TypeSetSettings }
func (GetBarData) Type() Type         { return TypeGetBarData }
func (BarSettingsChanged) Type() Type { return TypeBarSettingsChanged }
func (GetOAuthProviders) Type() Type  { return TypeGetOAuthProviders }
func (StartOAuth) Type() Type         { return TypeStartOAuth }

// newMessage returns a pointer to the zero value of the variant for t.
var newMessage = map[Type]func() Message{
	TypeLogin:              func() Message { return &Login{} },
	TypeLogout:             func() Message { return &Logout{} },
	TypeGetAuth:            func() Message { return &GetAuth{} },
	TypeGetLookup:          func() Message { return &GetLookup{} },
	TypeTriggerScan:        func() Message { return &TriggerScan{} },
	TypeTriggerRescan:      func() Message { return &TriggerRescan{} },
	TypeCheckRescan:        func() Message { return &CheckRescan{} },
	TypeGetStreamToken:     func() Message { return &GetStreamToken{} },
	TypeInvalidateCache:    func() Message { return &InvalidateCache{} },
	TypeGetWebLoginURL:     func() Message { return &GetWebLoginURL{} },
	TypeGetSettings:        func() Message { return &GetSettings{} },
	TypeSetSettings:        func() Message { return &SetSettings{} },
	TypeGetBarData:         func() Message { return &GetBarData{} },
	TypeBarSettingsChanged: func() Message { return &BarSettingsChanged{} },
	TypeGetOAuthProviders:  func() Message { return &GetOAuthProviders{} },
	TypeStartOAuth:         func() Message { return &StartOAuth{} },
}
