package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/models"
)

// Client sends popup messages to a running gateway.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a Client for the gateway at base, e.g.
// http://127.0.0.1:6180.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts msg and decodes the handler's reply into out. A nil out
// discards the reply.
func (c *Client) Send(ctx context.Context, msg messages.Message, out any) error {
	body, err := messages.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", c.base, err)
	}
	defer res.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", msg.Type(), err)
	}
	return nil
}

// Auth returns the stored session, or nil when logged out.
func (c *Client) Auth(ctx context.Context) (*models.StoredAuth, error) {
	var out *models.StoredAuth
	if err := c.Send(ctx, messages.GetAuth{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login submits credentials and returns the error text on failure.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out messages.LoginResult
	if err := c.Send(ctx, messages.Login{Email: email, Password: password}, &out); err != nil {
		return err
	}
	if !out.Success {
		return replyError(out.Error, "Login failed")
	}
	return nil
}

// Logout clears the session in the gateway.
func (c *Client) Logout(ctx context.Context) error {
	return c.Send(ctx, messages.Logout{}, nil)
}

type lookupReply struct {
	models.LookupResponse
	Error string `json:"error"`
}

// Lookup returns the lookup result for a domain.
func (c *Client) Lookup(ctx context.Context, domain string) (*models.LookupResponse, error) {
	var out lookupReply
	if err := c.Send(ctx, messages.GetLookup{Domain: domain}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, replyError(out.Error, "Lookup failed")
	}
	return &out.LookupResponse, nil
}

// Refresh drops the gateway's cached lookup for a domain and fetches a new
// one.
func (c *Client) Refresh(ctx context.Context, domain string) (*models.LookupResponse, error) {
	if err := c.Send(ctx, messages.InvalidateCache{Domain: domain}, nil); err != nil {
		return nil, err
	}
	return c.Lookup(ctx, domain)
}

// Scan triggers a scan, or a rescan when rescan is set, and returns its id.
func (c *Client) Scan(ctx context.Context, domain string, rescan bool) (string, error) {
	var msg messages.Message = messages.TriggerScan{Domain: domain}
	if rescan {
		msg = messages.TriggerRescan{Domain: domain}
	}
	var out messages.ScanResult
	if err := c.Send(ctx, msg, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", replyError(out.Error, "Scan trigger failed")
	}
	return out.ScanID, nil
}

// RescanEligibility reports whether a completed scan may be rescanned.
func (c *Client) RescanEligibility(ctx context.Context, scanID string) (models.RescanEligibility, error) {
	var out models.RescanEligibility
	err := c.Send(ctx, messages.CheckRescan{ScanID: scanID}, &out)
	return out, err
}

// Settings returns the effective extension settings.
func (c *Client) Settings(ctx context.Context) (models.ExtensionSettings, error) {
	var out models.ExtensionSettings
	err := c.Send(ctx, messages.GetSettings{}, &out)
	return out, err
}

func replyError(msg, def string) error {
	if msg == "" {
		msg = def
	}
	return errors.New(msg)
}
