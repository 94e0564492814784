package notify

import (
	"context"

	"github.com/siteray/siteray-agent/models"
)

// Event types.
const (
	EventScanCompleted = "scan_completed"
	EventScanFailed    = "scan_failed"
	EventScanTimedOut  = "scan_timed_out"
)

// Event describes how a tracked scan ended.
type Event struct {
	Type   string
	Domain string
	Title  string
	Body   string
	URL    string // report page, when known
	ScanID string
	Score  *int
	Risk   models.RiskLevel
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
