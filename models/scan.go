package models

// ScanStatus is the lifecycle state of a scan that has not completed yet.
type ScanStatus string

const (
	ScanQueued  ScanStatus = "queued"
	ScanRunning ScanStatus = "running"
)

// ScanSummary is an immutable snapshot of a completed scan as returned by
// the lookup endpoint.
type ScanSummary struct {
	ID               string    `json:"id"                yaml:"id"`
	NormalizedDomain string    `json:"normalizedDomain"  yaml:"normalized_domain"`
	TrustScore       *int      `json:"trustScore"        yaml:"trust_score"`
	RiskLevel        RiskLevel `json:"riskLevel"         yaml:"risk_level"`
	Verdict          *string   `json:"verdict"           yaml:"verdict"`
	WebsiteType      *string   `json:"websiteType"       yaml:"website_type"`
	FaviconURL       *string   `json:"faviconUrl"        yaml:"favicon_url"`
	CachedUntil      *string   `json:"cachedUntil"       yaml:"cached_until"`
	CompletedAt      *string   `json:"completedAt"       yaml:"completed_at"`
	// Stale is set when the cached scan may be outdated. It is still shown.
	Stale bool `json:"stale" yaml:"stale"`
}

// HasScore reports whether the scan carries both a trust score and a risk
// level, i.e. whether it can be rendered as a score badge.
func (s *ScanSummary) HasScore() bool {
	return s != nil && s.TrustScore != nil && s.RiskLevel.Valid()
}

// RunningScan is a scan accepted by the remote service but not yet complete.
type RunningScan struct {
	ScanID    string     `json:"scanId"    yaml:"scan_id"`
	Status    ScanStatus `json:"status"    yaml:"status"`
	CreatedAt string     `json:"createdAt" yaml:"created_at"`
}

// FailedScan marks the most recent scan of a domain as failed.
type FailedScan struct {
	ScanID string `json:"scanId" yaml:"scan_id"`
}

// LookupResponse is the remote lookup result for one domain. When Success is
// true at most one of Scan, RunningScan and FailedScan is non-nil.
type LookupResponse struct {
	Success     bool         `json:"success"     yaml:"success"`
	Scan        *ScanSummary `json:"scan"        yaml:"scan"`
	RunningScan *RunningScan `json:"runningScan" yaml:"running_scan"`
	FailedScan  *FailedScan  `json:"failedScan"  yaml:"failed_scan"`
}

// Completed reports whether the lookup carries a finished scan and no scan in
// progress.
func (l *LookupResponse) Completed() bool {
	return l != nil && l.Scan != nil && l.RunningScan == nil
}

// Failed reports whether the lookup carries only an explicit failure marker.
func (l *LookupResponse) Failed() bool {
	return l != nil && l.Scan == nil && l.RunningScan == nil && l.FailedScan != nil
}

// ScanTriggerResponse is returned by POST /api/scans. Older servers return
// the new scan nested under "scan".
type ScanTriggerResponse struct {
	Success bool   `json:"success"`
	ScanID  string `json:"scanId,omitempty"`
	Scan    *struct {
		ID string `json:"id"`
	} `json:"scan,omitempty"`
}

// ID returns the identifier of the triggered scan regardless of the response
// shape.
func (r *ScanTriggerResponse) ID() string {
	if r == nil {
		return ""
	}
	if r.Scan != nil && r.Scan.ID != "" {
		return r.Scan.ID
	}
	return r.ScanID
}

// RescanEligibility reports whether a rescan may be triggered now.
type RescanEligibility struct {
	Eligible        bool    `json:"eligible"`
	NextAvailableAt *string `json:"nextAvailableAt"`
}

// StreamTokenResponse carries a short-lived token for the progress stream.
type StreamTokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// ProgressEvent is one event read from a scan progress stream.
type ProgressEvent struct {
	// Type is "progress", "complete" or "connection_expired".
	Type string `json:"type"`
	// Data is the raw JSON payload of the event.
	Data []byte `json:"data,omitempty"`
}
