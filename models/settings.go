package models

// IconDisplayMode selects how a completed scan is drawn on the toolbar icon.
type IconDisplayMode string

const (
	IconNumbers IconDisplayMode = "numbers"
	IconSymbols IconDisplayMode = "symbols"
)

// TrustBarPosition is the page edge the trust bar is pinned to.
type TrustBarPosition string

const (
	BarTop    TrustBarPosition = "top"
	BarBottom TrustBarPosition = "bottom"
)

// ExtensionSettings are the user preferences persisted under
// "extensionSettings".
type ExtensionSettings struct {
	IconDisplayMode  IconDisplayMode  `json:"iconDisplayMode"  yaml:"icon_display_mode"  validate:"oneof=numbers symbols"`
	TrustBarEnabled  bool             `json:"trustBarEnabled"  yaml:"trust_bar_enabled"`
	TrustBarPosition TrustBarPosition `json:"trustBarPosition" yaml:"trust_bar_position" validate:"oneof=top bottom"`
	TrustBarSize     int              `json:"trustBarSize"     yaml:"trust_bar_size"     validate:"min=1,max=16"`
}

// DefaultSettings returns the settings used when nothing has been stored.
func DefaultSettings() ExtensionSettings {
	return ExtensionSettings{
		IconDisplayMode:  IconSymbols,
		TrustBarEnabled:  true,
		TrustBarPosition: BarTop,
		TrustBarSize:     2,
	}
}

// TrustBarData is derived from the latest scan and the current settings and
// pushed to the content overlay. It is never persisted.
type TrustBarData struct {
	Enabled   bool             `json:"enabled"   yaml:"enabled"`
	RiskLevel RiskLevel        `json:"riskLevel" yaml:"risk_level"`
	Position  TrustBarPosition `json:"position"  yaml:"position"`
	Size      int              `json:"size"      yaml:"size"`
}

// BuildBarData derives the trust bar for a lookup. It returns nil when the
// bar is disabled or the lookup has no risk level to show.
func BuildBarData(lookup *LookupResponse, s ExtensionSettings) *TrustBarData {
	if !s.TrustBarEnabled || lookup == nil || lookup.Scan == nil || !lookup.Scan.RiskLevel.Valid() {
		return nil
	}
	return &TrustBarData{
		Enabled:   true,
		RiskLevel: lookup.Scan.RiskLevel,
		Position:  s.TrustBarPosition,
		Size:      s.TrustBarSize,
	}
}
