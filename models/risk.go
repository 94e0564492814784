package models

// RiskLevel is the traffic-light verdict the remote service derives from a
// trust score.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "green"
	RiskYellow RiskLevel = "yellow"
	RiskRed    RiskLevel = "red"
)

// Valid reports whether r is one of the three known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskGreen, RiskYellow, RiskRed:
		return true
	default:
		return false
	}
}

// Weight returns a numeric weight for sorting (higher = riskier).
func (r RiskLevel) Weight() int {
	switch r {
	case RiskRed:
		return 3
	case RiskYellow:
		return 2
	case RiskGreen:
		return 1
	default:
		return 0
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

// MapRiskLevel normalises loosely formatted risk strings to RiskLevel.
// Unknown values map to the empty RiskLevel.
func MapRiskLevel(raw string) RiskLevel {
	switch raw {
	case "green", "GREEN", "low", "LOW":
		return RiskGreen
	case "yellow", "YELLOW", "medium", "MEDIUM":
		return RiskYellow
	case "red", "RED", "high", "HIGH":
		return RiskRed
	default:
		return ""
	}
}
