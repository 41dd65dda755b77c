package alerting

import "github.com/google/uuid"

// Severity classifies how urgent a threshold violation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// ThresholdAlert is raised when a reading crosses a configured bound.
// Acknowledged is mutated only by external consumers, never here.
type ThresholdAlert struct {
	ID           string   `json:"id"`
	DeviceID     string   `json:"deviceId"`
	AthleteID    string   `json:"athleteId,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Magnitude    float64  `json:"magnitude"`
	Severity     Severity `json:"severity"`
	Acknowledged bool     `json:"acknowledged"`
	Notes        string   `json:"notes,omitempty"`
}

func newAlertID() string {
	return uuid.NewString()
}
