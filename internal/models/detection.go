package models

import "time"

// AttackType labels the verdict of the decision combiner
type AttackType string

const (
	AttackTypeNormal              AttackType = "normal"
	AttackTypeClassifierDetected  AttackType = "classifier_detected"
	AttackTypeClassifierSuspected AttackType = "classifier_suspected"
	AttackTypeBehavioralAnomaly   AttackType = "behavioral_anomaly"
)

// ClassifierResult is the output of a single classifier invocation
type ClassifierResult struct {
	ProbabilityAttack float64 `json:"probability_attack"`
	Confidence        float64 `json:"confidence"`
}

// BehavioralResult is the output of the rule-based scorer
type BehavioralResult struct {
	Score          float64  `json:"score"`
	Flags          []string `json:"flags"`
	RecentFailures int      `json:"recent_failures"`
}

// HasFlag reports whether the named rule matched
func (b BehavioralResult) HasFlag(flag string) bool {
	for _, f := range b.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// DetectionResult is the fused verdict for one attempt
type DetectionResult struct {
	IsAttack              bool       `json:"is_attack"`
	Confidence            float64    `json:"confidence"`
	AttackType            AttackType `json:"attack_type"`
	ClassifierProbability float64    `json:"classifier_probability"`
	BehavioralScore       float64    `json:"behavioral_score"`
	BehavioralFlags       []string   `json:"behavioral_flags,omitempty"`
	RecentFailures        int        `json:"recent_failures"`
	ClassifierUsed        bool       `json:"classifier_used"`
}

// DetectionSnapshot is a DetectionResult tagged with the attempt it belongs to,
// kept for the dashboard's recent-results view
type DetectionSnapshot struct {
	DetectionResult
	Timestamp       time.Time `json:"timestamp"`
	Email           string    `json:"email"`
	IPAddress       string    `json:"ip"`
	Country         string    `json:"country"`
	LoginSuccessful bool      `json:"login_success"`
}
