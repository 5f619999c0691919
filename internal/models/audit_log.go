package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Anomaly kinds raised by the security event logger
const (
	AnomalySuspiciousIP  = "SUSPICIOUS_IP"
	AnomalySuspiciousUA  = "SUSPICIOUS_UA"
	AnomalyHighFrequency = "HIGH_FREQUENCY"
)

// SecurityEvent is the durable record of one login attempt
type SecurityEvent struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	LogID           string            `json:"log_id" db:"log_id"`
	SessionToken    string            `json:"session_id" db:"session_token"`
	Timestamp       time.Time         `json:"timestamp" db:"occurred_at"`
	Email           string            `json:"email" db:"email"`
	AnonymizedUser  string            `json:"user_id" db:"anonymized_user"`
	IPAddress       string            `json:"ip_address" db:"ip_address"`
	Country         string            `json:"country" db:"country"`
	Region          string            `json:"region" db:"region"`
	City            string            `json:"city" db:"city"`
	UserAgent       string            `json:"user_agent_string" db:"user_agent"`
	Browser         string            `json:"browser_name_version" db:"browser"`
	OS              string            `json:"os_name_version" db:"os"`
	DeviceType      string            `json:"device_type" db:"device_type"`
	LoginSuccessful bool              `json:"login_successful" db:"login_successful"`
	FailureReason   *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	IsAttack        bool              `json:"is_attack_ip" db:"is_attack"`
	Detection       *DetectionSummary `json:"attack_detection,omitempty" db:"detection"`
	Anomalies       []string          `json:"detected_anomalies,omitempty" db:"anomalies"`
}

// DetectionSummary is the part of a DetectionResult embedded in a SecurityEvent
type DetectionSummary struct {
	IsAttack       bool       `json:"is_attack"`
	Confidence     float64    `json:"confidence"`
	AttackType     AttackType `json:"attack_type"`
	ClassifierUsed bool       `json:"classifier_used"`
}

// SummaryOf reduces a DetectionResult to its embedded summary
func SummaryOf(r DetectionResult) *DetectionSummary {
	return &DetectionSummary{
		IsAttack:       r.IsAttack,
		Confidence:     r.Confidence,
		AttackType:     r.AttackType,
		ClassifierUsed: r.ClassifierUsed,
	}
}

// HasAnomaly reports whether the given anomaly kind was attached to the event
func (e *SecurityEvent) HasAnomaly(kind string) bool {
	for _, a := range e.Anomalies {
		if a == kind {
			return true
		}
	}
	return false
}

// AttackType returns the detection label or "normal" when no detection was embedded
func (e *SecurityEvent) AttackType() AttackType {
	if e.Detection == nil {
		return AttackTypeNormal
	}
	return e.Detection.AttackType
}

// Scan implements sql.Scanner for JSONB
func (d *DetectionSummary) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ErrBadRequest
	}

	return json.Unmarshal(data, d)
}

// Value implements driver.Valuer for JSONB
func (d *DetectionSummary) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
