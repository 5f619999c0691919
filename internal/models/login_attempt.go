package models

import (
	"strings"
	"time"
)

// UnknownValue marks a client context field the resolver could not determine
const UnknownValue = "Unknown"

// ClientContext holds the network, geo and client-signature fields resolved for a request
type ClientContext struct {
	IPAddress  string `json:"ip_address"`
	Country    string `json:"country"`
	Region     string `json:"region"`
	City       string `json:"city"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
}

// AttemptRecord is an immutable snapshot of one login attempt.
// It is built once at the boundary with NewAttemptRecord and only read afterwards.
type AttemptRecord struct {
	Email           string
	UserID          string
	IPAddress       string
	Country         string
	Region          string
	City            string
	UserAgent       string
	Browser         string
	OS              string
	DeviceType      string
	LoginSuccessful bool
	Timestamp       time.Time
}

// AttemptInput is the normalized attempt description handed over by the web layer
type AttemptInput struct {
	Email           string
	UserID          string
	LoginSuccessful bool
}

// NewAttemptRecord maps the attempt input and resolved client context into an AttemptRecord.
// Missing client fields default to UnknownValue so downstream rules never see empty strings
// where a resolution failure was meant.
func NewAttemptRecord(in AttemptInput, client ClientContext, at time.Time) AttemptRecord {
	return AttemptRecord{
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		UserID:          strings.TrimSpace(in.UserID),
		IPAddress:       defaultString(strings.TrimSpace(client.IPAddress), "0.0.0.0"),
		Country:         defaultString(client.Country, UnknownValue),
		Region:          defaultString(client.Region, UnknownValue),
		City:            defaultString(client.City, UnknownValue),
		UserAgent:       defaultString(client.UserAgent, UnknownValue),
		Browser:         defaultString(client.Browser, UnknownValue),
		OS:              defaultString(client.OS, UnknownValue),
		DeviceType:      defaultString(client.DeviceType, "unknown"),
		LoginSuccessful: in.LoginSuccessful,
		Timestamp:       at,
	}
}

// ActivityEvent is the lightweight tuple kept in windowed histories
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip"`
	Success   bool      `json:"success"`
	Email     string    `json:"email"`
}

// ActivityEvent projects the attempt into a history entry
func (a AttemptRecord) ActivityEvent() ActivityEvent {
	return ActivityEvent{
		Timestamp: a.Timestamp,
		IPAddress: a.IPAddress,
		Success:   a.LoginSuccessful,
		Email:     a.Email,
	}
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
