package models

import "time"

// AggregateStats is the cached snapshot served to the dashboard
type AggregateStats struct {
	TotalAttempts       int64     `json:"total_requests"`
	DetectedAttacks     int64     `json:"detected_attacks"`
	ClassifierPredicts  int64     `json:"classifier_predictions"`
	FallbackPredicts    int64     `json:"fallback_predictions"`
	SuccessfulLogins    int64     `json:"successful_logins"`
	ActiveUsers         int       `json:"active_users"`
	ActiveOrigins       int       `json:"active_ips"`
	AttemptsLastHour    int       `json:"attempts_last_hour"`
	ClassifierAvailable bool      `json:"classifier_available"`
	AttackRate          float64   `json:"attack_rate"`
	ClassifierUsageRate float64   `json:"classifier_usage_rate"`
	SuccessRate         float64   `json:"success_rate"`
	RecentAttackCount   int       `json:"recent_attack_count"`
	RecentResults       int       `json:"total_results"`
	LastReset           time.Time `json:"last_reset"`
	ComputedAt          time.Time `json:"computed_at"`
}

// DashboardStats is the formatted view of AggregateStats
type DashboardStats struct {
	TotalRequests       int64  `json:"total_requests"`
	DetectedAttacks     int64  `json:"detected_attacks"`
	AttackRate          string `json:"attack_rate"`
	ClassifierAvailable bool   `json:"classifier_available"`
	ActiveUsers         int    `json:"active_users"`
	ActiveOrigins       int    `json:"active_ips"`
	AttemptsLastHour    int    `json:"attempts_last_hour"`
	ClassifierUsage     string `json:"classifier_usage"`
	RecentAttacks       int    `json:"recent_attacks"`
	LastUpdate          string `json:"last_update"`
}

// LoginStats summarizes recorded security events over a lookback window.
// StoredAttacks is the all-time attack count in the events database, when one is configured.
type LoginStats struct {
	TotalAttempts      int       `json:"total_attempts"`
	SuccessfulLogins   int       `json:"successful_logins"`
	FailedLogins       int       `json:"failed_logins"`
	UniqueIPs          int       `json:"unique_ips"`
	UniqueUsers        int       `json:"unique_users"`
	Countries          []string  `json:"countries"`
	CountryCount       int       `json:"country_count"`
	SuspiciousAttempts int       `json:"suspicious_attempts"`
	DetectedAttacks    int       `json:"detected_attacks"`
	AttackRate         float64   `json:"attack_rate"`
	SuccessRate        float64   `json:"success_rate"`
	StoredAttacks      int64     `json:"stored_attacks_total,omitempty"`
	LastUpdate         time.Time `json:"last_update"`
}
