package detection

import (
	"net"
	"strings"

	"github.com/BradenHooton/loginguard/internal/models"
)

// Rule flags
const (
	FlagLocalOrigin        = "local_origin"
	FlagUnknownRegion      = "unknown_region"
	FlagHighRiskRegion     = "high_risk_region"
	FlagSuspiciousClient   = "suspicious_client"
	FlagFailedLogin        = "failed_login"
	FlagSuspiciousIdentity = "suspicious_identity"
)

// Rule weights in basis points; summed as integers so the total is exact
const (
	WeightLocalOrigin        = 4000
	WeightUnknownRegion      = 3000
	WeightHighRiskRegion     = 2000
	WeightSuspiciousClient   = 3000
	WeightFailedLogin        = 1000
	WeightSuspiciousIdentity = 2000

	maxScoreBP = 10000
)

// BehavioralConfig holds the configurable sets used by the rules
type BehavioralConfig struct {
	HighRiskRegions      []string
	SuspiciousIdentities []string
	ScriptingClients     []string
}

// DefaultBehavioralConfig returns the rule sets used when nothing is configured
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		HighRiskRegions:      []string{"RU", "CN", "KP", "IR"},
		SuspiciousIdentities: []string{"admin", "root", "test", "hacker"},
		ScriptingClients:     []string{"python", "curl", "wget", "go-http-client", "libwww-perl", "httpie"},
	}
}

// BehavioralScorer evaluates the additive rule table. It holds no mutable state.
type BehavioralScorer struct {
	highRisk    map[string]bool
	identities  []string
	scriptTools []string
}

// NewBehavioralScorer creates a scorer from config
func NewBehavioralScorer(config BehavioralConfig) *BehavioralScorer {
	highRisk := make(map[string]bool, len(config.HighRiskRegions))
	for _, r := range config.HighRiskRegions {
		highRisk[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	return &BehavioralScorer{
		highRisk:    highRisk,
		identities:  lowerAll(config.SuspiciousIdentities),
		scriptTools: lowerAll(config.ScriptingClients),
	}
}

// Score applies every matching rule, then clamps the sum to 1.0.
// history is the recent activity for the attempt's identity (or origin when anonymous); it does
// not contribute to the score and is only summarized into RecentFailures.
func (s *BehavioralScorer) Score(a models.AttemptRecord, history []models.ActivityEvent) models.BehavioralResult {
	score := 0
	flags := make([]string, 0, 4)

	if IsLocalOrigin(a.IPAddress) {
		score += WeightLocalOrigin
		flags = append(flags, FlagLocalOrigin)
	}

	// unknown is checked first; the two region rules never both apply
	if isUnresolved(a.Country) {
		score += WeightUnknownRegion
		flags = append(flags, FlagUnknownRegion)
	} else if s.highRisk[strings.ToUpper(a.Country)] {
		score += WeightHighRiskRegion
		flags = append(flags, FlagHighRiskRegion)
	}

	if s.isSuspiciousClient(a) {
		score += WeightSuspiciousClient
		flags = append(flags, FlagSuspiciousClient)
	}

	if !a.LoginSuccessful {
		score += WeightFailedLogin
		flags = append(flags, FlagFailedLogin)
	}

	if containsAny(strings.ToLower(a.Email), s.identities) {
		score += WeightSuspiciousIdentity
		flags = append(flags, FlagSuspiciousIdentity)
	}

	failures := 0
	for _, ev := range history {
		if !ev.Success {
			failures++
		}
	}

	return models.BehavioralResult{
		Score:          float64(min(score, maxScoreBP)) / maxScoreBP,
		Flags:          flags,
		RecentFailures: failures,
	}
}

func (s *BehavioralScorer) isSuspiciousClient(a models.AttemptRecord) bool {
	if isUnresolved(a.Browser) || strings.Contains(a.Browser, models.UnknownValue) {
		return true
	}
	return containsAny(strings.ToLower(a.Browser), s.scriptTools) ||
		containsAny(strings.ToLower(a.UserAgent), s.scriptTools)
}

// IsLocalOrigin reports whether ip is a loopback address or the literal "localhost"
func IsLocalOrigin(ip string) bool {
	ip = strings.TrimSpace(ip)
	if strings.EqualFold(ip, "localhost") {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func isUnresolved(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, models.UnknownValue)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
